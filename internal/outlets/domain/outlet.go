package outlets

import (
	"strings"
	"time"
)

// DeleteRule selects how much dependent data an outlet delete removes.
type DeleteRule string

const (
	// DeleteKey removes only the outlet itself and fails while anything references it.
	DeleteKey DeleteRule = "DELETE_KEY"
	// DeleteAll removes the outlet together with graph edges and settings that reference it.
	DeleteAll DeleteRule = "DELETE_ALL"
)

// ParseDeleteRule normalizes a delete rule string.
func ParseDeleteRule(value string) (DeleteRule, bool) {
	switch DeleteRule(strings.ToUpper(strings.TrimSpace(value))) {
	case DeleteKey:
		return DeleteKey, true
	case DeleteAll:
		return DeleteAll, true
	default:
		return "", false
	}
}

// Outlet is a physical flow-control structure at a project.
type Outlet struct {
	ID            LocationID `json:"location"`
	ProjectID     LocationID `json:"project-id"`
	RatingGroupID string     `json:"rating-group-id,omitempty"`
	RatingSpecID  string     `json:"rating-spec-id,omitempty"`
	// CompoundRecords is filled on read when the outlet addresses a compound grouping.
	CompoundRecords []VirtualOutletRecord `json:"compound-outlet-records,omitempty"`
	CreatedAt       time.Time             `json:"-"`
	UpdatedAt       time.Time             `json:"-"`
}

// IsCompound reports whether the outlet carries compound routing records.
func (o Outlet) IsCompound() bool {
	return len(o.CompoundRecords) > 0
}

// Validate checks outlet invariants.
func (o Outlet) Validate() error {
	if err := o.ID.Validate(); err != nil {
		return err
	}
	if err := o.ProjectID.Validate(); err != nil {
		return NewValidationError("project_id", err.Error())
	}
	if o.ProjectID.OfficeID != o.ID.OfficeID {
		return NewValidationError("project_id", "office must match outlet office")
	}
	if o.ProjectID == o.ID {
		return NewValidationError("project_id", "outlet cannot be its own project")
	}
	return nil
}
