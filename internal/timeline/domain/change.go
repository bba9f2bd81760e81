package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
)

// Kind separates gate changes from turbine changes. Both share one store.
type Kind string

const (
	KindGate    Kind = "gate"
	KindTurbine Kind = "turbine"
)

// ParseKind normalizes a change kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindGate:
		return KindGate, true
	case KindTurbine:
		return KindTurbine, true
	default:
		return "", false
	}
}

// LookupType is an office-scoped enumerated value such as a reason code.
type LookupType struct {
	OfficeID     string `json:"office-id"`
	DisplayValue string `json:"display-value"`
	Tooltip      string `json:"tooltip,omitempty"`
	Active       bool   `json:"active"`
}

// Change is one operational change applied to a project at a point in time.
type Change struct {
	Kind                      Kind               `json:"-"`
	ProjectID                 outlets.LocationID `json:"project-id"`
	ChangeDate                time.Time          `json:"change-date"`
	Protected                 bool               `json:"protected"`
	DischargeComputationType  LookupType         `json:"discharge-computation-type"`
	ReasonType                LookupType         `json:"reason-type"`
	NewTotalDischargeOverride *float64           `json:"new-total-discharge-override,omitempty"`
	OldTotalDischargeOverride *float64           `json:"old-total-discharge-override,omitempty"`
	DischargeUnits            string             `json:"discharge-units,omitempty"`
	PoolElevation             *float64           `json:"pool-elevation,omitempty"`
	TailwaterElevation        *float64           `json:"tailwater-elevation,omitempty"`
	ElevationUnits            string             `json:"elevation-units,omitempty"`
	Notes                     string             `json:"notes,omitempty"`
	Settings                  []Setting          `json:"settings"`
}

// Setting is one outlet's parameters within a change. Gate and turbine
// settings share the struct; the change kind decides which fields apply.
type Setting struct {
	LocationID outlets.LocationID `json:"location-id"`

	Opening          *float64 `json:"opening,omitempty"`
	OpeningParameter string   `json:"opening-parameter,omitempty"`
	OpeningUnits     string   `json:"opening-units,omitempty"`
	InvertElevation  *float64 `json:"invert-elevation,omitempty"`

	OldDischarge    *float64 `json:"old-discharge,omitempty"`
	NewDischarge    *float64 `json:"new-discharge,omitempty"`
	DischargeUnits  string   `json:"discharge-units,omitempty"`
	ScheduledLoad   *float64 `json:"scheduled-load,omitempty"`
	RealPower       *float64 `json:"real-power,omitempty"`
	GenerationUnits string   `json:"generation-units,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Normalize puts the change date in UTC and sorts settings by location.
func (c *Change) Normalize() {
	c.ChangeDate = c.ChangeDate.UTC()
	sort.SliceStable(c.Settings, func(i, j int) bool {
		return c.Settings[i].LocationID.Less(c.Settings[j].LocationID)
	})
}

// Clone deep-copies the change.
func (c Change) Clone() Change {
	out := c
	out.NewTotalDischargeOverride = cloneFloat(c.NewTotalDischargeOverride)
	out.OldTotalDischargeOverride = cloneFloat(c.OldTotalDischargeOverride)
	out.PoolElevation = cloneFloat(c.PoolElevation)
	out.TailwaterElevation = cloneFloat(c.TailwaterElevation)
	if c.Settings != nil {
		out.Settings = make([]Setting, len(c.Settings))
		for i, s := range c.Settings {
			out.Settings[i] = s.clone()
		}
	}
	return out
}

func (s Setting) clone() Setting {
	out := s
	out.Opening = cloneFloat(s.Opening)
	out.InvertElevation = cloneFloat(s.InvertElevation)
	out.OldDischarge = cloneFloat(s.OldDischarge)
	out.NewDischarge = cloneFloat(s.NewDischarge)
	out.ScheduledLoad = cloneFloat(s.ScheduledLoad)
	out.RealPower = cloneFloat(s.RealPower)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Validate checks the required fields for the change kind. Whether settings
// point at outlets of the project is checked by the store service.
func (c Change) Validate() error {
	if c.Kind != KindGate && c.Kind != KindTurbine {
		return validationError("kind", fmt.Sprintf("unknown kind %q", c.Kind))
	}
	if err := c.ProjectID.Validate(); err != nil {
		return validationError("project_id", err.Error())
	}
	if c.ChangeDate.IsZero() {
		return validationError("change_date", "required")
	}
	if strings.TrimSpace(c.DischargeComputationType.DisplayValue) == "" {
		return validationError("discharge_computation_type", "required")
	}
	if strings.TrimSpace(c.ReasonType.DisplayValue) == "" {
		return validationError("reason_type", "required")
	}
	if (c.NewTotalDischargeOverride != nil || c.OldTotalDischargeOverride != nil) && c.DischargeUnits == "" {
		return validationError("discharge_units", "required with discharge overrides")
	}
	if (c.PoolElevation != nil || c.TailwaterElevation != nil) && c.ElevationUnits == "" {
		return validationError("elevation_units", "required with elevations")
	}

	seen := make(map[outlets.LocationID]struct{}, len(c.Settings))
	for _, s := range c.Settings {
		if err := s.LocationID.Validate(); err != nil {
			return validationError("settings.location_id", err.Error())
		}
		if s.LocationID.OfficeID != c.ProjectID.OfficeID {
			return validationError("settings.location_id", fmt.Sprintf("%s is outside office %s", s.LocationID, c.ProjectID.OfficeID))
		}
		if _, dup := seen[s.LocationID]; dup {
			return validationError("settings.location_id", fmt.Sprintf("duplicate setting for %s", s.LocationID))
		}
		seen[s.LocationID] = struct{}{}
		if err := s.validate(c.Kind); err != nil {
			return err
		}
	}
	return nil
}

func (s Setting) validate(kind Kind) error {
	switch kind {
	case KindGate:
		if s.Opening == nil {
			return validationError("settings.opening", fmt.Sprintf("required for %s", s.LocationID))
		}
		if s.OpeningUnits == "" {
			return validationError("settings.opening_units", fmt.Sprintf("required for %s", s.LocationID))
		}
	case KindTurbine:
		if s.NewDischarge == nil {
			return validationError("settings.new_discharge", fmt.Sprintf("required for %s", s.LocationID))
		}
		if s.DischargeUnits == "" {
			return validationError("settings.discharge_units", fmt.Sprintf("required for %s", s.LocationID))
		}
		if (s.ScheduledLoad != nil || s.RealPower != nil) && s.GenerationUnits == "" {
			return validationError("settings.generation_units", fmt.Sprintf("required for %s", s.LocationID))
		}
	}
	return nil
}

// Locations lists the setting locations in order.
func (c Change) Locations() []outlets.LocationID {
	out := make([]outlets.LocationID, 0, len(c.Settings))
	for _, s := range c.Settings {
		out = append(out, s.LocationID)
	}
	return out
}

// StoreOptions controls StoreOperationalChanges.
type StoreOptions struct {
	FailIfExists       bool
	OverrideProtection bool
}

// DeleteResult reports the outcome of a window delete.
type DeleteResult struct {
	Deleted   int `json:"deleted"`
	Protected int `json:"protected"`
}
