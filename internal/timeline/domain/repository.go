package timeline

import (
	"context"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
)

// ExistingChange is the stored state a write would replace.
type ExistingChange struct {
	ChangeDate time.Time
	Protected  bool
}

// ChangeRepository manages operational change persistence.
type ChangeRepository interface {
	// Store writes one batch in a single transaction. It enforces FailIfExists
	// and protection against the rows it replaces.
	Store(ctx context.Context, kind Kind, changes []Change, opts StoreOptions) error
	// ExistingChanges returns which of dates already hold a change, ascending.
	ExistingChanges(ctx context.Context, kind Kind, projectID outlets.LocationID, dates []time.Time) ([]ExistingChange, error)
	// List returns ascending changes in the window trimmed by a signed page size.
	List(ctx context.Context, kind Kind, projectID outlets.LocationID, window Window, pageSize int) ([]Change, error)
	Delete(ctx context.Context, kind Kind, projectID outlets.LocationID, window Window, overrideProtection bool) (DeleteResult, error)
	// DeleteOne returns ErrNotFound or ErrProtectedRecord when nothing was removed.
	DeleteOne(ctx context.Context, kind Kind, projectID outlets.LocationID, changeDate time.Time, overrideProtection bool) error
}
