package outlets

import "context"

// OutletRepository manages outlet persistence.
type OutletRepository interface {
	// Get returns nil, nil when the outlet does not exist.
	Get(ctx context.Context, id LocationID) (*Outlet, error)
	ListByProject(ctx context.Context, projectID LocationID) ([]Outlet, error)
	Save(ctx context.Context, outlet *Outlet, failIfExists bool) error
	Rename(ctx context.Context, id LocationID, newName string) error
	Delete(ctx context.Context, id LocationID, rule DeleteRule) error
}

// VirtualOutletRepository manages virtual and compound outlet persistence.
type VirtualOutletRepository interface {
	// Get returns nil, nil when the grouping does not exist.
	Get(ctx context.Context, projectID, id LocationID) (*VirtualOutlet, error)
	ListByProject(ctx context.Context, projectID LocationID) ([]VirtualOutlet, error)
	// Replace swaps the full record set of a grouping in one transaction.
	Replace(ctx context.Context, vo *VirtualOutlet, failIfExists bool) error
	Delete(ctx context.Context, projectID, id LocationID, cascade bool) error
}

// IdentityValidator answers whether an outlet location exists.
type IdentityValidator interface {
	Exists(ctx context.Context, id LocationID) (bool, error)
}
