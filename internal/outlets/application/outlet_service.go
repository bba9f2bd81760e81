package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reservoir-ops/internal/observability/metrics"
	outlets "reservoir-ops/internal/outlets/domain"
)

// OutletService provides outlet registry commands and queries.
type OutletService struct {
	repo     outlets.OutletRepository
	projects outlets.IdentityValidator
	observer metrics.Observer
	logger   *log.Logger
}

// Option customizes outlet application services.
type Option func(*options)

type options struct {
	observer metrics.Observer
	logger   *log.Logger
	projects outlets.IdentityValidator
}

// WithObserver assigns an observer.
func WithObserver(observer metrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProjectValidator checks project locations against an external
// location registry before outlets are stored.
func WithProjectValidator(projects outlets.IdentityValidator) Option {
	return func(o *options) {
		o.projects = projects
	}
}

func buildOptions(opts []Option) options {
	o := options{observer: metrics.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewOutletService constructs an outlet service.
func NewOutletService(repo outlets.OutletRepository, opts ...Option) (*OutletService, error) {
	if repo == nil {
		return nil, errors.New("outlet service: nil repository")
	}
	o := buildOptions(opts)
	return &OutletService{repo: repo, projects: o.projects, observer: o.observer, logger: o.logger}, nil
}

// StoreOutlet creates or updates an outlet.
func (s *OutletService) StoreOutlet(ctx context.Context, outlet *outlets.Outlet, failIfExists bool) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("store_outlet", metrics.Result(err), time.Since(start)) }()

	if outlet == nil {
		return errors.New("outlet service: nil outlet")
	}
	if err := outlet.Validate(); err != nil {
		return err
	}
	if s.projects != nil {
		ok, err := s.projects.Exists(ctx, outlet.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: project %s", outlets.ErrNotFound, outlet.ProjectID)
		}
	}
	if err := s.repo.Save(ctx, outlet, failIfExists); err != nil {
		return fmt.Errorf("store outlet %s: %w", outlet.ID, err)
	}
	s.logf("outlets: stored outlet id=%s project=%s", outlet.ID, outlet.ProjectID)
	return nil
}

// RetrieveOutlet loads one outlet.
func (s *OutletService) RetrieveOutlet(ctx context.Context, officeID, name string) (*outlets.Outlet, error) {
	id := outlets.NewLocationID(officeID, name)
	if err := id.Validate(); err != nil {
		return nil, err
	}
	outlet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if outlet == nil {
		return nil, fmt.Errorf("%w: outlet %s", outlets.ErrNotFound, id)
	}
	return outlet, nil
}

// RetrieveOutletsForProject lists a project's outlets by storage key.
func (s *OutletService) RetrieveOutletsForProject(ctx context.Context, projectID outlets.LocationID) ([]outlets.Outlet, error) {
	if err := projectID.Validate(); err != nil {
		return nil, outlets.NewValidationError("project_id", err.Error())
	}
	list, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []outlets.Outlet{}
	}
	return list, nil
}

// RenameOutlet renames an outlet and every reference to it.
func (s *OutletService) RenameOutlet(ctx context.Context, officeID, oldName, newName string) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("rename_outlet", metrics.Result(err), time.Since(start)) }()

	from := outlets.NewLocationID(officeID, oldName)
	if err := from.Validate(); err != nil {
		return err
	}
	if err := outlets.NewLocationID(officeID, newName).Validate(); err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if err := s.repo.Rename(ctx, from, newName); err != nil {
		return fmt.Errorf("rename outlet %s: %w", from, err)
	}
	s.logf("outlets: renamed outlet office=%s from=%s to=%s", officeID, oldName, newName)
	return nil
}

// DeleteOutlet removes an outlet under a delete rule.
func (s *OutletService) DeleteOutlet(ctx context.Context, officeID, name string, rule outlets.DeleteRule) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("delete_outlet", metrics.Result(err), time.Since(start)) }()

	id := outlets.NewLocationID(officeID, name)
	if err := id.Validate(); err != nil {
		return err
	}
	parsed, ok := outlets.ParseDeleteRule(string(rule))
	if !ok {
		return outlets.NewValidationError("method", fmt.Sprintf("unknown delete rule %q", rule))
	}
	rule = parsed
	if err := s.repo.Delete(ctx, id, rule); err != nil {
		return fmt.Errorf("delete outlet %s: %w", id, err)
	}
	s.logf("outlets: deleted outlet id=%s rule=%s", id, rule)
	return nil
}

func (s *OutletService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
