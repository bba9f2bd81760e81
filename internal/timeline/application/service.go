package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"reservoir-ops/internal/observability/metrics"
	outlets "reservoir-ops/internal/outlets/domain"
	timeline "reservoir-ops/internal/timeline/domain"
	"reservoir-ops/internal/units"
)

// DefaultBatchSize bounds the changes written per transaction.
const DefaultBatchSize = 1000

// OutletLookup lists the outlets of a project.
type OutletLookup interface {
	ListByProject(ctx context.Context, projectID outlets.LocationID) ([]outlets.Outlet, error)
}

// Limits resolves per-project batch and default page sizes. Zero values fall
// back to the service defaults.
type Limits func(projectID outlets.LocationID) (batchSize, pageSize int)

// Service stores, queries and deletes operational changes.
type Service struct {
	repo      timeline.ChangeRepository
	outlets   OutletLookup
	converter units.Converter
	batchSize int
	pageSize  int
	limits    Limits
	observer  metrics.Observer
	logger    *log.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithConverter enables unit conversion on retrieval.
func WithConverter(converter units.Converter) Option {
	return func(s *Service) {
		s.converter = converter
	}
}

// WithBatchSize overrides the chunk size for bulk stores.
func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithDefaultPageSize overrides the page size used when callers pass zero.
func WithDefaultPageSize(size int) Option {
	return func(s *Service) {
		if size != 0 {
			s.pageSize = size
		}
	}
}

// WithLimits installs per-project limits.
func WithLimits(limits Limits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

// WithObserver assigns an observer.
func WithObserver(observer metrics.Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a timeline service.
func NewService(repo timeline.ChangeRepository, lookup OutletLookup, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("timeline service: nil repository")
	}
	if lookup == nil {
		return nil, errors.New("timeline service: nil outlet lookup")
	}
	s := &Service{
		repo:      repo,
		outlets:   lookup,
		batchSize: DefaultBatchSize,
		pageSize:  timeline.DefaultPageSize,
		observer:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StoreOperationalChanges validates every change, then writes them in chunks.
//
// Validation, the FailIfExists check and the protection check cover the whole
// batch before the first write. A batch that fits in one chunk is written in a
// single transaction across all of its projects. Larger batches commit chunk by
// chunk, so a transport failure part way through leaves earlier chunks stored;
// the error reports how many were.
func (s *Service) StoreOperationalChanges(ctx context.Context, kind timeline.Kind, changes []timeline.Change, opts timeline.StoreOptions) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("store_changes", metrics.Result(err), time.Since(start)) }()

	if len(changes) == 0 {
		return nil
	}
	prepared := make([]timeline.Change, len(changes))
	for i, change := range changes {
		change = change.Clone()
		if change.Kind == "" {
			change.Kind = kind
		}
		if change.Kind != kind {
			return outlets.NewValidationError("kind", fmt.Sprintf("change %d is %s, batch is %s", i, change.Kind, kind))
		}
		change.Normalize()
		if err := change.Validate(); err != nil {
			return err
		}
		prepared[i] = change
	}

	byProject := make(map[outlets.LocationID][]timeline.Change)
	var projects []outlets.LocationID
	for _, change := range prepared {
		if _, ok := byProject[change.ProjectID]; !ok {
			projects = append(projects, change.ProjectID)
		}
		byProject[change.ProjectID] = append(byProject[change.ProjectID], change)
	}
	for _, projectID := range projects {
		batch := byProject[projectID]
		sort.Slice(batch, func(i, j int) bool { return batch[i].ChangeDate.Before(batch[j].ChangeDate) })
		if err := s.validateProjectBatch(ctx, kind, projectID, batch, opts); err != nil {
			return err
		}
	}

	stored := 0
	for _, chunk := range s.chunks(projects, byProject, len(prepared)) {
		if err := s.repo.Store(ctx, kind, chunk, opts); err != nil {
			s.observer.AddChanges(string(kind), "stored", stored)
			return fmt.Errorf("store %s changes for %s (stored %d of %d): %w", kind, chunk[0].ProjectID, stored, len(prepared), err)
		}
		stored += len(chunk)
	}
	for _, projectID := range projects {
		s.logf("timeline: stored changes kind=%s project=%s count=%d", kind, projectID, len(byProject[projectID]))
	}
	s.observer.AddChanges(string(kind), "stored", stored)
	return nil
}

// chunks splits the sorted per-project batches into repository writes. When
// total fits under every project's batch size the result is one chunk.
func (s *Service) chunks(projects []outlets.LocationID, byProject map[outlets.LocationID][]timeline.Change, total int) [][]timeline.Change {
	single := true
	for _, projectID := range projects {
		if total > s.batchSizeFor(projectID) {
			single = false
			break
		}
	}
	if single {
		all := make([]timeline.Change, 0, total)
		for _, projectID := range projects {
			all = append(all, byProject[projectID]...)
		}
		return [][]timeline.Change{all}
	}

	var out [][]timeline.Change
	for _, projectID := range projects {
		batch := byProject[projectID]
		size := s.batchSizeFor(projectID)
		for lo := 0; lo < len(batch); lo += size {
			hi := lo + size
			if hi > len(batch) {
				hi = len(batch)
			}
			out = append(out, batch[lo:hi])
		}
	}
	return out
}

func (s *Service) validateProjectBatch(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, batch []timeline.Change, opts timeline.StoreOptions) error {
	known, err := s.projectOutlets(ctx, projectID)
	if err != nil {
		return err
	}
	dates := make([]time.Time, 0, len(batch))
	seen := make(map[int64]struct{}, len(batch))
	for _, change := range batch {
		for _, setting := range change.Settings {
			if !known.Contains(setting.LocationID) {
				return outlets.NewValidationError("settings.location_id", fmt.Sprintf("%s is not an outlet of %s", setting.LocationID, projectID))
			}
		}
		at := change.ChangeDate.UnixNano()
		if _, dup := seen[at]; dup {
			return outlets.NewValidationError("change_date", fmt.Sprintf("duplicate %s in batch", change.ChangeDate.Format(time.RFC3339)))
		}
		seen[at] = struct{}{}
		dates = append(dates, change.ChangeDate)
	}
	if !opts.FailIfExists && opts.OverrideProtection {
		return nil
	}
	existing, err := s.repo.ExistingChanges(ctx, kind, projectID, dates)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	if opts.FailIfExists {
		return fmt.Errorf("%w: %d %s changes already exist for %s, first at %s", timeline.ErrConflict, len(existing), kind, projectID, existing[0].ChangeDate.Format(time.RFC3339))
	}
	for _, e := range existing {
		if e.Protected {
			return fmt.Errorf("%w: %s change at %s for %s", timeline.ErrProtectedRecord, kind, e.ChangeDate.Format(time.RFC3339), projectID)
		}
	}
	return nil
}

// RetrieveOperationalChanges returns the window's changes in ascending order,
// trimmed by a signed page size and converted to unitSystem.
func (s *Service) RetrieveOperationalChanges(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, window timeline.Window, unitSystem units.System, pageSize int) (_ []timeline.Change, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("retrieve_changes", metrics.Result(err), time.Since(start)) }()

	if err := window.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.projectOutlets(ctx, projectID); err != nil {
		return nil, err
	}
	pageSize = timeline.ResolvePageSize(pageSize, s.pageSizeFor(projectID))
	list, err := s.repo.List(ctx, kind, projectID, window, pageSize)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []timeline.Change{}
	}
	if s.converter != nil && unitSystem != "" {
		for i := range list {
			if err := convertChange(s.converter, unitSystem, &list[i]); err != nil {
				return nil, err
			}
		}
	}
	return list, nil
}

// DeleteOperationalChanges removes the window's changes. Protected changes
// are kept unless overrideProtection is set and are counted in the result.
func (s *Service) DeleteOperationalChanges(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, window timeline.Window, overrideProtection bool) (_ timeline.DeleteResult, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("delete_changes", metrics.Result(err), time.Since(start)) }()

	if err := window.Validate(); err != nil {
		return timeline.DeleteResult{}, err
	}
	if _, err := s.projectOutlets(ctx, projectID); err != nil {
		return timeline.DeleteResult{}, err
	}
	result, err := s.repo.Delete(ctx, kind, projectID, window, overrideProtection)
	if err != nil {
		return timeline.DeleteResult{}, fmt.Errorf("delete %s changes for %s: %w", kind, projectID, err)
	}
	s.observer.AddChanges(string(kind), "deleted", result.Deleted)
	s.logf("timeline: deleted changes kind=%s project=%s deleted=%d protected=%d", kind, projectID, result.Deleted, result.Protected)
	return result, nil
}

// DeleteOperationalChange removes the change at changeDate.
func (s *Service) DeleteOperationalChange(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, changeDate time.Time, overrideProtection bool) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("delete_change", metrics.Result(err), time.Since(start)) }()

	if changeDate.IsZero() {
		return outlets.NewValidationError("change_date", "required")
	}
	if _, err := s.projectOutlets(ctx, projectID); err != nil {
		return err
	}
	if err := s.repo.DeleteOne(ctx, kind, projectID, changeDate, overrideProtection); err != nil {
		return fmt.Errorf("delete %s change for %s: %w", kind, projectID, err)
	}
	s.observer.AddChanges(string(kind), "deleted", 1)
	return nil
}

// projectOutlets returns the project's outlets. A project with no outlets is
// unknown to this service.
func (s *Service) projectOutlets(ctx context.Context, projectID outlets.LocationID) (outlets.OutletSet, error) {
	if err := projectID.Validate(); err != nil {
		return nil, outlets.NewValidationError("project_id", err.Error())
	}
	list, err := s.outlets.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: project %s", timeline.ErrNotFound, projectID)
	}
	return outlets.NewOutletSet(list), nil
}

func (s *Service) batchSizeFor(projectID outlets.LocationID) int {
	if s.limits != nil {
		if size, _ := s.limits(projectID); size > 0 {
			return size
		}
	}
	return s.batchSize
}

func (s *Service) pageSizeFor(projectID outlets.LocationID) int {
	if s.limits != nil {
		if _, size := s.limits(projectID); size != 0 {
			return size
		}
	}
	return s.pageSize
}

func (s *Service) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
