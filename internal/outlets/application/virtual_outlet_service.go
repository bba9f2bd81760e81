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

// VirtualOutletService stores and retrieves routing graphs.
type VirtualOutletService struct {
	outlets  outlets.OutletRepository
	repo     outlets.VirtualOutletRepository
	observer metrics.Observer
	logger   *log.Logger
}

// NewVirtualOutletService constructs a virtual outlet service.
func NewVirtualOutletService(outletRepo outlets.OutletRepository, repo outlets.VirtualOutletRepository, opts ...Option) (*VirtualOutletService, error) {
	if outletRepo == nil {
		return nil, errors.New("virtual outlet service: nil outlet repository")
	}
	if repo == nil {
		return nil, errors.New("virtual outlet service: nil repository")
	}
	o := buildOptions(opts)
	return &VirtualOutletService{outlets: outletRepo, repo: repo, observer: o.observer, logger: o.logger}, nil
}

// StoreVirtualOutlet validates the record set as a DAG over the project's
// outlets and replaces the stored grouping in one transaction.
func (s *VirtualOutletService) StoreVirtualOutlet(ctx context.Context, vo *outlets.VirtualOutlet, failIfExists bool) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("store_virtual_outlet", metrics.Result(err), time.Since(start)) }()

	if vo == nil {
		return errors.New("virtual outlet service: nil virtual outlet")
	}
	if err := vo.Validate(); err != nil {
		return err
	}
	known, err := s.knownOutlets(ctx, vo.ProjectID)
	if err != nil {
		return err
	}
	if vo.Compound && !known.Contains(vo.ID) {
		return fmt.Errorf("%w: compound outlet %s is not an outlet of %s", outlets.ErrNotFound, vo.ID, vo.ProjectID)
	}
	graph, err := outlets.BuildGraph(vo.Records, known)
	if err != nil {
		s.observer.IncGraphRejected(rejectReason(err))
		return fmt.Errorf("store virtual outlet %s: %w", vo.ID, err)
	}

	stored := &outlets.VirtualOutlet{
		ProjectID: vo.ProjectID,
		ID:        vo.ID,
		Compound:  vo.Compound,
		Records:   outlets.Serialize(graph),
	}
	if err := s.repo.Replace(ctx, stored, failIfExists); err != nil {
		return fmt.Errorf("store virtual outlet %s: %w", vo.ID, err)
	}
	vo.CreatedAt = stored.CreatedAt
	s.logf("outlets: stored virtual outlet id=%s project=%s nodes=%d edges=%d", vo.ID, vo.ProjectID, len(graph.Nodes()), len(graph.Edges()))
	return nil
}

// RetrieveVirtualOutlet loads a grouping and re-validates it against the
// current registry, so references broken since it was stored surface as
// ErrInvalidGraph.
func (s *VirtualOutletService) RetrieveVirtualOutlet(ctx context.Context, projectID, id outlets.LocationID) (*outlets.VirtualOutlet, error) {
	vo, _, err := s.retrieve(ctx, projectID, id)
	return vo, err
}

// RetrieveGraph loads a grouping as a validated graph.
func (s *VirtualOutletService) RetrieveGraph(ctx context.Context, projectID, id outlets.LocationID) (*outlets.Graph, error) {
	_, graph, err := s.retrieve(ctx, projectID, id)
	return graph, err
}

func (s *VirtualOutletService) retrieve(ctx context.Context, projectID, id outlets.LocationID) (*outlets.VirtualOutlet, *outlets.Graph, error) {
	if err := projectID.Validate(); err != nil {
		return nil, nil, outlets.NewValidationError("project_id", err.Error())
	}
	if err := id.Validate(); err != nil {
		return nil, nil, err
	}
	vo, err := s.repo.Get(ctx, projectID, id)
	if err != nil {
		return nil, nil, err
	}
	if vo == nil {
		return nil, nil, fmt.Errorf("%w: virtual outlet %s in %s", outlets.ErrNotFound, id, projectID)
	}
	known, err := s.knownOutlets(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	graph, err := outlets.BuildGraph(vo.Records, known)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve virtual outlet %s: %w", id, err)
	}
	return vo, graph, nil
}

// ListVirtualOutlets returns the project's groupings without re-validation.
func (s *VirtualOutletService) ListVirtualOutlets(ctx context.Context, projectID outlets.LocationID) ([]outlets.VirtualOutlet, error) {
	if err := projectID.Validate(); err != nil {
		return nil, outlets.NewValidationError("project_id", err.Error())
	}
	list, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []outlets.VirtualOutlet{}
	}
	return list, nil
}

// DeleteVirtualOutlet removes a grouping. With cascade unset the edge rows
// stay behind.
func (s *VirtualOutletService) DeleteVirtualOutlet(ctx context.Context, projectID, id outlets.LocationID, cascade bool) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("delete_virtual_outlet", metrics.Result(err), time.Since(start)) }()

	if err := projectID.Validate(); err != nil {
		return outlets.NewValidationError("project_id", err.Error())
	}
	if err := id.Validate(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, projectID, id, cascade); err != nil {
		return fmt.Errorf("delete virtual outlet %s: %w", id, err)
	}
	s.logf("outlets: deleted virtual outlet id=%s project=%s cascade=%t", id, projectID, cascade)
	return nil
}

func (s *VirtualOutletService) knownOutlets(ctx context.Context, projectID outlets.LocationID) (outlets.OutletSet, error) {
	list, err := s.outlets.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return outlets.NewOutletSet(list), nil
}

func (s *VirtualOutletService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, outlets.ErrCycleDetected):
		return "cycle"
	case errors.Is(err, outlets.ErrDanglingReference):
		return "dangling"
	case errors.Is(err, outlets.ErrDuplicateNode):
		return "duplicate"
	default:
		return "invalid"
	}
}
