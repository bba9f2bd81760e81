package application

import (
	"context"
	"errors"
	"testing"

	outlets "reservoir-ops/internal/outlets/domain"
)

type stubProjects map[outlets.LocationID]bool

func (s stubProjects) Exists(_ context.Context, id outlets.LocationID) (bool, error) {
	return s[id], nil
}

func TestOutletService_StoreAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t, "C", "A", "B")

	list, err := svc.RetrieveOutletsForProject(ctx, project)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != loc("A") || list[2].ID != loc("C") {
		t.Fatalf("expected storage key order, got %+v", list)
	}

	err = svc.StoreOutlet(ctx, &outlets.Outlet{ID: loc("A"), ProjectID: project}, true)
	if !errors.Is(err, outlets.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.RetrieveOutlet(ctx, "SWT", "Z"); !errors.Is(err, outlets.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	empty, err := svc.RetrieveOutletsForProject(ctx, loc("TENK"))
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}
}

func TestOutletService_ProjectValidator(t *testing.T) {
	ctx := context.Background()
	base, _ := newServices(t)
	svc, err := NewOutletService(base.repo, WithProjectValidator(stubProjects{project: true}))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if err := svc.StoreOutlet(ctx, &outlets.Outlet{ID: loc("A"), ProjectID: project}, false); err != nil {
		t.Fatalf("store: %v", err)
	}
	err = svc.StoreOutlet(ctx, &outlets.Outlet{ID: loc("B"), ProjectID: loc("NOPE")}, false)
	if !errors.Is(err, outlets.ErrNotFound) {
		t.Fatalf("expected not found project, got %v", err)
	}
}

func TestOutletService_RenameAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, voSvc := newServices(t, "A", "B")
	vo := &outlets.VirtualOutlet{ProjectID: project, ID: loc("V1"), Records: []outlets.VirtualOutletRecord{record("A", "B")}}
	if err := voSvc.StoreVirtualOutlet(ctx, vo, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := svc.RenameOutlet(ctx, "SWT", "B", "A"); !errors.Is(err, outlets.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := svc.RenameOutlet(ctx, "SWT", "B", "KEYS-Spillway"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	graph, err := voSvc.RetrieveGraph(ctx, project, loc("V1"))
	if err != nil {
		t.Fatalf("graph after rename: %v", err)
	}
	if down := graph.Downstream(loc("A")); len(down) != 1 || down[0] != loc("KEYS-Spillway") {
		t.Fatalf("expected renamed downstream, got %v", down)
	}

	if err := svc.DeleteOutlet(ctx, "SWT", "A", outlets.DeleteKey); !errors.Is(err, outlets.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := svc.DeleteOutlet(ctx, "SWT", "A", "delete_all"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if err := svc.DeleteOutlet(ctx, "SWT", "A", outlets.DeleteAll); !errors.Is(err, outlets.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.DeleteOutlet(ctx, "SWT", "B", "DROP"); !errors.Is(err, outlets.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.RenameOutlet(ctx, "SWT", "KEYS-Spillway", "Dam-"); !errors.Is(err, outlets.ErrValidation) {
		t.Fatalf("expected base-sub validation error, got %v", err)
	}
}
