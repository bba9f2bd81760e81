package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
	outletrepo "reservoir-ops/internal/outlets/infrastructure/postgres"
	timelineapp "reservoir-ops/internal/timeline/application"
	timeline "reservoir-ops/internal/timeline/domain"
	timelinerepo "reservoir-ops/internal/timeline/infrastructure/postgres"
	"reservoir-ops/internal/units"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const office = "ITT"

func TestChangeTimeline_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	applyMigrations(t, db)

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM operational_changes WHERE office_id = $1", office)
	_, _ = db.ExecContext(ctx, "DELETE FROM outlets WHERE office_id = $1", office)

	project := outlets.NewLocationID(office, "KEYS")
	gate := outlets.NewLocationID(office, "KEYS-Gate-1")
	outletRepo := outletrepo.NewOutletRepository(db)
	if err := outletRepo.Save(ctx, &outlets.Outlet{ID: gate, ProjectID: project}, false); err != nil {
		t.Fatalf("seed outlet: %v", err)
	}

	svc, err := timelineapp.NewService(timelinerepo.NewChangeRepository(db), outletRepo,
		timelineapp.WithBatchSize(2),
		timelineapp.WithConverter(units.NewTableConverter()),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	var batch []timeline.Change
	for i := 0; i < 5; i++ {
		batch = append(batch, timeline.Change{
			ProjectID:                 project,
			ChangeDate:                base.Add(time.Duration(i) * time.Hour),
			Protected:                 i == 1,
			DischargeComputationType:  timeline.LookupType{OfficeID: office, DisplayValue: "Adjusted", Active: true},
			ReasonType:                timeline.LookupType{OfficeID: office, DisplayValue: "Flood", Active: true},
			NewTotalDischargeOverride: timeline.Float(100),
			DischargeUnits:            "cfs",
			Settings:                  []timeline.Setting{
				{LocationID: gate, Opening: timeline.Float(float64(i)), OpeningUnits: "ft"},
			},
		})
	}
	if err := svc.StoreOperationalChanges(ctx, timeline.KindGate, batch, timeline.StoreOptions{FailIfExists: true}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := svc.StoreOperationalChanges(ctx, timeline.KindGate, batch[:1], timeline.StoreOptions{FailIfExists: true}); !errors.Is(err, timeline.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	window := timeline.NewWindow(base, base.Add(24*time.Hour))
	head, err := svc.RetrieveOperationalChanges(ctx, timeline.KindGate, project, window, units.EN, 2)
	if err != nil {
		t.Fatalf("retrieve head: %v", err)
	}
	if len(head) != 2 || !head[0].ChangeDate.Equal(base) || len(head[0].Settings) != 1 {
		t.Fatalf("unexpected head %+v", head)
	}
	tail, err := svc.RetrieveOperationalChanges(ctx, timeline.KindGate, project, window, units.SI, -2)
	if err != nil {
		t.Fatalf("retrieve tail: %v", err)
	}
	if len(tail) != 2 || !tail[1].ChangeDate.Equal(base.Add(4*time.Hour)) || tail[1].DischargeUnits != "cms" {
		t.Fatalf("unexpected tail %+v", tail)
	}
	if *tail[1].Settings[0].Opening <= 1.2 || *tail[1].Settings[0].Opening >= 1.3 {
		t.Fatalf("expected 4 ft in metres, got %v", *tail[1].Settings[0].Opening)
	}

	result, err := svc.DeleteOperationalChanges(ctx, timeline.KindGate, project, timeline.ClosedWindow(base, base.Add(2*time.Hour)), false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if result.Deleted != 2 || result.Protected != 1 {
		t.Fatalf("unexpected delete result %+v", result)
	}
	if err := svc.DeleteOperationalChange(ctx, timeline.KindGate, project, base.Add(time.Hour), false); !errors.Is(err, timeline.ErrProtectedRecord) {
		t.Fatalf("expected protected, got %v", err)
	}
	if err := svc.DeleteOperationalChange(ctx, timeline.KindGate, project, base, false); !errors.Is(err, timeline.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := outletRepo.Delete(ctx, gate, outlets.DeleteKey); !errors.Is(err, outlets.ErrConflict) {
		t.Fatalf("expected settings to block delete, got %v", err)
	}
}

func TestChangeRepository_ConcurrentInsert_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	applyMigrations(t, db)

	ctx := context.Background()
	project := outlets.NewLocationID(office, "TENK")
	_, _ = db.ExecContext(ctx, "DELETE FROM operational_changes WHERE office_id = $1 AND project_name = $2", office, project.Name)

	repo := timelinerepo.NewChangeRepository(db)
	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	const writers = 4
	var (
		wg      sync.WaitGroup
		release = make(chan struct{})
		errs    = make([]error, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-release
			change := timeline.Change{
				ProjectID:                project,
				ChangeDate:               at,
				DischargeComputationType: timeline.LookupType{OfficeID: office, DisplayValue: "Adjusted", Active: true},
				ReasonType:               timeline.LookupType{OfficeID: office, DisplayValue: "Flood", Active: true},
				Notes:                    "writer",
			}
			errs[i] = repo.Store(ctx, timeline.KindGate, []timeline.Change{change}, timeline.StoreOptions{FailIfExists: true})
		}(i)
	}
	close(release)
	wg.Wait()

	stored, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			stored++
		case errors.Is(err, timeline.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if stored != 1 || conflicts != writers-1 {
		t.Fatalf("expected one insert and %d conflicts, got %d and %d", writers-1, stored, conflicts)
	}
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("..", "..", "..", "migrations", "*.sql"))
	if err != nil || len(files) == 0 {
		t.Skip("migrations not found")
	}
	sort.Strings(files)
	for _, file := range files {
		body, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if _, err := db.Exec(string(body)); err != nil {
			t.Fatalf("apply %s: %v", file, err)
		}
	}
}
