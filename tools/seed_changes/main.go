package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
	outletrepo "reservoir-ops/internal/outlets/infrastructure/postgres"
	timelineapp "reservoir-ops/internal/timeline/application"
	timeline "reservoir-ops/internal/timeline/domain"
	timelinerepo "reservoir-ops/internal/timeline/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn          string
	officeID     string
	project      string
	outletCount  int
	startDate    string
	days         int
	interval     time.Duration
	batchSize    int
	flushEvery   int
	protectEvery int
	replace      bool
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.outletCount <= 0 {
		log.Fatal("outlet-count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	if cfg.interval <= 0 {
		log.Fatal("interval must be > 0")
	}
	if cfg.flushEvery <= 0 {
		cfg.flushEvery = 10000
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	projectID := outlets.NewLocationID(cfg.officeID, cfg.project)
	outletRepo := outletrepo.NewOutletRepository(db)

	ids, err := seedOutlets(ctx, outletRepo, projectID, cfg.outletCount)
	if err != nil {
		log.Fatalf("seed outlets: %v", err)
	}
	log.Printf("outlets ready: project=%s count=%d", projectID, len(ids))

	svc, err := timelineapp.NewService(timelinerepo.NewChangeRepository(db), outletRepo,
		timelineapp.WithBatchSize(cfg.batchSize),
		timelineapp.WithLogger(log.New(os.Stdout, "", log.LstdFlags)),
	)
	if err != nil {
		log.Fatalf("timeline service: %v", err)
	}

	end := start.AddDate(0, 0, cfg.days)
	log.Printf("seeding gate changes: project=%s from=%s to=%s interval=%s batch=%d", projectID, start.Format(time.RFC3339), end.Format(time.RFC3339), cfg.interval, cfg.batchSize)

	began := time.Now()
	opts := timeline.StoreOptions{FailIfExists: !cfg.replace}
	pending := make([]timeline.Change, 0, cfg.flushEvery)
	total := 0
	i := 0
	for at := start; at.Before(end); at = at.Add(cfg.interval) {
		pending = append(pending, buildChange(projectID, ids, at, i, cfg.protectEvery))
		i++
		if len(pending) < cfg.flushEvery {
			continue
		}
		if err := svc.StoreOperationalChanges(ctx, timeline.KindGate, pending, opts); err != nil {
			log.Fatalf("store changes at %s: %v", at.Format(time.RFC3339), err)
		}
		total += len(pending)
		log.Printf("stored %d changes (%s elapsed)", total, time.Since(began).Round(time.Millisecond))
		pending = pending[:0]
	}
	if len(pending) > 0 {
		if err := svc.StoreOperationalChanges(ctx, timeline.KindGate, pending, opts); err != nil {
			log.Fatalf("store final changes: %v", err)
		}
		total += len(pending)
	}

	window := timeline.NewWindow(start, end)
	head, err := svc.RetrieveOperationalChanges(ctx, timeline.KindGate, projectID, window, "", 1)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	if len(head) == 0 || !head[0].ChangeDate.Equal(start) {
		log.Fatalf("verify: expected first change at %s", start.Format(time.RFC3339))
	}
	log.Printf("seed completed: changes=%d duration=%s", total, time.Since(began).Round(time.Millisecond))
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.officeID, "office", envOrDefault("OFFICE_ID", "SWT"), "office id")
	flag.StringVar(&cfg.project, "project", envOrDefault("PROJECT", "PERF"), "project location name")
	flag.IntVar(&cfg.outletCount, "outlet-count", envOrInt("OUTLET_COUNT", 10), "number of gate outlets to seed")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD or RFC3339)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 365), "number of days to seed")
	flag.DurationVar(&cfg.interval, "interval", envOrDuration("INTERVAL", 5*time.Minute), "time between changes")
	flag.IntVar(&cfg.batchSize, "batch-size", envOrInt("BATCH_SIZE", timelineapp.DefaultBatchSize), "changes per transaction")
	flag.IntVar(&cfg.flushEvery, "flush-every", envOrInt("FLUSH_EVERY", 10000), "changes per store call")
	flag.IntVar(&cfg.protectEvery, "protect-every", envOrInt("PROTECT_EVERY", 0), "mark every nth change protected (0 disables)")
	flag.BoolVar(&cfg.replace, "replace", envOrBool("REPLACE", false), "overwrite existing changes instead of failing")
	flag.Parse()
	return cfg
}

func seedOutlets(ctx context.Context, repo *outletrepo.OutletRepository, projectID outlets.LocationID, count int) ([]outlets.LocationID, error) {
	ids := make([]outlets.LocationID, 0, count)
	for i := 1; i <= count; i++ {
		id := outlets.NewLocationID(projectID.OfficeID, fmt.Sprintf("%s-Gate%03d", projectID.Name, i))
		outlet := &outlets.Outlet{ID: id, ProjectID: projectID, RatingGroupID: "Rating-" + projectID.Name + "-Gates"}
		if err := repo.Save(ctx, outlet, false); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildChange(projectID outlets.LocationID, ids []outlets.LocationID, at time.Time, seq, protectEvery int) timeline.Change {
	settings := make([]timeline.Setting, 0, len(ids))
	for j, id := range ids {
		opening := float64((seq+j)%20) * 0.5
		settings = append(settings, timeline.Setting{
			LocationID:       id,
			Opening:          timeline.Float(opening),
			OpeningParameter: "Opening",
			OpeningUnits:     "ft",
		})
	}
	return timeline.Change{
		Kind:                     timeline.KindGate,
		ProjectID:                projectID,
		ChangeDate:               at,
		Protected:                protectEvery > 0 && seq%protectEvery == 0,
		DischargeComputationType: timeline.LookupType{OfficeID: projectID.OfficeID, DisplayValue: "Calculated", Active: true},
		ReasonType:               timeline.LookupType{OfficeID: projectID.OfficeID, DisplayValue: "Scheduled", Active: true},
		PoolElevation:            timeline.Float(1000 + float64(seq%100)/10),
		ElevationUnits:           "ft",
		Notes:                    "seeded",
		Settings:                 settings,
	}
}

func parseStartDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
