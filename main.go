package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"reservoir-ops/internal/audit"
	"reservoir-ops/internal/auth"
	"reservoir-ops/internal/config"
	"reservoir-ops/internal/observability/metrics"
	outletapp "reservoir-ops/internal/outlets/application"
	outlets "reservoir-ops/internal/outlets/domain"
	outletrepo "reservoir-ops/internal/outlets/infrastructure/postgres"
	outlethttp "reservoir-ops/internal/outlets/interfaces/http"
	"reservoir-ops/internal/storage/memory"
	timelineapp "reservoir-ops/internal/timeline/application"
	timeline "reservoir-ops/internal/timeline/domain"
	timelinerepo "reservoir-ops/internal/timeline/infrastructure/postgres"
	timelinehttp "reservoir-ops/internal/timeline/interfaces/http"
	"reservoir-ops/internal/units"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type repositories struct {
	outlets        outlets.OutletRepository
	virtualOutlets outlets.VirtualOutletRepository
	changes        timeline.ChangeRepository
	audit          audit.Logger
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	var observer metrics.Observer = metrics.Nop{}
	if cfg.MetricsEnabled {
		observer = metrics.New(prometheus.DefaultRegisterer)
	}

	var repos repositories
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		if cfg.MetricsEnabled {
			metrics.RegisterDBMetrics(prometheus.DefaultRegisterer, db, logger)
		}
		repos = repositories{
			outlets:        outletrepo.NewOutletRepository(db),
			virtualOutlets: outletrepo.NewVirtualOutletRepository(db),
			changes:        timelinerepo.NewChangeRepository(db),
			audit:          audit.NewRepository(db),
		}
	} else {
		logger.Printf("DATABASE_URL not set, using in-memory store")
		store := memory.NewStore()
		repos = repositories{
			outlets:        store.Outlets(),
			virtualOutlets: store.VirtualOutlets(),
			changes:        store.Changes(),
		}
	}

	outletService, err := outletapp.NewOutletService(repos.outlets,
		outletapp.WithObserver(observer),
		outletapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("outlet service error: %v", err)
	}
	virtualOutletService, err := outletapp.NewVirtualOutletService(repos.outlets, repos.virtualOutlets,
		outletapp.WithObserver(observer),
		outletapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("virtual outlet service error: %v", err)
	}
	timelineService, err := timelineapp.NewService(repos.changes, repos.outlets,
		timelineapp.WithConverter(units.NewTableConverter()),
		timelineapp.WithBatchSize(cfg.Timeline.BatchSize),
		timelineapp.WithDefaultPageSize(cfg.Timeline.DefaultPageSize),
		timelineapp.WithLimits(func(projectID outlets.LocationID) (int, int) {
			limits := cfg.TimelineFor(projectID.String())
			return limits.BatchSize, limits.DefaultPageSize
		}),
		timelineapp.WithObserver(observer),
		timelineapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("timeline service error: %v", err)
	}

	outletHandler, err := outlethttp.NewOutletHandler(outletService, repos.audit, logger)
	if err != nil {
		logger.Fatalf("outlet handler error: %v", err)
	}
	virtualOutletHandler, err := outlethttp.NewVirtualOutletHandler(virtualOutletService, repos.audit, logger)
	if err != nil {
		logger.Fatalf("virtual outlet handler error: %v", err)
	}

	unitDefaults := func(projectID outlets.LocationID) units.System {
		system, err := units.ParseSystem(cfg.TimelineFor(projectID.String()).DefaultUnitSystem)
		if err != nil {
			return units.EN
		}
		return system
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/outlets/", outletHandler)
	mux.Handle("/api/v1/virtual-outlets/", virtualOutletHandler)
	for _, kind := range []timeline.Kind{timeline.KindGate, timeline.KindTurbine} {
		handler, err := timelinehttp.NewChangeHandler(kind, timelineService, repos.audit, logger,
			timelinehttp.WithExportTitle(cfg.ExportTitle),
			timelinehttp.WithUnitDefaults(unitDefaults),
		)
		if err != nil {
			logger.Fatalf("%s change handler error: %v", kind, err)
		}
		mux.Handle(timelinehttp.PathFor(kind), handler)
	}
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.JWTSecret == "" {
		logger.Printf("AUTH_JWT_SECRET not set, serving without authentication")
	}
	policy := auth.NewDefaultPolicy(cfg.PublicPaths, nil)
	verifier := auth.NewVerifier([]byte(cfg.JWTSecret),
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAudience(cfg.JWTAudience),
		auth.WithLeeway(cfg.JWTLeeway),
	)
	authMiddleware := auth.NewMiddleware(verifier, policy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
