package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"factory-monitor/internal/audit"
	"factory-monitor/internal/auth"
	"factory-monitor/internal/config"
	"factory-monitor/internal/machinestatus/application"
	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/machinestatus/infrastructure/memory"
	"factory-monitor/internal/machinestatus/infrastructure/postgres"
	statushttp "factory-monitor/internal/machinestatus/interfaces/http"
	"factory-monitor/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("timezone error: %v", err)
	}

	var (
		db          *sql.DB
		source      machinestatus.EventSource
		writer      machinestatus.EventWriter
		catalog     machinestatus.MachineCatalog
		infoStore   machinestatus.MachineInfoStore
		auditLogger audit.Logger
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		eventStore := postgres.NewEventStore(db)
		source, writer = eventStore, eventStore
		catalog = postgres.NewMachineRepository(db)
		infoStore = postgres.NewMachineInfoRepository(db)
		auditLogger = audit.NewRepository(db)
	} else {
		logger.Printf("DATABASE_URL not set, serving in-memory demo data")
		store := memory.NewStore()
		if err := memory.SeedDemo(context.Background(), store, time.Now()); err != nil {
			logger.Fatalf("demo seed error: %v", err)
		}
		source, writer, catalog, infoStore = store, store, store, store
	}

	metrics.Init(db, logger)

	service, err := application.NewStatisticsService(source, machinestatus.SystemClock{},
		application.WithCatalog(catalog),
		application.WithTiers(cfg.Tiers),
		application.WithWorkers(cfg.AggregationWorkers),
		application.WithLocation(loc),
		application.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("statistics service error: %v", err)
	}
	apiHandler, err := statushttp.NewHandler(service, catalog,
		statushttp.WithAuditLogger(auditLogger),
		statushttp.WithMachineInfo(infoStore),
		statushttp.WithReportOptions(cfg.Report.Options()),
		statushttp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("api handler error: %v", err)
	}
	ingestHandler, err := statushttp.NewIngestHandler(writer, auditLogger, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	authMiddleware.Logger = logger
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), cfg.IngestMaxSkew())

	mux := http.NewServeMux()
	mux.Handle("/ingest/status-events", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/machines", apiHandler)
	mux.Handle("/api/v1/machines/", apiHandler)
	mux.Handle("/api/v1/machine-types", apiHandler)
	mux.Handle("/api/v1/stats/", apiHandler)
	mux.Handle("/api/v1/reports/", apiHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
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
