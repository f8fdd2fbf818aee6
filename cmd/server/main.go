package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caresignal/internal/audit"
	"caresignal/internal/correlation"
	"caresignal/internal/correlation/handler"
	"caresignal/internal/correlation/metrics"
	"caresignal/internal/notify"
	"caresignal/internal/platform/config"
	"caresignal/internal/platform/httpserver"
	"caresignal/internal/platform/logger"
	platformredis "caresignal/internal/platform/redis"
	"caresignal/internal/rules"
	"caresignal/internal/signals"
	"caresignal/pkg/jwtauth"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Evaluation logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		ruleStore  rules.Store
		eventStore correlation.EventStore
		directory  correlation.SubjectDirectory
		auditStore audit.Store
		sources    signals.Registry
	)

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}

		pgRules := rules.NewPostgresStore(db)
		pgEvents := correlation.NewPostgresEventStore(db)
		pgAudit := audit.NewPostgresStore(db)
		for _, init := range []func(context.Context) error{pgRules.Init, pgEvents.Init, pgAudit.Init} {
			if err := init(ctx); err != nil {
				log.Error("init schema", "error", err)
				os.Exit(1)
			}
		}

		ruleStore = pgRules
		eventStore = pgEvents
		auditStore = pgAudit
		directory = correlation.NewPostgresSubjectDirectory(db)
		sources = signals.NewRegistry(signals.NewPostgresSources(db).All()...)
		log.Info("using postgres stores")
	} else {
		ruleStore = rules.NewInMemoryStore()
		eventStore = correlation.NewInMemoryEventStore()
		auditStore = audit.NewInMemoryStore()
		memSources := make([]signals.Source, 0, len(signals.AllDomains()))
		for _, domain := range signals.AllDomains() {
			memSources = append(memSources, signals.NewMemorySource(domain))
		}
		sources = signals.NewRegistry(memSources...)
		log.Info("using in-memory stores (dev mode)")
	}

	if err := rules.Seed(ctx, ruleStore); err != nil {
		log.Error("seed rules", "error", err)
		os.Exit(1)
	}

	aggregator := correlation.NewAggregator(sources, signals.DefaultPredicates(), cfg.SourceQueryTimeout, m)

	auditPublisher := audit.NewPublisher(256, log)
	auditWorker := audit.NewWorker(auditStore, auditPublisher.Inbox(), log)
	go func() {
		if err := auditWorker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	service := correlation.NewService(ruleStore, aggregator, eventStore, log).
		WithMetrics(m).
		WithAudit(auditPublisher)
	if directory != nil {
		service = service.WithDirectory(directory)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		service = service.WithLocker(correlation.NewRedisLocker(redisClient.Client, cfg.SubjectLockTTL))
		log.Info("per-subject locking enabled")
	}

	if publisher := notify.New(cfg.Kafka, log); publisher != nil {
		defer publisher.Close()
		service = service.WithNotifier(publisher)
		log.Info("kafka event publishing enabled", "topic", cfg.Kafka.Topic)
	}

	jwtService := jwtauth.NewService(cfg.JWTSigningKey, "caresignal")
	apiHandler := handler.New(service, eventStore, log, jwtService)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	apiHandler.Register(router)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting caresignal", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
