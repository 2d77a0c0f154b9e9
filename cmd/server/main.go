package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/auditpkg"
	auditpkghandler "creaturegrc/internal/auditpkg/handler"
	"creaturegrc/internal/collection"
	"creaturegrc/internal/collection/filesource"
	collectionhandler "creaturegrc/internal/collection/handler"
	"creaturegrc/internal/creatures"
	creatureshandler "creaturegrc/internal/creatures/handler"
	"creaturegrc/internal/evidence"
	evidencehandler "creaturegrc/internal/evidence/handler"
	httpapi "creaturegrc/internal/http"
	"creaturegrc/internal/library"
	libraryhandler "creaturegrc/internal/library/handler"
	"creaturegrc/internal/platform/config"
	"creaturegrc/internal/platform/httpserver"
	"creaturegrc/internal/platform/logger"
	platformredis "creaturegrc/internal/platform/redis"
	"creaturegrc/internal/reporting"
	reportinghandler "creaturegrc/internal/reporting/handler"
	"creaturegrc/internal/risk"
	riskhandler "creaturegrc/internal/risk/handler"
	"creaturegrc/internal/tracker"
	trackerhandler "creaturegrc/internal/tracker/handler"
)

// main wires stores, services, the HTTP surface, and the collection
// scheduler. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, db, err := openStores(cfg, log)
	if err != nil {
		log.Error("store initialization failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	// Optional coverage cache.
	var cache *reporting.CoverageCache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis initialization failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = reporting.NewCoverageCache(redisClient.Client, cfg.Redis.CoverageTTL, log)
	}

	// Optional Kafka activity sink.
	publisherOpts := []activity.Option{}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := activity.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka initialization failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		publisherOpts = append(publisherOpts, activity.WithSink(sink))
	}
	publisher := activity.NewPublisher(stores.activity, log, publisherOpts...)

	libraryService := library.NewService(stores.library, publisher, log)
	creatureService := creatures.NewService(stores.creatures, log)
	trackerService := tracker.NewService(stores.tracker, stores.findings, publisher, tracker.NewMetrics(), log)

	lookup := newControlCodeLookup(libraryService, stores.tracker)
	evidenceService := evidence.NewService(stores.evidence, lookup, publisher, evidence.NewMetrics(), log)

	riskService := risk.NewService(stores.risk, stores.tracker, publisher, risk.NewMetrics(), log)

	registry := collection.NewRegistry()
	if cfg.Collection.FileSourceDir != "" {
		if err := registry.Register("filedrop", filesource.New(cfg.Collection.FileSourceDir)); err != nil {
			log.Error("source registration failed", "error", err)
			os.Exit(1)
		}
	}
	collectionService := collection.NewService(stores.jobs, registry, log,
		collection.WithDefaultTimeout(cfg.Collection.JobTimeout))
	runner := collection.NewRunner(stores.jobs, registry, evidenceService, publisher,
		collection.NewMetrics(), log,
		collection.WithMaxParallel(cfg.Collection.MaxParallel),
		collection.WithRetryPolicy(cfg.Collection.RetryBase, cfg.Collection.RetryCap))
	scheduler := collection.NewScheduler(runner, cfg.Collection.TickInterval, log)
	go scheduler.Run(ctx)

	var reportingOpts []reporting.Option
	var packageOpts []auditpkg.Option
	if db != nil {
		reportingOpts = append(reportingOpts, reporting.WithSnapshotReads(db))
		packageOpts = append(packageOpts, auditpkg.WithSnapshotReads(db))
	}
	aggregator := reporting.NewAggregator(stores.library, stores.tracker, stores.evidence, stores.risk, cache, log, reportingOpts...)
	assembler := auditpkg.NewAssembler(stores.library, stores.tracker, stores.evidence, stores.risk, publisher, log, packageOpts...)

	var packageHandlerOpts []auditpkghandler.Option
	if cfg.Packages.OutputDir != "" {
		packageHandlerOpts = append(packageHandlerOpts, auditpkghandler.WithArchiveDir(cfg.Packages.OutputDir))
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Library:       libraryhandler.New(libraryService, log),
		Creatures:     creatureshandler.New(creatureService, log),
		Tracker:       trackerhandler.New(trackerService, log),
		Evidence:      evidencehandler.New(evidenceService, log),
		Collection:    collectionhandler.New(collectionService, runner, log),
		Risk:          riskhandler.New(riskService, log),
		Reporting:     reportinghandler.New(aggregator, log),
		Packages:      auditpkghandler.New(assembler, log, packageHandlerOpts...),
		JWTSigningKey: cfg.JWTSigningKey,
		CollectorKeys: cfg.CollectorKeys,
		Logger:        log,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting creaturegrc", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// storeSet groups every persistence boundary behind one wiring decision:
// Postgres when a database URL is configured, in-memory otherwise.
type storeSet struct {
	activity  activity.Store
	library   library.Store
	creatures creatures.Store
	tracker   tracker.Store
	findings  tracker.FindingStore
	evidence  evidence.Store
	jobs      collection.Store
	risk      risk.Store
}

func openStores(cfg config.Config, log *slog.Logger) (*storeSet, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, using in-memory stores")
		return &storeSet{
			activity:  activity.NewInMemoryStore(),
			library:   library.NewInMemoryStore(),
			creatures: creatures.NewInMemoryStore(),
			tracker:   tracker.NewInMemoryStore(),
			findings:  tracker.NewInMemoryFindingStore(),
			evidence:  evidence.NewInMemoryStore(),
			jobs:      collection.NewInMemoryStore(),
			risk:      risk.NewInMemoryStore(),
		}, nil, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return &storeSet{
		activity:  activity.NewPostgres(db),
		library:   library.NewPostgres(db),
		creatures: creatures.NewPostgres(db),
		tracker:   tracker.NewPostgres(db),
		findings:  tracker.NewPostgresFindings(db),
		evidence:  evidence.NewPostgres(db),
		jobs:      collection.NewPostgres(db),
		risk:      risk.NewPostgres(db),
	}, db, nil
}
