package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"casegov/internal/contextstore"
	contextstoremetrics "casegov/internal/contextstore/metrics"
	"casegov/internal/governor"
	"casegov/internal/governor/broadcast"
	governormetrics "casegov/internal/governor/metrics"
	"casegov/internal/pagedata"
	pagedatametrics "casegov/internal/pagedata/metrics"
	"casegov/internal/platform/config"
	"casegov/internal/platform/httpserver"
	"casegov/internal/platform/logger"
	platformredis "casegov/internal/platform/redis"
	"casegov/internal/record"
	"casegov/internal/record/store"
	"casegov/internal/rules"
	rulesmetrics "casegov/internal/rules/metrics"
	"casegov/internal/token"
	httptransport "casegov/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	// Persistence boundary: Postgres when configured, seeded memory otherwise.
	var (
		backing store.Store
		health  []httptransport.HealthChecker
	)
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("opening postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := store.NewPostgresStore(db)
		backing = pg
		health = append(health, pg)
		log.Info("record store ready", "backend", "postgres")
	} else {
		backing = store.NewInMemoryStore()
		log.Warn("no postgres DSN configured, using in-memory record store")
	}

	// Optional shared cache tier.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		health = append(health, redisClient)
	}

	storeOpts := []contextstore.Option{
		contextstore.WithLogger(log),
		contextstore.WithMetrics(contextstoremetrics.New()),
		contextstore.WithTTL(cfg.Cache.DefaultTTL),
		contextstore.WithTTLOverrides(ttlOverrides(cfg.Cache)),
	}
	if redisClient != nil {
		storeOpts = append(storeOpts, contextstore.WithSharedCache(redisClient))
	}
	contexts := contextstore.New(backing, storeOpts...)

	rulesCfg, err := rules.Load(cfg.RulesPath)
	if err != nil {
		log.Error("loading rule configuration", "path", cfg.RulesPath, "error", err)
		os.Exit(1)
	}
	evaluator, err := rules.New(rulesCfg,
		rules.WithLogger(log),
		rules.WithMetrics(rulesmetrics.New()),
	)
	if err != nil {
		log.Error("building rule evaluator", "error", err)
		os.Exit(1)
	}

	aggregator := pagedata.New(contexts, evaluator,
		pagedata.WithLogger(log),
		pagedata.WithMetrics(pagedatametrics.New()),
	)

	// Broadcast transport: Kafka when brokers are configured, in-process
	// otherwise.
	var bus broadcast.Broadcaster
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaBus, err := broadcast.NewKafka(cfg.Kafka, log)
		if err != nil {
			log.Error("connecting to kafka", "error", err)
			os.Exit(1)
		}
		bus = kafkaBus
		log.Info("broadcast transport ready", "backend", "kafka", "topic", cfg.Kafka.Topic)
	} else {
		bus = broadcast.NewMemory(log)
		log.Info("broadcast transport ready", "backend", "memory")
	}
	defer bus.Close()

	govMetrics := governormetrics.New()
	hub := governor.New(aggregator, contexts, bus,
		governor.WithLogger(log),
		governor.WithMetrics(govMetrics),
	)
	defer hub.OnTeardown()

	tokens := token.NewJWTService(cfg.JWTSigningKey, "casegov", "casegov")

	handler := httptransport.New(aggregator, hub, backing, contexts, log, health...)
	router := httptransport.NewRouter(handler, tokens)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting casegov", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

func ttlOverrides(cfg config.CacheConfig) map[record.EntityType]time.Duration {
	overrides := make(map[record.EntityType]time.Duration, len(cfg.TTLOverrides))
	for name, ttl := range cfg.TTLOverrides {
		t, err := record.ParseEntityType(name)
		if err != nil {
			continue
		}
		overrides[t] = ttl
	}
	return overrides
}
