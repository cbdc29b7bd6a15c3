// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"peakform/internal/adminauthz"
	"peakform/internal/audit"
	"peakform/internal/authn"
	"peakform/internal/csrf"
	"peakform/internal/docstore"
	"peakform/internal/identity"
	"peakform/internal/platform/config"
	"peakform/internal/platform/httpserver"
	"peakform/internal/platform/kafka"
	"peakform/internal/platform/kafka/producer"
	"peakform/internal/platform/logger"
	platformredis "peakform/internal/platform/redis"
	"peakform/internal/ratelimit"
	"peakform/internal/ratelimit/workers/cleanup"
	"peakform/internal/reauth"
	httptransport "peakform/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing peakform trust core",
		"addr", cfg.Addr,
		"dev_mode", cfg.DevMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Counter store: Redis when configured, in-process otherwise.
	var docs docstore.Store
	redisClient, err := platformredis.New(platformredis.Config{URL: cfg.RedisURL})
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		docs = docstore.NewRedisStore(redisClient.Client)
		log.Info("using redis document store")
	} else {
		docs = docstore.NewInMemoryStore()
		log.Warn("REDIS_URL not set, using in-memory document store")
	}

	securityOpts := []audit.SecurityOption{}
	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		kafkaCfg := kafka.DefaultProducerConfig()
		kafkaCfg.Brokers = cfg.KafkaBrokers
		kafkaProducer, err = producer.New(kafkaCfg, log)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		securityOpts = append(securityOpts, audit.WithForwarder(kafkaProducer, cfg.SecurityTopic))
		log.Info("forwarding security events", "topic", cfg.SecurityTopic)
	}
	security := audit.NewSecurityEvents(log, securityOpts...)

	// The in-memory provider stands in for the managed identity provider in
	// dev and test deployments.
	provider := identity.NewInMemoryProvider(cfg.JWTSigningKey, "https://auth.peakform.fit")

	auditStore := audit.NewStore(docs)
	resolver := authn.NewService(provider, docs, security, log)
	admin := adminauthz.NewService(provider, resolver, audit.NewRecorder(auditStore, log), security, log)

	metrics := ratelimit.NewMetrics()
	limiter := ratelimit.NewLimiter(docs,
		ratelimit.WithMetrics(metrics),
		ratelimit.WithLogger(log),
	)
	guard := reauth.NewGuard(provider, security, log)

	csrfOpts := []csrf.Option{
		csrf.WithAllowedOrigins(cfg.AllowedOrigins),
		csrf.WithSecurityEvents(security),
	}
	if cfg.DevMode {
		csrfOpts = append(csrfOpts, csrf.WithDevMode())
	}
	validator := csrf.NewValidator(csrfOpts...)

	handler := httptransport.NewHandler(resolver, admin, limiter, guard, auditStore, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, validator, log))

	sweeper := cleanup.New(limiter,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithMaxAge(cfg.CleanupMaxAge),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(metrics),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := sweeper.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if kafkaProducer != nil {
			if err := kafkaProducer.Close(shutdownCtx); err != nil {
				log.Error("kafka close failed", "error", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error("redis close failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
