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

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"curio/internal/archive"
	"curio/internal/archive/metrics"
	"curio/internal/archive/registry"
	"curio/internal/archive/service"
	"curio/internal/audit"
	"curio/internal/content"
	"curio/internal/identity"
	"curio/internal/platform/config"
	"curio/internal/platform/httpserver"
	"curio/internal/platform/logger"
	"curio/internal/platform/middleware"
	"curio/internal/platform/ratelimit"
	platformredis "curio/internal/platform/redis"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Registry: postgres when configured, in-memory otherwise.
	var store service.Registry
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := registry.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("ensure schema", "error", err)
			os.Exit(1)
		}
		store = pg
		log.Info("registry backend", "kind", "postgres")
	} else {
		store = registry.NewInMemory()
		log.Info("registry backend", "kind", "memory")
	}

	// Audit: kafka-backed worker when brokers are configured, in-memory
	// otherwise. The publisher always writes to the inbox so request
	// latency never depends on the sink.
	var auditSink audit.Store = audit.NewInMemoryStore()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaStore, err := audit.NewKafkaStore(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaStore.Close()
		if err := kafkaStore.EnsureTopic(ctx, 3, 1); err != nil {
			log.Error("ensure audit topic", "error", err)
			os.Exit(1)
		}
		auditSink = kafkaStore
		log.Info("audit sink", "kind", "kafka", "topic", cfg.AuditTopic)
	}

	inbox := make(chan audit.Event, 1024)
	auditWorker := audit.NewWorker(auditSink, inbox, log)
	publisher := audit.NewPublisher(audit.NewChannelStore(inbox))

	// Content: IPFS-style gateway, cached in redis when configured.
	var contentStore service.ContentStore = content.NewGateway(cfg.ContentGatewayURL)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		contentStore = content.NewCached(contentStore, redisClient, cfg.ContentCacheTTL, log)
		log.Info("content cache", "kind", "redis", "ttl", cfg.ContentCacheTTL)
	}

	tokens := identity.NewJWTService(cfg.JWTSigningKey, "curio", "curio")

	svc := archive.NewService(store,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithAuditPublisher(publisher),
		service.WithContentStore(contentStore),
	)
	handler := archive.NewHandler(svc, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	limiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.RateLimitWindow)

	router.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(tokens, log))
		r.Use(ratelimit.Middleware(limiter, log))
		handler.Register(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		handler.RegisterAdmin(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting curio", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
