package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	jwttoken "vouch/internal/jwt_token"
	"vouch/internal/platform/config"
	"vouch/internal/platform/httpserver"
	"vouch/internal/platform/kafka"
	"vouch/internal/platform/logger"
	"vouch/internal/platform/metrics"
	"vouch/internal/platform/postgres"
	redisclient "vouch/internal/platform/redis"
	rlmetrics "vouch/internal/ratelimit/metrics"
	"vouch/internal/ratelimit/ports"
	"vouch/internal/ratelimit/service/submission"
	"vouch/internal/ratelimit/store/bucket"
	"vouch/internal/verification/handler"
	vmetrics "vouch/internal/verification/metrics"
	"vouch/internal/verification/notify"
	vports "vouch/internal/verification/ports"
	"vouch/internal/verification/registry"
	"vouch/internal/verification/service"
	"vouch/internal/verification/storage"
	"vouch/internal/verification/store/request"
	"vouch/pkg/platform/audit"
	auditpublisher "vouch/pkg/platform/audit/publisher"
	auditmemory "vouch/pkg/platform/audit/store/memory"
	auditpg "vouch/pkg/platform/audit/store/postgres"
	"vouch/pkg/platform/httputil"
	"vouch/pkg/platform/middleware/metadata"
	request_mw "vouch/pkg/platform/middleware/request"
	"vouch/pkg/platform/middleware/requesttime"
)

// main wires dependencies, exposes the HTTP router and owns the server
// lifecycle. Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n\n%s", err, config.Usage())
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services; nil fields fall back to
// in-process implementations.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	producer *kgo.Client
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return in, err
	}
	if db != nil {
		if err := postgres.EnsureSchema(ctx, db, request.Schema, auditpg.Schema); err != nil {
			_ = db.Close()
			return in, err
		}
		in.db = db
	}

	if in.redis, err = redisclient.New(ctx, cfg.Redis); err != nil {
		return in, err
	}

	if in.producer, err = kafka.NewProducer(cfg.Kafka); err != nil {
		return in, err
	}
	if in.producer != nil {
		if err := kafka.EnsureTopic(ctx, in.producer, cfg.Kafka, log); err != nil {
			return in, err
		}
	}

	log.Info("backing services",
		"postgres", in.db != nil,
		"redis", in.redis != nil,
		"kafka", in.producer != nil,
	)
	return in, nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	in, err := connect(ctx, cfg, log)
	defer in.close()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if in.db != nil {
		auditStore = auditpg.New(in.db)
	}
	auditPub := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(1024),
		auditpublisher.WithLogger(log),
	)
	defer auditPub.Close()

	var buckets ports.BucketStore = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		buckets = bucket.NewRedisStore(in.redis.Client)
		in.redis.RegisterPoolMetrics(reg)
	}
	limiter, err := submission.New(buckets,
		submission.Policy{Limit: cfg.Submission.RateLimit, Window: cfg.Submission.RateWindow},
		submission.WithLogger(log),
		submission.WithAuditPublisher(auditPub),
		submission.WithMetrics(rlmetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	var requests vports.RequestStore = request.NewInMemory()
	if in.db != nil {
		requests = request.NewPostgres(in.db)
	}

	var notifier vports.Notifier = notify.NewLogDispatcher(log)
	if in.producer != nil {
		notifier = notify.NewKafkaDispatcher(in.producer, cfg.Kafka.Topic, log)
	}

	documents, err := storage.NewFilesystem(cfg.Storage.DocumentRoot)
	if err != nil {
		return err
	}

	verifications, err := service.New(requests, documents, limiter, registry.Default(),
		service.WithLogger(log),
		service.WithAuditPublisher(auditPub),
		service.WithMetrics(vmetrics.New(reg)),
		service.WithNotifier(notifier),
		service.WithPageSize(cfg.Review.PendingPageSize, config.MaxPendingPageSize),
	)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	h := handler.New(verifications, limiter, jwttoken.NewJWTServiceAdapter(jwtService), log, cfg.Server.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(request_mw.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	r.Use(metrics.New(reg).Latency)

	r.Get("/healthz", healthHandler(in))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	h.Register(r)

	srv := httpserver.New(cfg.Server.Addr, r, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting vouch", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if in.producer != nil {
		if err := in.producer.Flush(shutdownCtx); err != nil {
			log.Warn("failed to flush pending status notifications", "error", err)
		}
	}
	return nil
}

func healthHandler(in *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if in.db != nil {
			checks["postgres"] = "ok"
			if err := in.db.PingContext(ctx); err != nil {
				checks["postgres"], healthy = err.Error(), false
			}
		}
		if in.redis != nil {
			checks["redis"] = "ok"
			if err := in.redis.Health(ctx); err != nil {
				checks["redis"], healthy = err.Error(), false
			}
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status, state = http.StatusServiceUnavailable, "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
