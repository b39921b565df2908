package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"moflow/internal/gateway"
	"moflow/internal/notify"
	"moflow/internal/platform/config"
	"moflow/internal/platform/httpserver"
	"moflow/internal/platform/kafka/producer"
	"moflow/internal/platform/logger"
	"moflow/internal/platform/metrics"
	"moflow/internal/platform/redis"
	"moflow/internal/platform/tracing"
	"moflow/internal/session"
	"moflow/internal/validation"
	"moflow/internal/workflow"
	"moflow/internal/workflow/handler"
	id "moflow/pkg/domain"
	audit "moflow/pkg/platform/audit"
	"moflow/pkg/platform/audit/publisher"
	"moflow/pkg/platform/audit/store/memory"
	auditredis "moflow/pkg/platform/audit/store/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.Tracing.Insecure)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	tag, err := language.Parse(cfg.Locale.Default)
	if err != nil {
		return fmt.Errorf("parse LOCALE_DEFAULT: %w", err)
	}
	messages, err := validation.NewMessages(tag)
	if err != nil {
		return err
	}
	validator := validation.New(messages)

	opts := []gateway.Option{
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithLogger(log),
		gateway.WithMetrics(gateway.NewMetrics()),
	}
	for k, v := range cfg.Gateway.Headers {
		opts = append(opts, gateway.WithHeader(k, v))
	}
	mo, err := gateway.New(cfg.Gateway.BaseURL, opts...)
	if err != nil {
		return err
	}

	var checks []handler.Check

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, handler.Check{Name: "redis", Run: rdb.Health})
	}
	stores := memoryStores
	if cfg.Audit.Store == config.AuditStoreRedis {
		stores = func(sid id.SessionID) audit.Store {
			return auditredis.New(rdb.Client, sid.String(), cfg.Audit.TTL)
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Kafka.Enabled() {
		p, err := producer.New(producer.Config{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			ProduceLinger: cfg.Kafka.ProduceLinger,
			DialTimeout:   cfg.Kafka.DialTimeout,
		}, log)
		if err != nil {
			return err
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			p.Close(cctx)
		}()
		if cfg.Kafka.EnsureTopics {
			if err := p.EnsureTopics(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor, notify.Topics()...); err != nil {
				return err
			}
		}
		notifier = notify.NewKafkaNotifier(p, notify.WithLogger(log), notify.WithMetrics(notify.NewMetrics()))
		checks = append(checks, handler.Check{Name: "kafka", Run: p.Ping})
	} else {
		log.Info("no kafka brokers configured, change notifications disabled")
	}

	registry, err := session.NewRegistry(mo, validator, stores,
		session.WithTTL(cfg.Session.TTL),
		session.WithNotifier(notifier),
		session.WithLogger(log),
		session.WithActiveGauge(session.NewActiveGauge()),
		session.WithAuditOptions(
			publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
			publisher.WithMetrics(publisher.NewMetrics()),
		),
		session.WithWorkflowOptions(workflow.WithMetrics(workflow.NewMetrics())),
	)
	if err != nil {
		return err
	}
	defer registry.Close()

	router := chi.NewRouter()
	router.Get("/healthz", handler.Health(checks...))
	router.Handle("/metrics", promhttp.Handler())
	handler.New(registry, log, metrics.New(), cfg.Server.RequestTimeout).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting moflow", "addr", cfg.Server.Addr, "mo", cfg.Gateway.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := registry.StartCleanup(gctx, cfg.Session.CleanupInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	return g.Wait()
}

func memoryStores(id.SessionID) audit.Store {
	return memory.NewInMemoryStore()
}
