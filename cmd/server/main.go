package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"ownergraph/internal/app"
	completenesshandler "ownergraph/internal/completeness/handler"
	evidencehandler "ownergraph/internal/evidence/handler"
	graphhandler "ownergraph/internal/graph/handler"
	jwttoken "ownergraph/internal/jwt_token"
	"ownergraph/internal/platform/config"
	"ownergraph/internal/platform/httpserver"
	"ownergraph/internal/platform/kafka"
	"ownergraph/internal/platform/logger"
	"ownergraph/internal/platform/metrics"
	resolverhandler "ownergraph/internal/resolver/handler"
	snapshothandler "ownergraph/internal/snapshot/handler"
	"ownergraph/internal/snapshot/trigger"
	httptransport "ownergraph/internal/transport/http"
	ubohandler "ownergraph/internal/ubo/handler"
	"ownergraph/pkg/platform/audit/worker"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("ownergraph stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	engine, err := app.New(ctx, cfg, log, app.Options{Metrics: true})
	if err != nil {
		return err
	}
	defer engine.Close()

	health := map[string]httptransport.HealthCheck{}
	if engine.DB != nil {
		health["postgres"] = engine.DB.PingContext
	}
	if engine.Redis != nil {
		health["redis"] = engine.Redis.Health
	}

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, 3, 1, cfg.Kafka.AuditTopic, cfg.Kafka.TriggerTopic); err != nil {
			return err
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer producer.Close()
		health["kafka"] = producer.Ping

		if engine.DB != nil {
			relay := worker.NewOutboxRelay(engine.DB, producer, cfg.Kafka.AuditTopic,
				worker.WithBatchSize(cfg.Kafka.RelayBatchSize),
				worker.WithInterval(cfg.Kafka.RelayInterval),
				worker.WithLogger(log),
			)
			g.Go(func() error { return relay.Run(ctx) })
		}

		triggers := trigger.NewHandler(engine.Snapshots,
			trigger.WithLogger(log),
			trigger.WithMetrics(engine.SnapshotMetrics),
		)
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup,
			[]string{cfg.Kafka.TriggerTopic}, triggers.Handle, log)
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(ctx) })
	}

	sweep := trigger.NewSweep(trigger.SweepConfig{
		Interval: cfg.Engine.PeriodicInterval,
		Workers:  cfg.Engine.PeriodicWorkers,
	}, engine.Registry, engine.Snapshots, log)
	g.Go(func() error { return sweep.Start(ctx) })

	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
	)
	router := httptransport.NewRouter(httptransport.Config{
		Validator: jwtValidator,
		Handlers: []httptransport.Registrar{
			graphhandler.New(engine.Graph, log),
			resolverhandler.New(engine.Resolver, log, resolverhandler.WithOpsTracker(engine.Ops)),
			completenesshandler.New(engine.Completeness, log, completenesshandler.WithOpsTracker(engine.Ops)),
			ubohandler.New(engine.Registry, log),
			evidencehandler.New(engine.Evidence, log),
			snapshothandler.New(engine.Snapshots, log),
		},
		Metrics:        metrics.New(),
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
