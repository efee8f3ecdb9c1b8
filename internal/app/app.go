// Package app is the composition root shared by the server and the CLI. It
// picks the Postgres or in-memory stores, the Redis or in-memory chain
// cache, and wires every service with its audit, metrics and transaction
// dependencies.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	completenessmetrics "ownergraph/internal/completeness/metrics"
	completeness "ownergraph/internal/completeness/service"
	evidencemetrics "ownergraph/internal/evidence/metrics"
	evidence "ownergraph/internal/evidence/service"
	evidencestore "ownergraph/internal/evidence/store"
	graphmetrics "ownergraph/internal/graph/metrics"
	graph "ownergraph/internal/graph/service"
	graphstore "ownergraph/internal/graph/store"
	"ownergraph/internal/platform/config"
	"ownergraph/internal/platform/database"
	"ownergraph/internal/platform/redis"
	"ownergraph/internal/resolver/cache"
	resolvermetrics "ownergraph/internal/resolver/metrics"
	resolver "ownergraph/internal/resolver/service"
	snapshotmetrics "ownergraph/internal/snapshot/metrics"
	snapshot "ownergraph/internal/snapshot/service"
	snapshotstore "ownergraph/internal/snapshot/store"
	ubometrics "ownergraph/internal/ubo/metrics"
	ubo "ownergraph/internal/ubo/service"
	ubostore "ownergraph/internal/ubo/store"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/audit/publishers/compliance"
	"ownergraph/pkg/platform/audit/publishers/ops"
	auditmemory "ownergraph/pkg/platform/audit/store/memory"
	auditpostgres "ownergraph/pkg/platform/audit/store/postgres"
	txcontext "ownergraph/pkg/platform/tx"
)

// Options select optional infrastructure.
type Options struct {
	// Metrics registers Prometheus collectors. Only one App per process may
	// set it.
	Metrics bool
}

// App holds the wired services.
type App struct {
	DB    *sql.DB
	Redis *redis.Client

	Graph        *graph.Service
	Resolver     *resolver.Resolver
	Completeness *completeness.Checker
	Registry     *ubo.Service
	Evidence     *evidence.Service
	Snapshots    *snapshot.Service

	AuditStore      audit.Store
	Ops             *ops.Tracker
	SnapshotMetrics *snapshotmetrics.Metrics
}

type graphStore interface {
	graph.Store
	resolver.Graph
}

type uboStore interface {
	ubo.Store
	evidence.UBOLookup
}

type stores struct {
	graph     graphStore
	ubos      uboStore
	evidence  evidence.Store
	snapshots snapshot.Store
	audit     audit.Store
}

// New wires the engine. An empty DATABASE_URL selects the in-memory stores.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{}

	var st stores
	var tx txRunner
	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		a.DB = db
		tx = txcontext.NewSQLRunner(db)
		st = stores{
			graph:     graphstore.NewPostgres(db),
			ubos:      ubostore.NewPostgres(db),
			evidence:  evidencestore.NewPostgres(db),
			snapshots: snapshotstore.NewPostgres(db),
			audit:     auditpostgres.New(db),
		}
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		st = stores{
			graph:     graphstore.NewInMemory(),
			ubos:      ubostore.NewInMemory(),
			evidence:  evidencestore.NewInMemory(),
			snapshots: snapshotstore.NewInMemory(),
			audit:     auditmemory.NewInMemoryStore(),
		}
		logger.InfoContext(ctx, "using in-memory stores")
	}
	a.AuditStore = st.audit

	var chainCache resolver.Cache = cache.NewInMemory()
	if cfg.Redis.URL != "" {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = client
		chainCache = cache.NewRedisCache(client.Client, cfg.Redis.ChainTTL)
	}

	m := newMetrics(opts.Metrics)
	a.SnapshotMetrics = m.snapshot
	publisher := compliance.New(st.audit, compliance.WithLogger(logger), compliance.WithMetrics(m.compliance))
	a.Ops = ops.New(st.audit,
		ops.WithLogger(logger),
		ops.WithMetrics(m.ops),
		ops.WithSampler(ops.NewSampler(cfg.Audit.OpsSampleRate)),
		ops.WithCircuitBreaker(ops.NewCircuitBreaker(cfg.Audit.OpsBreakerThreshold, cfg.Audit.OpsBreakerCooldown)),
	)

	graphOpts := []graph.Option{graph.WithLogger(logger), graph.WithAuditPublisher(publisher), graph.WithMetrics(m.graph)}
	uboOpts := []ubo.Option{ubo.WithLogger(logger), ubo.WithAuditPublisher(publisher), ubo.WithMetrics(m.ubo)}
	evidenceOpts := []evidence.Option{evidence.WithLogger(logger), evidence.WithAuditPublisher(publisher), evidence.WithMetrics(m.evidence)}
	snapshotOpts := []snapshot.Option{
		snapshot.WithLogger(logger),
		snapshot.WithAuditPublisher(publisher),
		snapshot.WithOpsTracker(a.Ops),
		snapshot.WithMetrics(m.snapshot),
		snapshot.WithRetries(cfg.Engine.SnapshotRetries),
		snapshot.WithThreshold(cfg.Engine.OwnershipThreshold),
	}
	if tx != nil {
		graphOpts = append(graphOpts, graph.WithTx(tx))
		uboOpts = append(uboOpts, ubo.WithTx(tx))
		evidenceOpts = append(evidenceOpts, evidence.WithTx(tx))
		snapshotOpts = append(snapshotOpts, snapshot.WithTx(tx))
	}

	a.Graph = graph.New(st.graph, graphOpts...)
	a.Resolver = resolver.New(st.graph, resolver.Policy{
		MaxDepth:    cfg.Engine.MaxDepth,
		MaxVisits:   cfg.Engine.MaxVisits,
		Timeout:     cfg.Engine.ResolveTimeout,
		Concurrency: cfg.Engine.ResolveConcurrency,
	}, resolver.WithLogger(logger), resolver.WithMetrics(m.resolver), resolver.WithCache(chainCache))
	a.Completeness = completeness.New(a.Resolver, a.Graph,
		completeness.WithLogger(logger),
		completeness.WithMetrics(m.completeness),
		completeness.WithThreshold(cfg.Engine.OwnershipThreshold),
	)
	a.Evidence = evidence.New(st.evidence, st.ubos, evidenceOpts...)
	uboOpts = append(uboOpts,
		ubo.WithProofChecker(a.Evidence),
		ubo.WithOwnershipSource(a.Resolver),
		ubo.WithEntities(a.Graph),
	)
	a.Registry = ubo.New(st.ubos, uboOpts...)
	a.Snapshots = snapshot.New(st.snapshots, snapshot.Sources{
		Graph:    a.Graph,
		Registry: a.Registry,
		Evidence: a.Evidence,
		Resolver: a.Resolver,
		Assessor: a.Completeness,
	}, snapshotOpts...)

	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

type txRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type metricSet struct {
	graph        *graphmetrics.Metrics
	resolver     *resolvermetrics.Metrics
	completeness *completenessmetrics.Metrics
	ubo          *ubometrics.Metrics
	evidence     *evidencemetrics.Metrics
	snapshot     *snapshotmetrics.Metrics
	compliance   *compliance.Metrics
	ops          *ops.Metrics
}

func newMetrics(enabled bool) metricSet {
	if !enabled {
		return metricSet{}
	}
	return metricSet{
		graph:        graphmetrics.New(),
		resolver:     resolvermetrics.New(),
		completeness: completenessmetrics.New(),
		ubo:          ubometrics.New(),
		evidence:     evidencemetrics.New(),
		snapshot:     snapshotmetrics.New(),
		compliance:   compliance.NewMetrics(),
		ops:          ops.NewMetrics(),
	}
}
