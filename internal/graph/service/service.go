// Package service orchestrates writes and reads on the ownership graph.
//
// Every write runs inside a critical section keyed by the owned (or
// controlled) entity, the node whose incoming chains change. In memory mode
// that is a shard lock; in Postgres mode it is a transaction that also carries
// the revision bump and the audit row.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	graphmetrics "ownergraph/internal/graph/metrics"
	"ownergraph/internal/graph/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/sentinel"
	"ownergraph/pkg/platform/shardlock"
	"ownergraph/pkg/requestcontext"
)

type Store interface {
	UpsertEntity(ctx context.Context, entity *models.Entity) error
	FindEntity(ctx context.Context, entityID id.EntityID) (*models.Entity, error)
	FindEntities(ctx context.Context, ids []id.EntityID) (map[id.EntityID]*models.Entity, error)

	InsertEdge(ctx context.Context, edge *models.OwnershipEdge) error
	FindEdge(ctx context.Context, edgeID id.EdgeID) (*models.OwnershipEdge, error)
	CloseEdge(ctx context.Context, edge *models.OwnershipEdge) error
	SupersedeEdge(ctx context.Context, old, next *models.OwnershipEdge) error
	EdgesInto(ctx context.Context, owned id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error)
	EdgesOut(ctx context.Context, owner id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error)
	EdgeHistory(ctx context.Context, key models.EdgeKey) ([]*models.OwnershipEdge, error)
	EdgeHistoryInto(ctx context.Context, owned id.EntityID) ([]*models.OwnershipEdge, error)

	InsertControl(ctx context.Context, rel *models.ControlRelationship) error
	FindControl(ctx context.Context, controlID id.ControlID) (*models.ControlRelationship, error)
	CloseControl(ctx context.Context, rel *models.ControlRelationship) error
	ControlsOver(ctx context.Context, controlled id.EntityID, asOf time.Time) ([]*models.ControlRelationship, error)
	ControlHistory(ctx context.Context, key models.ControlKey) ([]*models.ControlRelationship, error)

	Revision(ctx context.Context) (int64, error)
}

// TxRunner scopes a unit of work to a key. shardlock.Locker and tx.SQLRunner
// both satisfy it.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service is the write boundary of the ownership graph.
type Service struct {
	store   Store
	tx      TxRunner
	audit   *auditEmitter
	logger  *slog.Logger
	metrics *graphmetrics.Metrics
}

type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *graphmetrics.Metrics
	tx             TxRunner
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

func WithMetrics(m *graphmetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithTx replaces the default in-process shard lock.
func WithTx(tx TxRunner) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

func New(store Store, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tx := cfg.tx
	if tx == nil {
		tx = shardlock.New()
	}
	return &Service{
		store:   store,
		tx:      tx,
		audit:   newAuditEmitter(logger, cfg.auditPublisher),
		logger:  logger,
		metrics: cfg.metrics,
	}
}

func lockKey(entityID id.EntityID) string {
	return "graph:" + entityID.String()
}

// UpsertEntity records an Entity Registry entry. Existing entities keep their
// creation time.
func (s *Service) UpsertEntity(ctx context.Context, cmd UpsertEntityCommand) (*models.Entity, error) {
	var out *models.Entity
	err := s.tx.RunInTx(ctx, lockKey(cmd.ID), func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		entity, err := models.NewEntity(cmd.ID, cmd.Kind, cmd.DisplayName, cmd.Jurisdiction, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		existing, err := s.store.FindEntity(txCtx, cmd.ID)
		switch {
		case err == nil:
			entity.CreatedAt = existing.CreatedAt
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entity")
		}
		if err := s.store.UpsertEntity(txCtx, entity); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store entity")
		}
		if err := s.audit.entityUpserted(txCtx, entity); err != nil {
			return err
		}
		out = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncWrite("upsert_entity")
	return out, nil
}

func (s *Service) GetEntity(ctx context.Context, entityID id.EntityID) (*models.Entity, error) {
	entity, err := s.store.FindEntity(ctx, entityID)
	if err != nil {
		return nil, wrapStoreErr(err, "entity", entityID.String())
	}
	return entity, nil
}

func (s *Service) GetEntities(ctx context.Context, ids []id.EntityID) (map[id.EntityID]*models.Entity, error) {
	entities, err := s.store.FindEntities(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entities")
	}
	return entities, nil
}

// AddEdge inserts a new ownership edge version. An open version is rejected
// when the same owner/owned pair already has one; closed (historical) versions
// are always accepted and overlaps among them surface as completeness issues.
func (s *Service) AddEdge(ctx context.Context, cmd AddEdgeCommand) (*models.OwnershipEdge, error) {
	var out *models.OwnershipEdge
	err := s.tx.RunInTx(ctx, lockKey(cmd.OwnedID), func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		from := cmd.ValidFrom
		if from.IsZero() {
			from = now
		}
		edge, err := models.NewOwnershipEdge(id.NewEdgeID(), models.Ownership{
			OwnerID:          cmd.OwnerID,
			OwnedID:          cmd.OwnedID,
			Percentage:       cmd.Percentage,
			RelationshipType: cmd.RelationshipType,
		}, from, cmd.ValidTo, requestcontext.ActorID(txCtx).String(), now)
		if err != nil {
			return err
		}
		if err := s.insertEdge(txCtx, edge); err != nil {
			return err
		}
		if err := s.audit.edgeAdded(txCtx, edge); err != nil {
			return err
		}
		out = edge
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncWrite("add_edge")
	s.logger.InfoContext(ctx, "ownership edge added",
		"edge_id", out.ID.String(),
		"subject_id", out.Value.OwnedID.String(),
		"owner_id", out.Value.OwnerID.String(),
		"percentage", out.Value.Percentage,
	)
	return out, nil
}

// insertEdge checks the single-open-version rule at the write boundary. The
// store guards the same rule, so a race past the check still ends in a conflict.
func (s *Service) insertEdge(ctx context.Context, edge *models.OwnershipEdge) error {
	if edge.IsOpen() {
		history, err := s.store.EdgeHistory(ctx, edge.Key())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load edge history")
		}
		for _, existing := range history {
			if existing.IsOpen() {
				s.metrics.IncConflict()
				return models.OpenVersionConflict(edge.Key().String(), existing.ID.String())
			}
		}
	}
	if err := s.store.InsertEdge(ctx, edge); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncConflict()
			return models.OpenVersionConflict(edge.Key().String(), "")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store ownership edge")
	}
	return nil
}

// CloseEdge ends an open edge at the given instant. Nothing replaces it.
func (s *Service) CloseEdge(ctx context.Context, edgeID id.EdgeID, cmd CloseCommand) (*models.OwnershipEdge, error) {
	current, err := s.store.FindEdge(ctx, edgeID)
	if err != nil {
		return nil, wrapStoreErr(err, "ownership edge", edgeID.String())
	}

	var out *models.OwnershipEdge
	err = s.tx.RunInTx(ctx, lockKey(current.Value.OwnedID), func(txCtx context.Context) error {
		edge, err := s.store.FindEdge(txCtx, edgeID)
		if err != nil {
			return wrapStoreErr(err, "ownership edge", edgeID.String())
		}
		at := cmd.At
		if at.IsZero() {
			at = requestcontext.Now(txCtx)
		}
		if err := edge.CanClose(at); err != nil {
			return err
		}
		edge.ApplyClose(at, cmd.Reason, nil)
		if err := s.store.CloseEdge(txCtx, edge); err != nil {
			return wrapStoreErr(err, "ownership edge", edgeID.String())
		}
		if err := s.audit.edgeClosed(txCtx, edge); err != nil {
			return err
		}
		out = edge
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncWrite("close_edge")
	return out, nil
}

// SupersedeEdge closes the open version at EffectiveAt and inserts its
// replacement starting at the same instant, in one critical section.
func (s *Service) SupersedeEdge(ctx context.Context, edgeID id.EdgeID, cmd SupersedeEdgeCommand) (*models.OwnershipEdge, error) {
	current, err := s.store.FindEdge(ctx, edgeID)
	if err != nil {
		return nil, wrapStoreErr(err, "ownership edge", edgeID.String())
	}

	var replacement *models.OwnershipEdge
	err = s.tx.RunInTx(ctx, lockKey(current.Value.OwnedID), func(txCtx context.Context) error {
		old, err := s.store.FindEdge(txCtx, edgeID)
		if err != nil {
			return wrapStoreErr(err, "ownership edge", edgeID.String())
		}
		now := requestcontext.Now(txCtx)
		at := cmd.EffectiveAt
		if at.IsZero() {
			at = now
		}
		if err := old.CanClose(at); err != nil {
			return err
		}
		relType := cmd.RelationshipType
		if relType == "" {
			relType = old.Value.RelationshipType
		}
		next, err := models.NewOwnershipEdge(id.NewEdgeID(), models.Ownership{
			OwnerID:          old.Value.OwnerID,
			OwnedID:          old.Value.OwnedID,
			Percentage:       cmd.Percentage,
			RelationshipType: relType,
		}, at, nil, requestcontext.ActorID(txCtx).String(), now)
		if err != nil {
			return err
		}

		old.ApplyClose(at, cmd.Reason, &next.ID)
		if err := s.store.SupersedeEdge(txCtx, old, next); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				s.metrics.IncConflict()
				return models.OpenVersionConflict(next.Key().String(), "")
			}
			return wrapStoreErr(err, "ownership edge", edgeID.String())
		}
		if err := s.audit.edgeSuperseded(txCtx, old, next); err != nil {
			return err
		}
		replacement = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncWrite("supersede_edge")
	s.logger.InfoContext(ctx, "ownership edge superseded",
		"edge_id", edgeID.String(),
		"replacement_id", replacement.ID.String(),
		"subject_id", replacement.Value.OwnedID.String(),
	)
	return replacement, nil
}

// EdgesInto returns the owners of entityID valid at asOf.
func (s *Service) EdgesInto(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error) {
	start := time.Now()
	defer s.metrics.ObserveRead(start)
	edges, err := s.store.EdgesInto(ctx, entityID, asOf)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ownership edges")
	}
	return edges, nil
}

// EdgesOut returns the holdings of entityID valid at asOf.
func (s *Service) EdgesOut(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error) {
	start := time.Now()
	defer s.metrics.ObserveRead(start)
	edges, err := s.store.EdgesOut(ctx, entityID, asOf)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ownership edges")
	}
	return edges, nil
}

// EdgeHistory returns every version of one owner/owned relationship.
func (s *Service) EdgeHistory(ctx context.Context, key models.EdgeKey) ([]*models.OwnershipEdge, error) {
	edges, err := s.store.EdgeHistory(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load edge history")
	}
	return edges, nil
}

func (s *Service) EdgeHistoryInto(ctx context.Context, owned id.EntityID) ([]*models.OwnershipEdge, error) {
	edges, err := s.store.EdgeHistoryInto(ctx, owned)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load edge history")
	}
	return edges, nil
}

// AddControl inserts a control relationship under the same single-open-version
// rule as ownership edges.
func (s *Service) AddControl(ctx context.Context, cmd AddControlCommand) (*models.ControlRelationship, error) {
	var out *models.ControlRelationship
	err := s.tx.RunInTx(ctx, lockKey(cmd.ControlledID), func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		from := cmd.ValidFrom
		if from.IsZero() {
			from = now
		}
		rel, err := models.NewControlRelationship(id.NewControlID(), models.Control{
			ControllerID: cmd.ControllerID,
			ControlledID: cmd.ControlledID,
			ControlType:  cmd.ControlType,
		}, from, cmd.ValidTo, requestcontext.ActorID(txCtx).String(), now)
		if err != nil {
			return err
		}
		if rel.IsOpen() {
			history, err := s.store.ControlHistory(txCtx, rel.Key())
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load control history")
			}
			for _, existing := range history {
				if existing.IsOpen() {
					s.metrics.IncConflict()
					return models.OpenVersionConflict(rel.Key().String(), existing.ID.String())
				}
			}
		}
		if err := s.store.InsertControl(txCtx, rel); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				s.metrics.IncConflict()
				return models.OpenVersionConflict(rel.Key().String(), "")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store control relationship")
		}
		if err := s.audit.controlAdded(txCtx, rel); err != nil {
			return err
		}
		out = rel
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncWrite("add_control")
	return out, nil
}

func (s *Service) CloseControl(ctx context.Context, controlID id.ControlID, cmd CloseCommand) (*models.ControlRelationship, error) {
	current, err := s.store.FindControl(ctx, controlID)
	if err != nil {
		return nil, wrapStoreErr(err, "control relationship", controlID.String())
	}

	var out *models.ControlRelationship
	err = s.tx.RunInTx(ctx, lockKey(current.Value.ControlledID), func(txCtx context.Context) error {
		rel, err := s.store.FindControl(txCtx, controlID)
		if err != nil {
			return wrapStoreErr(err, "control relationship", controlID.String())
		}
		at := cmd.At
		if at.IsZero() {
			at = requestcontext.Now(txCtx)
		}
		if err := rel.CanClose(at); err != nil {
			return err
		}
		rel.ApplyClose(at, cmd.Reason)
		if err := s.store.CloseControl(txCtx, rel); err != nil {
			return wrapStoreErr(err, "control relationship", controlID.String())
		}
		if err := s.audit.controlClosed(txCtx, rel); err != nil {
			return err
		}
		out = rel
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncWrite("close_control")
	return out, nil
}

// ControlsOver returns the control relationships over entityID valid at asOf.
func (s *Service) ControlsOver(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*models.ControlRelationship, error) {
	rels, err := s.store.ControlsOver(ctx, entityID, asOf)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load control relationships")
	}
	return rels, nil
}

func (s *Service) Revision(ctx context.Context) (int64, error) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read graph revision")
	}
	return rev, nil
}

func wrapStoreErr(err error, kind, resourceID string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, kind+" not found").WithDetail("id", resourceID)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, kind+" is already closed").WithDetail("id", resourceID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+kind)
	}
}
