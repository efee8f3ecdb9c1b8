package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ownergraph/internal/graph/models"
	"ownergraph/internal/platform/database"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
	txcontext "ownergraph/pkg/platform/tx"
)

// revisionName is this store's row in the revisions table.
const revisionName = "graph"

// PostgresStore persists the graph in Postgres. Writes bump the graph
// revision in the same transaction when the caller carries one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.Exec(ctx, s.db)
}

func (s *PostgresStore) bumpRevision(ctx context.Context) error {
	_, err := s.exec(ctx).ExecContext(ctx, `UPDATE revisions SET value = value + 1 WHERE name = $1`, revisionName)
	if err != nil {
		return fmt.Errorf("bump graph revision: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, entity *models.Entity) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO entities (id, kind, display_name, jurisdiction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			display_name = EXCLUDED.display_name,
			jurisdiction = EXCLUDED.jurisdiction,
			updated_at = EXCLUDED.updated_at
	`, uuid.UUID(entity.ID), string(entity.Kind), entity.DisplayName, entity.Jurisdiction, entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return s.bumpRevision(ctx)
}

const selectEntity = `SELECT id, kind, display_name, jurisdiction, created_at, updated_at FROM entities`

func (s *PostgresStore) FindEntity(ctx context.Context, entityID id.EntityID) (*models.Entity, error) {
	row := s.exec(ctx).QueryRowContext(ctx, selectEntity+` WHERE id = $1`, uuid.UUID(entityID))
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entity: %w", err)
	}
	return entity, nil
}

func (s *PostgresStore) FindEntities(ctx context.Context, ids []id.EntityID) (map[id.EntityID]*models.Entity, error) {
	out := make(map[id.EntityID]*models.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, entityID := range ids {
		raw[i] = entityID.String()
	}
	rows, err := s.exec(ctx).QueryContext(ctx, selectEntity+` WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out[entity.ID] = entity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		rawID uuid.UUID
		kind  string
		e     models.Entity
	)
	if err := row.Scan(&rawID, &kind, &e.DisplayName, &e.Jurisdiction, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ID = id.EntityID(rawID)
	e.Kind = id.EntityKind(kind)
	return &e, nil
}

func (s *PostgresStore) InsertEdge(ctx context.Context, edge *models.OwnershipEdge) error {
	if err := s.insertEdge(ctx, edge); err != nil {
		return err
	}
	return s.bumpRevision(ctx)
}

func (s *PostgresStore) insertEdge(ctx context.Context, edge *models.OwnershipEdge) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO ownership_edges (
			id, owner_id, owned_id, percentage, relationship_type,
			valid_from, valid_to, superseded_by, close_reason, created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(edge.ID),
		uuid.UUID(edge.Value.OwnerID),
		uuid.UUID(edge.Value.OwnedID),
		edge.Value.Percentage,
		string(edge.Value.RelationshipType),
		edge.ValidFrom,
		nullTime(edge.ValidTo),
		nullEdgeID(edge.SupersededBy),
		edge.CloseReason,
		edge.CreatedAt,
		edge.CreatedBy,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ownership edge: %w", err)
	}
	return nil
}

const selectEdge = `
	SELECT id, owner_id, owned_id, percentage, relationship_type,
		   valid_from, valid_to, superseded_by, close_reason, created_at, created_by
	FROM ownership_edges
`

func (s *PostgresStore) FindEdge(ctx context.Context, edgeID id.EdgeID) (*models.OwnershipEdge, error) {
	row := s.exec(ctx).QueryRowContext(ctx, selectEdge+` WHERE id = $1`, uuid.UUID(edgeID))
	edge, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ownership edge: %w", err)
	}
	return edge, nil
}

// CloseEdge sets the closing fields of an open edge. The valid_to IS NULL
// predicate makes a concurrent double close observable as ErrInvalidState.
func (s *PostgresStore) CloseEdge(ctx context.Context, edge *models.OwnershipEdge) error {
	if err := s.closeEdge(ctx, edge); err != nil {
		return err
	}
	return s.bumpRevision(ctx)
}

// SupersedeEdge closes old and inserts next in one transaction, joining the
// caller's when ctx carries one.
func (s *PostgresStore) SupersedeEdge(ctx context.Context, old, next *models.OwnershipEdge) error {
	return txcontext.NewSQLRunner(s.db).RunInTx(ctx, "", func(txCtx context.Context) error {
		if err := s.closeEdge(txCtx, old); err != nil {
			return err
		}
		if err := s.insertEdge(txCtx, next); err != nil {
			return err
		}
		return s.bumpRevision(txCtx)
	})
}

func (s *PostgresStore) closeEdge(ctx context.Context, edge *models.OwnershipEdge) error {
	if edge.ValidTo == nil {
		return sentinel.ErrInvalidState
	}
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ownership_edges
		SET valid_to = $2, close_reason = $3, superseded_by = $4
		WHERE id = $1 AND valid_to IS NULL
	`, uuid.UUID(edge.ID), *edge.ValidTo, edge.CloseReason, nullEdgeID(edge.SupersededBy))
	if err != nil {
		return fmt.Errorf("close ownership edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close ownership edge: %w", err)
	}
	if n == 0 {
		if _, findErr := s.FindEdge(ctx, edge.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

const activeAt = ` AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)`

const edgeOrder = ` ORDER BY owner_id, owned_id, valid_from, id`

func (s *PostgresStore) EdgesInto(ctx context.Context, owned id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error) {
	return s.queryEdges(ctx, selectEdge+` WHERE owned_id = $1`+activeAt+edgeOrder, uuid.UUID(owned), asOf)
}

func (s *PostgresStore) EdgesOut(ctx context.Context, owner id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error) {
	return s.queryEdges(ctx, selectEdge+` WHERE owner_id = $1`+activeAt+edgeOrder, uuid.UUID(owner), asOf)
}

func (s *PostgresStore) EdgeHistory(ctx context.Context, key models.EdgeKey) ([]*models.OwnershipEdge, error) {
	return s.queryEdges(ctx, selectEdge+` WHERE owner_id = $1 AND owned_id = $2`+edgeOrder,
		uuid.UUID(key.OwnerID), uuid.UUID(key.OwnedID))
}

func (s *PostgresStore) EdgeHistoryInto(ctx context.Context, owned id.EntityID) ([]*models.OwnershipEdge, error) {
	return s.queryEdges(ctx, selectEdge+` WHERE owned_id = $1`+edgeOrder, uuid.UUID(owned))
}

func (s *PostgresStore) queryEdges(ctx context.Context, query string, args ...any) ([]*models.OwnershipEdge, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ownership edges: %w", err)
	}
	defer rows.Close()

	var out []*models.OwnershipEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership edge: %w", err)
		}
		out = append(out, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ownership edges: %w", err)
	}
	return out, nil
}

func scanEdge(row scanner) (*models.OwnershipEdge, error) {
	var (
		rawID, ownerID, ownedID uuid.UUID
		relType                 string
		validTo                 sql.NullTime
		supersededBy            uuid.NullUUID
		e                       models.OwnershipEdge
	)
	err := row.Scan(&rawID, &ownerID, &ownedID, &e.Value.Percentage, &relType,
		&e.ValidFrom, &validTo, &supersededBy, &e.CloseReason, &e.CreatedAt, &e.CreatedBy)
	if err != nil {
		return nil, err
	}
	e.ID = id.EdgeID(rawID)
	e.Value.OwnerID = id.EntityID(ownerID)
	e.Value.OwnedID = id.EntityID(ownedID)
	e.Value.RelationshipType = models.RelationshipType(relType)
	if validTo.Valid {
		t := validTo.Time
		e.ValidTo = &t
	}
	if supersededBy.Valid {
		next := id.EdgeID(supersededBy.UUID)
		e.SupersededBy = &next
	}
	return &e, nil
}

func (s *PostgresStore) InsertControl(ctx context.Context, rel *models.ControlRelationship) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO control_relationships (
			id, controller_id, controlled_id, control_type,
			valid_from, valid_to, close_reason, created_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(rel.ID),
		uuid.UUID(rel.Value.ControllerID),
		uuid.UUID(rel.Value.ControlledID),
		string(rel.Value.ControlType),
		rel.ValidFrom,
		nullTime(rel.ValidTo),
		rel.CloseReason,
		rel.CreatedAt,
		rel.CreatedBy,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert control relationship: %w", err)
	}
	return s.bumpRevision(ctx)
}

const selectControl = `
	SELECT id, controller_id, controlled_id, control_type,
		   valid_from, valid_to, close_reason, created_at, created_by
	FROM control_relationships
`

func (s *PostgresStore) FindControl(ctx context.Context, controlID id.ControlID) (*models.ControlRelationship, error) {
	row := s.exec(ctx).QueryRowContext(ctx, selectControl+` WHERE id = $1`, uuid.UUID(controlID))
	rel, err := scanControl(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find control relationship: %w", err)
	}
	return rel, nil
}

func (s *PostgresStore) CloseControl(ctx context.Context, rel *models.ControlRelationship) error {
	if rel.ValidTo == nil {
		return sentinel.ErrInvalidState
	}
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE control_relationships
		SET valid_to = $2, close_reason = $3
		WHERE id = $1 AND valid_to IS NULL
	`, uuid.UUID(rel.ID), *rel.ValidTo, rel.CloseReason)
	if err != nil {
		return fmt.Errorf("close control relationship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close control relationship: %w", err)
	}
	if n == 0 {
		if _, findErr := s.FindControl(ctx, rel.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return s.bumpRevision(ctx)
}

const controlOrder = ` ORDER BY valid_from, id`

func (s *PostgresStore) ControlsOver(ctx context.Context, controlled id.EntityID, asOf time.Time) ([]*models.ControlRelationship, error) {
	return s.queryControls(ctx, selectControl+` WHERE controlled_id = $1`+activeAt+controlOrder, uuid.UUID(controlled), asOf)
}

func (s *PostgresStore) ControlHistory(ctx context.Context, key models.ControlKey) ([]*models.ControlRelationship, error) {
	return s.queryControls(ctx, selectControl+` WHERE controller_id = $1 AND controlled_id = $2 AND control_type = $3`+controlOrder,
		uuid.UUID(key.ControllerID), uuid.UUID(key.ControlledID), string(key.ControlType))
}

func (s *PostgresStore) queryControls(ctx context.Context, query string, args ...any) ([]*models.ControlRelationship, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query control relationships: %w", err)
	}
	defer rows.Close()

	var out []*models.ControlRelationship
	for rows.Next() {
		rel, err := scanControl(rows)
		if err != nil {
			return nil, fmt.Errorf("scan control relationship: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate control relationships: %w", err)
	}
	return out, nil
}

func scanControl(row scanner) (*models.ControlRelationship, error) {
	var (
		rawID, controllerID, controlledID uuid.UUID
		controlType                       string
		validTo                           sql.NullTime
		c                                 models.ControlRelationship
	)
	err := row.Scan(&rawID, &controllerID, &controlledID, &controlType,
		&c.ValidFrom, &validTo, &c.CloseReason, &c.CreatedAt, &c.CreatedBy)
	if err != nil {
		return nil, err
	}
	c.ID = id.ControlID(rawID)
	c.Value.ControllerID = id.EntityID(controllerID)
	c.Value.ControlledID = id.EntityID(controlledID)
	c.Value.ControlType = models.ControlType(controlType)
	if validTo.Valid {
		t := validTo.Time
		c.ValidTo = &t
	}
	return &c, nil
}

func (s *PostgresStore) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT value FROM revisions WHERE name = $1`, revisionName).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("read graph revision: %w", err)
	}
	return rev, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullEdgeID(edgeID *id.EdgeID) uuid.NullUUID {
	if edgeID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*edgeID), Valid: true}
}
