package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ownergraph/internal/platform/database"
	"ownergraph/internal/snapshot/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
	txcontext "ownergraph/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.Exec(ctx, s.db)
}

func (s *PostgresStore) Insert(ctx context.Context, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return fmt.Errorf("encode snapshot payload: %w", err)
	}
	_, err = s.exec(ctx).ExecContext(ctx, `
		INSERT INTO snapshots (
			id, subject_id, captured_at, reason, trigger, captured_by,
			graph_revision, registry_revision, evidence_revision, content_hash, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(snap.ID), uuid.UUID(snap.SubjectID), snap.CapturedAt, snap.Reason, string(snap.Trigger), snap.CapturedBy,
		snap.Revisions.Graph, snap.Revisions.Registry, snap.Revisions.Evidence, snap.ContentHash, payload,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error) {
	var (
		rawID, subject uuid.UUID
		trigger        string
		payload        []byte
		snap           models.Snapshot
	)
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, subject_id, captured_at, reason, trigger, captured_by,
			   graph_revision, registry_revision, evidence_revision, content_hash, payload
		FROM snapshots WHERE id = $1
	`, uuid.UUID(snapshotID)).Scan(&rawID, &subject, &snap.CapturedAt, &snap.Reason, &trigger, &snap.CapturedBy,
		&snap.Revisions.Graph, &snap.Revisions.Registry, &snap.Revisions.Evidence, &snap.ContentHash, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap.Payload); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	snap.ID = id.SnapshotID(rawID)
	snap.SubjectID = id.EntityID(subject)
	snap.Trigger = models.Trigger(trigger)
	return &snap, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.EntityID) ([]models.Summary, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id, captured_at, reason, trigger, captured_by, content_hash,
			   CASE WHEN jsonb_typeof(payload->'ubos') = 'array' THEN jsonb_array_length(payload->'ubos') ELSE 0 END
		FROM snapshots
		WHERE subject_id = $1
		ORDER BY captured_at DESC, id DESC
	`, uuid.UUID(subject))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.Summary{}
	for rows.Next() {
		var (
			rawID   uuid.UUID
			trigger string
			sum     = models.Summary{SubjectID: subject}
		)
		if err := rows.Scan(&rawID, &sum.CapturedAt, &sum.Reason, &trigger, &sum.CapturedBy, &sum.ContentHash, &sum.UBOCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		sum.ID = id.SnapshotID(rawID)
		sum.Trigger = models.Trigger(trigger)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
