package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ownergraph/internal/evidence/models"
	"ownergraph/internal/platform/database"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
	txcontext "ownergraph/pkg/platform/tx"
)

const revisionName = "evidence"

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
		return fmt.Errorf("bump evidence revision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *models.Evidence) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO evidence (
			id, ubo_id, role, verification_status, document_ref, description,
			submitted_at, submitted_by, verified_at, verified_by, rejection_reason, expires_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(e.ID), uuid.UUID(e.UBOID), string(e.Role), string(e.Status), e.DocumentRef, e.Description,
		e.SubmittedAt, e.SubmittedBy, nullTime(e.VerifiedAt), e.VerifiedBy, e.RejectionReason, nullTime(e.ExpiresAt), e.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		if database.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert evidence: %w", err)
	}
	return s.bumpRevision(ctx)
}

const selectEvidence = `
	SELECT id, ubo_id, role, verification_status, document_ref, description,
		   submitted_at, submitted_by, verified_at, verified_by, rejection_reason, expires_at, updated_at
	FROM evidence
`

func (s *PostgresStore) Find(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	return s.findOne(ctx, selectEvidence+` WHERE id = $1`, evidenceID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, evidenceID id.EvidenceID) (*models.Evidence, error) {
	e, err := scanEvidence(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(evidenceID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find evidence: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListByUBO(ctx context.Context, uboID id.UBOID) ([]*models.Evidence, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, selectEvidence+` WHERE ubo_id = $1 ORDER BY submitted_at, id`, uuid.UUID(uboID))
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	out := []*models.Evidence{}
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the validate/mutate
// pair. It must run inside a transaction carried by ctx.
func (s *PostgresStore) Execute(ctx context.Context, evidenceID id.EvidenceID, validate func(*models.Evidence) error, mutate func(*models.Evidence)) (*models.Evidence, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("execute evidence update: %w", sentinel.ErrInvalidState)
	}
	e, err := s.findOne(ctx, selectEvidence+` WHERE id = $1 FOR UPDATE`, evidenceID)
	if err != nil {
		return nil, err
	}
	if err := validate(e); err != nil {
		return e, err
	}
	mutate(e)

	_, err = s.exec(ctx).ExecContext(ctx, `
		UPDATE evidence SET
			verification_status = $2,
			verified_at = $3,
			verified_by = $4,
			rejection_reason = $5,
			updated_at = $6
		WHERE id = $1
	`, uuid.UUID(e.ID), string(e.Status), nullTime(e.VerifiedAt), e.VerifiedBy, e.RejectionReason, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update evidence: %w", err)
	}
	if err := s.bumpRevision(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) Revision(ctx context.Context) (int64, error) {
	var value int64
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT value FROM revisions WHERE name = $1`, revisionName).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("read evidence revision: %w", err)
	}
	return value, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row scanner) (*models.Evidence, error) {
	var (
		rawID, uboID        uuid.UUID
		role, status        string
		verifiedAt, expires sql.NullTime
		e                   models.Evidence
	)
	err := row.Scan(&rawID, &uboID, &role, &status, &e.DocumentRef, &e.Description,
		&e.SubmittedAt, &e.SubmittedBy, &verifiedAt, &e.VerifiedBy, &e.RejectionReason, &expires, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ID = id.EvidenceID(rawID)
	e.UBOID = id.UBOID(uboID)
	e.Role = models.Role(role)
	e.Status = models.Status(status)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		e.VerifiedAt = &t
	}
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	return &e, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
