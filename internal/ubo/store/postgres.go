package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ownergraph/internal/platform/database"
	"ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
	txcontext "ownergraph/pkg/platform/tx"
)

const revisionName = "registry"

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
		return fmt.Errorf("bump registry revision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, c *models.Candidate) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO ubo_candidates (
			id, subject_id, owner_person_id, relationship_type, qualifying_reason,
			ownership_percentage, control_type, verification_status, discovery_method,
			proof_date, verified_at, superseded_by, closed_at, close_reason,
			risk_pep, risk_sanctions, risk_adverse_media, risk_high_risk_jurisdiction,
			created_at, updated_at, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		uuid.UUID(c.ID), uuid.UUID(c.SubjectID), uuid.UUID(c.OwnerPersonID), string(c.RelationshipType), string(c.QualifyingReason),
		nullFloat(c.OwnershipPercentage), nullString(c.ControlType), string(c.Status), string(c.DiscoveryMethod),
		nullTime(c.ProofDate), nullTime(c.VerifiedAt), nullUUID(c.SupersededBy), nullTime(c.ClosedAt), c.CloseReason,
		c.Risk.PEP, c.Risk.Sanctions, c.Risk.AdverseMedia, c.Risk.HighRiskJurisdiction,
		c.CreatedAt, c.UpdatedAt, c.CreatedBy,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ubo candidate: %w", err)
	}
	return s.bumpRevision(ctx)
}

const selectCandidate = `
	SELECT id, subject_id, owner_person_id, relationship_type, qualifying_reason,
		   ownership_percentage, control_type, verification_status, discovery_method,
		   proof_date, verified_at, superseded_by, closed_at, close_reason,
		   risk_pep, risk_sanctions, risk_adverse_media, risk_high_risk_jurisdiction,
		   created_at, updated_at, created_by
	FROM ubo_candidates
`

func (s *PostgresStore) Find(ctx context.Context, uboID id.UBOID) (*models.Candidate, error) {
	return s.findOne(ctx, selectCandidate+` WHERE id = $1`, uuid.UUID(uboID))
}

func (s *PostgresStore) FindActive(ctx context.Context, key models.Key) (*models.Candidate, error) {
	return s.findOne(ctx, selectCandidate+`
		WHERE subject_id = $1 AND owner_person_id = $2 AND relationship_type = $3
		  AND superseded_by IS NULL AND closed_at IS NULL`,
		uuid.UUID(key.SubjectID), uuid.UUID(key.OwnerPersonID), string(key.RelationshipType))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Candidate, error) {
	c, err := scanCandidate(s.exec(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ubo candidate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.EntityID, includeInactive bool) ([]*models.Candidate, error) {
	query := selectCandidate + ` WHERE subject_id = $1`
	if !includeInactive {
		query += ` AND superseded_by IS NULL AND closed_at IS NULL`
	}
	rows, err := s.exec(ctx).QueryContext(ctx, query+` ORDER BY created_at, id`, uuid.UUID(subject))
	if err != nil {
		return nil, fmt.Errorf("list ubo candidates: %w", err)
	}
	defer rows.Close()

	out := []*models.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ubo candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ubo candidates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Subjects(ctx context.Context) ([]id.EntityID, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT DISTINCT subject_id FROM ubo_candidates
		WHERE superseded_by IS NULL AND closed_at IS NULL
		ORDER BY subject_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list registry subjects: %w", err)
	}
	defer rows.Close()

	out := []id.EntityID{}
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan registry subject: %w", err)
		}
		out = append(out, id.EntityID(raw))
	}
	return out, rows.Err()
}

func (s *PostgresStore) SubjectOf(ctx context.Context, uboID id.UBOID) (id.EntityID, error) {
	var raw uuid.UUID
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT subject_id FROM ubo_candidates WHERE id = $1`, uuid.UUID(uboID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return id.EntityID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.EntityID{}, fmt.Errorf("find ubo subject: %w", err)
	}
	return id.EntityID(raw), nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the validate/mutate
// pair. It must run inside a transaction carried by ctx.
func (s *PostgresStore) Execute(ctx context.Context, uboID id.UBOID, validate func(*models.Candidate) error, mutate func(*models.Candidate)) (*models.Candidate, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("execute ubo update: %w", sentinel.ErrInvalidState)
	}
	c, err := s.findOne(ctx, selectCandidate+` WHERE id = $1 FOR UPDATE`, uuid.UUID(uboID))
	if err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return c, err
	}
	mutate(c)

	_, err = s.exec(ctx).ExecContext(ctx, `
		UPDATE ubo_candidates SET
			ownership_percentage = $2,
			verification_status = $3,
			proof_date = $4,
			verified_at = $5,
			superseded_by = $6,
			closed_at = $7,
			close_reason = $8,
			risk_pep = $9,
			risk_sanctions = $10,
			risk_adverse_media = $11,
			risk_high_risk_jurisdiction = $12,
			updated_at = $13
		WHERE id = $1
	`, uuid.UUID(c.ID), nullFloat(c.OwnershipPercentage), string(c.Status), nullTime(c.ProofDate), nullTime(c.VerifiedAt),
		nullUUID(c.SupersededBy), nullTime(c.ClosedAt), c.CloseReason,
		c.Risk.PEP, c.Risk.Sanctions, c.Risk.AdverseMedia, c.Risk.HighRiskJurisdiction, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update ubo candidate: %w", err)
	}
	if err := s.bumpRevision(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) Revision(ctx context.Context) (int64, error) {
	var value int64
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT value FROM revisions WHERE name = $1`, revisionName).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("read registry revision: %w", err)
	}
	return value, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (*models.Candidate, error) {
	var (
		rawID, subject, person          uuid.UUID
		relType, reason, status, method string
		pct                             sql.NullFloat64
		controlType                     sql.NullString
		proofDate, verifiedAt, closedAt sql.NullTime
		supersededBy                    uuid.NullUUID
		c                               models.Candidate
	)
	err := row.Scan(&rawID, &subject, &person, &relType, &reason,
		&pct, &controlType, &status, &method,
		&proofDate, &verifiedAt, &supersededBy, &closedAt, &c.CloseReason,
		&c.Risk.PEP, &c.Risk.Sanctions, &c.Risk.AdverseMedia, &c.Risk.HighRiskJurisdiction,
		&c.CreatedAt, &c.UpdatedAt, &c.CreatedBy)
	if err != nil {
		return nil, err
	}
	c.ID = id.UBOID(rawID)
	c.SubjectID = id.EntityID(subject)
	c.OwnerPersonID = id.EntityID(person)
	c.RelationshipType = models.RelationshipType(relType)
	c.QualifyingReason = models.QualifyingReason(reason)
	c.Status = models.Status(status)
	c.DiscoveryMethod = models.DiscoveryMethod(method)
	c.ControlType = controlType.String
	if pct.Valid {
		v := pct.Float64
		c.OwnershipPercentage = &v
	}
	c.ProofDate = timePtr(proofDate)
	c.VerifiedAt = timePtr(verifiedAt)
	c.ClosedAt = timePtr(closedAt)
	if supersededBy.Valid {
		v := id.UBOID(supersededBy.UUID)
		c.SupersededBy = &v
	}
	return &c, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullUUID(v *id.UBOID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}
