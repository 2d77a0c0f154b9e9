package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/pgerr"
	"creaturegrc/pkg/platform/sentinel"
	txcontext "creaturegrc/pkg/platform/tx"
)

// PostgresStore persists evidence. The unique index on
// (implementation_id, content_hash, period_start, period_end) plus
// ON CONFLICT DO NOTHING gives CreateIfAbsent its atomicity.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const evidenceColumns = `id, implementation_id, source_system, evidence_type, payload_ref,
	content_hash, collected_at, period_start, period_end, review_status,
	reviewed_by, review_notes, reviewed_at, created_at`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, candidate *Evidence) (*Evidence, bool, error) {
	insert := `
		INSERT INTO evidence (` + evidenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (implementation_id, content_hash, period_start, period_end) DO NOTHING
	`
	res, err := s.querier(ctx).ExecContext(ctx, insert,
		uuid.UUID(candidate.ID), uuid.UUID(candidate.ImplementationID),
		candidate.SourceSystem, candidate.Type, candidate.PayloadRef,
		candidate.ContentHash, candidate.CollectedAt,
		candidate.Period.Start, candidate.Period.End, candidate.ReviewStatus,
		candidate.ReviewedBy, candidate.ReviewNotes, candidate.ReviewedAt, candidate.CreatedAt,
	)
	if pgerr.IsForeignKeyViolation(err) {
		return nil, false, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert evidence: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert evidence: rows affected: %w", err)
	}
	if inserted == 1 {
		return candidate, true, nil
	}

	find := `
		SELECT ` + evidenceColumns + `
		FROM evidence
		WHERE implementation_id = $1 AND content_hash = $2 AND period_start = $3 AND period_end = $4
	`
	existing, err := scanEvidence(s.querier(ctx).QueryRowContext(ctx, find,
		uuid.UUID(candidate.ImplementationID), candidate.ContentHash,
		candidate.Period.Start, candidate.Period.End))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) Find(ctx context.Context, evidenceID id.EvidenceID) (*Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1`
	return scanEvidence(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(evidenceID)))
}

func (s *PostgresStore) ListByImplementation(ctx context.Context, implementationID id.ImplementationID) ([]*Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE implementation_id = $1 ORDER BY content_hash`
	return s.queryEvidence(ctx, query, uuid.UUID(implementationID))
}

func (s *PostgresStore) ListApprovedOverlapping(ctx context.Context, implementationID id.ImplementationID, window id.Period) ([]*Evidence, error) {
	query := `
		SELECT ` + evidenceColumns + `
		FROM evidence
		WHERE implementation_id = $1
		  AND review_status = 'approved'
		  AND period_start <= $3
		  AND period_end >= $2
		ORDER BY content_hash
	`
	return s.queryEvidence(ctx, query, uuid.UUID(implementationID), window.Start, window.End)
}

func (s *PostgresStore) Execute(ctx context.Context, evidenceID id.EvidenceID,
	validate func(*Evidence) error, mutate func(*Evidence)) (*Evidence, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.executeIn(ctx, tx, evidenceID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := s.executeIn(ctx, tx, evidenceID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) executeIn(ctx context.Context, tx dbQuerier, evidenceID id.EvidenceID,
	validate func(*Evidence) error, mutate func(*Evidence)) (*Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1 FOR UPDATE`
	e, err := scanEvidence(tx.QueryRowContext(ctx, query, uuid.UUID(evidenceID)))
	if err != nil {
		return nil, err
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	mutate(e)

	update := `
		UPDATE evidence
		SET review_status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		uuid.UUID(e.ID), e.ReviewStatus, e.ReviewedBy, e.ReviewNotes, e.ReviewedAt)
	if err != nil {
		return nil, fmt.Errorf("update evidence: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) queryEvidence(ctx context.Context, query string, args ...any) ([]*Evidence, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var out []*Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (*Evidence, error) {
	var e Evidence
	var evidenceID, implementationID uuid.UUID
	err := row.Scan(&evidenceID, &implementationID, &e.SourceSystem, &e.Type,
		&e.PayloadRef, &e.ContentHash, &e.CollectedAt,
		&e.Period.Start, &e.Period.End, &e.ReviewStatus,
		&e.ReviewedBy, &e.ReviewNotes, &e.ReviewedAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan evidence: %w", err)
	}
	e.ID = id.EvidenceID(evidenceID)
	e.ImplementationID = id.ImplementationID(implementationID)
	return &e, nil
}
