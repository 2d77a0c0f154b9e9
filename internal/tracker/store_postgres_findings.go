package tracker

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

// PostgresFindingStore persists audit findings.
type PostgresFindingStore struct {
	db *sql.DB
}

func NewPostgresFindings(db *sql.DB) *PostgresFindingStore {
	return &PostgresFindingStore{db: db}
}

func (s *PostgresFindingStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const findingColumns = `id, implementation_id, evidence_id, title, description, severity, status, due_date, created_at, updated_at`

func (s *PostgresFindingStore) Create(ctx context.Context, finding *Finding) error {
	query := `
		INSERT INTO audit_findings (` + findingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query, findingArgs(finding)...)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if pgerr.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func (s *PostgresFindingStore) Find(ctx context.Context, findingID id.FindingID) (*Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM audit_findings WHERE id = $1`
	return scanFinding(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(findingID)))
}

func (s *PostgresFindingStore) ListOpen(ctx context.Context) ([]*Finding, error) {
	query := `
		SELECT ` + findingColumns + `
		FROM audit_findings
		WHERE status IN ('open', 'in_progress')
		ORDER BY created_at
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []*Finding
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, finding)
	}
	return out, rows.Err()
}

func (s *PostgresFindingStore) Execute(ctx context.Context, findingID id.FindingID,
	validate func(*Finding) error, mutate func(*Finding)) (*Finding, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.executeIn(ctx, tx, findingID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	finding, err := s.executeIn(ctx, tx, findingID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return finding, nil
}

func (s *PostgresFindingStore) executeIn(ctx context.Context, tx dbQuerier, findingID id.FindingID,
	validate func(*Finding) error, mutate func(*Finding)) (*Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM audit_findings WHERE id = $1 FOR UPDATE`
	finding, err := scanFinding(tx.QueryRowContext(ctx, query, uuid.UUID(findingID)))
	if err != nil {
		return nil, err
	}
	if err := validate(finding); err != nil {
		return nil, err
	}
	mutate(finding)

	update := `
		UPDATE audit_findings
		SET title = $2, description = $3, severity = $4, status = $5, due_date = $6, updated_at = $7
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		uuid.UUID(finding.ID), finding.Title, finding.Description,
		finding.Severity, finding.Status, finding.DueDate, finding.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update finding: %w", err)
	}
	return finding, nil
}

func findingArgs(finding *Finding) []any {
	var evidenceID any
	if finding.EvidenceID != nil {
		evidenceID = uuid.UUID(*finding.EvidenceID)
	}
	return []any{
		uuid.UUID(finding.ID),
		uuid.UUID(finding.ImplementationID),
		evidenceID,
		finding.Title,
		finding.Description,
		finding.Severity,
		finding.Status,
		finding.DueDate,
		finding.CreatedAt,
		finding.UpdatedAt,
	}
}

func scanFinding(row rowScanner) (*Finding, error) {
	var finding Finding
	var findingID, implementationID uuid.UUID
	var evidenceID uuid.NullUUID
	err := row.Scan(&findingID, &implementationID, &evidenceID, &finding.Title,
		&finding.Description, &finding.Severity, &finding.Status, &finding.DueDate,
		&finding.CreatedAt, &finding.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan finding: %w", err)
	}
	finding.ID = id.FindingID(findingID)
	finding.ImplementationID = id.ImplementationID(implementationID)
	if evidenceID.Valid {
		e := id.EvidenceID(evidenceID.UUID)
		finding.EvidenceID = &e
	}
	return &finding, nil
}
