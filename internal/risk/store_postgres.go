package risk

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

// PostgresStore persists risks. UpsertMappingAndScore runs inside one
// transaction with the risk row locked FOR UPDATE, so concurrent mapping
// writes for the same risk serialize on the row lock and a scoring error
// rolls back the mapping write.
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

const riskColumns = `id, title, description, likelihood, impact, inherent_score, residual_score, created_at, updated_at`

func (s *PostgresStore) CreateRisk(ctx context.Context, risk *Risk) error {
	query := `
		INSERT INTO risks (` + riskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(risk.ID), risk.Title, risk.Description, risk.Likelihood, risk.Impact,
		risk.InherentScore, risk.ResidualScore, risk.CreatedAt, risk.UpdatedAt)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert risk: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, riskID id.RiskID) (*Risk, error) {
	query := `SELECT ` + riskColumns + ` FROM risks WHERE id = $1`
	return scanRisk(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(riskID)))
}

func (s *PostgresStore) List(ctx context.Context) ([]*Risk, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `SELECT `+riskColumns+` FROM risks ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list risks: %w", err)
	}
	defer rows.Close()

	var out []*Risk
	for rows.Next() {
		risk, err := scanRisk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, risk)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListMappings(ctx context.Context, riskID id.RiskID) ([]Mapping, error) {
	return listMappings(ctx, s.querier(ctx), riskID)
}

func (s *PostgresStore) UpsertMappingAndScore(ctx context.Context, mapping Mapping,
	score func(ctx context.Context, risk *Risk, mappings []Mapping) (int, error)) (*Risk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Row lock serializes concurrent mapping writes for this risk.
	lockQuery := `SELECT ` + riskColumns + ` FROM risks WHERE id = $1 FOR UPDATE`
	risk, err := scanRisk(tx.QueryRowContext(ctx, lockQuery, uuid.UUID(mapping.RiskID)))
	if err != nil {
		return nil, err
	}

	upsert := `
		INSERT INTO risk_control_mappings (risk_id, control_id, effectiveness)
		VALUES ($1, $2, $3)
		ON CONFLICT (risk_id, control_id) DO UPDATE SET effectiveness = EXCLUDED.effectiveness
	`
	if _, err := tx.ExecContext(ctx, upsert,
		uuid.UUID(mapping.RiskID), uuid.UUID(mapping.ControlID), mapping.Effectiveness); err != nil {
		if pgerr.IsForeignKeyViolation(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("upsert mapping: %w", err)
	}

	mappings, err := listMappings(ctx, tx, mapping.RiskID)
	if err != nil {
		return nil, err
	}

	// Reads made by score join this transaction via the context.
	residual, err := score(txcontext.WithTx(ctx, tx), risk, mappings)
	if err != nil {
		// Rollback via the deferred call discards the mapping write.
		return nil, err
	}
	risk.ResidualScore = residual

	if _, err := tx.ExecContext(ctx,
		`UPDATE risks SET residual_score = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(risk.ID), risk.ResidualScore, risk.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update risk score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return risk, nil
}

func listMappings(ctx context.Context, q dbQuerier, riskID id.RiskID) ([]Mapping, error) {
	query := `
		SELECT risk_id, control_id, effectiveness
		FROM risk_control_mappings
		WHERE risk_id = $1
		ORDER BY control_id
	`
	rows, err := q.QueryContext(ctx, query, uuid.UUID(riskID))
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var mapping Mapping
		var rID, cID uuid.UUID
		if err := rows.Scan(&rID, &cID, &mapping.Effectiveness); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mapping.RiskID = id.RiskID(rID)
		mapping.ControlID = id.ControlID(cID)
		out = append(out, mapping)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRisk(row rowScanner) (*Risk, error) {
	var risk Risk
	var riskID uuid.UUID
	err := row.Scan(&riskID, &risk.Title, &risk.Description, &risk.Likelihood,
		&risk.Impact, &risk.InherentScore, &risk.ResidualScore,
		&risk.CreatedAt, &risk.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan risk: %w", err)
	}
	risk.ID = id.RiskID(riskID)
	return &risk, nil
}
