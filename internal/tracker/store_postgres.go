package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/pgerr"
	"creaturegrc/pkg/platform/sentinel"
	txcontext "creaturegrc/pkg/platform/tx"
)

// PostgresStore persists implementations. Execute locks the row with
// SELECT ... FOR UPDATE for the duration of validate and mutate.
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

const implementationColumns = `id, control_id, status, automation, testing_frequency,
	creature_ids, policy_refs, narrative, last_test_date, next_test_date, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, implementation *Implementation) error {
	query := `
		INSERT INTO control_implementations (` + implementationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query, implementationArgs(implementation)...)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if pgerr.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert implementation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, implementationID id.ImplementationID) (*Implementation, error) {
	query := `SELECT ` + implementationColumns + ` FROM control_implementations WHERE id = $1`
	return scanImplementation(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(implementationID)))
}

func (s *PostgresStore) FindByControl(ctx context.Context, controlID id.ControlID) (*Implementation, error) {
	query := `SELECT ` + implementationColumns + ` FROM control_implementations WHERE control_id = $1`
	return scanImplementation(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(controlID)))
}

func (s *PostgresStore) ListByControls(ctx context.Context, controlIDs []id.ControlID) (map[id.ControlID]*Implementation, error) {
	raw := make([]string, len(controlIDs))
	for i, controlID := range controlIDs {
		raw[i] = controlID.String()
	}
	query := `SELECT ` + implementationColumns + ` FROM control_implementations WHERE control_id = ANY($1)`
	rows, err := s.querier(ctx).QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("list implementations: %w", err)
	}
	defer rows.Close()

	out := make(map[id.ControlID]*Implementation)
	for rows.Next() {
		implementation, err := scanImplementation(rows)
		if err != nil {
			return nil, err
		}
		out[implementation.ControlID] = implementation
	}
	return out, rows.Err()
}

func (s *PostgresStore) Execute(ctx context.Context, implementationID id.ImplementationID,
	validate func(*Implementation) error, mutate func(*Implementation)) (*Implementation, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.executeIn(ctx, tx, implementationID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	implementation, err := s.executeIn(ctx, tx, implementationID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return implementation, nil
}

func (s *PostgresStore) executeIn(ctx context.Context, tx dbQuerier, implementationID id.ImplementationID,
	validate func(*Implementation) error, mutate func(*Implementation)) (*Implementation, error) {
	query := `SELECT ` + implementationColumns + ` FROM control_implementations WHERE id = $1 FOR UPDATE`
	implementation, err := scanImplementation(tx.QueryRowContext(ctx, query, uuid.UUID(implementationID)))
	if err != nil {
		return nil, err
	}
	if err := validate(implementation); err != nil {
		return nil, err
	}
	mutate(implementation)

	update := `
		UPDATE control_implementations
		SET status = $2, automation = $3, testing_frequency = $4, creature_ids = $5,
		    policy_refs = $6, narrative = $7, last_test_date = $8, next_test_date = $9,
		    updated_at = $10
		WHERE id = $1
	`
	args := implementationArgs(implementation)
	// implementationArgs orders columns as inserted; skip control_id and created_at.
	_, err = tx.ExecContext(ctx, update,
		args[0], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[9], args[11])
	if err != nil {
		return nil, fmt.Errorf("update implementation: %w", err)
	}
	return implementation, nil
}

func (s *PostgresStore) AppendTransition(ctx context.Context, transition Transition) error {
	query := `
		INSERT INTO implementation_transitions (implementation_id, from_status, to_status, actor, note, override, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(transition.ImplementationID), transition.From, transition.To,
		transition.Actor, transition.Note, transition.Override, transition.At)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransitions(ctx context.Context, implementationID id.ImplementationID) ([]Transition, error) {
	query := `
		SELECT implementation_id, from_status, to_status, actor, note, override, at
		FROM implementation_transitions
		WHERE implementation_id = $1
		ORDER BY at
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(implementationID))
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var transition Transition
		var implID uuid.UUID
		if err := rows.Scan(&implID, &transition.From, &transition.To,
			&transition.Actor, &transition.Note, &transition.Override, &transition.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		transition.ImplementationID = id.ImplementationID(implID)
		out = append(out, transition)
	}
	return out, rows.Err()
}

func implementationArgs(implementation *Implementation) []any {
	creatureIDs := make([]string, len(implementation.CreatureIDs))
	for i, creatureID := range implementation.CreatureIDs {
		creatureIDs[i] = creatureID.String()
	}
	return []any{
		uuid.UUID(implementation.ID),
		uuid.UUID(implementation.ControlID),
		implementation.Status,
		implementation.Automation,
		implementation.Frequency,
		pq.Array(creatureIDs),
		pq.Array(implementation.PolicyRefs),
		implementation.Narrative,
		implementation.LastTestDate,
		implementation.NextTestDate,
		implementation.CreatedAt,
		implementation.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImplementation(row rowScanner) (*Implementation, error) {
	var implementation Implementation
	var implementationID, controlID uuid.UUID
	var creatureIDs, policyRefs []string
	err := row.Scan(&implementationID, &controlID, &implementation.Status,
		&implementation.Automation, &implementation.Frequency,
		pq.Array(&creatureIDs), pq.Array(&policyRefs), &implementation.Narrative,
		&implementation.LastTestDate, &implementation.NextTestDate,
		&implementation.CreatedAt, &implementation.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan implementation: %w", err)
	}
	implementation.ID = id.ImplementationID(implementationID)
	implementation.ControlID = id.ControlID(controlID)
	for _, raw := range creatureIDs {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse creature id: %w", err)
		}
		implementation.CreatureIDs = append(implementation.CreatureIDs, id.CreatureID(parsed))
	}
	implementation.PolicyRefs = policyRefs
	return &implementation, nil
}
