package creatures

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/pgerr"
	"creaturegrc/pkg/platform/sentinel"
	txcontext "creaturegrc/pkg/platform/tx"
)

// PostgresStore persists creatures and their dependency edges. Attributes
// are stored as a jsonb document alongside the typed columns.
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

const creatureColumns = `id, name, class, sub_class, domain, criticality, source_system, attributes, discovered_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, creature *Creature) error {
	attrs, err := json.Marshal(creature.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	query := `
		INSERT INTO creatures (` + creatureColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(creature.ID), creature.Name, creature.Class, creature.SubClass,
		creature.Domain, creature.Criticality, creature.SourceSystem, attrs,
		creature.DiscoveredAt, creature.CreatedAt,
	)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert creature: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, creature *Creature) error {
	attrs, err := json.Marshal(creature.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	query := `
		UPDATE creatures
		SET name = $2, class = $3, sub_class = $4, domain = $5, criticality = $6,
		    source_system = $7, attributes = $8, discovered_at = $9
		WHERE id = $1
	`
	res, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(creature.ID), creature.Name, creature.Class, creature.SubClass,
		creature.Domain, creature.Criticality, creature.SourceSystem, attrs,
		creature.DiscoveredAt,
	)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update creature: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update creature: rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, creatureID id.CreatureID) (*Creature, error) {
	query := `SELECT ` + creatureColumns + ` FROM creatures WHERE id = $1`
	return s.scanCreature(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(creatureID)))
}

func (s *PostgresStore) FindBySource(ctx context.Context, sourceSystem, name string) (*Creature, error) {
	query := `SELECT ` + creatureColumns + ` FROM creatures WHERE source_system = $1 AND name = $2`
	return s.scanCreature(s.querier(ctx).QueryRowContext(ctx, query, sourceSystem, name))
}

func (s *PostgresStore) List(ctx context.Context) ([]*Creature, error) {
	query := `SELECT ` + creatureColumns + ` FROM creatures ORDER BY source_system, name`
	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list creatures: %w", err)
	}
	defer rows.Close()

	var out []*Creature
	for rows.Next() {
		creature, err := s.scanCreature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, creature)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddEdge(ctx context.Context, edge Edge) error {
	query := `
		INSERT INTO creature_edges (from_id, to_id, kind)
		VALUES ($1, $2, $3)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(edge.FromID), uuid.UUID(edge.ToID), edge.Kind)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if pgerr.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEdgesFrom(ctx context.Context, creatureID id.CreatureID) ([]Edge, error) {
	query := `SELECT from_id, to_id, kind FROM creature_edges WHERE from_id = $1 ORDER BY to_id, kind`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(creatureID))
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var edge Edge
		var fromID, toID uuid.UUID
		if err := rows.Scan(&fromID, &toID, &edge.Kind); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edge.FromID = id.CreatureID(fromID)
		edge.ToID = id.CreatureID(toID)
		out = append(out, edge)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanCreature(row rowScanner) (*Creature, error) {
	var creature Creature
	var creatureID uuid.UUID
	var attrs []byte
	err := row.Scan(&creatureID, &creature.Name, &creature.Class, &creature.SubClass,
		&creature.Domain, &creature.Criticality, &creature.SourceSystem, &attrs,
		&creature.DiscoveredAt, &creature.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan creature: %w", err)
	}
	creature.ID = id.CreatureID(creatureID)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &creature.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &creature, nil
}
