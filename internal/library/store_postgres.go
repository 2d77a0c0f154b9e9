package library

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

// PostgresStore persists reference data. Uniqueness is enforced by the
// schema's unique indexes; violations surface as sentinel.ErrConflict.
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

func (s *PostgresStore) CreateFramework(ctx context.Context, framework *Framework) error {
	query := `
		INSERT INTO compliance_frameworks (id, name, version, source, description, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(framework.ID), framework.Name, framework.Version,
		framework.Source, framework.Description, framework.Active, framework.CreatedAt,
	)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert framework: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindFrameworkByName(ctx context.Context, name string) (*Framework, error) {
	query := `
		SELECT id, name, version, source, description, active, created_at
		FROM compliance_frameworks
		WHERE lower(name) = lower($1) AND active
	`
	var (
		framework Framework
		rawID     uuid.UUID
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, name).Scan(
		&rawID, &framework.Name, &framework.Version, &framework.Source,
		&framework.Description, &framework.Active, &framework.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find framework: %w", err)
	}
	framework.ID = id.FrameworkID(rawID)
	return &framework, nil
}

func (s *PostgresStore) CreateDomain(ctx context.Context, domain *ControlDomain) error {
	query := `
		INSERT INTO control_domains (id, framework_id, code, name)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(domain.ID), uuid.UUID(domain.FrameworkID), domain.Code, domain.Name,
	)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if pgerr.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert control domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindDomainByCode(ctx context.Context, frameworkID id.FrameworkID, code string) (*ControlDomain, error) {
	query := `
		SELECT id, framework_id, code, name
		FROM control_domains
		WHERE framework_id = $1 AND code = $2
	`
	var (
		domain ControlDomain
		rawID  uuid.UUID
		rawFW  uuid.UUID
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(frameworkID), code).Scan(
		&rawID, &rawFW, &domain.Code, &domain.Name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find control domain: %w", err)
	}
	domain.ID = id.ControlDomainID(rawID)
	domain.FrameworkID = id.FrameworkID(rawFW)
	return &domain, nil
}

func (s *PostgresStore) ListDomains(ctx context.Context, frameworkID id.FrameworkID) ([]*ControlDomain, error) {
	query := `
		SELECT id, framework_id, code, name
		FROM control_domains
		WHERE framework_id = $1
		ORDER BY code
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(frameworkID))
	if err != nil {
		return nil, fmt.Errorf("list control domains: %w", err)
	}
	defer rows.Close()

	var out []*ControlDomain
	for rows.Next() {
		var (
			domain ControlDomain
			rawID  uuid.UUID
			rawFW  uuid.UUID
		)
		if err := rows.Scan(&rawID, &rawFW, &domain.Code, &domain.Name); err != nil {
			return nil, fmt.Errorf("scan control domain: %w", err)
		}
		domain.ID = id.ControlDomainID(rawID)
		domain.FrameworkID = id.FrameworkID(rawFW)
		out = append(out, &domain)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateControl(ctx context.Context, control *Control) error {
	query := `
		INSERT INTO controls (id, domain_id, code, name, description, control_type, testing_procedures)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(control.ID), uuid.UUID(control.DomainID), control.Code,
		control.Name, control.Description, string(control.Type), control.TestingProcedures,
	)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if pgerr.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert control: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertControl(ctx context.Context, control *Control) (bool, error) {
	if control.ID.IsNil() {
		control.ID = id.ControlID(uuid.New())
	}
	query := `
		INSERT INTO controls (id, domain_id, code, name, description, control_type, testing_procedures)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (domain_id, code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			control_type = EXCLUDED.control_type,
			testing_procedures = EXCLUDED.testing_procedures
		RETURNING id, (xmax = 0) AS inserted
	`
	var (
		rawID    uuid.UUID
		inserted bool
	)
	err := s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(control.ID), uuid.UUID(control.DomainID), control.Code,
		control.Name, control.Description, string(control.Type), control.TestingProcedures,
	).Scan(&rawID, &inserted)
	if pgerr.IsForeignKeyViolation(err) {
		return false, sentinel.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("upsert control: %w", err)
	}
	control.ID = id.ControlID(rawID)
	return inserted, nil
}

const controlRefSelect = `
	SELECT c.id, c.domain_id, c.code, c.name, c.description, c.control_type, c.testing_procedures,
	       cd.code, cd.name, cf.name
	FROM controls c
	JOIN control_domains cd ON cd.id = c.domain_id
	JOIN compliance_frameworks cf ON cf.id = cd.framework_id
`

func (s *PostgresStore) FindControlByCode(ctx context.Context, frameworkID id.FrameworkID, code string) (*ControlRef, error) {
	query := controlRefSelect + `
		WHERE cd.framework_id = $1 AND c.code = $2
	`
	ref, err := scanControlRef(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(frameworkID), code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return ref, err
}

func (s *PostgresStore) ListControls(ctx context.Context, frameworkID id.FrameworkID) ([]*ControlRef, error) {
	query := controlRefSelect + `
		WHERE cd.framework_id = $1
		ORDER BY cd.code, c.code
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(frameworkID))
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	defer rows.Close()

	var out []*ControlRef
	for rows.Next() {
		ref, err := scanControlRef(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanControlRef(row rowScanner) (*ControlRef, error) {
	var (
		ref         ControlRef
		rawID       uuid.UUID
		rawDomainID uuid.UUID
		controlType string
	)
	err := row.Scan(
		&rawID, &rawDomainID, &ref.Control.Code, &ref.Control.Name,
		&ref.Control.Description, &controlType, &ref.Control.TestingProcedures,
		&ref.DomainCode, &ref.DomainName, &ref.FrameworkName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan control: %w", err)
	}
	ref.Control.ID = id.ControlID(rawID)
	ref.Control.DomainID = id.ControlDomainID(rawDomainID)
	ref.Control.Type = ControlType(controlType)
	return &ref, nil
}

func (s *PostgresStore) AddEquivalence(ctx context.Context, eq *Equivalence) error {
	a, b := eq.ControlID, eq.PeerControlID
	if b.String() < a.String() {
		a, b = b, a
	}
	query := `
		INSERT INTO control_equivalences (control_id, peer_control_id, note)
		VALUES ($1, $2, $3)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query, uuid.UUID(a), uuid.UUID(b), eq.Note)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if pgerr.IsForeignKeyViolation(err) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert equivalence: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEquivalents(ctx context.Context, controlID id.ControlID) ([]*Equivalence, error) {
	query := `
		SELECT control_id, peer_control_id, note
		FROM control_equivalences
		WHERE control_id = $1 OR peer_control_id = $1
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(controlID))
	if err != nil {
		return nil, fmt.Errorf("list equivalences: %w", err)
	}
	defer rows.Close()

	var out []*Equivalence
	for rows.Next() {
		var (
			eq   Equivalence
			rawA uuid.UUID
			rawB uuid.UUID
		)
		if err := rows.Scan(&rawA, &rawB, &eq.Note); err != nil {
			return nil, fmt.Errorf("scan equivalence: %w", err)
		}
		eq.ControlID = id.ControlID(rawA)
		eq.PeerControlID = id.ControlID(rawB)
		out = append(out, &eq)
	}
	return out, rows.Err()
}
