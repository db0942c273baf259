package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. Rule,
// policy and override dates are stored as JSONB.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL session repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectSessionSQL = `
	SELECT
		id, name, class_name,
		rule, policy, cancelled_dates, completed_dates,
		created_at, updated_at
	FROM sessions
`

// Get retrieves a session by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	rows, _ := r.pool.Query(ctx, selectSessionSQL+` WHERE id = $1`, id)
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// List retrieves every session ordered by ID.
func (r *PostgresRepository) List(ctx context.Context) ([]*Session, error) {
	rows, _ := r.pool.Query(ctx, selectSessionSQL+` ORDER BY id`)
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Upsert creates or replaces a session. CreatedAt is preserved on update.
func (r *PostgresRepository) Upsert(ctx context.Context, s *Session) error {
	rule, err := json.Marshal(s.Rule)
	if err != nil {
		return fmt.Errorf("encode rule: %w", err)
	}
	policy, err := json.Marshal(s.Policy)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	cancelled, err := json.Marshal(s.CancelledDates)
	if err != nil {
		return fmt.Errorf("encode cancelled dates: %w", err)
	}
	completed, err := json.Marshal(s.CompletedDates)
	if err != nil {
		return fmt.Errorf("encode completed dates: %w", err)
	}

	query := `
		INSERT INTO sessions (
			id, name, class_name,
			rule, policy, cancelled_dates, completed_dates,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			class_name = EXCLUDED.class_name,
			rule = EXCLUDED.rule,
			policy = EXCLUDED.policy,
			cancelled_dates = EXCLUDED.cancelled_dates,
			completed_dates = EXCLUDED.completed_dates,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`

	err = r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.ClassName,
		rule, policy, cancelled, completed,
		s.CreatedAt, s.UpdatedAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func scanSession(row pgx.CollectableRow) (*Session, error) {
	var (
		s                                  Session
		rule, policy, cancelled, completed []byte
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.ClassName,
		&rule, &policy, &cancelled, &completed,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rule, &s.Rule); err != nil {
		return nil, fmt.Errorf("decode rule for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(policy, &s.Policy); err != nil {
		return nil, fmt.Errorf("decode policy for %s: %w", s.ID, err)
	}
	if len(cancelled) > 0 {
		if err := json.Unmarshal(cancelled, &s.CancelledDates); err != nil {
			return nil, fmt.Errorf("decode cancelled dates for %s: %w", s.ID, err)
		}
	}
	if len(completed) > 0 {
		if err := json.Unmarshal(completed, &s.CompletedDates); err != nil {
			return nil, fmt.Errorf("decode completed dates for %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

var _ Repository = (*PostgresRepository)(nil)
