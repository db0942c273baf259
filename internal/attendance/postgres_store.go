package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcall/rollcall/internal/civiltime"
)

// PostgresStore is a PostgreSQL RecordStore and BindingStore. Uniqueness is
// enforced by the attendance_records (participant_id, session_id,
// occurrence_date) unique index and the device_bindings primary key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL attendance store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get retrieves the record for key.
func (s *PostgresStore) Get(ctx context.Context, key RecordKey) (*Record, error) {
	query := `
		SELECT
			id, session_id, occurrence_date, participant_id, device_id,
			outcome, distance_meters, accuracy_meters, marked_at
		FROM attendance_records
		WHERE participant_id = $1 AND session_id = $2 AND occurrence_date = $3
	`

	var (
		rec  Record
		date pgtype.Date
	)
	err := s.pool.QueryRow(ctx, query, key.ParticipantID, key.SessionID, pgDate(key.Date)).Scan(
		&rec.ID,
		&rec.SessionID,
		&date,
		&rec.ParticipantID,
		&rec.DeviceID,
		&rec.Outcome,
		&rec.DistanceMeters,
		&rec.AccuracyMeters,
		&rec.MarkedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get attendance record %s: %w", key, err)
	}
	rec.OccurrenceDate = fromPGDate(date)
	return &rec, nil
}

// Insert stores rec unless a record with the same key exists.
func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO attendance_records (
			id, session_id, occurrence_date, participant_id, device_id,
			outcome, distance_meters, accuracy_meters, marked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (participant_id, session_id, occurrence_date) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.SessionID,
		pgDate(rec.OccurrenceDate),
		rec.ParticipantID,
		rec.DeviceID,
		rec.Outcome,
		rec.DistanceMeters,
		rec.AccuracyMeters,
		rec.MarkedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attendance record %s: %w", rec.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordExists
	}
	return nil
}

// GetBinding retrieves the binding of a participant.
func (s *PostgresStore) GetBinding(ctx context.Context, participantID string) (*DeviceBinding, error) {
	var b DeviceBinding
	err := s.pool.QueryRow(ctx,
		`SELECT participant_id, device_id, bound_at FROM device_bindings WHERE participant_id = $1`,
		participantID,
	).Scan(&b.ParticipantID, &b.DeviceID, &b.BoundAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("get device binding: %w", err)
	}
	return &b, nil
}

// Bind stores b unless the participant is already bound.
func (s *PostgresStore) Bind(ctx context.Context, b *DeviceBinding) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO device_bindings (participant_id, device_id, bound_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_id) DO NOTHING
	`, b.ParticipantID, b.DeviceID, b.BoundAt)
	if err != nil {
		return fmt.Errorf("insert device binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBindingExists
	}
	return nil
}

func pgDate(d civiltime.Date) pgtype.Date {
	return pgtype.Date{Time: time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC), Valid: true}
}

func fromPGDate(d pgtype.Date) civiltime.Date {
	return civiltime.Date{Year: d.Time.Year(), Month: d.Time.Month(), Day: d.Time.Day()}
}

var (
	_ RecordStore  = (*PostgresStore)(nil)
	_ BindingStore = (*PostgresStore)(nil)
)
