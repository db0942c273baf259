package attendance

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository appends audit events. Append is idempotent on event ID so
// redelivered messages are harmless.
type AuditRepository interface {
	Append(ctx context.Context, evt AuditEvent) error
}

// InMemoryAuditRepository keeps events in memory.
type InMemoryAuditRepository struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []AuditEvent
}

// NewInMemoryAuditRepository creates an empty repository.
func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{seen: make(map[string]struct{})}
}

// Append stores evt once per ID.
func (r *InMemoryAuditRepository) Append(_ context.Context, evt AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[evt.ID]; ok {
		return nil
	}
	r.seen[evt.ID] = struct{}{}
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of the stored events in arrival order.
func (r *InMemoryAuditRepository) Events() []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEvent(nil), r.events...)
}

// Publish lets the repository stand in for a publisher in local runs.
func (r *InMemoryAuditRepository) Publish(ctx context.Context, evt AuditEvent) error {
	return r.Append(ctx, evt)
}

// PostgresAuditRepository appends events to the scan_audit table.
type PostgresAuditRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditRepository creates a new PostgreSQL audit repository.
func NewPostgresAuditRepository(pool *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{pool: pool}
}

// Append stores evt once per ID.
func (r *PostgresAuditRepository) Append(ctx context.Context, evt AuditEvent) error {
	query := `
		INSERT INTO scan_audit (
			id, session_id, occurrence_date, participant_id, device_id,
			user_agent, channel, outcome, reason,
			distance_meters, accuracy_meters, reported_at, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	var date pgtype.Date
	if evt.OccurrenceDate != nil {
		date = pgDate(*evt.OccurrenceDate)
	}

	_, err := r.pool.Exec(ctx, query,
		evt.ID,
		evt.SessionID,
		date,
		evt.ParticipantID,
		evt.DeviceID,
		evt.UserAgent,
		evt.Channel,
		evt.Outcome,
		evt.Reason,
		evt.DistanceMeters,
		evt.AccuracyMeters,
		evt.ReportedAt,
		evt.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event %s: %w", evt.ID, err)
	}
	return nil
}

var (
	_ AuditRepository = (*InMemoryAuditRepository)(nil)
	_ AuditRepository = (*PostgresAuditRepository)(nil)
	_ AuditPublisher  = (*InMemoryAuditRepository)(nil)
)
