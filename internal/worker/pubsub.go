package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/resilience"
	"github.com/rollcall/rollcall/internal/telemetry"
)

const tracerName = "github.com/rollcall/rollcall/internal/worker"

// Disposition is what happens to a message after processing.
type Disposition int

const (
	Ack Disposition = iota
	Nack
)

// Stats counts processed messages. Safe for concurrent use.
type Stats struct {
	received atomic.Int64
	appended atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
	lastAt   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received    int64     `json:"received"`
	Appended    int64     `json:"appended"`
	Skipped     int64     `json:"skipped"`
	Failed      int64     `json:"failed"`
	LastMessage time.Time `json:"lastMessage,omitzero"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Received: s.received.Load(),
		Appended: s.appended.Load(),
		Skipped:  s.skipped.Load(),
		Failed:   s.failed.Load(),
	}
	if ns := s.lastAt.Load(); ns != 0 {
		snap.LastMessage = time.Unix(0, ns).UTC()
	}
	return snap
}

// AuditConsumer appends scan audit messages to an audit repository.
type AuditConsumer struct {
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	config     ConsumerConfig
	repo       attendance.AuditRepository
	guard      *resilience.Guard
	stats      *Stats
	logger     zerolog.Logger
}

// AuditConsumerConfig holds dependencies for the consumer.
type AuditConsumerConfig struct {
	// Client may be nil when only Process is used.
	Client     *pubsub.Client
	Config     ConsumerConfig
	Repository attendance.AuditRepository
	Guard      *resilience.Guard
	Logger     zerolog.Logger
}

// NewAuditConsumer creates a consumer. A nil guard gets resilience defaults.
func NewAuditConsumer(cfg AuditConsumerConfig) *AuditConsumer {
	config := cfg.Config.withDefaults()
	guard := cfg.Guard
	if guard == nil {
		guard = resilience.NewGuard(resilience.DefaultGuardConfig("audit-log"))
	}

	c := &AuditConsumer{
		client: cfg.Client,
		config: config,
		repo:   cfg.Repository,
		guard:  guard,
		stats:  &Stats{},
		logger: cfg.Logger,
	}

	if cfg.Client != nil {
		c.subscriber = cfg.Client.Subscriber(config.Subscription)
		c.subscriber.ReceiveSettings.MaxOutstandingMessages = config.MaxOutstandingMessages
		c.subscriber.ReceiveSettings.MaxExtension = config.MaxExtension
	}
	return c
}

// Stats returns the consumer's counters.
func (c *AuditConsumer) Stats() *Stats {
	return c.stats
}

// Start receives messages until ctx is cancelled.
func (c *AuditConsumer) Start(ctx context.Context) error {
	if c.subscriber == nil {
		return fmt.Errorf("audit consumer: no pubsub client configured")
	}

	c.logger.Info().
		Str("subscription", c.config.Subscription).
		Int("max_outstanding", c.config.MaxOutstandingMessages).
		Msg("starting audit consumer")

	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		switch c.Process(ctx, msg) {
		case Ack:
			msg.Ack()
		default:
			msg.Nack()
		}
	})
}

// Process handles one message. Malformed and foreign messages are acked so
// they are not redelivered; append failures are nacked for retry.
func (c *AuditConsumer) Process(ctx context.Context, msg *pubsub.Message) Disposition {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "audit.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "gcp_pubsub"),
			attribute.String("messaging.message.id", msg.ID),
		),
	)
	defer span.End()

	start := time.Now()
	c.stats.received.Add(1)
	c.stats.lastAt.Store(start.UnixNano())

	logger := c.logger.With().Str("message_id", msg.ID).Logger()

	if t := msg.Attributes["type"]; t != attendance.AuditMessageType {
		logger.Warn().Str("type", t).Msg("unknown message type")
		c.stats.skipped.Add(1)
		return Ack
	}

	evt, err := attendance.DecodeAuditEvent(msg.Data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		c.stats.skipped.Add(1)
		return Ack
	}

	err = c.guard.Do(ctx, func(ctx context.Context) error {
		appendCtx, cancel := context.WithTimeout(ctx, c.config.AppendTimeout)
		defer cancel()
		return c.repo.Append(appendCtx, evt)
	})
	if err != nil {
		logger.Error().Err(err).Str("event_id", evt.ID).Msg("failed to append audit event")
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		c.stats.failed.Add(1)
		return Nack
	}

	span.SetAttributes(attribute.String("rollcall.scan.outcome", string(evt.Outcome)))
	c.stats.appended.Add(1)
	logger.Debug().
		Str("event_id", evt.ID).
		Str("session_id", evt.SessionID).
		Str("outcome", string(evt.Outcome)).
		Dur("duration", time.Since(start)).
		Msg("audit event appended")
	return Ack
}

// Close closes the Pub/Sub client.
func (c *AuditConsumer) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
