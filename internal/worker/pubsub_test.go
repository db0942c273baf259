package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/resilience"
	"github.com/rollcall/rollcall/internal/worker"
)

type flakyRepo struct {
	failures atomic.Int32
	inner    *attendance.InMemoryAuditRepository
}

func (r *flakyRepo) Append(ctx context.Context, evt attendance.AuditEvent) error {
	if r.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return r.inner.Append(ctx, evt)
}

func fastGuard(name string) *resilience.Guard {
	cfg := resilience.DefaultGuardConfig(name)
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return resilience.NewGuard(cfg)
}

func auditMessage(t *testing.T, id string) *pubsub.Message {
	t.Helper()
	msg, err := attendance.EncodeAuditMessage(attendance.AuditEvent{
		ID:            id,
		SessionID:     "ses_lecture",
		ParticipantID: "stu_1",
		Outcome:       presence.OutcomeMarked,
	})
	require.NoError(t, err)
	msg.ID = "msg-" + id
	return msg
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := worker.DefaultConsumerConfig("scan-audit-worker")

	assert.Equal(t, "scan-audit-worker", cfg.Subscription)
	assert.Equal(t, 10, cfg.MaxOutstandingMessages)
	assert.Equal(t, 10*time.Minute, cfg.MaxExtension)
	assert.Equal(t, 10*time.Second, cfg.AppendTimeout)
}

func TestAuditConsumer_Process(t *testing.T) {
	tests := []struct {
		name     string
		msg      func(t *testing.T) *pubsub.Message
		want     worker.Disposition
		appended int
	}{
		{
			name:     "audit event",
			msg:      func(t *testing.T) *pubsub.Message { return auditMessage(t, "evt-1") },
			want:     worker.Ack,
			appended: 1,
		},
		{
			name: "foreign type",
			msg: func(*testing.T) *pubsub.Message {
				return &pubsub.Message{Data: []byte(`{"job_type":"provider_refresh"}`), Attributes: map[string]string{"type": "refresh"}}
			},
			want: worker.Ack,
		},
		{
			name: "malformed payload",
			msg: func(*testing.T) *pubsub.Message {
				return &pubsub.Message{Data: []byte("{"), Attributes: map[string]string{"type": attendance.AuditMessageType}}
			},
			want: worker.Ack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := attendance.NewInMemoryAuditRepository()
			c := worker.NewAuditConsumer(worker.AuditConsumerConfig{
				Repository: repo,
				Guard:      fastGuard("audit-log"),
				Logger:     zerolog.Nop(),
			})

			assert.Equal(t, tt.want, c.Process(context.Background(), tt.msg(t)))
			assert.Len(t, repo.Events(), tt.appended)

			snap := c.Stats().Snapshot()
			assert.Equal(t, int64(1), snap.Received)
			assert.Equal(t, int64(tt.appended), snap.Appended)
			assert.False(t, snap.LastMessage.IsZero())
		})
	}
}

func TestAuditConsumer_RedeliveryIsIdempotent(t *testing.T) {
	repo := attendance.NewInMemoryAuditRepository()
	c := worker.NewAuditConsumer(worker.AuditConsumerConfig{Repository: repo, Guard: fastGuard("audit-log"), Logger: zerolog.Nop()})

	for range 3 {
		assert.Equal(t, worker.Ack, c.Process(context.Background(), auditMessage(t, "evt-1")))
	}
	assert.Len(t, repo.Events(), 1)
}

func TestAuditConsumer_RetriesTransientFailures(t *testing.T) {
	repo := &flakyRepo{inner: attendance.NewInMemoryAuditRepository()}
	repo.failures.Store(2)
	c := worker.NewAuditConsumer(worker.AuditConsumerConfig{Repository: repo, Guard: fastGuard("audit-log"), Logger: zerolog.Nop()})

	assert.Equal(t, worker.Ack, c.Process(context.Background(), auditMessage(t, "evt-1")))
	assert.Len(t, repo.inner.Events(), 1)
}

func TestAuditConsumer_NacksWhenAppendKeepsFailing(t *testing.T) {
	repo := &flakyRepo{inner: attendance.NewInMemoryAuditRepository()}
	repo.failures.Store(100)
	c := worker.NewAuditConsumer(worker.AuditConsumerConfig{Repository: repo, Guard: fastGuard("audit-log"), Logger: zerolog.Nop()})

	assert.Equal(t, worker.Nack, c.Process(context.Background(), auditMessage(t, "evt-1")))
	assert.Equal(t, int64(1), c.Stats().Snapshot().Failed)
	assert.Empty(t, repo.inner.Events())
}

func TestAuditConsumer_StartWithoutClient(t *testing.T) {
	c := worker.NewAuditConsumer(worker.AuditConsumerConfig{Repository: attendance.NewInMemoryAuditRepository(), Logger: zerolog.Nop()})

	assert.Error(t, c.Start(context.Background()))
	assert.NoError(t, c.Close())
}

func TestAuditConsumer_Process_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	repo := &flakyRepo{inner: attendance.NewInMemoryAuditRepository()}
	repo.failures.Store(100)
	c := worker.NewAuditConsumer(worker.AuditConsumerConfig{Repository: repo, Guard: fastGuard("audit-log"), Logger: zerolog.Nop()})

	c.Process(context.Background(), auditMessage(t, "evt-1"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "audit.process", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
