package attendance

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"

	"github.com/rollcall/rollcall/internal/resilience"
)

// AuditMessageType is the "type" attribute of audit messages.
const AuditMessageType = "scan_audit"

// AuditPublisher emits audit events.
type AuditPublisher interface {
	Publish(ctx context.Context, evt AuditEvent) error
}

// NopPublisher discards audit events.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, AuditEvent) error { return nil }

// PubSubPublisher publishes audit events to a Pub/Sub topic through a guard.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
	guard     *resilience.Guard
}

// NewPubSubPublisher creates a publisher for topic on client. A nil guard
// gets resilience defaults.
func NewPubSubPublisher(client *pubsub.Client, topic string, guard *resilience.Guard) *PubSubPublisher {
	if guard == nil {
		guard = resilience.NewGuard(resilience.DefaultGuardConfig("audit-publisher"))
	}
	return &PubSubPublisher{
		publisher: client.Publisher(topic),
		guard:     guard,
	}
}

// Publish sends evt and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, evt AuditEvent) error {
	msg, err := EncodeAuditMessage(evt)
	if err != nil {
		return resilience.Permanent(err)
	}

	return p.guard.Do(ctx, func(ctx context.Context) error {
		_, err := p.publisher.Publish(ctx, msg).Get(ctx)
		return err
	})
}

// Stop flushes pending messages and releases the publisher.
func (p *PubSubPublisher) Stop() {
	p.publisher.Stop()
}

// EncodeAuditMessage builds the Pub/Sub message for evt.
func EncodeAuditMessage(evt AuditEvent) (*pubsub.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":       AuditMessageType,
			"session_id": evt.SessionID,
			"outcome":    string(evt.Outcome),
		},
	}, nil
}

// DecodeAuditEvent parses the payload of an audit message.
func DecodeAuditEvent(data []byte) (AuditEvent, error) {
	var evt AuditEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return AuditEvent{}, fmt.Errorf("decode audit event: %w", err)
	}
	if evt.ID == "" {
		return AuditEvent{}, fmt.Errorf("decode audit event: missing id")
	}
	return evt, nil
}

var (
	_ AuditPublisher = NopPublisher{}
	_ AuditPublisher = (*PubSubPublisher)(nil)
)
