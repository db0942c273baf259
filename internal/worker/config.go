// Package worker consumes scan audit events and appends them to the audit log.
package worker

import (
	"time"
)

// ConsumerConfig holds configuration for the audit consumer.
type ConsumerConfig struct {
	// Subscription is the Pub/Sub subscription to receive from.
	Subscription string

	// MaxOutstandingMessages caps unacknowledged messages held at once.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension is how long a message lease may be extended.
	// Default: 10 minutes
	MaxExtension time.Duration

	// AppendTimeout bounds a single append to the audit log.
	// Default: 10 seconds
	AppendTimeout time.Duration
}

// DefaultConsumerConfig returns the default consumer configuration.
func DefaultConsumerConfig(subscription string) ConsumerConfig {
	return ConsumerConfig{
		Subscription:           subscription,
		MaxOutstandingMessages: 10,
		MaxExtension:           10 * time.Minute,
		AppendTimeout:          10 * time.Second,
	}
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig(c.Subscription)
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = def.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = def.MaxExtension
	}
	if c.AppendTimeout <= 0 {
		c.AppendTimeout = def.AppendTimeout
	}
	return c
}
