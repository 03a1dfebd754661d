package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/ical-alarm-relay/internal/version"
)

// NATSPublisher publishes with a fresh NATS connection per message.
type NATSPublisher struct {
	url     string
	timeout time.Duration
}

// NewNATSPublisher creates a publisher for the server at address (host:port).
func NewNATSPublisher(address string, timeout time.Duration) *NATSPublisher {
	return &NATSPublisher{
		url:     "nats://" + address,
		timeout: timeout,
	}
}

// Publish connects, sends msg to the subject msg.Topic, flushes and closes.
func (p *NATSPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	nc, err := nats.Connect(
		p.url,
		nats.Name(version.Name),
		nats.Timeout(timeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return fmt.Errorf("connect to nats %s: %w", p.url, err)
	}

	defer nc.Close()

	if err := nc.Publish(msg.Topic, msg.Payload); err != nil {
		return fmt.Errorf("publish to nats subject %s: %w", msg.Topic, err)
	}

	if err := nc.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush nats subject %s: %w", msg.Topic, err)
	}

	return nil
}
