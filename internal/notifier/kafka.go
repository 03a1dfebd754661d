package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaBatchTimeout flushes single messages without waiting for a batch.
const kafkaBatchTimeout = 10 * time.Millisecond

// KafkaPublisher publishes with a fresh Kafka writer per message.
type KafkaPublisher struct {
	address string
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for the bootstrap broker at address.
func NewKafkaPublisher(address string, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		address: address,
		timeout: timeout,
	}
}

// Publish writes msg keyed by msg.Key and closes the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.address),
		Topic:                  msg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            1,
		BatchTimeout:           kafkaBatchTimeout,
		ReadTimeout:            p.timeout,
		WriteTimeout:           p.timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close kafka writer: %w", closeErr)
		}
	}()

	if err := writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Payload,
	}); err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", msg.Topic, err)
	}

	return nil
}
