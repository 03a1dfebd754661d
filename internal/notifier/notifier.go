package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
	"github.com/oshokin/ical-alarm-relay/internal/logger"
)

// Transport names accepted by New.
const (
	TransportMQTT  = "mqtt"
	TransportNATS  = "nats"
	TransportKafka = "kafka"
	TransportNone  = "none"
)

// Default broker ports per transport.
const (
	DefaultMQTTPort  = 1883
	DefaultNATSPort  = 4222
	DefaultKafkaPort = 9092
)

// DefaultTimeout bounds connecting and publishing when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// ErrUnknownTransport is returned by New for unsupported transports.
var ErrUnknownTransport = errors.New("unknown transport")

// Message is one payload addressed to a topic.
type Message struct {
	// Topic is the MQTT topic, NATS subject or Kafka topic.
	Topic string
	// Key partitions the message where the transport supports it.
	Key string
	// Payload is the encoded body.
	Payload []byte
}

// Publisher sends a single message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Options selects and configures a Publisher.
type Options struct {
	// Transport is one of the Transport* names.
	Transport string
	// Host is the broker host, with or without a port.
	Host string
	// Timeout bounds connecting and publishing.
	Timeout time.Duration
}

// New returns the publisher for opts.Transport.
//
//nolint:ireturn // The transport is chosen at runtime.
func New(opts Options) (Publisher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	switch opts.Transport {
	case TransportMQTT, "":
		return NewMQTTPublisher(withDefaultPort(opts.Host, DefaultMQTTPort), opts.Timeout), nil
	case TransportNATS:
		return NewNATSPublisher(withDefaultPort(opts.Host, DefaultNATSPort), opts.Timeout), nil
	case TransportKafka:
		return NewKafkaPublisher(withDefaultPort(opts.Host, DefaultKafkaPort), opts.Timeout), nil
	case TransportNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, opts.Transport)
	}
}

// Notifier publishes alarm records to one topic.
type Notifier struct {
	publisher Publisher
	topic     string
}

// NewNotifier creates a Notifier publishing to topic through publisher.
func NewNotifier(publisher Publisher, topic string) *Notifier {
	return &Notifier{
		publisher: publisher,
		topic:     topic,
	}
}

// Notify publishes record as JSON.
func (n *Notifier) Notify(ctx context.Context, record alarm.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode alarm %s: %w", record.UID, err)
	}

	msg := Message{
		Topic:   n.topic,
		Key:     record.UID,
		Payload: payload,
	}

	if err := n.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish alarm %s: %w", record.UID, err)
	}

	logger.DebugKV(ctx, "Alarm published", "uid", record.UID, "topic", n.topic)

	return nil
}

// Nop logs messages instead of sending them.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(ctx context.Context, msg Message) error {
	logger.InfoKV(ctx, "Dry run, message not sent", "topic", msg.Topic, "payload", string(msg.Payload))

	return nil
}

// withDefaultPort appends port to host unless host already carries one.
func withDefaultPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}
