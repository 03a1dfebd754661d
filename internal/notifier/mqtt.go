package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/oshokin/ical-alarm-relay/internal/version"
)

const (
	// mqttQoS is "at most once".
	mqttQoS = 0
	// mqttQuiesce is how long Disconnect waits for in-flight work, in milliseconds.
	mqttQuiesce = 250
)

// ErrTimeout is returned when a broker does not answer in time.
var ErrTimeout = errors.New("broker timeout")

// MQTTPublisher publishes with a fresh MQTT session per message.
type MQTTPublisher struct {
	address string
	timeout time.Duration
}

// NewMQTTPublisher creates a publisher for the broker at address (host:port).
func NewMQTTPublisher(address string, timeout time.Duration) *MQTTPublisher {
	return &MQTTPublisher{
		address: address,
		timeout: timeout,
	}
}

// Publish connects, sends msg without the retain flag and disconnects.
func (p *MQTTPublisher) Publish(ctx context.Context, msg Message) error {
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + p.address).
		SetClientID(version.Name + "-" + uuid.NewString()).
		SetConnectTimeout(p.timeout).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	client := mqtt.NewClient(opts)

	if err := wait(ctx, client.Connect(), p.timeout); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", p.address, err)
	}

	defer client.Disconnect(mqttQuiesce)

	if err := wait(ctx, client.Publish(msg.Topic, mqttQoS, false, msg.Payload), p.timeout); err != nil {
		return fmt.Errorf("publish to mqtt topic %s: %w", msg.Topic, err)
	}

	return nil
}

// wait blocks until token completes, timeout passes or ctx is done.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
