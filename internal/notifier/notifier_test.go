package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
)

// recordingPublisher remembers every message.
type recordingPublisher struct {
	messages []Message
	err      error
}

func (r *recordingPublisher) Publish(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}

	r.messages = append(r.messages, msg)

	return nil
}

// TestNotifier_Notify checks the payload and addressing.
func TestNotifier_Notify(t *testing.T) {
	t.Parallel()

	publisher := new(recordingPublisher)
	n := NewNotifier(publisher, "home/alarms")

	record := alarm.Record{
		UID:                "dentist",
		Summary:            "Dentist",
		Action:             alarm.DefaultAction,
		AlarmSince:         "2024-03-01 09:30:00+00:00",
		TimeLeftToEvent:    "0:29:45",
		SecondsLeftToEvent: 1785,
		EventStart:         "2024-03-01 10:00:00+00:00",
	}

	require.NoError(t, n.Notify(context.Background(), record))
	require.Len(t, publisher.messages, 1)

	msg := publisher.messages[0]
	require.Equal(t, "home/alarms", msg.Topic)
	require.Equal(t, "dentist", msg.Key)

	var decoded alarm.Record
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	require.Equal(t, record, decoded)
}

// TestNotifier_NotifyError checks that publisher failures are wrapped.
func TestNotifier_NotifyError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker gone")
	n := NewNotifier(&recordingPublisher{err: boom}, "t")

	err := n.Notify(context.Background(), alarm.Record{UID: "x"})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "x")
}

// TestNew selects publishers per transport.
func TestNew(t *testing.T) {
	t.Parallel()

	publisher, err := New(Options{Transport: TransportMQTT, Host: "broker"})
	require.NoError(t, err)
	require.IsType(t, new(MQTTPublisher), publisher)
	require.Equal(t, "broker:1883", publisher.(*MQTTPublisher).address)
	require.Equal(t, DefaultTimeout, publisher.(*MQTTPublisher).timeout)

	publisher, err = New(Options{Transport: TransportNATS, Host: "nats.local:5222", Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "nats://nats.local:5222", publisher.(*NATSPublisher).url)

	publisher, err = New(Options{Transport: TransportKafka, Host: "::1"})
	require.NoError(t, err)
	require.Equal(t, "[::1]:9092", publisher.(*KafkaPublisher).address)

	publisher, err = New(Options{Transport: TransportNone})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), Message{Topic: "t", Payload: []byte("{}")}))

	_, err = New(Options{Transport: "smoke-signals"})
	require.ErrorIs(t, err, ErrUnknownTransport)
}

// TestPublishers_UnreachableBroker checks that connection failures surface as errors.
func TestPublishers_UnreachableBroker(t *testing.T) {
	t.Parallel()

	// Port 1 on loopback refuses connections.
	const address = "127.0.0.1:1"

	publishers := map[string]Publisher{
		TransportMQTT:  NewMQTTPublisher(address, 2*time.Second),
		TransportNATS:  NewNATSPublisher(address, 2*time.Second),
		TransportKafka: NewKafkaPublisher(address, 2*time.Second),
	}

	for name, publisher := range publishers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := publisher.Publish(ctx, Message{Topic: "alarms", Key: "k", Payload: []byte("{}")})
			require.Error(t, err)
		})
	}
}

// TestWithDefaultPort covers host forms.
func TestWithDefaultPort(t *testing.T) {
	t.Parallel()

	require.Equal(t, "localhost:1883", withDefaultPort("localhost", DefaultMQTTPort))
	require.Equal(t, "localhost:1884", withDefaultPort("localhost:1884", DefaultMQTTPort))
	require.Equal(t, "[fe80::1]:4222", withDefaultPort("fe80::1", DefaultNATSPort))
}
