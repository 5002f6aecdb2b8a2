package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/hamster/pkg/log"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the sink needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards every broker event to a Kafka topic as JSON
type KafkaSink struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       zerolog.Logger

	sub    Subscriber
	broker *Broker
	doneCh chan struct{}
}

// NewKafkaSink creates a sink writing to topic on the given brokers
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaSink(writer), nil
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{
		writer:       w,
		writeTimeout: 5 * time.Second,
		logger:       log.WithComponent("kafka-sink"),
		doneCh:       make(chan struct{}),
	}
}

// Start subscribes to broker and forwards events until Stop
func (k *KafkaSink) Start(broker *Broker) {
	k.broker = broker
	k.sub = broker.Subscribe()
	go k.run()
}

// Stop unsubscribes, waits for the forwarding loop and closes the writer
func (k *KafkaSink) Stop() error {
	if k.broker != nil {
		k.broker.Unsubscribe(k.sub)
		<-k.doneCh
	}
	return k.writer.Close()
}

func (k *KafkaSink) run() {
	defer close(k.doneCh)

	for event := range k.sub {
		if err := k.write(event); err != nil {
			k.logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Msg("Failed to forward event to kafka")
		}
	}
}

func (k *KafkaSink) write(event *Event) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.writeTimeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, msg)
}

// Message encodes an event as a Kafka message keyed by event type
func Message(event *Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	return kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}, nil
}
