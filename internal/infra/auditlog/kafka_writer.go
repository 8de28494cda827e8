package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sla_engine/internal/domain/audit"

	"github.com/segmentio/kafka-go"
)

const defaultWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes audit entries as JSON to a Kafka topic, keyed by entity so the
// entries of one work item stay ordered within a partition.
type KafkaWriter struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		timeout: defaultWriteTimeout,
	}
}

func (w *KafkaWriter) Write(ctx context.Context, e *audit.Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	key := e.ID
	if e.EntityType != "" {
		key = e.EntityType + ":" + strconv.FormatInt(e.EntityID, 10)
	}
	headers := []kafka.Header{
		{Key: "action", Value: []byte(e.Action)},
		{Key: "timestamp", Value: []byte(e.Timestamp.Format(time.RFC3339))},
	}
	if e.TickID != "" {
		headers = append(headers, kafka.Header{Key: "tick-id", Value: []byte(e.TickID)})
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Headers: headers}); err != nil {
		return fmt.Errorf("failed to write audit entry to kafka: %w", err)
	}
	return nil
}

func (w *KafkaWriter) Close() error {
	return w.writer.Close()
}
