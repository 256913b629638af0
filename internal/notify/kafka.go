package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// SnapshotWritten announces a new snapshot file to downstream consumers.
type SnapshotWritten struct {
	RunID     string    `json:"run_id"`
	Feed      string    `json:"feed"`
	Direction string    `json:"direction"`
	Path      string    `json:"path"`
	Records   int       `json:"records"`
	WrittenAt time.Time `json:"written_at"`
}

// Key groups events of one feed and direction on the same partition.
func (e SnapshotWritten) Key() string {
	return e.Feed + "/" + e.Direction
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes SnapshotWritten events to one topic.
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) Publish(ctx context.Context, event SnapshotWritten) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  event.WrittenAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
