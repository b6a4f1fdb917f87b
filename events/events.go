// Package events publishes committed stock history to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/oliverbenduhn/tabletto/stock"
)

// HistoryEvent is the wire form of one stock.HistoryEntry.
type HistoryEvent struct {
	ID            string    `json:"id"`
	MedicationID  string    `json:"medication_id"`
	UserID        string    `json:"user_id"`
	Action        string    `json:"action"`
	OldStock      string    `json:"old_stock"`
	NewStock      string    `json:"new_stock"`
	Timestamp     time.Time `json:"timestamp"`
	OccurrenceDay string    `json:"occurrence_day,omitempty"`
}

func NewHistoryEvent(e stock.HistoryEntry) HistoryEvent {
	return HistoryEvent{
		ID:            string(e.ID),
		MedicationID:  string(e.MedicationID),
		UserID:        string(e.UserID),
		Action:        string(e.Action),
		OldStock:      e.OldStock.String(),
		NewStock:      e.NewStock.String(),
		Timestamp:     e.Timestamp.UTC(),
		OccurrenceDay: e.OccurrenceDay,
	}
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per history entry, keyed by medication
// id so a medication's events stay ordered within a partition.
type KafkaPublisher struct {
	Writer  MessageWriter
	Timeout time.Duration
}

// BatchTimeout bounds how long a synchronous write waits for a fuller batch.
const BatchTimeout = 10 * time.Millisecond

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: BatchTimeout,
		},
		Timeout: 10 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entries []stock.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(NewHistoryEvent(e))
		if err != nil {
			return fmt.Errorf("encode history event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.MedicationID),
			Value: value,
			Time:  e.Timestamp,
		})
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := p.Writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d history events: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, []stock.HistoryEntry) error { return nil }

var (
	_ stock.Publisher = (*KafkaPublisher)(nil)
	_ stock.Publisher = Nop{}
)
