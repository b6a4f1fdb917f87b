package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliverbenduhn/tabletto/events"
	"github.com/oliverbenduhn/tabletto/stock"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func entry(id string, action stock.Action) stock.HistoryEntry {
	return stock.HistoryEntry{
		ID:            stock.HistoryID(id),
		MedicationID:  "med-1",
		UserID:        "user-1",
		Action:        action,
		OldStock:      decimal.RequireFromString("10"),
		NewStock:      decimal.RequireFromString("8.5"),
		Timestamp:     time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC),
		OccurrenceDay: "2026-06-15",
	}
}

func TestKafkaPublisher_OneMessagePerEntry(t *testing.T) {
	// GIVEN: a morning and a noon deduction
	w := &fakeWriter{}
	p := &events.KafkaPublisher{Writer: w, Timeout: time.Second}

	// WHEN: published
	err := p.Publish(context.Background(), []stock.HistoryEntry{
		entry("h1", stock.ActionAutoDeductionMorning),
		entry("h2", stock.ActionAutoDeductionNoon),
	})

	// THEN: two messages keyed by medication, decimals as strings
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("med-1"), w.msgs[0].Key)

	var ev events.HistoryEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &ev))
	assert.Equal(t, "h2", ev.ID)
	assert.Equal(t, "auto_deduction_noon", ev.Action)
	assert.Equal(t, "8.5", ev.NewStock)
	assert.Equal(t, "2026-06-15", ev.OccurrenceDay)
}

func TestKafkaPublisher_WriteError_Wrapped(t *testing.T) {
	broker := errors.New("leader not available")
	p := &events.KafkaPublisher{Writer: &fakeWriter{err: broker}}

	err := p.Publish(context.Background(), []stock.HistoryEntry{entry("h1", stock.ActionAddPackage)})

	assert.ErrorIs(t, err, broker)
}

func TestKafkaPublisher_NothingToPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &events.KafkaPublisher{Writer: w}

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Empty(t, w.msgs)
}

func TestNewKafkaPublisher_WriterConfig(t *testing.T) {
	p := events.NewKafkaPublisher([]string{"localhost:9092"}, "stock-history")

	w, ok := p.Writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "stock-history", w.Topic)
	assert.Equal(t, events.BatchTimeout, w.BatchTimeout)
	assert.LessOrEqual(t, w.BatchTimeout, 50*time.Millisecond)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
