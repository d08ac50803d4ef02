package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	topic string
	key   string
	value any
}

func (s *stubPublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, publishCall{topic: topic, key: key, value: value})
	s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	return 0, 0, nil
}

func (s *stubPublisher) Close() error { return nil }

func TestDLQPublisherPublishesOnError(t *testing.T) {
	primary := &stubPublisher{err: errors.New("publish failed")}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "dead_letter", slog.Default())

	_, _, err := publisher.PublishJSON(context.Background(), "fees.events", "key-1", map[string]string{"id": "1"})
	if err == nil {
		t.Fatalf("expected publish error")
	}
	if len(dlq.calls) != 1 {
		t.Fatalf("expected dlq publish, got %d", len(dlq.calls))
	}
	if dlq.calls[0].topic != "dead_letter" {
		t.Fatalf("expected dlq topic, got %s", dlq.calls[0].topic)
	}
	payload, ok := dlq.calls[0].value.(DeadLetter)
	if !ok {
		t.Fatalf("expected DeadLetter, got %T", dlq.calls[0].value)
	}
	if payload.OriginalTopic != "fees.events" || payload.Stage != DeadLetterPublish {
		t.Fatalf("unexpected dead letter %+v", payload)
	}
	if payload.Error == "" || payload.Partition != nil {
		t.Fatalf("expected error and no partition in dead letter, got %+v", payload)
	}
}

func TestDLQPublisherSkipsOnSuccess(t *testing.T) {
	primary := &stubPublisher{}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "dead_letter", slog.Default())

	if _, _, err := publisher.PublishJSON(context.Background(), "fees.events", "key-1", map[string]string{"id": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dlq.calls) != 0 {
		t.Fatalf("expected no dlq publish, got %d", len(dlq.calls))
	}
}

type testEvent struct {
	Envelope
	OrderID string `json:"order_id"`
}

func TestSyncProducerSetsEnvelopeHeaders(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers["event_type"] != "orders.closed" || headers["event_version"] != "1" || headers["event_id"] == "" {
			return fmt.Errorf("unexpected headers %v", headers)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "bm-1" {
			return fmt.Errorf("unexpected key %s", key)
		}
		return nil
	})
	producer := newSyncProducer(mock, slog.Default(), nil)
	defer producer.Close()

	env, err := NewEnvelope("orders.closed", 1, "SUI_USDC", "7")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if _, _, err := producer.PublishJSON(context.Background(), "orders.closed", "bm-1", testEvent{Envelope: env, OrderID: "7"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestSyncProducerHonoursCancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	producer := newSyncProducer(mock, slog.Default(), nil)
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := producer.PublishJSON(ctx, "fees.events", "k", map[string]string{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestSyncProducerRecordsOutcomes(t *testing.T) {
	metrics := NewProducerMetrics(prometheus.NewRegistry())
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	producer := newSyncProducer(mock, slog.Default(), metrics)
	defer producer.Close()

	ctx := context.Background()
	if _, _, err := producer.PublishJSON(ctx, "fees.events", "k", map[string]int{"n": 1}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if _, _, err := producer.PublishJSON(ctx, "fees.events", "k", map[string]int{"n": 2}); !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("expected broker error, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("fees.events", "ok")); got != 1 {
		t.Fatalf("ok publishes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("fees.events", "failed")); got != 1 {
		t.Fatalf("failed publishes = %v, want 1", got)
	}
}

func TestNewEnvelopeStableIDs(t *testing.T) {
	a, err := NewEnvelope("fees.settled", 1, "pool", "bm", "1")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	b, _ := NewEnvelope("fees.settled", 1, "pool", "bm", "1")
	if a.EventID != b.EventID {
		t.Fatalf("expected equal ids, got %s and %s", a.EventID, b.EventID)
	}
	c, _ := NewEnvelope("fees.claimed", 1, "pool", "bm", "1")
	if c.EventID == a.EventID {
		t.Fatalf("expected event type to change the id")
	}
	r1, _ := NewEnvelope("fees.claim_batch", 1)
	r2, _ := NewEnvelope("fees.claim_batch", 1)
	if r1.EventID == r2.EventID {
		t.Fatalf("expected random ids without parts")
	}
	if _, err := NewEnvelope("", 1); err == nil {
		t.Fatalf("expected error for empty type")
	}
	if _, err := NewEnvelope("x", 0); err == nil {
		t.Fatalf("expected error for version 0")
	}
}
