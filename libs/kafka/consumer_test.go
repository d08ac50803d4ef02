package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

// fakeSession implements only what ConsumeClaim touches; other methods panic
// through the nil embedded interface.
type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type scriptedHandler struct {
	results []error
	calls   int
}

func (h *scriptedHandler) HandleMessage(context.Context, *sarama.ConsumerMessage) error {
	h.calls++
	if h.calls > len(h.results) {
		return h.results[len(h.results)-1]
	}
	return h.results[h.calls-1]
}

func consumeOne(t *testing.T, h *scriptedHandler, maxAttempts int, msg *sarama.ConsumerMessage) (*fakeSession, *stubPublisher) {
	t.Helper()
	dlq := &stubPublisher{}
	group := &consumerGroupHandler{
		handler:      h,
		logger:       slog.Default(),
		dlqPublisher: dlq,
		dlqTopic:     "router.dlq",
		retryTracker: newRetryTracker(maxAttempts, time.Minute),
	}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- msg
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := group.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	return session, dlq
}

func TestConsumeClaimOutcomes(t *testing.T) {
	transient := errors.New("database unavailable")
	cases := []struct {
		name        string
		results     []error
		maxAttempts int
		wantCalls   int
		wantReason  string
		wantAttempt int
	}{
		{name: "success", results: []error{nil}, maxAttempts: 3, wantCalls: 1},
		{name: "transient then success", results: []error{transient, transient, nil}, maxAttempts: 5, wantCalls: 3},
		{name: "permanent", results: []error{DLQ(errors.New("bad json"), "decode")}, maxAttempts: 5, wantCalls: 1, wantReason: "decode", wantAttempt: 1},
		{name: "retries exhausted", results: []error{transient}, maxAttempts: 2, wantCalls: 2, wantReason: "retries_exhausted", wantAttempt: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &scriptedHandler{results: tc.results}
			msg := &sarama.ConsumerMessage{Topic: "orders.closed", Partition: 2, Offset: 11, Key: []byte("k"), Value: []byte("{}")}
			session, dlq := consumeOne(t, h, tc.maxAttempts, msg)

			if h.calls != tc.wantCalls {
				t.Fatalf("handler calls = %d, want %d", h.calls, tc.wantCalls)
			}
			if len(session.marked) != 1 || session.marked[0] != 11 {
				t.Fatalf("marked offsets = %v, want [11]", session.marked)
			}
			if tc.wantReason == "" {
				if len(dlq.calls) != 0 {
					t.Fatalf("unexpected dead letter %+v", dlq.calls)
				}
				return
			}
			if len(dlq.calls) != 1 || dlq.calls[0].topic != "router.dlq" {
				t.Fatalf("dead letters = %+v", dlq.calls)
			}
			letter, ok := dlq.calls[0].value.(DeadLetter)
			if !ok {
				t.Fatalf("dead letter type %T", dlq.calls[0].value)
			}
			if letter.Stage != DeadLetterConsume || letter.Reason != tc.wantReason || letter.Attempts != tc.wantAttempt {
				t.Fatalf("dead letter %+v", letter)
			}
			if letter.Partition == nil || *letter.Partition != 2 || letter.Offset == nil || *letter.Offset != 11 {
				t.Fatalf("dead letter position %+v", letter)
			}
		})
	}
}

func TestConsumeClaimStopsOnCancelledSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	group := &consumerGroupHandler{
		handler:      &scriptedHandler{results: []error{errors.New("down")}},
		logger:       slog.Default(),
		retryTracker: newRetryTracker(10, time.Minute),
		backoff:      time.Second,
	}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders.closed", Offset: 3}
	close(claim.messages)

	session := &fakeSession{ctx: ctx}
	if err := group.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(session.marked) != 0 {
		t.Fatalf("unresolved message was marked: %v", session.marked)
	}
}

func TestRetryTrackerWindow(t *testing.T) {
	tracker := newRetryTracker(3, time.Minute)
	start := time.Now()
	for i, at := range []time.Duration{0, time.Second, 2 * time.Minute} {
		want := []int{1, 2, 1}[i]
		if n := tracker.record("k", start.Add(at)); n != want {
			t.Fatalf("record #%d = %d, want %d", i, n, want)
		}
	}
}

func TestClientConfigsValidate(t *testing.T) {
	for name, cfg := range map[string]*sarama.Config{
		"consumer": consumerConfig(),
		"producer": producerConfig(),
	} {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s config invalid: %v", name, err)
		}
		if !cfg.Version.IsAtLeast(sarama.V3_6_0_0) || !sarama.MaxVersion.IsAtLeast(cfg.Version) {
			t.Fatalf("%s version %s outside client support", name, cfg.Version)
		}
	}
}
