package kafka

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// DLQError marks a handler failure as permanent. The consumer dead-letters
// the message without retrying it.
type DLQError struct {
	Err    error
	Reason string
}

func (e *DLQError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *DLQError) Unwrap() error { return e.Err }

// DLQ wraps err as permanent. A nil err stays nil.
func DLQ(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &DLQError{Err: err, Reason: reason}
}

const (
	DeadLetterConsume = "consume"
	DeadLetterPublish = "publish"
)

// DeadLetter is written to the dead letter topic for consumed messages that
// could not be handled and for events that could not be published.
// Partition and Offset are only set for consumed messages.
type DeadLetter struct {
	Stage         string    `json:"stage"`
	OriginalTopic string    `json:"original_topic"`
	Partition     *int32    `json:"partition,omitempty"`
	Offset        *int64    `json:"offset,omitempty"`
	Key           string    `json:"key,omitempty"`
	Error         string    `json:"error"`
	Reason        string    `json:"reason,omitempty"`
	Attempts      int       `json:"attempts"`
	Payload       string    `json:"payload_base64"`
	Timestamp     time.Time `json:"timestamp"`
}

func consumedDeadLetter(msg *sarama.ConsumerMessage, err *DLQError, attempts int) DeadLetter {
	partition, offset := msg.Partition, msg.Offset
	dl := DeadLetter{
		Stage:         DeadLetterConsume,
		OriginalTopic: msg.Topic,
		Partition:     &partition,
		Offset:        &offset,
		Key:           string(msg.Key),
		Attempts:      attempts,
		Payload:       base64.StdEncoding.EncodeToString(msg.Value),
		Timestamp:     time.Now().UTC(),
	}
	if err != nil {
		dl.Reason = err.Reason
		if err.Err != nil {
			dl.Error = err.Err.Error()
		}
	}
	return dl
}

func publishedDeadLetter(topic, key string, value any, err error) DeadLetter {
	raw, marshalErr := json.Marshal(value)
	if marshalErr != nil {
		raw = []byte(fmt.Sprintf("%v", value))
	}
	dl := DeadLetter{
		Stage:         DeadLetterPublish,
		OriginalTopic: topic,
		Key:           key,
		Reason:        "publish_failed",
		Attempts:      1,
		Payload:       base64.StdEncoding.EncodeToString(raw),
		Timestamp:     time.Now().UTC(),
	}
	if err != nil {
		dl.Error = err.Error()
	}
	return dl
}

// DLQPublisher forwards events to primary and copies the ones primary
// rejects to the dead letter topic. The original error is still returned.
type DLQPublisher struct {
	primary  Publisher
	dlq      Publisher
	dlqTopic string
	logger   *slog.Logger
}

func NewDLQPublisher(primary Publisher, dlq Publisher, dlqTopic string, logger *slog.Logger) *DLQPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQPublisher{primary: primary, dlq: dlq, dlqTopic: dlqTopic, logger: logger}
}

func (p *DLQPublisher) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	if p == nil || p.primary == nil {
		return 0, 0, fmt.Errorf("kafka producer not configured")
	}
	partition, offset, err := p.primary.PublishJSON(ctx, topic, key, value)
	if err == nil || p.dlq == nil || p.dlqTopic == "" {
		return partition, offset, err
	}
	if _, _, dlqErr := p.dlq.PublishJSON(ctx, p.dlqTopic, key, publishedDeadLetter(topic, key, value, err)); dlqErr != nil {
		p.logger.Error("publish dlq failed", "topic", p.dlqTopic, "original_topic", topic, "error", dlqErr)
	}
	return partition, offset, err
}

func (p *DLQPublisher) Close() error {
	if p == nil || p.primary == nil {
		return nil
	}
	return p.primary.Close()
}
