package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// ProducerMetrics counts publishes by topic and outcome. A nil value records
// nothing.
type ProducerMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
}

func NewProducerMetrics(reg prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Subsystem: "kafka",
			Name:      "publish_total",
			Help:      "Events handed to the Kafka producer, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		PublishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "router",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Time until the broker acknowledged a publish.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"topic"}),
	}
	reg.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

func (m *ProducerMetrics) observe(topic string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.PublishTotal.WithLabelValues(topic, outcome).Inc()
	m.PublishLatency.WithLabelValues(topic).Observe(took.Seconds())
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error)
	Close() error
}

type enveloped interface {
	Header() Envelope
}

type SyncProducer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
	metrics  *ProducerMetrics
}

// NewSyncProducer connects an idempotent producer that waits for all
// in-sync replicas.
func NewSyncProducer(brokers []string, logger *slog.Logger, metrics *ProducerMetrics) (*SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka: new producer: %w", err)
	}
	return newSyncProducer(producer, logger, metrics), nil
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "fee-router"
	cfg.Version = sarama.V3_6_0_0
	// Idempotence needs acks from all replicas and one in-flight request.
	cfg.Net.MaxOpenRequests = 1
	p := &cfg.Producer
	p.Idempotent = true
	p.RequiredAcks = sarama.WaitForAll
	p.Partitioner = sarama.NewHashPartitioner
	p.Return.Successes = true
	p.Return.Errors = true
	p.Retry.Max = 5
	p.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

func newSyncProducer(producer sarama.SyncProducer, logger *slog.Logger, metrics *ProducerMetrics) *SyncProducer {
	return &SyncProducer{producer: producer, logger: logger, metrics: metrics}
}

// PublishJSON sends value keyed by key, so all events of one balance manager
// land on the same partition in order. Envelope fields and the trace context
// of ctx travel as record headers.
func (p *SyncProducer) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return 0, 0, fmt.Errorf("kafka: encode %s event: %w", topic, err)
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: messageHeaders(ctx, value),
	})
	p.metrics.observe(topic, time.Since(start), err)
	if err != nil {
		p.logger.Error("kafka publish failed", "topic", topic, "key", key, "error", err)
		return 0, 0, fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}
	return partition, offset, nil
}

func (p *SyncProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func messageHeaders(ctx context.Context, value any) []sarama.RecordHeader {
	carrier := headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if ev, ok := value.(enveloped); ok {
		env := ev.Header()
		carrier.Set("event_id", env.EventID)
		carrier.Set("event_type", env.EventType)
		carrier.Set("event_version", strconv.Itoa(env.EventVersion))
	}
	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return headers
}

// headerCarrier adapts record headers to the otel propagation carrier.
type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string { return h[key] }

func (h headerCarrier) Set(key, value string) {
	if value != "" {
		h[key] = value
	}
}

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
