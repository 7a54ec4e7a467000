package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer and the dead-letter path use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Records sharing a Key keep their relative order.
type Message struct {
	Key     []byte
	Value   interface{}
	Time    time.Time
	Headers map[string]string
}

// Producer publishes JSON records keyed by patient.
type Producer struct {
	w       messageWriter
	codec   string
	metrics *producerMetrics
}

// NewProducer creates a producer backed by a kafka-go writer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	codec, _ := parseCompression(cfg.Compression)

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}
	return newProducer(w, cfg), nil
}

func newProducer(w messageWriter, cfg *ProducerConfig) *Producer {
	codec := cfg.Compression
	if codec == "" {
		codec = "none"
	}
	return &Producer{w: w, codec: codec, metrics: newProducerMetrics(cfg.Registerer)}
}

// PublishBatch writes messages to topic in a single call. If any value fails
// to encode nothing is written.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	out := make([]kafka.Message, 0, len(messages))
	size := 0
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		ts := m.Time
		if ts.IsZero() {
			ts = start
		}
		out = append(out, kafka.Message{
			Topic:   topic,
			Key:     m.Key,
			Value:   v,
			Time:    ts,
			Headers: toHeaders(m.Headers),
		})
		size += len(v)
	}

	err := p.w.WriteMessages(ctx, out...)
	p.metrics.observe(topic, p.codec, len(out), size, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d records to %s: %w", len(out), topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case json.RawMessage:
		return val, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

// toHeaders sorts by key so records carry their headers in a stable order.
func toHeaders(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hs := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(m[k])})
	}
	return hs
}

type producerMetrics struct {
	records *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// newProducerMetrics leaves the collectors unregistered when reg is nil.
func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	f := promauto.With(reg)
	return &producerMetrics{
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_kafka_producer_records_total",
			Help: "Records handed to Kafka, by topic and result.",
		}, []string{"topic", "result"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_kafka_producer_bytes_total",
			Help: "Uncompressed payload bytes written, by topic and codec.",
		}, []string{"topic", "codec"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalwatch_kafka_producer_write_seconds",
			Help:    "Time spent in one batch write.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *producerMetrics) observe(topic, codec string, records, size int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.bytes.WithLabelValues(topic, codec).Add(float64(size))
	}
	m.records.WithLabelValues(topic, result).Add(float64(records))
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
