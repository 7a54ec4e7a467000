package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecord struct {
	PatientID int    `json:"patient_id"`
	Condition string `json:"condition"`
}

func TestProducer_PublishBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &fakeWriter{}
	p := newProducer(w, &ProducerConfig{Compression: "snappy", Registerer: reg})

	at := time.UnixMilli(1_700_000_000_000)
	err := p.PublishBatch(context.Background(), "vitals.alerts", []Message{
		{Key: []byte("3"), Value: alertRecord{3, "High Heart Rate"}, Time: at, Headers: map[string]string{"severity": "High", "condition": "High Heart Rate"}},
		{Key: []byte("4"), Value: `{"raw":true}`},
	})
	require.NoError(t, err)

	out := w.written()
	require.Len(t, out, 2)
	assert.Equal(t, "vitals.alerts", out[0].Topic)
	assert.Equal(t, []byte("3"), out[0].Key)
	assert.JSONEq(t, `{"patient_id":3,"condition":"High Heart Rate"}`, string(out[0].Value))
	assert.True(t, at.Equal(out[0].Time))
	assert.Equal(t, []kafka.Header{
		{Key: "condition", Value: []byte("High Heart Rate")},
		{Key: "severity", Value: []byte("High")},
	}, out[0].Headers)

	assert.Equal(t, `{"raw":true}`, string(out[1].Value))
	assert.False(t, out[1].Time.IsZero(), "records without a time are stamped")
	assert.Nil(t, out[1].Headers)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.records.WithLabelValues("vitals.alerts", "ok")))
	size := float64(len(out[0].Value) + len(out[1].Value))
	assert.Equal(t, size, testutil.ToFloat64(p.metrics.bytes.WithLabelValues("vitals.alerts", "snappy")))
}

func TestProducer_PublishBatchFailures(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, &ProducerConfig{})

	require.NoError(t, p.PublishBatch(context.Background(), "t", nil))

	err := p.PublishBatch(context.Background(), "t", []Message{{Value: 1}, {Value: make(chan int)}})
	assert.ErrorContains(t, err, "message 1: encode value")
	assert.Empty(t, w.written(), "nothing is written when one record cannot be encoded")

	w.err = errors.New("leader not available")
	err = p.PublishBatch(context.Background(), "t", []Message{{Value: 1}})
	assert.EqualError(t, err, "write 1 records to t: leader not available")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.records.WithLabelValues("t", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.metrics.bytes.WithLabelValues("t", "none")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer(t *testing.T) {
	tests := []struct {
		name string
		opts []ProducerOption
		err  string
	}{
		{"no brokers", nil, "brokers are required"},
		{"bad acks", []ProducerOption{WithBrokers([]string{"b"}), WithRequiredAcks(2)}, "required acks 2: want -1, 0 or 1"},
		{"bad codec", []ProducerOption{WithBrokers([]string{"b"}), WithCompression("brotli")}, `unknown compression "brotli"`},
		{"no attempts", []ProducerOption{WithBrokers([]string{"b"}), WithMaxAttempts(0)}, "max attempts 0: want at least 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewProducer(tc.opts...)
			assert.EqualError(t, err, tc.err)
		})
	}

	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithCompression("none"),
		WithBatching(10, 0, 5*time.Millisecond),
		WithTimeouts(time.Second, time.Second),
		WithAsync(true),
	)
	require.NoError(t, err)
	kw, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.IsType(t, &kafka.Hash{}, kw.Balancer)
	assert.Equal(t, 10, kw.BatchSize)
	assert.Equal(t, int64(1<<20), kw.BatchBytes)
	assert.Equal(t, 5*time.Millisecond, kw.BatchTimeout)
	assert.Equal(t, "none", p.codec)
	assert.NoError(t, p.Close())
}
