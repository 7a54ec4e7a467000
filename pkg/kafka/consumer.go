package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	applogger "VitalWatch/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles records from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix, such as a payload that
// does not decode. The record skips the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent
// or came from a hook rejecting the record.
func IsPermanent(err error) bool {
	var pe *permanentError
	var he *HookError
	return errors.As(err, &pe) || errors.As(err, &he)
}

var errStopping = errors.New("consumer stopping")

// messageReader is the part of *kafka.Reader the consumer uses. Offsets are
// committed explicitly, once a record is handled or dead-lettered.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type delivery struct {
	topic string
	km    kafka.Message
}

// Consumer reads every registered topic in one consumer group and hands
// records to a fixed set of lanes keyed by partition.
type Consumer struct {
	l         *applogger.Logger
	cfg       *ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	hook      ConsumerHook
	metrics   *consumerMetrics

	mu       sync.Mutex
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	lanes    []chan delivery
	fetchWg  sync.WaitGroup
	laneWg   sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer validates the configuration. Readers are created on Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.NewNop()
	}

	c := &Consumer{
		l:        cfg.Logger,
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     NoopHook{},
		metrics:  newConsumerMetrics(cfg.Registerer),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			StartOffset: cfg.startOffset(),
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// WithConsumerHook sets the hook run around every handling attempt.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers handler for its topic. The first registration for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens a reader per registered topic and starts the lanes.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("kafka consumer already started")
	}
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.Background())

	perLane := c.cfg.BufferSize / c.cfg.Workers
	if perLane < 1 {
		perLane = 1
	}
	c.lanes = make([]chan delivery, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan delivery, perLane)
		c.laneWg.Add(1)
		go c.work(c.lanes[i])
	}

	// every reader exists before any fetch starts, so lanes read c.readers without locking
	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}
	for topic, r := range c.readers {
		c.fetchWg.Add(1)
		go c.fetch(topic, r)
	}
	c.l.Info("kafka consumer: started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("lanes", c.cfg.Workers),
	)
	return nil
}

// Stop stops fetching, lets the lanes drain what they already hold, then
// closes the readers. Records still waiting are not committed and will be
// delivered again to the group.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		c.fetchWg.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		done := make(chan struct{})
		go func() {
			c.laneWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for kafka lanes to drain: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Error("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Error("kafka consumer: close dead-letter writer", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.l.Info("kafka consumer: stopped")
		}
	})
	return err
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.fetchWg.Done()
	failures := 0
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.l.Warn("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		failures = 0

		lane := c.lanes[km.Partition%len(c.lanes)]
		select {
		case lane <- delivery{topic: topic, km: km}:
			c.metrics.buffered.Inc()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(lane <-chan delivery) {
	defer c.laneWg.Done()
	for d := range lane {
		c.metrics.buffered.Dec()
		c.process(d)
	}
}

func (c *Consumer) process(d delivery) {
	start := time.Now()
	attempts, err := c.handle(c.handlers[d.topic], d)
	c.metrics.latency.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.handled.WithLabelValues(d.topic, "ok").Inc()
	case errors.Is(err, errStopping):
		return
	default:
		c.l.Warn("kafka consumer: record failed",
			applogger.String("topic", d.topic),
			applogger.Int("partition", d.km.Partition),
			applogger.Int64("offset", d.km.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if c.dlq == nil {
			c.metrics.handled.WithLabelValues(d.topic, "dropped").Inc()
			break
		}
		if derr := c.deadLetter(d, attempts, err); derr != nil {
			c.metrics.handled.WithLabelValues(d.topic, "failed").Inc()
			c.l.Error("kafka consumer: write dead letter", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(derr))
			return
		}
		c.metrics.handled.WithLabelValues(d.topic, "dead_lettered").Inc()
	}
	c.commit(d)
}

// handle runs the hooks and the handler until the record succeeds, fails
// permanently, or runs out of retries. Each failed attempt reaches OnError once.
func (c *Consumer) handle(h MessageHandler, d delivery) (int, error) {
	for attempt := 1; ; attempt++ {
		ctx, km, data, err := c.hook.BeforeHandle(context.Background(), d.topic, d.km, d.km.Value)
		if err == nil {
			err = safeHandle(ctx, h, data)
			c.hook.AfterHandle(ctx, d.topic, km, data, err)
		}
		if err == nil {
			return attempt, nil
		}
		c.hook.OnError(ctx, d.topic, km, data, err)
		if IsPermanent(err) || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.ctx.Done():
			return attempt, errStopping
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(d delivery, attempts int, cause error) error {
	headers := make([]kafka.Header, 0, len(d.km.Headers)+4)
	headers = append(headers, d.km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(d.topic)},
		kafka.Header{Key: "source_partition", Value: []byte(strconv.Itoa(d.km.Partition))},
		kafka.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     d.km.Key,
		Value:   d.km.Value,
		Time:    time.Now(),
		Headers: headers,
	})
}

// commit gives the offset three tries. A lost commit only means the record is
// delivered again after a rebalance.
func (c *Consumer) commit(d delivery) {
	r := c.readers[d.topic]
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, d.km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka consumer: commit offset",
		applogger.String("topic", d.topic),
		applogger.Int64("offset", d.km.Offset),
		applogger.Error(err),
	)
}

// backoffWithJitter doubles from lo per attempt, caps at hi, and takes off up to half.
func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	if attempt < 1 {
		attempt = 1
	}
	d := hi
	if attempt < 32 {
		if exp := lo << uint(attempt-1); exp > 0 && exp < hi {
			d = exp
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

type consumerMetrics struct {
	buffered prometheus.Gauge
	handled  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// newConsumerMetrics leaves the collectors unregistered when reg is nil.
func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		buffered: f.NewGauge(prometheus.GaugeOpts{
			Name: "vitalwatch_kafka_consumer_buffered_records",
			Help: "Records fetched and waiting for a lane.",
		}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_kafka_consumer_records_total",
			Help: "Records handled, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalwatch_kafka_consumer_handle_seconds",
			Help:    "Time from lane pickup to final outcome, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}
