package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
	"VitalWatch/internal/service/ratelimit"
	applogger "VitalWatch/pkg/logger"
)

// ErrThrottled is returned when a subject exceeds its ingest rate.
var ErrThrottled = errors.New("ingest throttled")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, o *models.Observation) error
}

// IngestPipeline sits between a feed and the store.
// It validates and throttles per patient before handing readings to the processor.
type IngestPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	l         *applogger.Logger
	limiter   *ratelimit.Limiter
	burst     float64
	rate      float64
	bucketTTL time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

type PipelineOption func(*IngestPipeline)

// WithRate sets the per-patient token bucket. A zero burst disables throttling.
func WithRate(perSecond float64, burst int) PipelineOption {
	return func(p *IngestPipeline) {
		p.rate = perSecond
		p.burst = float64(burst)
	}
}

// WithBucketTTL sets how long a patient's throttle bucket survives without traffic.
func WithBucketTTL(d time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if d > 0 {
			p.bucketTTL = d
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *IngestPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:      proc,
		metrics:   metrics,
		l:         applogger.NewNop(),
		limiter:   ratelimit.New(),
		burst:     50,
		rate:      20,
		bucketTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the background sweep that forgets idle patients' throttle buckets.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stopCh, p.done
	p.mu.Unlock()

	go p.sweep(ctx, stop, done)
}

func (p *IngestPipeline) sweep(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.bucketTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.limiter.Prune(p.bucketTTL); n > 0 {
				p.l.Debug("idle throttle buckets pruned",
					applogger.Int("pruned", n),
					applogger.Int("tracked", p.limiter.Len()),
				)
			}
		}
	}
}

// Stop stops the background sweep and waits for it to exit.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()
	<-done
}

// Tracked reports how many patients hold a throttle bucket.
func (p *IngestPipeline) Tracked() int { return p.limiter.Len() }

// Process validates, throttles, and forwards the observation.
func (p *IngestPipeline) Process(ctx context.Context, o *models.Observation) error {
	start := time.Now()
	if err := validateObservation(o); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.limiter.Allow(strconv.Itoa(o.SubjectID), p.burst, p.rate) {
		p.metrics.RecordError("pipeline_throttle")
		return fmt.Errorf("patient %d: %w", o.SubjectID, ErrThrottled)
	}
	if err := p.proc.Process(ctx, o); err != nil {
		p.metrics.RecordError("pipeline_process")
		return err
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateObservation(o *models.Observation) error {
	if o == nil {
		return fmt.Errorf("observation nil")
	}
	if _, err := models.ParseCategory(string(o.Category)); err != nil {
		return err
	}
	if math.IsNaN(o.Value) {
		return fmt.Errorf("value is NaN")
	}
	return nil
}
