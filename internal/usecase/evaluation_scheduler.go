package usecase

import (
	"context"
	"sync"
	"time"

	drepo "VitalWatch/internal/domain/repository"
	applogger "VitalWatch/pkg/logger"
)

// EvaluationScheduler periodically evaluates patients that received new
// observations since the previous sweep. Patients without new data are skipped,
// so the alert log does not grow with identical re-emissions on every tick.
type EvaluationScheduler struct {
	store    drepo.ObservationStore
	engine   *AlertEngine
	metrics  drepo.Metrics
	l        *applogger.Logger
	interval time.Duration
	workers  int

	mu   sync.Mutex
	seen map[int]int // patient id -> observation count at last evaluation

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEvaluationScheduler creates a scheduler. Non-positive values fall back to 5s and 4 workers.
func NewEvaluationScheduler(store drepo.ObservationStore, engine *AlertEngine, metrics drepo.Metrics, l *applogger.Logger, interval time.Duration, workers int) *EvaluationScheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &EvaluationScheduler{
		store:    store,
		engine:   engine,
		metrics:  metrics,
		l:        l,
		interval: interval,
		workers:  workers,
		seen:     make(map[int]int),
	}
}

// Start runs sweeps every interval until ctx is cancelled or Stop is called.
func (s *EvaluationScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	s.l.Info("evaluation scheduler started",
		applogger.Duration("interval_ms", s.interval),
		applogger.Int("workers", s.workers),
	)
}

// Stop halts the ticker and waits for an in-flight sweep.
func (s *EvaluationScheduler) Stop() {
	s.mu.Lock()
	stop := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
}

// RunOnce evaluates every patient with new observations using a bounded
// worker pool and returns how many alerts the sweep raised.
func (s *EvaluationScheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	ids := s.store.SubjectIDs()
	s.metrics.RecordPatients(len(ids))

	type job struct{ id, count int }
	var due []job
	s.mu.Lock()
	for _, id := range ids {
		n := s.store.Count(id)
		if n != s.seen[id] {
			due = append(due, job{id: id, count: n})
		}
	}
	s.mu.Unlock()
	if len(due) == 0 {
		return 0
	}

	jobs := make(chan job)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		raised int
	)
	workers := s.workers
	if workers > len(due) {
		workers = len(due)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				n := len(s.engine.Evaluate(ctx, j.id))
				mu.Lock()
				raised += n
				mu.Unlock()
				s.mu.Lock()
				s.seen[j.id] = j.count
				s.mu.Unlock()
			}
		}()
	}
feed:
	for _, j := range due {
		select {
		case jobs <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	s.metrics.RecordLatency("evaluation_sweep", time.Since(start).Seconds())
	if raised > 0 {
		s.l.Info("evaluation sweep",
			applogger.Int("patients", len(due)),
			applogger.Int("alerts", raised),
			applogger.Duration("took_ms", time.Since(start)),
		)
	}
	return raised
}
