package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
	domsvc "VitalWatch/internal/domain/service"
	applogger "VitalWatch/pkg/logger"
	"VitalWatch/pkg/metrics"
)

// AlertEngine runs the registered rules against a patient's history and keeps
// the resulting alerts in an in-process log. Evaluating unchanged data twice
// appends the same alerts twice; the log is evidence, not current state.
type AlertEngine struct {
	store    domrepo.ObservationStore
	rules    []domsvc.Rule
	notifier domrepo.AlertNotifier
	metrics  domrepo.Metrics
	l        *applogger.Logger
	notifyTO time.Duration

	logMu sync.Mutex
	log   []models.Alert

	evalMu    sync.Mutex
	evalLocks map[int]*sync.Mutex
}

type EngineOption func(*AlertEngine)

// WithNotifier forwards newly raised alerts to n after they are logged.
func WithNotifier(n domrepo.AlertNotifier) EngineOption {
	return func(e *AlertEngine) { e.notifier = n }
}

// WithEngineMetrics sets the metrics sink.
func WithEngineMetrics(m domrepo.Metrics) EngineOption {
	return func(e *AlertEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *applogger.Logger) EngineOption {
	return func(e *AlertEngine) {
		if l != nil {
			e.l = l
		}
	}
}

// WithNotifyTimeout bounds each notifier call.
func WithNotifyTimeout(d time.Duration) EngineOption {
	return func(e *AlertEngine) {
		if d > 0 {
			e.notifyTO = d
		}
	}
}

// NewAlertEngine creates an engine over store with rules applied in the given order.
func NewAlertEngine(store domrepo.ObservationStore, rules []domsvc.Rule, opts ...EngineOption) *AlertEngine {
	e := &AlertEngine{
		store:     store,
		rules:     rules,
		metrics:   metrics.Nop{},
		l:         applogger.NewNop(),
		notifyTO:  5 * time.Second,
		evalLocks: make(map[int]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate applies every rule to the subject's full history and appends the
// produced alerts to the log. It returns the alerts raised by this call.
// Evaluations of the same subject are serialized; different subjects run in parallel.
func (e *AlertEngine) Evaluate(ctx context.Context, subjectID int) []models.Alert {
	start := time.Now()
	lock := e.subjectLock(subjectID)
	lock.Lock()

	window := e.store.Query(subjectID, math.MinInt64, math.MaxInt64)
	var produced []models.Alert
	for _, r := range e.rules {
		produced = r.Evaluate(subjectID, window, produced)
	}
	if len(produced) > 0 {
		e.logMu.Lock()
		e.log = append(e.log, produced...)
		e.logMu.Unlock()
	}
	lock.Unlock()

	e.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	for _, a := range produced {
		e.metrics.RecordAlert(a.Condition)
	}
	if len(produced) > 0 {
		e.l.Debug("alerts raised",
			applogger.Int("patient_id", subjectID),
			applogger.Int("count", len(produced)),
			applogger.Int("window", len(window)),
		)
		e.notify(ctx, produced)
	}
	return produced
}

// Alerts returns a snapshot of the alert log.
func (e *AlertEngine) Alerts() []models.Alert {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	out := make([]models.Alert, len(e.log))
	copy(out, e.log)
	return out
}

// TriggerExternal appends a caller-supplied alert, bypassing the rules.
// Unknown subjects are ignored with a warning; the return value reports whether the alert was logged.
func (e *AlertEngine) TriggerExternal(ctx context.Context, subjectID int, condition string, ts int64) bool {
	if e.store.Count(subjectID) == 0 {
		e.l.Warn("trigger ignored: unknown patient",
			applogger.Int("patient_id", subjectID),
			applogger.String("condition", condition),
		)
		e.metrics.RecordError("trigger_unknown_patient")
		return false
	}
	a := models.NewExternalAlert(subjectID, condition, ts)
	e.logMu.Lock()
	e.log = append(e.log, a)
	e.logMu.Unlock()

	e.metrics.RecordAlert(condition)
	e.notify(ctx, []models.Alert{a})
	return true
}

// Untrigger removes every alert matching subject and condition exactly and
// returns how many were removed. Nothing matching is not an error.
func (e *AlertEngine) Untrigger(subjectID int, condition string) int {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	kept := e.log[:0]
	for _, a := range e.log {
		if !a.Matches(subjectID, condition) {
			kept = append(kept, a)
		}
	}
	removed := len(e.log) - len(kept)
	e.log = kept
	return removed
}

// Reset clears the alert log.
func (e *AlertEngine) Reset() {
	e.logMu.Lock()
	e.log = nil
	e.logMu.Unlock()
}

// Rules returns the names of the registered rules in evaluation order.
func (e *AlertEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

func (e *AlertEngine) subjectLock(subjectID int) *sync.Mutex {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()
	l, ok := e.evalLocks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		e.evalLocks[subjectID] = l
	}
	return l
}

func (e *AlertEngine) notify(ctx context.Context, alerts []models.Alert) {
	if e.notifier == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	nctx, cancel := context.WithTimeout(ctx, e.notifyTO)
	defer cancel()
	if err := e.notifier.Notify(nctx, alerts); err != nil {
		e.metrics.RecordError("alert_notify")
		e.l.Warn("alert notification failed", applogger.Int("count", len(alerts)), applogger.Error(err))
	}
}
