package usecase

import (
	"context"
	"errors"

	"VitalWatch/internal/domain/models"
	drepo "VitalWatch/internal/domain/repository"
	mid "VitalWatch/internal/middleware"
	applogger "VitalWatch/pkg/logger"
)

// ObservationCollector reads a feed and routes each event: readings go through
// the ingest pipeline, manual alert toggles go straight to the engine.
type ObservationCollector struct {
	feed    drepo.ObservationFeed
	pipe    *mid.IngestPipeline
	engine  *AlertEngine
	metrics drepo.Metrics
	l       *applogger.Logger
	done    chan struct{}
}

// NewObservationCollector creates a new ObservationCollector instance.
func NewObservationCollector(feed drepo.ObservationFeed, pipe *mid.IngestPipeline, engine *AlertEngine, metrics drepo.Metrics, l *applogger.Logger) *ObservationCollector {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ObservationCollector{feed: feed, pipe: pipe, engine: engine, metrics: metrics, l: l}
}

// IsConnected returns true if the feed is connected.
func (c *ObservationCollector) IsConnected() bool {
	return c.feed.IsConnected()
}

// Start connects the feed and consumes it in the background until ctx ends.
func (c *ObservationCollector) Start(ctx context.Context) error {
	if err := c.feed.Connect(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	evCh, errCh := c.feed.Read(ctx)
	c.done = make(chan struct{})
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *ObservationCollector) consume(ctx context.Context, evCh <-chan models.FeedEvent, errCh <-chan error) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				c.metrics.RecordError("feed")
				c.l.Warn("feed read failed, reconnecting", applogger.Error(err))
				if rerr := c.feed.Reconnect(ctx); rerr != nil {
					c.l.Error("feed reconnect failed", applogger.Error(rerr))
				}
			}
		case ev, ok := <-evCh:
			if !ok {
				return
			}
			_ = c.Handle(ctx, ev)
		}
	}
}

// Handle routes one feed event. Rejected observations are logged and returned.
func (c *ObservationCollector) Handle(ctx context.Context, ev models.FeedEvent) error {
	if err := routeEvent(ctx, c.engine, c.pipe, ev); err != nil {
		lvl := c.l.Warn
		if errors.Is(err, mid.ErrThrottled) {
			lvl = c.l.Debug
		}
		lvl("observation not ingested",
			applogger.Int("patient_id", ev.SubjectID),
			applogger.String("label", ev.Label),
			applogger.Error(err),
		)
		return err
	}
	return nil
}

// Shutdown stops the pipeline and closes the feed.
func (c *ObservationCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	err := c.feed.Close()
	if c.done != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	return err
}

// routeEvent applies a manual alert toggle to the engine or hands a reading to sink.
func routeEvent(ctx context.Context, engine *AlertEngine, sink mid.Proc, ev models.FeedEvent) error {
	if ev.IsAlert() {
		switch ev.AlertState {
		case models.AlertTriggered:
			engine.TriggerExternal(ctx, ev.SubjectID, models.CondManual, ev.Timestamp)
		case models.AlertResolved:
			engine.Untrigger(ev.SubjectID, models.CondManual)
		}
		return nil
	}
	return sink.Process(ctx, &models.Observation{
		SubjectID: ev.SubjectID,
		Category:  models.Category(ev.Label),
		Value:     ev.Value,
		Timestamp: ev.Timestamp,
	})
}
