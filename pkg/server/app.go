package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "VitalWatch/internal/domain/repository"
	mid "VitalWatch/internal/middleware"
	"VitalWatch/internal/usecase"
	"VitalWatch/pkg/config"
	xhttp "VitalWatch/pkg/http"
	pkgkafka "VitalWatch/pkg/kafka"
	applogger "VitalWatch/pkg/logger"
	"VitalWatch/pkg/queue"
)

// Components are the runnable parts of the application. Optional parts are nil when disabled.
type Components struct {
	Seeder    *usecase.FeedSeeder
	History   *usecase.HistoryLoader
	Scheduler *usecase.EvaluationScheduler
	Collector *usecase.ObservationCollector
	Consumer  *pkgkafka.Consumer
	KafkaPipe *mid.IngestPipeline
	Handler   pkgkafka.MessageHandler
	Jobs      *queue.RedisQueue
	Notifier  domrepo.AlertNotifier
	HTTP      *xhttp.Server
	Closers   []io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve starts every component, blocks until ctx is done, then shuts down in reverse order.
func (a *App) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.c.Seeder != nil {
		accepted, skipped, err := a.c.Seeder.Seed(runCtx)
		if err != nil {
			a.l.Warn("feed seed failed", applogger.Error(err))
		} else {
			a.l.Info("store seeded from files", applogger.Int("accepted", accepted), applogger.Int("skipped", skipped))
		}
	}
	if a.c.History != nil {
		if _, _, err := a.c.History.Load(runCtx); err != nil {
			a.l.Warn("history backfill failed", applogger.Error(err))
		}
	}

	if a.c.Jobs != nil {
		if err := a.c.Jobs.Start(runCtx); err != nil {
			a.l.Warn("evaluation queue disabled", applogger.Error(err))
			a.c.Jobs = nil
		}
	}
	if a.c.Scheduler != nil {
		a.c.Scheduler.Start(runCtx)
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(runCtx); err != nil {
			a.l.Error("feed collector start failed", applogger.Error(err))
		} else {
			a.l.Info("feed collector started", applogger.String("url", a.cfg.Feed.URL))
		}
	}

	if a.c.Consumer != nil && a.c.Handler != nil {
		if a.c.KafkaPipe != nil {
			a.c.KafkaPipe.Start(runCtx)
		}
		a.c.Consumer.RegisterHandler(a.c.Handler)
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.l.Info("kafka consumer started", applogger.String("topic", a.c.Handler.Topic()))
		}
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			a.c.HTTP = nil
			cancel()
			if serr := a.shutdown(); serr != nil {
				a.l.Warn("shutdown after failed start", applogger.Error(serr))
			}
			return err
		}
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.KafkaPipe != nil {
		a.c.KafkaPipe.Stop()
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.c.Scheduler != nil {
		a.c.Scheduler.Stop()
	}
	if a.c.Jobs != nil {
		if err := a.c.Jobs.Stop(ctx); err != nil {
			a.l.Warn("evaluation queue stop error", applogger.Error(err))
		}
	}
	if a.c.Notifier != nil {
		if err := a.c.Notifier.Close(); err != nil {
			a.l.Warn("alert notifier close error", applogger.Error(err))
		}
	}
	for _, c := range a.c.Closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
