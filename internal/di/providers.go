package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"VitalWatch/internal/domain/repository"
	"VitalWatch/internal/handler/api"
	mid "VitalWatch/internal/middleware"
	internalrepo "VitalWatch/internal/repository"
	"VitalWatch/internal/service/feed"
	"VitalWatch/internal/services/rules"
	"VitalWatch/internal/usecase"
	"VitalWatch/pkg/cache"
	pkgch "VitalWatch/pkg/clickhouse"
	"VitalWatch/pkg/config"
	xhttp "VitalWatch/pkg/http"
	pkgkafka "VitalWatch/pkg/kafka"
	applogger "VitalWatch/pkg/logger"
	"VitalWatch/pkg/metrics"
	"VitalWatch/pkg/queue"
	"VitalWatch/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvidePatientStore creates the in-memory observation store.
func ProvidePatientStore() *internalrepo.PatientStore {
	return internalrepo.NewPatientStore()
}

// ProvideRedisCache connects to Redis when enabled. A nil cache disables the alert board and the job queue.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideKafkaProducer creates a Kafka producer for alert fan-out when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithProducerRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertBoard keeps recent alerts in Redis. Nil without a Redis cache.
func ProvideAlertBoard(cfg *config.Config, rc *cache.RedisCache) *internalrepo.RedisAlertBoard {
	if rc == nil {
		return nil
	}
	return internalrepo.NewRedisAlertBoard(rc, cfg.Redis.BoardSize, cfg.Redis.BoardTTL)
}

// ProvideAlertNotifier fans alerts out to every configured sink. Nil when none is configured.
func ProvideAlertNotifier(cfg *config.Config, board *internalrepo.RedisAlertBoard, producer *pkgkafka.Producer) repository.AlertNotifier {
	var sinks internalrepo.MultiNotifier
	if board != nil {
		sinks = append(sinks, board)
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertTopic))
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

// ProvideAlertEngine creates the rule engine over the store.
func ProvideAlertEngine(
	cfg *config.Config,
	store *internalrepo.PatientStore,
	notifier repository.AlertNotifier,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AlertEngine {
	opts := []usecase.EngineOption{
		usecase.WithEngineMetrics(m),
		usecase.WithEngineLogger(l.With(applogger.String("component", "engine"))),
		usecase.WithNotifyTimeout(cfg.Engine.NotifyTimeout),
	}
	if notifier != nil {
		opts = append(opts, usecase.WithNotifier(notifier))
	}
	engine := usecase.NewAlertEngine(store, rules.Select(cfg.Engine.Rules), opts...)
	l.Info("alert engine ready",
		applogger.Strings("rules", engine.Rules()),
		applogger.Bool("notifier", notifier != nil),
	)
	return engine
}

// ProvideObservationProcessor creates the store writer.
func ProvideObservationProcessor(store *internalrepo.PatientStore, m repository.Metrics) *usecase.ObservationProcessor {
	return usecase.NewObservationProcessor(store, m)
}

// ProvideEvaluationScheduler creates the periodic evaluator.
func ProvideEvaluationScheduler(
	cfg *config.Config,
	store *internalrepo.PatientStore,
	engine *usecase.AlertEngine,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.EvaluationScheduler {
	return usecase.NewEvaluationScheduler(store, engine, m, l.With(applogger.String("component", "scheduler")),
		cfg.Engine.Interval, cfg.Engine.Workers)
}

// ProvideEvaluationQueue creates the Redis-backed deferred evaluation queue when enabled.
func ProvideEvaluationQueue(cfg *config.Config, rc *cache.RedisCache, engine *usecase.AlertEngine, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.Queue.Enabled {
		return nil
	}
	opts := []queue.RedisQueueOption{queue.WithKeyPrefix(cfg.Redis.Prefix + ":queue")}
	if cfg.Redis.Queue.ProducerOnly {
		opts = append(opts, queue.WithMode(queue.ModeProducerOnly))
	}
	q := queue.NewRedisQueue(l.With(applogger.String("component", "queue")), queue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, rc.Client(), opts...)
	q.RegisterJob(usecase.NewEvaluateJob(engine))
	return q
}

// ProvideFeedSeeder loads recorded feed files at startup when a seed directory is set.
func ProvideFeedSeeder(cfg *config.Config, proc *usecase.ObservationProcessor, engine *usecase.AlertEngine, l *applogger.Logger) *usecase.FeedSeeder {
	if cfg.Store.SeedDir == "" {
		return nil
	}
	reader := feed.NewFileReader(cfg.Store.SeedDir, l.With(applogger.String("component", "file_feed")))
	return usecase.NewFeedSeeder(reader, proc, engine)
}

// ProvideClickHouseClient connects to ClickHouse when history backfill is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.ObservationHistorySchema(historyTable(cfg))); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, nil
}

// ProvideHistoryLoader backfills the store from ClickHouse. Nil without a client.
func ProvideHistoryLoader(cfg *config.Config, client *pkgch.Client, proc *usecase.ObservationProcessor, l *applogger.Logger) *usecase.HistoryLoader {
	if client == nil {
		return nil
	}
	history := internalrepo.NewClickHouseHistory(client.DB(), historyTable(cfg))
	return usecase.NewHistoryLoader(history, proc, l.With(applogger.String("component", "history")),
		cfg.ClickHouse.Lookback, cfg.ClickHouse.Limit)
}

func historyTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + "." + cfg.ClickHouse.Table
}

// ProvideObservationCollector builds the websocket feed collector when the feed is enabled.
func ProvideObservationCollector(
	cfg *config.Config,
	proc *usecase.ObservationProcessor,
	engine *usecase.AlertEngine,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ObservationCollector {
	if !cfg.Feed.Enabled {
		return nil
	}
	fl := l.With(applogger.String("component", "feed"))
	client := feed.NewClient(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, fl)
	return usecase.NewObservationCollector(client, newIngestPipeline(cfg, proc, m, fl), engine, m, fl)
}

func newIngestPipeline(cfg *config.Config, proc *usecase.ObservationProcessor, m repository.Metrics, l *applogger.Logger) *mid.IngestPipeline {
	return mid.NewIngestPipeline(proc, m,
		mid.WithRate(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst),
		mid.WithBucketTTL(cfg.Ingest.BucketTTL),
		mid.WithPipelineLogger(l),
	)
}

// ProvideKafkaPipeline is the ingest pipeline in front of the Kafka observations handler.
func ProvideKafkaPipeline(cfg *config.Config, proc *usecase.ObservationProcessor, m repository.Metrics, l *applogger.Logger) *mid.IngestPipeline {
	if !cfg.Kafka.Enabled {
		return nil
	}
	return newIngestPipeline(cfg, proc, m, l.With(applogger.String("component", "kafka_ingest")))
}

// ProvideKafkaConsumer creates a Kafka consumer with trace, payload limit and error counting hooks.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka"))),
		pkgkafka.WithConsumerRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.PayloadLimitHook(cfg.Kafka.Consumer.MaxPayload),
		pkgkafka.ErrorCountHook(m.RecordError),
	))
	return consumer, nil
}

// ProvideKafkaObservationsHandler registers the handler for the observations topic.
func ProvideKafkaObservationsHandler(cfg *config.Config, pipe *mid.IngestPipeline, m repository.Metrics) *usecase.KafkaObservationsHandler {
	if pipe == nil {
		return nil
	}
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.Topic, pipe, m)
}

// ProvideVitalsHandler creates the HTTP handler.
func ProvideVitalsHandler(
	l *applogger.Logger,
	store *internalrepo.PatientStore,
	proc *usecase.ObservationProcessor,
	engine *usecase.AlertEngine,
	q *queue.RedisQueue,
	board *internalrepo.RedisAlertBoard,
) *api.VitalsHandler {
	h := api.NewVitalsHandler(l.With(applogger.String("component", "api")), store, proc, engine)
	if q != nil {
		h.WithJobs(q)
	}
	if board != nil {
		h.WithBoard(board)
	}
	return h
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.VitalsHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins, cfg.Server.CORSMaxAge),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if !cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(nil, nil))
	} else {
		opts = append(opts, xhttp.WithMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}
	return xhttp.NewServer(h.RegisterRoutes, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	seeder *usecase.FeedSeeder,
	history *usecase.HistoryLoader,
	scheduler *usecase.EvaluationScheduler,
	collector *usecase.ObservationCollector,
	consumer *pkgkafka.Consumer,
	kafkaPipe *mid.IngestPipeline,
	kh *usecase.KafkaObservationsHandler,
	q *queue.RedisQueue,
	notifier repository.AlertNotifier,
	rc *cache.RedisCache,
	ch *pkgch.Client,
	srv *xhttp.Server,
) *server.App {
	c := server.Components{
		Seeder:    seeder,
		History:   history,
		Scheduler: scheduler,
		Collector: collector,
		Consumer:  consumer,
		KafkaPipe: kafkaPipe,
		Jobs:      q,
		Notifier:  notifier,
		HTTP:      srv,
	}
	if kh != nil {
		c.Handler = kh
	}
	if rc != nil {
		c.Closers = append(c.Closers, io.Closer(rc))
	}
	if ch != nil {
		c.Closers = append(c.Closers, io.Closer(ch))
	}
	return server.New(cfg, l, c)
}
