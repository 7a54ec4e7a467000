//go:build wireinject
// +build wireinject

package di

import (
	"VitalWatch/pkg/config"
	"VitalWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,

		// Store, engine and notifiers
		ProvidePatientStore,
		ProvideAlertBoard,
		ProvideAlertNotifier,
		ProvideAlertEngine,
		ProvideObservationProcessor,

		// Background work
		ProvideEvaluationScheduler,
		ProvideEvaluationQueue,
		ProvideFeedSeeder,
		ProvideHistoryLoader,
		ProvideObservationCollector,
		ProvideKafkaPipeline,
		ProvideKafkaObservationsHandler,

		// HTTP
		ProvideVitalsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
