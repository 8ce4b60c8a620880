//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalGate/pkg/config"
	"SignalGate/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideAPIMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideStateStore,
		ProvideAlertPublisher,
		ProvideAlertConsumer,
		ProvideTelemetryStorage,
		ProvideTelemetryPublisher,
		ProvideTelemetryFile,
		ProvideMarketStream,
		ProvidePaperAccount,
		ProvideExchangeClient,

		// Use cases
		ProvideAggregator,
		ProvidePipeline,
		ProvideTelemetryHandler,
		ProvideTelemetryProcessor,
		ProvideExecutor,
		ProvideDecisionLoops,
		ProvideEventCollector,

		// Transport and application
		ProvideStatusHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
