//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"CoinOdds/internal/domain/repository"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/metrics"
	"CoinOdds/pkg/server"
)

// InitializeApp wires every dependency of the service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvidePostgres,
		ProvideClickHouse,
		ProvideKafkaProducer,
		ProvideCache,
		ProvideMarketData,

		// Repositories
		ProvidePriceStore,
		ProvideMarketCapStore,
		ProvideATHStore,
		ProvideProbabilityStore,
		ProvideRunArchive,
		ProvideHub,
		ProvidePublisher,

		// Use cases
		ProvideATHResolver,
		ProvideCalculator,
		ProvideSafeCalculator,
		ProvideMarketCapSnapshot,
		ProvideRecalcHandler,

		// Transports
		ProvideKafkaConsumer,
		ProvideScheduler,
		ProvideProbabilityHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
