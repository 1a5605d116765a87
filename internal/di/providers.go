package di

import (
	"context"
	"fmt"

	"CoinOdds/internal/domain/repository"
	dservice "CoinOdds/internal/domain/service"
	"CoinOdds/internal/handler/api"
	internalrepo "CoinOdds/internal/repository"
	"CoinOdds/internal/scheduler"
	"CoinOdds/internal/service/coingecko"
	"CoinOdds/internal/usecase"
	"CoinOdds/pkg/cache"
	pkgch "CoinOdds/pkg/clickhouse"
	"CoinOdds/pkg/config"
	xhttp "CoinOdds/pkg/http"
	pkgkafka "CoinOdds/pkg/kafka"
	"CoinOdds/pkg/logger"
	"CoinOdds/pkg/metrics"
	pkgpg "CoinOdds/pkg/postgres"
	"CoinOdds/pkg/ratelimit"
	"CoinOdds/pkg/server"
)

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("service", "coinodds"), logger.String("env", cfg.Environment)), nil
}

func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvidePostgres connects and applies the schema.
func ProvidePostgres(cfg *config.Config, l *logger.Logger) (*pkgpg.Client, func(), error) {
	pg, err := pkgpg.NewClient(
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	cleanup := func() {
		if err := pg.Close(); err != nil {
			l.Warn("postgres close", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Postgres.QueryTimeout)
	defer cancel()
	if err := pg.InitSchema(ctx, internalrepo.PostgresSchema); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	l.Info("postgres ready")
	return pg, cleanup, nil
}

// ProvideClickHouse returns nil when the archive is disabled.
func ProvideClickHouse(cfg *config.Config, l *logger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ch, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse: %w", err)
	}
	cleanup := func() {
		if err := ch.Close(); err != nil {
			l.Warn("clickhouse close", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.MaxExecutionTime)
	defer cancel()
	if err := ch.InitSchema(ctx, internalrepo.ClickHouseSchema); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", logger.String("database", cfg.ClickHouse.Database))
	return ch, cleanup, nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, func() {
		if err := p.Close(); err != nil {
			l.Warn("kafka producer close", logger.Error(err))
		}
	}, nil
}

// ProvideCache puts an in-process tier in front of Redis when Redis is
// enabled, and uses memory alone otherwise.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis cache ready", logger.String("addr", cfg.Redis.Addr))
	return cache.NewLayeredCache(rc), func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close", logger.Error(err))
		}
	}, nil
}

func ProvideMarketData(cfg *config.Config, m repository.Metrics) dservice.MarketData {
	return coingecko.New(
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithAPIKey(cfg.CoinGecko.APIKey),
		coingecko.WithTimeout(cfg.CoinGecko.Timeout),
		coingecko.WithRateLimit(cfg.CoinGecko.RPS, cfg.CoinGecko.Burst),
		coingecko.WithBreaker(cfg.CoinGecko.BreakerFailures, cfg.CoinGecko.BreakerTimeout),
		coingecko.WithMetrics(m),
	)
}

func ProvidePriceStore(pg *pkgpg.Client, cfg *config.Config) repository.PriceHistoryStore {
	return internalrepo.NewPGPriceStore(pg, cfg.Postgres.QueryTimeout)
}

func ProvideMarketCapStore(pg *pkgpg.Client, cfg *config.Config) repository.MarketCapStore {
	return internalrepo.NewPGMarketCapStore(pg, cfg.Postgres.QueryTimeout)
}

func ProvideATHStore(pg *pkgpg.Client, cfg *config.Config) repository.ATHStore {
	return internalrepo.NewPGATHStore(pg, cfg.Postgres.QueryTimeout)
}

func ProvideProbabilityStore(pg *pkgpg.Client, cfg *config.Config) repository.ProbabilityStore {
	return internalrepo.NewPGProbabilityStore(pg, cfg.Postgres.QueryTimeout)
}

// ProvideRunArchive returns a nil interface when ClickHouse is disabled.
func ProvideRunArchive(ch *pkgch.Client, l *logger.Logger) repository.RunArchive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHRunArchive(ch, l)
}

func ProvideHub(l *logger.Logger) (*api.Hub, func()) {
	h := api.NewHub(l)
	return h, h.Close
}

// ProvidePublisher fans committed batches out to websocket clients and,
// when enabled, the results topic.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer, hub *api.Hub) repository.ResultPublisher {
	out := internalrepo.FanoutPublisher{hub}
	if producer != nil {
		out = append(out, internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ResultsTopic))
	}
	return out
}

func ProvideATHResolver(
	cfg *config.Config,
	store repository.ATHStore,
	market dservice.MarketData,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ATHResolver {
	return usecase.NewATHResolver(store, market, cfg.Pipeline, m, l)
}

func ProvideCalculator(
	cfg *config.Config,
	market dservice.MarketData,
	prices repository.PriceHistoryStore,
	mcaps repository.MarketCapStore,
	results repository.ProbabilityStore,
	ath *usecase.ATHResolver,
	archive repository.RunArchive,
	pub repository.ResultPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Calculator {
	return usecase.NewCalculator(cfg, market, prices, mcaps, results, ath, m, l,
		usecase.WithArchive(archive),
		usecase.WithPublisher(pub),
	)
}

func ProvideSafeCalculator(
	cfg *config.Config,
	calc *usecase.Calculator,
	c cache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SafeCalculator {
	return usecase.NewSafeCalculator(calc, c, cfg.Pipeline, m, l)
}

func ProvideMarketCapSnapshot(
	market dservice.MarketData,
	store repository.MarketCapStore,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.MarketCapSnapshot {
	return usecase.NewMarketCapSnapshot(market, store, m, l)
}

func ProvideRecalcHandler(
	cfg *config.Config,
	safe *usecase.SafeCalculator,
	c cache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.RecalcRequestHandler {
	return usecase.NewRecalcRequestHandler(cfg.Kafka.RecalcTopic, safe, c, cfg.Pipeline.RecalcLockTTL, m, l)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger, h *usecase.RecalcRequestHandler) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(h)
	return consumer, nil
}

func ProvideScheduler(
	cfg *config.Config,
	safe *usecase.SafeCalculator,
	snapshot *usecase.MarketCapSnapshot,
	l *logger.Logger,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(safe, snapshot, cfg.Pipeline.JobTimeout, l)
	if err := s.Register(cfg.Pipeline.Cron, cfg.Pipeline.MCapCron); err != nil {
		return nil, err
	}
	return s, nil
}

func ProvideProbabilityHandler(
	cfg *config.Config,
	l *logger.Logger,
	calc *usecase.Calculator,
	safe *usecase.SafeCalculator,
	store repository.ProbabilityStore,
	archive repository.RunArchive,
	hub *api.Hub,
) *api.ProbabilityHandler {
	limiter := ratelimit.New(cfg.Server.CalculateRPS, cfg.Server.CalculateBurst)
	return api.NewProbabilityHandler(l, calc, safe, store, archive, limiter, hub)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.ProbabilityHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	consumer *pkgkafka.Consumer,
	hub *api.Hub,
	calc *usecase.Calculator,
	safe *usecase.SafeCalculator,
	snapshot *usecase.MarketCapSnapshot,
) *server.App {
	return server.New(cfg, l, httpServer, sched, consumer, hub, calc, safe, snapshot)
}
