package server

import (
	"context"
	"errors"
	"fmt"

	"CoinOdds/internal/handler/api"
	"CoinOdds/internal/scheduler"
	"CoinOdds/internal/usecase"
	"CoinOdds/pkg/config"
	xhttp "CoinOdds/pkg/http"
	pkgkafka "CoinOdds/pkg/kafka"
	"CoinOdds/pkg/logger"
)

// App owns the long-running parts of the service.
type App struct {
	cfg       *config.Config
	log       *logger.Logger
	http      *xhttp.Server
	scheduler *scheduler.Scheduler
	consumer  *pkgkafka.Consumer
	hub       *api.Hub

	Calculator *usecase.Calculator
	Safe       *usecase.SafeCalculator
	Snapshot   *usecase.MarketCapSnapshot
}

// New assembles the app. consumer may be nil when Kafka is disabled.
func New(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	consumer *pkgkafka.Consumer,
	hub *api.Hub,
	calc *usecase.Calculator,
	safe *usecase.SafeCalculator,
	snapshot *usecase.MarketCapSnapshot,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		http:       httpServer,
		scheduler:  sched,
		consumer:   consumer,
		hub:        hub,
		Calculator: calc,
		Safe:       safe,
		Snapshot:   snapshot,
	}
}

// Run starts HTTP, the scheduler and the Kafka consumer, then blocks until
// ctx is cancelled and shuts them down.
func (a *App) Run(ctx context.Context) error {
	if err := a.http.Start(); err != nil {
		return fmt.Errorf("start http: %w", err)
	}
	a.scheduler.Start()

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start failed", logger.Error(err))
		} else {
			a.log.Info("kafka consumer started", logger.String("topic", a.cfg.Kafka.RecalcTopic))
		}
	}

	a.log.Info("coinodds running",
		logger.String("env", a.cfg.Environment),
		logger.Int("assets", len(a.cfg.Assets)),
		logger.Int("port", a.cfg.Server.Port))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first (HTTP, consumer, cron) and then the hub.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.http.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop kafka consumer: %w", err))
		}
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.hub != nil {
		a.hub.Close()
	}

	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown incomplete", logger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
