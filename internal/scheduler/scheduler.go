package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"CoinOdds/internal/domain/models"
	"CoinOdds/internal/usecase"
	"CoinOdds/pkg/logger"
)

// Snapshotter records one aggregate market-cap observation.
type Snapshotter interface {
	Run(ctx context.Context) (models.MarketCapPoint, error)
}

// Scheduler owns the periodic calculation and market-cap jobs.
type Scheduler struct {
	cron       *cron.Cron
	calc       usecase.Runner
	snapshot   Snapshotter
	jobTimeout time.Duration
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a seconds-resolution scheduler. Overlapping runs of the same
// job are skipped.
func New(calc usecase.Runner, snapshot Snapshotter, jobTimeout time.Duration, log *logger.Logger) *Scheduler {
	log = log.With(logger.String("component", "scheduler"))
	cl := cronLogger{log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		calc:       calc,
		snapshot:   snapshot,
		jobTimeout: jobTimeout,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register adds both jobs. An empty expression leaves that job out.
func (s *Scheduler) Register(calcExpr, snapshotExpr string) error {
	if calcExpr != "" {
		if _, err := s.cron.AddFunc(calcExpr, s.RunCalculation); err != nil {
			return fmt.Errorf("register calculation job %q: %w", calcExpr, err)
		}
	}
	if snapshotExpr != "" && s.snapshot != nil {
		if _, err := s.cron.AddFunc(snapshotExpr, s.RunSnapshot); err != nil {
			return fmt.Errorf("register market cap job %q: %w", snapshotExpr, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// RunCalculation runs the calculation job once.
func (s *Scheduler) RunCalculation() {
	ctx, cancel := s.jobContext()
	defer cancel()

	summary, err := s.calc.Run(ctx, nil)
	if err != nil {
		s.log.Error("scheduled calculation failed", logger.Error(err))
		return
	}
	s.log.Info("scheduled calculation done",
		logger.String("run_id", summary.RunID),
		logger.Int("calculated", summary.Calculated),
		logger.Bool("from_cache", summary.FromCache))
}

// RunSnapshot runs the market-cap job once.
func (s *Scheduler) RunSnapshot() {
	ctx, cancel := s.jobContext()
	defer cancel()

	p, err := s.snapshot.Run(ctx)
	if err != nil {
		s.log.Error("market cap snapshot failed", logger.Error(err))
		return
	}
	s.log.Info("market cap snapshot stored",
		logger.String("date", p.Date.Format(time.DateOnly)),
		logger.Float64("total_market_cap", p.TotalMarketCap))
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.jobTimeout <= 0 {
		return context.WithCancel(s.ctx)
	}
	return context.WithTimeout(s.ctx, s.jobTimeout)
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{ l *logger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
