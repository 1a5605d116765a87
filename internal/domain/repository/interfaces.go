package repository

import (
	"context"
	"errors"
	"time"

	"CoinOdds/internal/domain/models"
)

var ErrNotFound = errors.New("repository: not found")

// PriceHistoryStore holds daily closes per asset.
type PriceHistoryStore interface {
	// History returns closes on or after from, oldest first.
	History(ctx context.Context, symbol string, from time.Time) ([]models.PricePoint, error)
}

// MarketCapStore holds the aggregate market cap series.
type MarketCapStore interface {
	// Latest returns up to n points, newest first.
	Latest(ctx context.Context, n int) ([]models.MarketCapPoint, error)
	Upsert(ctx context.Context, p models.MarketCapPoint) error
}

// ATHStore caches all-time highs. Get returns ErrNotFound for unknown symbols.
type ATHStore interface {
	Get(ctx context.Context, symbol string) (*models.ATHEntry, error)
	Upsert(ctx context.Context, e models.ATHEntry) error
}

// ProbabilityStore persists validated batches.
type ProbabilityStore interface {
	// Commit writes results and any backfilled history atomically.
	Commit(ctx context.Context, results []models.ProbabilityResult, backfill []models.PricePoint) error
	// Latest returns the newest row per symbol, or for one symbol when given.
	Latest(ctx context.Context, symbol string) ([]models.ProbabilityResult, error)
}

// RunArchive keeps every committed row for later analysis.
type RunArchive interface {
	Archive(ctx context.Context, results []models.ProbabilityResult) error
	History(ctx context.Context, symbol string, limit int) ([]models.ProbabilityResult, error)
}

// ResultPublisher fans a committed batch out to subscribers.
type ResultPublisher interface {
	PublishRun(ctx context.Context, summary *models.RunSummary) error
}

type Metrics interface {
	RecordRun(outcome string, d time.Duration)
	RecordValidationFailure(check string)
	RecordFallback(tier string)
	RecordAssetsCalculated(n int)
	RecordProbability(symbol string, pRise float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
