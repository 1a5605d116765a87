package service

import (
	"context"
	"time"

	"CoinOdds/internal/domain/models"
)

// MarketData is the external price provider.
type MarketData interface {
	// LivePrices returns USD prices keyed by coin id in one request.
	LivePrices(ctx context.Context, coinIDs []string) (map[string]float64, error)
	// MarketChart returns daily closes, oldest first.
	MarketChart(ctx context.Context, symbol, coinID string, days int) ([]models.PricePoint, error)
	AllTimeHigh(ctx context.Context, coinID string) (price float64, date time.Time, err error)
	GlobalMarketCap(ctx context.Context) (float64, error)
}
