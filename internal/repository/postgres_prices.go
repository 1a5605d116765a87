package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	pkgpg "CoinOdds/pkg/postgres"
)

const upsertPriceSQL = `
	INSERT INTO crypto_historical_prices (symbol, date, price, market_cap, volume)
	VALUES (:symbol, :date, :price, :market_cap, :volume)
	ON CONFLICT (symbol, date) DO UPDATE SET
		price = EXCLUDED.price,
		market_cap = EXCLUDED.market_cap,
		volume = EXCLUDED.volume`

// PGPriceStore reads daily closes from crypto_historical_prices.
type PGPriceStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPGPriceStore(pg *pkgpg.Client, timeout time.Duration) *PGPriceStore {
	return &PGPriceStore{db: pg.DB(), timeout: timeout}
}

var _ domrepo.PriceHistoryStore = (*PGPriceStore)(nil)

func (s *PGPriceStore) History(ctx context.Context, symbol string, from time.Time) ([]models.PricePoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT symbol, date, price, market_cap, volume
		FROM crypto_historical_prices
		WHERE symbol = $1 AND date >= $2 AND price > 0
		ORDER BY date ASC`

	var out []models.PricePoint
	if err := s.db.SelectContext(ctx, &out, q, symbol, from); err != nil {
		return nil, fmt.Errorf("select history %s: %w", symbol, err)
	}
	return out, nil
}

// upsertPrices writes points through one prepared statement on tx.
func upsertPrices(ctx context.Context, tx *sqlx.Tx, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, upsertPriceSQL)
	if err != nil {
		return fmt.Errorf("prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("upsert price %s %s: %w", p.Symbol, p.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

// PGMarketCapStore reads and writes global_market_cap.
type PGMarketCapStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPGMarketCapStore(pg *pkgpg.Client, timeout time.Duration) *PGMarketCapStore {
	return &PGMarketCapStore{db: pg.DB(), timeout: timeout}
}

var _ domrepo.MarketCapStore = (*PGMarketCapStore)(nil)

func (s *PGMarketCapStore) Latest(ctx context.Context, n int) ([]models.MarketCapPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT date, total_market_cap
		FROM global_market_cap
		ORDER BY date DESC
		LIMIT $1`

	var out []models.MarketCapPoint
	if err := s.db.SelectContext(ctx, &out, q, n); err != nil {
		return nil, fmt.Errorf("select market caps: %w", err)
	}
	return out, nil
}

func (s *PGMarketCapStore) Upsert(ctx context.Context, p models.MarketCapPoint) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		INSERT INTO global_market_cap (date, total_market_cap)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET total_market_cap = EXCLUDED.total_market_cap`

	if _, err := s.db.ExecContext(ctx, q, p.Date, p.TotalMarketCap); err != nil {
		return fmt.Errorf("upsert market cap: %w", err)
	}
	return nil
}
