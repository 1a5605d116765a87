package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	pkgpg "CoinOdds/pkg/postgres"
)

// PGATHStore implements ATHStore on crypto_ath_cache.
type PGATHStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPGATHStore(pg *pkgpg.Client, timeout time.Duration) *PGATHStore {
	return &PGATHStore{db: pg.DB(), timeout: timeout}
}

var _ domrepo.ATHStore = (*PGATHStore)(nil)

func (s *PGATHStore) Get(ctx context.Context, symbol string) (*models.ATHEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT symbol, ath_price, ath_date, last_updated
		FROM crypto_ath_cache
		WHERE symbol = $1`

	var e models.ATHEntry
	if err := s.db.GetContext(ctx, &e, q, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("get ath %s: %w", symbol, err)
	}
	return &e, nil
}

func (s *PGATHStore) Upsert(ctx context.Context, e models.ATHEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		INSERT INTO crypto_ath_cache (symbol, ath_price, ath_date, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			ath_price = EXCLUDED.ath_price,
			ath_date = EXCLUDED.ath_date,
			last_updated = EXCLUDED.last_updated`

	if _, err := s.db.ExecContext(ctx, q, e.Symbol, e.Price, e.Date, e.LastUpdated); err != nil {
		return fmt.Errorf("upsert ath %s: %w", e.Symbol, err)
	}
	return nil
}
