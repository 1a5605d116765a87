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

const upsertProbabilitySQL = `
	INSERT INTO crypto_probabilities (
		run_id, symbol, coin_id, calculation_date, direction, percentage,
		probability_rise, market_flow_probability, momentum_probability, price_position_probability,
		current_price, min_365d, max_365d, ath_price, ath_date,
		ci_lower_log, ci_upper_log, log_price_mean, log_price_stddev,
		price_source, history_source, ath_source, validation_status, created_at
	) VALUES (
		:run_id, :symbol, :coin_id, :calculation_date, :direction, :percentage,
		:probability_rise, :market_flow_probability, :momentum_probability, :price_position_probability,
		:current_price, :min_365d, :max_365d, :ath_price, :ath_date,
		:ci_lower_log, :ci_upper_log, :log_price_mean, :log_price_stddev,
		:price_source, :history_source, :ath_source, :validation_status, :created_at
	)
	ON CONFLICT (symbol, calculation_date) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		coin_id = EXCLUDED.coin_id,
		direction = EXCLUDED.direction,
		percentage = EXCLUDED.percentage,
		probability_rise = EXCLUDED.probability_rise,
		market_flow_probability = EXCLUDED.market_flow_probability,
		momentum_probability = EXCLUDED.momentum_probability,
		price_position_probability = EXCLUDED.price_position_probability,
		current_price = EXCLUDED.current_price,
		min_365d = EXCLUDED.min_365d,
		max_365d = EXCLUDED.max_365d,
		ath_price = EXCLUDED.ath_price,
		ath_date = EXCLUDED.ath_date,
		ci_lower_log = EXCLUDED.ci_lower_log,
		ci_upper_log = EXCLUDED.ci_upper_log,
		log_price_mean = EXCLUDED.log_price_mean,
		log_price_stddev = EXCLUDED.log_price_stddev,
		price_source = EXCLUDED.price_source,
		history_source = EXCLUDED.history_source,
		ath_source = EXCLUDED.ath_source,
		validation_status = EXCLUDED.validation_status,
		created_at = EXCLUDED.created_at`

const selectProbabilityColumns = `
	run_id, symbol, coin_id, calculation_date, direction, percentage,
	probability_rise, market_flow_probability, momentum_probability, price_position_probability,
	current_price, min_365d, max_365d, ath_price, ath_date,
	ci_lower_log, ci_upper_log, log_price_mean, log_price_stddev,
	price_source, history_source, ath_source, validation_status, created_at`

// PGProbabilityStore implements ProbabilityStore on crypto_probabilities.
type PGProbabilityStore struct {
	pg      *pkgpg.Client
	timeout time.Duration
}

func NewPGProbabilityStore(pg *pkgpg.Client, timeout time.Duration) *PGProbabilityStore {
	return &PGProbabilityStore{pg: pg, timeout: timeout}
}

var _ domrepo.ProbabilityStore = (*PGProbabilityStore)(nil)

// Commit upserts backfilled history and the batch in one transaction.
// Concurrent runs on the same day race on the key; the last commit wins.
func (s *PGProbabilityStore) Commit(ctx context.Context, results []models.ProbabilityResult, backfill []models.PricePoint) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.pg.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := upsertPrices(ctx, tx, backfill); err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}

		stmt, err := tx.PrepareNamedContext(ctx, upsertProbabilitySQL)
		if err != nil {
			return fmt.Errorf("prepare probability upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, r); err != nil {
				return fmt.Errorf("upsert probability %s: %w", r.Symbol, err)
			}
		}
		return nil
	})
}

func (s *PGProbabilityStore) Latest(ctx context.Context, symbol string) ([]models.ProbabilityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := `SELECT DISTINCT ON (symbol)` + selectProbabilityColumns + `
		FROM crypto_probabilities`
	args := []interface{}{}
	if symbol != "" {
		q += ` WHERE symbol = $1`
		args = append(args, symbol)
	}
	q += ` ORDER BY symbol, calculation_date DESC`

	var out []models.ProbabilityResult
	if err := s.pg.DB().SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("select latest probabilities: %w", err)
	}
	return out, nil
}
