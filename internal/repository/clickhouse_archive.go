package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	pkgch "CoinOdds/pkg/clickhouse"
	applogger "CoinOdds/pkg/logger"
)

// ClickHouseSchema creates the append-only run archive. Unlike the
// Postgres table it keeps every run of a day, not only the last one.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS probability_runs (
		run_id String,
		symbol LowCardinality(String),
		coin_id String,
		calculation_date Date,
		direction LowCardinality(String),
		percentage Float64,
		probability_rise Float64,
		market_flow_probability Float64,
		momentum_probability Float64,
		price_position_probability Float64,
		current_price Float64,
		min_365d Float64,
		max_365d Float64,
		ath_price Float64,
		log_price_mean Float64,
		log_price_stddev Float64,
		price_source LowCardinality(String),
		history_source LowCardinality(String),
		ath_source LowCardinality(String),
		created_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (symbol, calculation_date, run_id)`,
}

const insertRunSQL = `
	INSERT INTO probability_runs (
		run_id, symbol, coin_id, calculation_date, direction, percentage,
		probability_rise, market_flow_probability, momentum_probability, price_position_probability,
		current_price, min_365d, max_365d, ath_price, log_price_mean, log_price_stddev,
		price_source, history_source, ath_source, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CHRunArchive implements RunArchive backed by ClickHouse.
type CHRunArchive struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRunArchive(ch *pkgch.Client, l *applogger.Logger) *CHRunArchive {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHRunArchive{db: ch.DB(), l: l}
}

var _ domrepo.RunArchive = (*CHRunArchive)(nil)

// Archive appends every result of a committed run as one block.
func (s *CHRunArchive) Archive(ctx context.Context, results []models.ProbabilityResult) error {
	if len(results) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.Symbol, r.CoinID, r.CalculationDate, string(r.Direction), r.Percentage,
			r.ProbabilityRise, r.MarketFlowProbability, r.MomentumProbability, r.PricePositionProbability,
			r.CurrentPrice, r.Min365, r.Max365, r.ATHPrice, r.LogPriceMean, r.LogPriceStdDev,
			r.PriceSource, r.HistorySource, r.ATHSource, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("append %s: %w", r.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}

	s.l.Debug("clickhouse archive ok",
		applogger.String("run_id", results[0].RunID),
		applogger.Int("rows", len(results)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

// History returns up to limit archived runs of symbol, newest first.
func (s *CHRunArchive) History(ctx context.Context, symbol string, limit int) ([]models.ProbabilityResult, error) {
	const q = `
		SELECT run_id, symbol, coin_id, calculation_date, direction, percentage,
			probability_rise, market_flow_probability, momentum_probability, price_position_probability,
			current_price, min_365d, max_365d, ath_price, log_price_mean, log_price_stddev,
			price_source, history_source, ath_source, created_at
		FROM probability_runs
		WHERE symbol = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		s.l.Error("clickhouse history query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	out := make([]models.ProbabilityResult, 0, limit)
	for rows.Next() {
		var r models.ProbabilityResult
		var dir string
		if err := rows.Scan(
			&r.RunID, &r.Symbol, &r.CoinID, &r.CalculationDate, &dir, &r.Percentage,
			&r.ProbabilityRise, &r.MarketFlowProbability, &r.MomentumProbability, &r.PricePositionProbability,
			&r.CurrentPrice, &r.Min365, &r.Max365, &r.ATHPrice, &r.LogPriceMean, &r.LogPriceStdDev,
			&r.PriceSource, &r.HistorySource, &r.ATHSource, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Direction = models.Direction(dir)
		r.ValidationStatus = models.ValidationPassed
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
