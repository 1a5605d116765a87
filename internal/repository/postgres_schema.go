package repository

// PostgresSchema is applied at startup; every statement is idempotent.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS crypto_historical_prices (
		symbol      TEXT             NOT NULL,
		date        DATE             NOT NULL,
		price       DOUBLE PRECISION NOT NULL CHECK (price > 0),
		market_cap  DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume      DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, date)
	)`,
	`CREATE TABLE IF NOT EXISTS global_market_cap (
		date              DATE             PRIMARY KEY,
		total_market_cap  DOUBLE PRECISION NOT NULL CHECK (total_market_cap > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS crypto_ath_cache (
		symbol        TEXT             PRIMARY KEY,
		ath_price     DOUBLE PRECISION NOT NULL,
		ath_date      TIMESTAMPTZ      NOT NULL,
		last_updated  TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS crypto_probabilities (
		run_id                      TEXT             NOT NULL,
		symbol                      TEXT             NOT NULL,
		coin_id                     TEXT             NOT NULL,
		calculation_date            DATE             NOT NULL,
		direction                   TEXT             NOT NULL CHECK (direction IN ('rise', 'fall')),
		percentage                  DOUBLE PRECISION NOT NULL,
		probability_rise            DOUBLE PRECISION NOT NULL,
		market_flow_probability     DOUBLE PRECISION NOT NULL,
		momentum_probability        DOUBLE PRECISION NOT NULL,
		price_position_probability  DOUBLE PRECISION NOT NULL,
		current_price               DOUBLE PRECISION NOT NULL,
		min_365d                    DOUBLE PRECISION NOT NULL,
		max_365d                    DOUBLE PRECISION NOT NULL,
		ath_price                   DOUBLE PRECISION NOT NULL,
		ath_date                    TIMESTAMPTZ,
		ci_lower_log                DOUBLE PRECISION NOT NULL,
		ci_upper_log                DOUBLE PRECISION NOT NULL,
		log_price_mean              DOUBLE PRECISION NOT NULL,
		log_price_stddev            DOUBLE PRECISION NOT NULL,
		price_source                TEXT             NOT NULL,
		history_source              TEXT             NOT NULL,
		ath_source                  TEXT             NOT NULL,
		validation_status           TEXT             NOT NULL,
		created_at                  TIMESTAMPTZ      NOT NULL DEFAULT now(),
		PRIMARY KEY (symbol, calculation_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crypto_probabilities_date ON crypto_probabilities (calculation_date DESC)`,
}
