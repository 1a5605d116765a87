package models

import "time"

type Direction string

const (
	DirectionRise Direction = "rise"
	DirectionFall Direction = "fall"
)

// Where a value used by a calculation came from.
const (
	SourceLive         = "live"
	SourceHistoryClose = "history_close"
	SourceDatabase     = "database"
	SourceAPI          = "api"
	SourceCache        = "cache"
	SourceStaleCache   = "stale_cache"
	SourceEstimate     = "estimate"
	SourceHistoryMax   = "history_max"
)

const ValidationPassed = "passed"

// PricePoint is one daily close of an asset.
type PricePoint struct {
	Symbol    string    `db:"symbol" json:"symbol"`
	Date      time.Time `db:"date" json:"date"`
	Close     float64   `db:"price" json:"price"`
	MarketCap float64   `db:"market_cap" json:"market_cap"`
	Volume    float64   `db:"volume" json:"volume"`
}

// MarketCapPoint is one daily observation of the aggregate crypto market cap.
type MarketCapPoint struct {
	Date           time.Time `db:"date" json:"date"`
	TotalMarketCap float64   `db:"total_market_cap" json:"total_market_cap"`
}

// ATHEntry caches an asset's all-time high.
type ATHEntry struct {
	Symbol      string    `db:"symbol" json:"symbol"`
	Price       float64   `db:"ath_price" json:"ath_price"`
	Date        time.Time `db:"ath_date" json:"ath_date"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// ProbabilityResult is one published row per (symbol, calculation_date).
type ProbabilityResult struct {
	RunID           string    `db:"run_id" json:"run_id"`
	Symbol          string    `db:"symbol" json:"symbol"`
	CoinID          string    `db:"coin_id" json:"coin_id"`
	CalculationDate time.Time `db:"calculation_date" json:"calculation_date"`

	Direction  Direction `db:"direction" json:"direction"`
	Percentage float64   `db:"percentage" json:"percentage"`

	ProbabilityRise          float64 `db:"probability_rise" json:"probability_rise"`
	MarketFlowProbability    float64 `db:"market_flow_probability" json:"market_flow_probability"`
	MomentumProbability      float64 `db:"momentum_probability" json:"momentum_probability"`
	PricePositionProbability float64 `db:"price_position_probability" json:"price_position_probability"`

	CurrentPrice float64   `db:"current_price" json:"current_price"`
	Min365       float64   `db:"min_365d" json:"min_365d"`
	Max365       float64   `db:"max_365d" json:"max_365d"`
	ATHPrice     float64   `db:"ath_price" json:"ath_price"`
	ATHDate      time.Time `db:"ath_date" json:"ath_date"`

	CILowerLog     float64 `db:"ci_lower_log" json:"ci_lower_log"`
	CIUpperLog     float64 `db:"ci_upper_log" json:"ci_upper_log"`
	LogPriceMean   float64 `db:"log_price_mean" json:"log_price_mean"`
	LogPriceStdDev float64 `db:"log_price_stddev" json:"log_price_stddev"`

	PriceSource      string    `db:"price_source" json:"price_source"`
	HistorySource    string    `db:"history_source" json:"history_source"`
	ATHSource        string    `db:"ath_source" json:"ath_source"`
	ValidationStatus string    `db:"validation_status" json:"validation_status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Diagnostics carries the shared component values of one run.
type Diagnostics struct {
	MarketFlowProbability float64 `json:"market_flow_probability"`
	Flow10d               float64 `json:"flow_10d"`
	Flow40d               float64 `json:"flow_40d"`
	MomentumProbability   float64 `json:"momentum_probability"`
	Formula               string  `json:"formula"`
}

// RunSummary is the JSON object produced by one calculation run.
type RunSummary struct {
	Success          bool                `json:"success"`
	RunID            string              `json:"run_id"`
	CalculationDate  time.Time           `json:"calculation_date"`
	Diagnostics      *Diagnostics        `json:"diagnostics,omitempty"`
	Calculated       int                 `json:"cryptos_calculated"`
	Validated        int                 `json:"cryptos_validated"`
	FallbackUsed     int                 `json:"fallback_used"`
	Skipped          []string            `json:"skipped,omitempty"`
	ValidationErrors []string            `json:"validation_errors,omitempty"`
	Results          []ProbabilityResult `json:"results,omitempty"`
	FromCache        bool                `json:"from_cache"`
	Error            string              `json:"error,omitempty"`
}
