package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		// Requests per second allowed per client IP on the calculate endpoints.
		CalculateRPS   float64 `yaml:"calculate_rps" default:"0.2"`
		CalculateBurst int     `yaml:"calculate_burst" default:"2"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		QueryTimeout    time.Duration `yaml:"query_timeout" default:"10s"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"coinodds"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ResultsTopic string   `yaml:"results_topic" default:"probability-results"`
		RecalcTopic  string   `yaml:"recalc_topic" default:"probability-recalc-requests"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coinodds-recalc"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coinodds"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	CoinGecko struct {
		BaseURL string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
		// Outbound request budget shared by every call to the provider.
		RPS   float64 `yaml:"rps" default:"0.5"`
		Burst int     `yaml:"burst" default:"3"`
		// Consecutive failures before the circuit opens.
		BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"60s"`
	} `yaml:"coingecko"`
	Assets     []Asset    `yaml:"assets"`
	Scoring    Scoring    `yaml:"scoring"`
	Validation Validation `yaml:"validation"`
	Pipeline   Pipeline   `yaml:"pipeline"`
}

// Asset maps a ticker symbol to the market-data provider's coin id.
type Asset struct {
	Symbol string `yaml:"symbol"`
	CoinID string `yaml:"coin_id"`
}

// FlowWindow is the policy for one market-cap flow window.
type FlowWindow struct {
	Days       int     `yaml:"days"`
	MinReturns int     `yaml:"min_returns"`
	Slope      float64 `yaml:"slope"`
	Weight     float64 `yaml:"weight"`
	// Absolute USD delta above which the logit boost applies.
	Threshold float64 `yaml:"threshold"`
	Norm      float64 `yaml:"norm"`
	Gamma     float64 `yaml:"gamma"`
}

// Scoring holds every policy constant of the probability model.
type Scoring struct {
	Flow10 FlowWindow `yaml:"flow_10d"`
	Flow40 FlowWindow `yaml:"flow_40d"`

	// Capital outflow reads as bullish. Kept as policy, not derived.
	FlowClampMin float64 `yaml:"flow_clamp_min" default:"0.05"`
	FlowClampMax float64 `yaml:"flow_clamp_max" default:"0.95"`

	ReferenceSymbol    string  `yaml:"reference_symbol" default:"BTC"`
	MomentumDays       int     `yaml:"momentum_days" default:"10"`
	MomentumMinReturns int     `yaml:"momentum_min_returns" default:"8"`
	MomentumSlope      float64 `yaml:"momentum_slope" default:"1.6"`
	MomentumClampMin   float64 `yaml:"momentum_clamp_min" default:"0.10"`
	MomentumClampMax   float64 `yaml:"momentum_clamp_max" default:"0.90"`

	PriceSlope    float64 `yaml:"price_slope" default:"1.2"`
	PriceClampMin float64 `yaml:"price_clamp_min" default:"0.05"`
	PriceClampMax float64 `yaml:"price_clamp_max" default:"0.95"`
	BandZ         float64 `yaml:"band_z" default:"1.96"`

	WeightFlow     float64 `yaml:"weight_flow" default:"0.55"`
	WeightMomentum float64 `yaml:"weight_momentum" default:"0.25"`
	WeightPrice    float64 `yaml:"weight_price" default:"0.20"`

	Epsilon float64 `yaml:"epsilon" default:"1e-10"`
}

// SetDefaults fills the flow windows, which creasty/defaults cannot reach
// through the shared FlowWindow type.
func (s *Scoring) SetDefaults() {
	if s.Flow10.Days == 0 {
		s.Flow10 = FlowWindow{Days: 10, MinReturns: 8, Slope: 1.8, Weight: 0.35, Threshold: 100e9, Norm: 200e9, Gamma: 0.8}
	}
	if s.Flow40.Days == 0 {
		s.Flow40 = FlowWindow{Days: 40, MinReturns: 30, Slope: 1.4, Weight: 0.20, Threshold: 200e9, Norm: 400e9, Gamma: 0.6}
	}
}

type Validation struct {
	// Runtime shadow recompute. Determinism is covered by tests, so it is off by default.
	ShadowEnabled   bool    `yaml:"shadow_enabled"`
	ShadowTolerance float64 `yaml:"shadow_tolerance" default:"0.001"`
	SharedTolerance float64 `yaml:"shared_tolerance" default:"1e-9"`
	// Minimum spread of final probabilities across a batch (0.01 = 1pp).
	MinDispersion float64 `yaml:"min_dispersion" default:"0.01"`
}

type Pipeline struct {
	Cron     string `yaml:"cron" default:"0 5 * * * *"`
	MCapCron string `yaml:"mcap_cron" default:"0 10 0 * * *"`
	// Upper bound for one scheduled job, including the safe wrapper's retries.
	JobTimeout time.Duration `yaml:"job_timeout" default:"5m"`
	// Held while a recalculation request from the topic is being served.
	RecalcLockTTL time.Duration `yaml:"recalc_lock_ttl" default:"2m"`

	HistoryDays    int           `yaml:"history_days" default:"365"`
	MinHistoryRows int           `yaml:"min_history_rows" default:"30"`
	AssetPause     time.Duration `yaml:"asset_pause" default:"100ms"`

	ATHMaxAge         time.Duration `yaml:"ath_max_age" default:"168h"`
	ATHEstimateFactor float64       `yaml:"ath_estimate_factor" default:"1.1"`
	ATHRetry          RetryPolicy   `yaml:"ath_retry"`

	Safe struct {
		Timeout     time.Duration `yaml:"timeout" default:"25s"`
		MaxAttempts int           `yaml:"max_attempts" default:"3"`
		BaseDelay   time.Duration `yaml:"base_delay" default:"1s"`
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"4h"`
	} `yaml:"safe"`
}

type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" default:"4"`
	BaseDelay   time.Duration `yaml:"base_delay" default:"2s"`
	Multiplier  float64       `yaml:"multiplier" default:"2"`
	MaxDelay    time.Duration `yaml:"max_delay" default:"8s"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default returns a configuration holding only default values.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("COINGECKO_API_KEY"); v != "" {
		c.CoinGecko.APIKey = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("ASSETS"); v != "" {
		assets, err := ParseAssets(v)
		if err != nil {
			return err
		}
		c.Assets = assets
	}
	if v := getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// ParseAssets reads a "BTC:bitcoin,ETH:ethereum" list.
func ParseAssets(s string) ([]Asset, error) {
	var out []Asset
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, id, ok := strings.Cut(part, ":")
		if !ok || sym == "" || id == "" {
			return nil, fmt.Errorf("invalid asset %q, want SYMBOL:coin-id", part)
		}
		out = append(out, Asset{Symbol: strings.ToUpper(sym), CoinID: id})
	}
	return out, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("assets cannot be empty")
	}
	seen := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.Symbol == "" || a.CoinID == "" {
			return fmt.Errorf("asset entries need symbol and coin_id")
		}
		if seen[a.Symbol] {
			return fmt.Errorf("duplicate asset symbol '%s'", a.Symbol)
		}
		seen[a.Symbol] = true
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return c.Scoring.Validate()
}

// Validate checks that weights are positive and clamp ranges are ordered.
func (s *Scoring) Validate() error {
	if s.WeightFlow <= 0 || s.WeightMomentum <= 0 || s.WeightPrice <= 0 {
		return fmt.Errorf("scoring weights must be positive")
	}
	if sum := s.WeightFlow + s.WeightMomentum + s.WeightPrice; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1, got %.4f", sum)
	}
	for _, w := range []FlowWindow{s.Flow10, s.Flow40} {
		if w.Days < 2 || w.MinReturns < 1 || w.MinReturns > w.Days {
			return fmt.Errorf("flow window %dd: min_returns must be in [1, days]", w.Days)
		}
		if w.Norm <= 0 {
			return fmt.Errorf("flow window %dd: norm must be positive", w.Days)
		}
	}
	if s.FlowClampMin >= s.FlowClampMax || s.MomentumClampMin >= s.MomentumClampMax || s.PriceClampMin >= s.PriceClampMax {
		return fmt.Errorf("scoring clamp ranges must satisfy min < max")
	}
	if s.ReferenceSymbol == "" {
		return fmt.Errorf("scoring.reference_symbol is required")
	}
	return nil
}
