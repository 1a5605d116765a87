package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
assets:
  - { symbol: BTC, coin_id: bitcoin }
  - { symbol: ETH, coin_id: ethereum }
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 365, c.Pipeline.HistoryDays)
	assert.Equal(t, 30, c.Pipeline.MinHistoryRows)
	assert.Equal(t, 100*time.Millisecond, c.Pipeline.AssetPause)
	assert.Equal(t, 7*24*time.Hour, c.Pipeline.ATHMaxAge)
	assert.Equal(t, 1.1, c.Pipeline.ATHEstimateFactor)
	assert.Equal(t, 4, c.Pipeline.ATHRetry.MaxAttempts)
	assert.Equal(t, 2*time.Second, c.Pipeline.ATHRetry.BaseDelay)
	assert.Equal(t, 25*time.Second, c.Pipeline.Safe.Timeout)
	assert.Equal(t, 3, c.Pipeline.Safe.MaxAttempts)
	assert.Equal(t, 4*time.Hour, c.Pipeline.Safe.CacheTTL)

	assert.False(t, c.Validation.ShadowEnabled)
	assert.Equal(t, 0.001, c.Validation.ShadowTolerance)
	assert.Equal(t, 1e-9, c.Validation.SharedTolerance)
	assert.Equal(t, 0.01, c.Validation.MinDispersion)

	s := c.Scoring
	assert.Equal(t, 10, s.Flow10.Days)
	assert.Equal(t, 8, s.Flow10.MinReturns)
	assert.Equal(t, 40, s.Flow40.Days)
	assert.Equal(t, 30, s.Flow40.MinReturns)
	assert.Equal(t, 100e9, s.Flow10.Threshold)
	assert.Equal(t, 0.6, s.Flow40.Gamma)
	assert.InDelta(t, 1.0, s.WeightFlow+s.WeightMomentum+s.WeightPrice, 1e-12)
	assert.Equal(t, "BTC", s.ReferenceSymbol)
}

func TestSampleConfigLoads(t *testing.T) {
	c, err := Load("../../config/config.yaml")
	require.NoError(t, err)
	assert.Len(t, c.Assets, 7)
	assert.Equal(t, "probability-recalc-requests.dlq", c.Kafka.Consumer.DLQTopic)
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"COINGECKO_API_KEY": "cg-key",
		"POSTGRES_DSN":      "postgres://x",
		"REDIS_ADDR":        "redis:6379",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"ASSETS":            "btc:bitcoin, sol:solana",
		"HTTP_PORT":         "9090",
	}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "cg-key", c.CoinGecko.APIKey)
	assert.Equal(t, "postgres://x", c.Postgres.DSN)
	assert.True(t, c.Redis.Enabled)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, []Asset{{Symbol: "BTC", CoinID: "bitcoin"}, {Symbol: "SOL", CoinID: "solana"}}, c.Assets)
	assert.Equal(t, 9090, c.Server.Port)
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	c := Default()
	err := c.applyEnv(func(k string) string {
		if k == "HTTP_PORT" {
			return "eighty"
		}
		return ""
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestParseAssets(t *testing.T) {
	_, err := ParseAssets("BTC")
	assert.Error(t, err)

	got, err := ParseAssets("eth:ethereum,,")
	require.NoError(t, err)
	assert.Equal(t, []Asset{{Symbol: "ETH", CoinID: "ethereum"}}, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no assets", func(c *Config) { c.Assets = nil }, "assets cannot be empty"},
		{"duplicate symbol", func(c *Config) { c.Assets = append(c.Assets, Asset{Symbol: "BTC", CoinID: "x"}) }, "duplicate asset"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"weights off", func(c *Config) { c.Scoring.WeightPrice = 0.5 }, "sum to 1"},
		{"inverted clamp", func(c *Config) { c.Scoring.PriceClampMin = 0.99 }, "min < max"},
		{"bad window", func(c *Config) { c.Scoring.Flow40.MinReturns = 41 }, "min_returns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(minimal))
			require.NoError(t, err)
			tt.mutate(c)
			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
