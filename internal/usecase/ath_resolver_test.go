package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinOdds/internal/domain/models"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/logger"
)

var athAsset = config.Asset{Symbol: "ETH", CoinID: "ethereum"}

func newResolver(store *fakeATHStore, market *fakeMarket, m *recordingMetrics) (*ATHResolver, *[]time.Duration) {
	r := NewATHResolver(store, market, config.Default().Pipeline, m, logger.NewNop())
	r.now = func() time.Time { return testNow }
	var waits []time.Duration
	r.policy.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestATHFreshCacheSkipsProvider(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	store.entries["ETH"] = models.ATHEntry{Symbol: "ETH", Price: 4878, LastUpdated: testNow.Add(-6 * 24 * time.Hour)}
	r, _ := newResolver(store, market, newRecordingMetrics())

	ath, err := r.Resolve(context.Background(), athAsset, 4000, testDate)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCache, ath.Source)
	assert.Equal(t, 4878.0, ath.Price)
	assert.Equal(t, 0, market.athCalls)
}

func TestATHTenDayOldEntryIsRefetched(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	store.entries["ETH"] = models.ATHEntry{Symbol: "ETH", Price: 4000, LastUpdated: testNow.Add(-10 * 24 * time.Hour)}
	market.ath["ethereum"] = 4878.26
	r, _ := newResolver(store, market, newRecordingMetrics())

	ath, err := r.Resolve(context.Background(), athAsset, 3500, testDate)
	require.NoError(t, err)
	assert.Equal(t, models.SourceAPI, ath.Source)
	assert.Equal(t, 4878.26, ath.Price)
	assert.Equal(t, 1, market.athCalls)

	require.Len(t, store.writes, 1)
	assert.Equal(t, 4878.26, store.writes[0].Price)
	assert.Equal(t, testNow, store.writes[0].LastUpdated)
}

func TestATHStaleCacheAfterRetries(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	store.entries["ETH"] = models.ATHEntry{Symbol: "ETH", Price: 4000, LastUpdated: testNow.Add(-30 * 24 * time.Hour)}
	market.athErr = errProvider
	m := newRecordingMetrics()
	r, waits := newResolver(store, market, m)

	ath, err := r.Resolve(context.Background(), athAsset, 3500, testDate)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStaleCache, ath.Source)
	assert.Equal(t, 4000.0, ath.Price)
	assert.Equal(t, 4, market.athCalls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *waits)
	assert.Equal(t, 1, m.Fallbacks(models.SourceStaleCache))
	assert.Empty(t, store.writes)
}

func TestATHEstimateWithoutCache(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	market.athErr = errProvider
	m := newRecordingMetrics()
	r, _ := newResolver(store, market, m)

	ath, err := r.Resolve(context.Background(), athAsset, 3500, testDate)
	require.NoError(t, err)
	assert.Equal(t, models.SourceEstimate, ath.Source)
	assert.InDelta(t, 3850, ath.Price, 1e-9)
	assert.Equal(t, testDate, ath.Date)
	assert.Equal(t, 1, m.Fallbacks(models.SourceEstimate))
}

func TestATHFailsWithoutAnyTier(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	market.athErr = errProvider
	r, _ := newResolver(store, market, newRecordingMetrics())

	_, err := r.Resolve(context.Background(), athAsset, 0, time.Time{})
	assert.ErrorIs(t, err, errProvider)
}

func TestATHCorrectedByHistoryMax(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	store.entries["ETH"] = models.ATHEntry{Symbol: "ETH", Price: 4000, LastUpdated: testNow.Add(-time.Hour)}
	r, _ := newResolver(store, market, newRecordingMetrics())

	ath, err := r.Resolve(context.Background(), athAsset, 4200, testDate)
	require.NoError(t, err)
	assert.Equal(t, models.SourceHistoryMax, ath.Source)
	assert.Equal(t, 4200.0, ath.Price)
	require.Len(t, store.writes, 1)
	assert.Equal(t, 4200.0, store.entries["ETH"].Price)
}

func TestATHZeroFromProviderIsNotRetried(t *testing.T) {
	store, market := newFakeATHStore(), newFakeMarket()
	r, _ := newResolver(store, market, newRecordingMetrics())

	ath, err := r.Resolve(context.Background(), athAsset, 100, testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, market.athCalls)
	assert.Equal(t, models.SourceEstimate, ath.Source)
}
