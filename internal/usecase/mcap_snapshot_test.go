package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinOdds/pkg/logger"
)

func TestMarketCapSnapshotUpsertsToday(t *testing.T) {
	market := newFakeMarket()
	market.globalCap = 2.45e12
	store := &fakeMarketCaps{points: capSeries(3)}

	s := NewMarketCapSnapshot(market, store, newRecordingMetrics(), logger.NewNop())
	s.now = func() time.Time { return testNow }

	p, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testDate, p.Date)

	latest, err := store.Latest(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2.45e12, latest[0].TotalMarketCap)

	// same day overwrites
	market.globalCap = 2.5e12
	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.points, 4)
}

func TestMarketCapSnapshotProviderFailure(t *testing.T) {
	m := newRecordingMetrics()
	s := NewMarketCapSnapshot(newFakeMarket(), &fakeMarketCaps{}, m, logger.NewNop())

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, errProvider)
	assert.Equal(t, 1, m.errors["global_market_cap"])
}
