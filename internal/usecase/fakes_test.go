package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
)

var errProvider = errors.New("provider unavailable")

type fakeMarket struct {
	mu         sync.Mutex
	live       map[string]float64
	liveErr    error
	charts     map[string][]models.PricePoint
	chartCalls map[string]int
	ath        map[string]float64
	athErr     error
	athCalls   int
	globalCap  float64
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		live:       map[string]float64{},
		charts:     map[string][]models.PricePoint{},
		chartCalls: map[string]int{},
		ath:        map[string]float64{},
	}
}

func (m *fakeMarket) LivePrices(_ context.Context, ids []string) (map[string]float64, error) {
	if m.liveErr != nil {
		return nil, m.liveErr
	}
	out := map[string]float64{}
	for _, id := range ids {
		if p, ok := m.live[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *fakeMarket) MarketChart(_ context.Context, _, coinID string, _ int) ([]models.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chartCalls[coinID]++
	rows, ok := m.charts[coinID]
	if !ok {
		return nil, errProvider
	}
	return rows, nil
}

func (m *fakeMarket) AllTimeHigh(_ context.Context, coinID string) (float64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.athCalls++
	if m.athErr != nil {
		return 0, time.Time{}, m.athErr
	}
	return m.ath[coinID], time.Date(2021, 11, 10, 0, 0, 0, 0, time.UTC), nil
}

func (m *fakeMarket) GlobalMarketCap(context.Context) (float64, error) {
	if m.globalCap == 0 {
		return 0, errProvider
	}
	return m.globalCap, nil
}

type fakePrices struct {
	rows map[string][]models.PricePoint
}

func (f *fakePrices) History(_ context.Context, symbol string, from time.Time) ([]models.PricePoint, error) {
	var out []models.PricePoint
	for _, r := range f.rows[symbol] {
		if !r.Date.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeMarketCaps struct {
	points []models.MarketCapPoint
}

func (f *fakeMarketCaps) Latest(_ context.Context, n int) ([]models.MarketCapPoint, error) {
	out := append([]models.MarketCapPoint(nil), f.points...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeMarketCaps) Upsert(_ context.Context, p models.MarketCapPoint) error {
	for i, e := range f.points {
		if e.Date.Equal(p.Date) {
			f.points[i] = p
			return nil
		}
	}
	f.points = append(f.points, p)
	return nil
}

type fakeATHStore struct {
	mu      sync.Mutex
	entries map[string]models.ATHEntry
	writes  []models.ATHEntry
}

func newFakeATHStore() *fakeATHStore {
	return &fakeATHStore{entries: map[string]models.ATHEntry{}}
}

func (f *fakeATHStore) Get(_ context.Context, symbol string) (*models.ATHEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[symbol]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &e, nil
}

func (f *fakeATHStore) Upsert(_ context.Context, e models.ATHEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.Symbol] = e
	f.writes = append(f.writes, e)
	return nil
}

type commit struct {
	results  []models.ProbabilityResult
	backfill []models.PricePoint
}

type fakeResults struct {
	commits []commit
	err     error
}

func (f *fakeResults) Commit(_ context.Context, results []models.ProbabilityResult, backfill []models.PricePoint) error {
	if f.err != nil {
		return f.err
	}
	f.commits = append(f.commits, commit{results: results, backfill: backfill})
	return nil
}

func (f *fakeResults) Latest(context.Context, string) ([]models.ProbabilityResult, error) {
	if len(f.commits) == 0 {
		return nil, nil
	}
	return f.commits[len(f.commits)-1].results, nil
}

type fakeArchive struct {
	archived [][]models.ProbabilityResult
}

func (f *fakeArchive) Archive(_ context.Context, results []models.ProbabilityResult) error {
	f.archived = append(f.archived, results)
	return nil
}

func (f *fakeArchive) History(context.Context, string, int) ([]models.ProbabilityResult, error) {
	return nil, nil
}

type fakePublisher struct {
	runs []*models.RunSummary
	err  error
}

func (f *fakePublisher) PublishRun(_ context.Context, s *models.RunSummary) error {
	f.runs = append(f.runs, s)
	return f.err
}

type recordingMetrics struct {
	mu        sync.Mutex
	runs      map[string]int
	failures  map[string]int
	fallbacks map[string]int
	errors    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		runs:      map[string]int{},
		failures:  map[string]int{},
		fallbacks: map[string]int{},
		errors:    map[string]int{},
	}
}

func (m *recordingMetrics) RecordRun(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[outcome]++
}

func (m *recordingMetrics) RecordValidationFailure(check string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[check]++
}

func (m *recordingMetrics) RecordFallback(tier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[tier]++
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *recordingMetrics) Fallbacks(tier string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbacks[tier]
}

func (m *recordingMetrics) RecordAssetsCalculated(int)        {}
func (m *recordingMetrics) RecordProbability(string, float64) {}
func (m *recordingMetrics) RecordLatency(string, float64)     {}
