package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"CoinOdds/internal/domain/models"
	drepo "CoinOdds/internal/domain/repository"
	dservice "CoinOdds/internal/domain/service"
	xhttp "CoinOdds/pkg/http"
	"CoinOdds/pkg/ratelimit"
	"CoinOdds/pkg/util"
)

var (
	ErrRateLimited = errors.New("coingecko: rate limited")
	ErrNoData      = errors.New("coingecko: no data")
)

const limiterKey = "coingecko"

// Client is a REST client for the CoinGecko v3 API. Every call waits on a
// shared token bucket and goes through one circuit breaker.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics drepo.Metrics

	timeout         time.Duration
	rps             float64
	burst           int
	breakerFailures uint32
	breakerTimeout  time.Duration
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func WithAPIKey(key string) Option { return func(c *Client) { c.apiKey = key } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRateLimit sets the outbound request budget.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rps
		c.burst = burst
	}
}

// WithBreaker trips the circuit after failures consecutive errors and probes again after timeout.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(c *Client) {
		c.breakerFailures = failures
		c.breakerTimeout = timeout
	}
}

func WithMetrics(m drepo.Metrics) Option { return func(c *Client) { c.metrics = m } }

var _ dservice.MarketData = (*Client)(nil)

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:         "https://api.coingecko.com/api/v3",
		timeout:         10 * time.Second,
		rps:             0.5,
		burst:           3,
		breakerFailures: 5,
		breakerTimeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = xhttp.NewClient(xhttp.WithTimeout(c.timeout))
	c.limiter = ratelimit.New(c.rps, c.burst)

	failures := c.breakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "coingecko",
		Interval: 60 * time.Second,
		Timeout:  c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A missing coin is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// State exposes the breaker state for health reporting.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, dest interface{}) error {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return fmt.Errorf("%s: wait for rate limiter: %w", op, err)
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var header http.Header
		if c.apiKey != "" {
			header = http.Header{"X-Cg-Demo-Api-Key": {c.apiKey}}
		}
		err := c.http.GetJSON(ctx, c.baseURL+path, query, header, dest)

		var se *xhttp.StatusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusTooManyRequests:
				return nil, ErrRateLimited
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s", ErrNoData, path)
			}
		}
		return nil, err
	})

	if c.metrics != nil {
		c.metrics.RecordLatency("coingecko_"+op, time.Since(start).Seconds())
		if err != nil {
			c.metrics.RecordError("coingecko_" + op)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LivePrices fetches USD quotes for all ids in one request.
func (c *Client) LivePrices(ctx context.Context, coinIDs []string) (map[string]float64, error) {
	if len(coinIDs) == 0 {
		return map[string]float64{}, nil
	}

	var resp map[string]map[string]float64
	q := url.Values{
		"ids":           {strings.Join(coinIDs, ",")},
		"vs_currencies": {"usd"},
	}
	if err := c.get(ctx, "live_prices", "/simple/price", q, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(resp))
	for id, quote := range resp {
		if p, ok := quote["usd"]; ok && p > 0 {
			out[id] = p
		}
	}
	return out, nil
}

type marketChartResponse struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// MarketChart fetches daily closes for the last days, oldest first. When a
// day has several samples the last one wins.
func (c *Client) MarketChart(ctx context.Context, symbol, coinID string, days int) ([]models.PricePoint, error) {
	var resp marketChartResponse
	q := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
		"interval":    {"daily"},
	}
	if err := c.get(ctx, "market_chart", "/coins/"+url.PathEscape(coinID)+"/market_chart", q, &resp); err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]*models.PricePoint, len(resp.Prices))
	for _, p := range resp.Prices {
		if p[1] <= 0 {
			continue
		}
		day := util.Day(util.FromUnixMillis(p[0]))
		byDay[day] = &models.PricePoint{Symbol: symbol, Date: day, Close: p[1]}
	}
	for _, mc := range resp.MarketCaps {
		if pt, ok := byDay[util.Day(util.FromUnixMillis(mc[0]))]; ok {
			pt.MarketCap = mc[1]
		}
	}
	for _, v := range resp.TotalVolumes {
		if pt, ok := byDay[util.Day(util.FromUnixMillis(v[0]))]; ok {
			pt.Volume = v[1]
		}
	}

	if len(byDay) == 0 {
		return nil, fmt.Errorf("market_chart %s: %w", coinID, ErrNoData)
	}

	out := make([]models.PricePoint, 0, len(byDay))
	for _, pt := range byDay {
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type coinResponse struct {
	MarketData struct {
		ATH     map[string]float64 `json:"ath"`
		ATHDate map[string]string  `json:"ath_date"`
	} `json:"market_data"`
}

// AllTimeHigh returns the USD all-time high and the date it was set.
func (c *Client) AllTimeHigh(ctx context.Context, coinID string) (float64, time.Time, error) {
	var resp coinResponse
	q := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"market_data":    {"true"},
		"community_data": {"false"},
		"developer_data": {"false"},
		"sparkline":      {"false"},
	}
	if err := c.get(ctx, "ath", "/coins/"+url.PathEscape(coinID), q, &resp); err != nil {
		return 0, time.Time{}, err
	}

	price := resp.MarketData.ATH["usd"]
	if price <= 0 {
		return 0, time.Time{}, fmt.Errorf("ath %s: %w", coinID, ErrNoData)
	}
	date, _ := util.ParseTime(resp.MarketData.ATHDate["usd"])
	return price, date.UTC(), nil
}

type globalResponse struct {
	Data struct {
		TotalMarketCap map[string]float64 `json:"total_market_cap"`
	} `json:"data"`
}

// GlobalMarketCap returns the current total crypto market cap in USD.
func (c *Client) GlobalMarketCap(ctx context.Context) (float64, error) {
	var resp globalResponse
	if err := c.get(ctx, "global", "/global", nil, &resp); err != nil {
		return 0, err
	}
	v := resp.Data.TotalMarketCap["usd"]
	if v <= 0 {
		return 0, fmt.Errorf("global: %w", ErrNoData)
	}
	return v, nil
}
