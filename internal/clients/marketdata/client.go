package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Client fetches candles and fundamentals over HTTP with cache-first
// behavior. Concurrent requests for the same symbol are coalesced so the
// pipeline stages fanning out over a shared ticker list hit the API once.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *CacheRepository
	history   *HistoryStore
	group     singleflight.Group
}

// NewClient creates a new market data API client.
// cacheRepo and history are optional; nil disables the respective layer.
func NewClient(baseURL string, cacheRepo *CacheRepository, history *HistoryStore, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("client", "marketdata").Logger(),
		cacheRepo: cacheRepo,
		history:   history,
	}
}

// candlesResponse is the wire form of the candles endpoint
type candlesResponse struct {
	Symbol  string   `json:"symbol"`
	Candles []Candle `json:"candles"`
}

// fundamentalsResponse is the wire form of the fundamentals endpoint
type fundamentalsResponse struct {
	Symbol   string    `json:"symbol"`
	Quarters []Quarter `json:"quarters"`
}

// DailyCandles returns up to days daily bars for the symbol, newest first
func (c *Client) DailyCandles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	// Fresh cache hit short-circuits the API entirely.
	if c.cacheRepo != nil {
		var cached []Candle
		ok, err := c.cacheRepo.GetIfFresh("daily_candles", symbol, &cached)
		if err == nil && ok && len(cached) >= days {
			c.log.Debug().Str("symbol", symbol).Int("candles", len(cached)).Msg("Cache hit")
			return trimCandles(cached, days), nil
		}
	}

	key := "candles:" + symbol + ":" + strconv.Itoa(days)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchCandles(ctx, symbol, days)
	})
	if err != nil {
		// API failed. Stale cache first, local history second.
		if candles, ok := c.staleCandles(symbol); ok {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached candles")
			return trimCandles(candles, days), nil
		}
		if c.history != nil {
			if candles, herr := c.history.DailyCandles(symbol, days); herr == nil && len(candles) > 0 {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using local history")
				return candles, nil
			}
		}
		return nil, err
	}
	return trimCandles(v.([]Candle), days), nil
}

func (c *Client) fetchCandles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	endpoint := fmt.Sprintf("%s/v1/candles?symbol=%s&days=%d", c.baseURL, url.QueryEscape(symbol), days)

	var result candlesResponse
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if len(result.Candles) == 0 {
		return nil, fmt.Errorf("no price data for %s", symbol)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("daily_candles", symbol, result.Candles, TTLDailyCandles); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache candles")
		}
	}

	c.log.Debug().Str("symbol", symbol).Int("candles", len(result.Candles)).Msg("Fetched candles")
	return result.Candles, nil
}

// QuarterlyFundamentals returns quarterly reporting periods, newest first
func (c *Client) QuarterlyFundamentals(ctx context.Context, symbol string) ([]Quarter, error) {
	if c.cacheRepo != nil {
		var cached []Quarter
		ok, err := c.cacheRepo.GetIfFresh("fundamentals", symbol, &cached)
		if err == nil && ok {
			c.log.Debug().Str("symbol", symbol).Int("quarters", len(cached)).Msg("Cache hit")
			return cached, nil
		}
	}

	v, err, _ := c.group.Do("fundamentals:"+symbol, func() (interface{}, error) {
		return c.fetchFundamentals(ctx, symbol)
	})
	if err != nil {
		if c.cacheRepo != nil {
			var stale []Quarter
			if ok, gerr := c.cacheRepo.Get("fundamentals", symbol, &stale); gerr == nil && ok {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached fundamentals")
				return stale, nil
			}
		}
		return nil, err
	}
	return v.([]Quarter), nil
}

func (c *Client) fetchFundamentals(ctx context.Context, symbol string) ([]Quarter, error) {
	endpoint := fmt.Sprintf("%s/v1/fundamentals?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	var result fundamentalsResponse
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if len(result.Quarters) == 0 {
		return nil, fmt.Errorf("no fundamentals for %s", symbol)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("fundamentals", symbol, result.Quarters, TTLFundamentals); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache fundamentals")
		}
	}
	return result.Quarters, nil
}

// Quote computes the latest close and the fractional change against the
// close windowDays sessions ago. If the series is shorter than the window,
// the earliest available close is used instead.
func (c *Client) Quote(ctx context.Context, symbol string, windowDays int) (*Quote, error) {
	// Markets close on weekends and holidays; fetch a few extra sessions.
	candles, err := c.DailyCandles(ctx, symbol, windowDays+5)
	if err != nil {
		return nil, err
	}
	return QuoteFromCandles(candles, windowDays)
}

// QuoteFromCandles derives a quote from a newest-first candle series
func QuoteFromCandles(candles []Candle, windowDays int) (*Quote, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("empty candle series")
	}

	current := candles[0].Close
	var past float64
	if len(candles) <= windowDays {
		past = candles[len(candles)-1].Close
	} else {
		past = candles[windowDays].Close
	}
	if past == 0 {
		return nil, fmt.Errorf("zero reference price")
	}

	return &Quote{
		CurrentPrice:  current,
		PercentChange: (current - past) / past,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) staleCandles(symbol string) ([]Candle, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var stale []Candle
	if ok, err := c.cacheRepo.Get("daily_candles", symbol, &stale); err == nil && ok {
		return stale, true
	}
	return nil, false
}

func trimCandles(candles []Candle, days int) []Candle {
	if days > 0 && len(candles) > days {
		return candles[:days]
	}
	return candles
}
