package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoQuote = errors.New("quotes: no quote for symbol")

// YahooClient resolves stock/ETF/fund/bond symbols through the Yahoo Finance
// chart endpoint, with a small TTL cache in front.
type YahooClient struct {
	cli *http.Client
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	price    decimal.Decimal
	currency string
	fetched  time.Time
}

func NewYahooClient() *YahooClient {
	return &YahooClient{
		cli:   &http.Client{Timeout: 8 * time.Second},
		ttl:   60 * time.Second,
		cache: make(map[string]cachedQuote),
	}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				Currency           string  `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func (y *YahooClient) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, "", ErrNoQuote
	}

	y.mu.RLock()
	if c, ok := y.cache[symbol]; ok && time.Since(c.fetched) < y.ttl {
		y.mu.RUnlock()
		return c.price, c.currency, nil
	}
	y.mu.RUnlock()

	price, currency, err := y.fetch(ctx, symbol, 2)
	if err != nil {
		return decimal.Zero, "", err
	}

	y.mu.Lock()
	y.cache[symbol] = cachedQuote{price: price, currency: currency, fetched: time.Now()}
	y.mu.Unlock()
	return price, currency, nil
}

func (y *YahooClient) fetch(ctx context.Context, symbol string, retries int) (decimal.Decimal, string, error) {
	url := fmt.Sprintf("https://query2.finance.yahoo.com/v8/finance/chart/%s?interval=1m&range=1d", symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, "", err
	}
	req.Header.Set("User-Agent", "folio/1.0")

	resp, err := y.cli.Do(req)
	if err != nil {
		return decimal.Zero, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests && retries > 0 {
		select {
		case <-ctx.Done():
			return decimal.Zero, "", ctx.Err()
		case <-time.After(time.Second):
		}
		return y.fetch(ctx, symbol, retries-1)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, "", fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	var raw yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return decimal.Zero, "", err
	}
	if len(raw.Chart.Result) == 0 {
		return decimal.Zero, "", ErrNoQuote
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	if price <= 0 && len(r.Timestamp) > 0 && len(r.Indicators.Quote) > 0 && len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
		// Last non-zero close when the meta price is missing.
		for i := len(r.Timestamp) - 1; i >= 0; i-- {
			if c := r.Indicators.Quote[0].Close[i]; c > 0 {
				price = c
				break
			}
		}
	}
	if price <= 0 {
		return decimal.Zero, "", ErrNoQuote
	}
	currency := r.Meta.Currency
	if currency == "" {
		currency = "USD"
	}
	return decimal.NewFromFloat(price), currency, nil
}

// GetRate returns how many units of `to` one unit of `from` buys, via the
// Yahoo FX pseudo-symbols (e.g. USDEUR=X).
func (y *YahooClient) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, _, err := y.GetQuote(ctx, fmt.Sprintf("%s%s=X", from, to))
	return rate, err
}
