package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// coinIDs maps common ticker symbols to CoinGecko ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOT":   "polkadot",
	"DOGE":  "dogecoin",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"ATOM":  "cosmos",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"NEAR":  "near",
	"APT":   "aptos",
	"ARB":   "arbitrum",
	"OP":    "optimism",
}

// CoinGeckoClient resolves crypto symbols through the free simple-price
// endpoint, quoting directly in the requested currency.
type CoinGeckoClient struct {
	cli      *http.Client
	currency string
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

func NewCoinGeckoClient(currency string) *CoinGeckoClient {
	return &CoinGeckoClient{
		cli:      &http.Client{Timeout: 8 * time.Second},
		currency: strings.ToLower(currency),
		ttl:      60 * time.Second,
		cache:    make(map[string]cachedQuote),
	}
}

func (c *CoinGeckoClient) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	id, ok := coinIDs[symbol]
	if !ok {
		// Unmapped coins: try the lowercase symbol as an id.
		id = strings.ToLower(symbol)
	}

	c.mu.RLock()
	if q, ok := c.cache[symbol]; ok && time.Since(q.fetched) < c.ttl {
		c.mu.RUnlock()
		return q.price, q.currency, nil
	}
	c.mu.RUnlock()

	url := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=%s", id, c.currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, "", err
	}
	resp, err := c.cli.Do(req)
	if err != nil {
		return decimal.Zero, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, "", fmt.Errorf("coingecko http %d", resp.StatusCode)
	}

	var raw map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return decimal.Zero, "", err
	}
	val, ok := raw[id][c.currency]
	if !ok || val <= 0 {
		return decimal.Zero, "", ErrNoQuote
	}

	price := decimal.NewFromFloat(val)
	currency := strings.ToUpper(c.currency)
	c.mu.Lock()
	c.cache[symbol] = cachedQuote{price: price, currency: currency, fetched: time.Now()}
	c.mu.Unlock()
	return price, currency, nil
}
