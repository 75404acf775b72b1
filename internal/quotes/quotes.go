package quotes

import (
	"context"
	"time"

	"folio/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Quote is the resolved price of one symbol. Price is nil when the lookup
// failed; Err then carries the reason. Prices leaving the service are always
// in the base currency.
type Quote struct {
	Symbol   string           `json:"symbol"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
	Err      string           `json:"error,omitempty"`
}

// PriceApplier is the slice of the ledger engine the updater pushes prices
// into.
type PriceApplier interface {
	ApplyQuotes(ctx context.Context, userID string, prices map[string]decimal.Decimal) error
	ActiveSymbols(ctx context.Context, userID string) (map[string]models.InvestmentType, error)
}

// UserSource lists the users whose lots the background updater refreshes.
type UserSource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Service routes symbols to the right upstream (Yahoo for listed instruments,
// CoinGecko for crypto) and converts everything to the base currency before
// it reaches the ledger.
type Service struct {
	yahoo  *YahooClient
	crypto *CoinGeckoClient
	base   string
	log    *logrus.Logger
}

func NewService(base string, log *logrus.Logger) *Service {
	return &Service{
		yahoo:  NewYahooClient(),
		crypto: NewCoinGeckoClient(base),
		base:   base,
		log:    log,
	}
}

// GetQuote resolves one symbol. Lookup failures come back inside the Quote
// rather than as an error so that batch callers can keep going.
func (s *Service) GetQuote(ctx context.Context, symbol string, typ models.InvestmentType) Quote {
	var (
		price    decimal.Decimal
		currency string
		err      error
	)
	if typ == models.TypeCrypto {
		price, currency, err = s.crypto.GetQuote(ctx, symbol)
	} else {
		price, currency, err = s.yahoo.GetQuote(ctx, symbol)
	}
	if err != nil {
		return Quote{Symbol: symbol, Currency: s.base, Err: err.Error()}
	}

	if currency != s.base {
		rate, rerr := s.yahoo.GetRate(ctx, currency, s.base)
		if rerr != nil {
			return Quote{Symbol: symbol, Currency: s.base, Err: rerr.Error()}
		}
		price = price.Mul(rate)
		currency = s.base
	}
	return Quote{Symbol: symbol, Price: &price, Currency: currency}
}

// FetchPrices resolves a batch of symbols, dropping the ones that failed.
func (s *Service) FetchPrices(ctx context.Context, symbols map[string]models.InvestmentType) map[string]decimal.Decimal {
	prices := map[string]decimal.Decimal{}
	for sym, typ := range symbols {
		q := s.GetQuote(ctx, sym, typ)
		if q.Price == nil {
			s.log.Warnf("quote failed for %s: %s", sym, q.Err)
			continue
		}
		prices[sym] = *q.Price
	}
	return prices
}

// Updater periodically refreshes current prices for every user's unsold lots.
type Updater struct {
	svc    *Service
	ledger PriceApplier
	users  UserSource
	log    *logrus.Logger
}

func NewUpdater(svc *Service, ledger PriceApplier, users UserSource, log *logrus.Logger) *Updater {
	return &Updater{svc: svc, ledger: ledger, users: users, log: log}
}

// RefreshUser fetches quotes for one user's active symbols and applies them.
// Returns how many symbols got a fresh price.
func (u *Updater) RefreshUser(ctx context.Context, userID string) (int, error) {
	symbols, err := u.ledger.ActiveSymbols(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(symbols) == 0 {
		return 0, nil
	}
	prices := u.svc.FetchPrices(ctx, symbols)
	if len(prices) == 0 {
		return 0, nil
	}
	if err := u.ledger.ApplyQuotes(ctx, userID, prices); err != nil {
		return 0, err
	}
	return len(prices), nil
}

// Start launches the background refresh loop.
func (u *Updater) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				u.log.Info("price updater stopping")
				return
			case <-ticker.C:
				users, err := u.users.ListUserIDs(ctx)
				if err != nil {
					u.log.Warnf("failed to list users: %v", err)
					continue
				}
				for _, id := range users {
					if n, err := u.RefreshUser(ctx, id); err != nil {
						u.log.Warnf("price refresh failed for %s: %v", id, err)
					} else if n > 0 {
						u.log.Debugf("refreshed %d prices for %s", n, id)
					}
				}
			}
		}
	}()
}
