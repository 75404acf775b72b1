package reports

import (
	"context"
	"time"

	"folio/internal/ledger"
	"folio/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store is the slice of the persistence gateway the report generator needs.
type Store interface {
	InsertDailyReport(ctx context.Context, userID string, rep models.DailyReport) error
	ListDailyReports(ctx context.Context, userID string) ([]models.DailyReport, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
}

// Generator snapshots each user's portfolio into a daily report row. The
// write side runs on a cron schedule; reads are plain lookups.
type Generator struct {
	engine *ledger.Engine
	store  Store
	log    *logrus.Logger
}

func NewGenerator(engine *ledger.Engine, store Store, log *logrus.Logger) *Generator {
	return &Generator{engine: engine, store: store, log: log}
}

// GenerateFor writes (or overwrites) the report for one user and day from the
// live snapshot.
func (g *Generator) GenerateFor(ctx context.Context, userID string, day time.Time) error {
	snap, err := g.engine.Refresh(ctx, userID)
	if err != nil {
		return err
	}
	date := day.UTC().Format("2006-01-02")
	summary := ledger.Summarize(snap)

	count := 0
	for _, tx := range snap.Transactions {
		if tx.Date == date {
			count++
		}
	}

	return g.store.InsertDailyReport(ctx, userID, models.DailyReport{
		Date:             date,
		TotalInvested:    summary.TotalInvested,
		CurrentValue:     summary.CurrentValue,
		WinLoss:          summary.UnrealizedPL,
		TransactionCount: count,
	})
}

// RunDaily generates today's report for every user.
func (g *Generator) RunDaily(ctx context.Context) {
	users, err := g.store.ListUserIDs(ctx)
	if err != nil {
		g.log.Warnf("daily reports: list users failed: %v", err)
		return
	}
	now := time.Now().UTC()
	for _, id := range users {
		if err := g.GenerateFor(ctx, id, now); err != nil {
			g.log.Warnf("daily report failed for %s: %v", id, err)
		}
	}
}

// Schedule registers the daily run on a cron instance.
func (g *Generator) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		g.log.Info("generating daily reports")
		g.RunDaily(context.Background())
	})
	return err
}

// Backfill reconstructs reports for past days from the transaction log. With
// no historical market prices available the lots are valued at cost, so
// current value equals invested and win/loss is zero for backfilled days.
func (g *Generator) Backfill(ctx context.Context, userID string) (int, error) {
	txs, err := g.store.ListTransactions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}

	var first time.Time
	for _, tx := range txs {
		d, err := time.Parse("2006-01-02", tx.Date)
		if err != nil {
			continue
		}
		if first.IsZero() || d.Before(first) {
			first = d
		}
	}
	if first.IsZero() {
		return 0, nil
	}

	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	written := 0
	for day := first; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		invested, count := replayThrough(txs, date)
		err := g.store.InsertDailyReport(ctx, userID, models.DailyReport{
			Date:             date,
			TotalInvested:    invested,
			CurrentValue:     invested,
			WinLoss:          decimal.Zero,
			TransactionCount: count,
		})
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// replayThrough folds the log up to and including a date: per-lot quantities
// driven by Buy and Sell rows, valued at the recorded buy price.
func replayThrough(txs []models.Transaction, date string) (decimal.Decimal, int) {
	type lot struct {
		quantity decimal.Decimal
		buyPrice decimal.Decimal
	}
	lots := map[string]*lot{}
	count := 0
	for i := len(txs) - 1; i >= 0; i-- { // log is newest-first
		tx := txs[i]
		if tx.Date > date {
			continue
		}
		if tx.Date == date {
			count++
		}
		if tx.InvestmentID == "" || tx.Quantity == nil {
			continue
		}
		switch tx.Type {
		case models.TxBuy:
			l := &lot{quantity: *tx.Quantity}
			if tx.PricePerUnit != nil {
				l.buyPrice = *tx.PricePerUnit
			}
			lots[tx.InvestmentID] = l
		case models.TxSell:
			if l, ok := lots[tx.InvestmentID]; ok {
				l.quantity = l.quantity.Sub(*tx.Quantity)
			}
		}
	}
	total := decimal.Zero
	for _, l := range lots {
		if l.quantity.Cmp(decimal.Zero) > 0 {
			total = total.Add(l.quantity.Mul(l.buyPrice))
		}
	}
	return total, count
}
