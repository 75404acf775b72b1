package reports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"folio/internal/ledger"
	"folio/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// fakeStore backs both the report generator and the ledger engine in these
// tests.
type fakeStore struct {
	profile models.Profile
	invs    []models.Investment
	txs     []models.Transaction
	reports map[string]models.DailyReport
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: map[string]models.DailyReport{}}
}

func (f *fakeStore) InsertDailyReport(_ context.Context, _ string, rep models.DailyReport) error {
	f.reports[rep.Date] = rep
	return nil
}

func (f *fakeStore) ListDailyReports(_ context.Context, _ string) ([]models.DailyReport, error) {
	out := []models.DailyReport{}
	for _, r := range f.reports {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ListUserIDs(_ context.Context) ([]string, error) {
	return []string{"user-1"}, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, _ string) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0, len(f.txs))
	for i := len(f.txs) - 1; i >= 0; i-- {
		out = append(out, f.txs[i])
	}
	return out, nil
}

func (f *fakeStore) GetProfile(_ context.Context, _ string) (models.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) UpdateCapital(_ context.Context, _ string, capital decimal.Decimal) error {
	f.profile.Capital = capital
	return nil
}

func (f *fakeStore) ListInvestments(_ context.Context, _ string) ([]models.Investment, error) {
	return append([]models.Investment{}, f.invs...), nil
}

func (f *fakeStore) GetInvestment(_ context.Context, _, id string) (models.Investment, error) {
	for _, inv := range f.invs {
		if inv.ID == id {
			return inv, nil
		}
	}
	return models.Investment{}, ledger.ErrNotFound
}

func (f *fakeStore) InsertInvestment(_ context.Context, _ string, inv models.Investment) (string, error) {
	inv.ID = fmt.Sprintf("inv-%d", len(f.invs)+1)
	f.invs = append(f.invs, inv)
	return inv.ID, nil
}

func (f *fakeStore) UpdateInvestment(_ context.Context, _, _ string, _ ledger.InvestmentPatch) error {
	return nil
}

func (f *fakeStore) DeleteInvestment(_ context.Context, _, _ string) error { return nil }

func (f *fakeStore) GetTransaction(_ context.Context, _, _ string) (models.Transaction, error) {
	return models.Transaction{}, ledger.ErrNotFound
}

func (f *fakeStore) InsertTransaction(_ context.Context, _ string, tx models.Transaction) (string, error) {
	tx.ID = fmt.Sprintf("tx-%d", len(f.txs)+1)
	f.txs = append(f.txs, tx)
	return tx.ID, nil
}

func (f *fakeStore) DeleteTransaction(_ context.Context, _, _ string) error { return nil }

func (f *fakeStore) DeleteTransactionsByInvestment(_ context.Context, _, _ string) error {
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestGenerateForSnapshotsSummary(t *testing.T) {
	store := newFakeStore()
	store.profile = models.Profile{Capital: dec("250")}
	store.invs = []models.Investment{
		{
			ID: "inv-1", Symbol: "AAPL", Type: models.TypeStock, Status: models.StatusActive,
			Quantity: dec("10"), BuyPrice: dec("50"), CurrentPrice: decPtr("60"),
			TotalInvested: dec("500"), PurchaseDate: "2024-01-02",
		},
	}
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.txs = []models.Transaction{
		{Type: models.TxDeposit, Amount: dec("1000"), Date: "2024-01-01"},
		{Type: models.TxBuy, Amount: dec("500"), Date: "2024-03-01", InvestmentID: "inv-1"},
	}

	engine := ledger.NewEngine(store, quietLogger())
	gen := NewGenerator(engine, store, quietLogger())

	require.NoError(t, gen.GenerateFor(context.Background(), "user-1", day))

	rep, ok := store.reports["2024-03-01"]
	require.True(t, ok)
	assert.True(t, rep.TotalInvested.Equal(dec("500")))
	assert.True(t, rep.CurrentValue.Equal(dec("600")))
	assert.True(t, rep.WinLoss.Equal(dec("100")))
	assert.Equal(t, 1, rep.TransactionCount, "only that day's transactions counted")
}

func TestBackfillReplaysTransactionLog(t *testing.T) {
	store := newFakeStore()
	qty10 := decPtr("10")
	qty4 := decPtr("4")
	price50 := decPtr("50")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	twoDaysAgo := time.Now().UTC().AddDate(0, 0, -2).Format("2006-01-02")

	store.txs = []models.Transaction{
		{Type: models.TxDeposit, Amount: dec("1000"), Date: twoDaysAgo},
		{Type: models.TxBuy, Amount: dec("500"), Date: twoDaysAgo, InvestmentID: "inv-1", Quantity: qty10, PricePerUnit: price50},
		{Type: models.TxSell, Amount: dec("240"), Date: yesterday, InvestmentID: "inv-1", Quantity: qty4, PricePerUnit: decPtr("60")},
	}

	engine := ledger.NewEngine(store, quietLogger())
	gen := NewGenerator(engine, store, quietLogger())

	n, err := gen.Backfill(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first := store.reports[twoDaysAgo]
	assert.True(t, first.TotalInvested.Equal(dec("500")), "10 units at cost, got %s", first.TotalInvested)
	assert.Equal(t, 2, first.TransactionCount)

	second := store.reports[yesterday]
	assert.True(t, second.TotalInvested.Equal(dec("300")), "6 units left at cost, got %s", second.TotalInvested)
	assert.Equal(t, 1, second.TransactionCount)
}

func TestBackfillEmptyLog(t *testing.T) {
	store := newFakeStore()
	engine := ledger.NewEngine(store, quietLogger())
	gen := NewGenerator(engine, store, quietLogger())

	n, err := gen.Backfill(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
