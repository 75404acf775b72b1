package database

import (
	"context"
	"os"
	"testing"

	"folio/internal/ledger"
	"folio/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sqlx.DB {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	b, err := os.ReadFile("../../migrations/0001_init.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		t.Logf("exec migration: %v", err)
	}
	return db
}

func newTestRepo(t *testing.T) (*Repo, string) {
	db := setupDB(t)
	logger := logrus.New()
	r := New(db, logger)
	userID := "test-" + uuid.New().String()
	require.NoError(t, r.EnsureProfileExists(context.Background(), userID, "Test User"))
	return r, userID
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestProfileCapitalRoundTrip(t *testing.T) {
	r, userID := newTestRepo(t)
	ctx := context.Background()

	p, err := r.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, p.Capital.IsZero())

	require.NoError(t, r.UpdateCapital(ctx, userID, dec("1234.56")))
	p, err = r.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, p.Capital.Equal(dec("1234.56")), "got %s", p.Capital)
}

func TestGetProfileUnknownUserIsZero(t *testing.T) {
	r, _ := newTestRepo(t)
	p, err := r.GetProfile(context.Background(), "nobody-"+uuid.New().String())
	require.NoError(t, err)
	assert.True(t, p.Capital.IsZero())
}

func TestInvestmentRoundTrip(t *testing.T) {
	r, userID := newTestRepo(t)
	ctx := context.Background()

	cp := dec("51.25")
	id, err := r.InsertInvestment(ctx, userID, models.Investment{
		Symbol:        "AAPL",
		Name:          "Apple Inc.",
		Type:          models.TypeStock,
		Quantity:      dec("10.5"),
		BuyPrice:      dec("50.1234"),
		CurrentPrice:  &cp,
		TotalInvested: dec("526.30"),
		PurchaseDate:  "2024-01-15",
		Status:        models.StatusActive,
		Notes:         "first lot",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	inv, err := r.GetInvestment(ctx, userID, id)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", inv.Symbol)
	assert.True(t, inv.Quantity.Equal(dec("10.5")))
	assert.True(t, inv.BuyPrice.Equal(dec("50.1234")))
	require.NotNil(t, inv.CurrentPrice)
	assert.True(t, inv.CurrentPrice.Equal(dec("51.25")))
	assert.Equal(t, "2024-01-15", inv.PurchaseDate)
	assert.Equal(t, models.StatusActive, inv.Status)
	assert.Nil(t, inv.OriginalPrice)

	// Partial update touches only the named fields.
	newQty := dec("6")
	newTotal := dec("300.74")
	require.NoError(t, r.UpdateInvestment(ctx, userID, id, ledger.InvestmentPatch{
		Quantity:      &newQty,
		TotalInvested: &newTotal,
	}))
	inv, err = r.GetInvestment(ctx, userID, id)
	require.NoError(t, err)
	assert.True(t, inv.Quantity.Equal(dec("6")))
	assert.True(t, inv.TotalInvested.Equal(dec("300.74")))
	assert.Equal(t, "Apple Inc.", inv.Name)

	require.NoError(t, r.DeleteInvestment(ctx, userID, id))
	_, err = r.GetInvestment(ctx, userID, id)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUpdateInvestmentMissingRow(t *testing.T) {
	r, userID := newTestRepo(t)
	name := "ghost"
	err := r.UpdateInvestment(context.Background(), userID, uuid.New().String(), ledger.InvestmentPatch{Name: &name})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestTransactionsNewestFirstAndCascade(t *testing.T) {
	r, userID := newTestRepo(t)
	ctx := context.Background()

	invID, err := r.InsertInvestment(ctx, userID, models.Investment{
		Symbol: "TSLA", Name: "Tesla", Type: models.TypeStock,
		Quantity: dec("1"), BuyPrice: dec("200"), TotalInvested: dec("200"),
		PurchaseDate: "2024-01-01", Status: models.StatusActive,
	})
	require.NoError(t, err)

	_, err = r.InsertTransaction(ctx, userID, models.Transaction{
		Type: models.TxDeposit, Amount: dec("1000"), Date: "2024-01-01", Description: "seed",
	})
	require.NoError(t, err)
	qty := dec("1")
	price := dec("200")
	_, err = r.InsertTransaction(ctx, userID, models.Transaction{
		Type: models.TxBuy, Amount: dec("200"), Date: "2024-01-01",
		InvestmentID: invID, Quantity: &qty, PricePerUnit: &price, Description: "Buy TSLA",
	})
	require.NoError(t, err)

	txs, err := r.ListTransactions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TxBuy, txs[0].Type, "newest first")
	assert.Equal(t, invID, txs[0].InvestmentID)
	require.NotNil(t, txs[0].Quantity)
	assert.True(t, txs[0].Quantity.Equal(dec("1")))

	require.NoError(t, r.DeleteTransactionsByInvestment(ctx, userID, invID))
	txs, err = r.ListTransactions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxDeposit, txs[0].Type)
}

func TestDailyReportUpsert(t *testing.T) {
	r, userID := newTestRepo(t)
	ctx := context.Background()

	rep := models.DailyReport{
		Date:             "2024-06-01",
		TotalInvested:    dec("500"),
		CurrentValue:     dec("600"),
		WinLoss:          dec("100"),
		TransactionCount: 2,
	}
	require.NoError(t, r.InsertDailyReport(ctx, userID, rep))

	rep.CurrentValue = dec("650")
	rep.WinLoss = dec("150")
	require.NoError(t, r.InsertDailyReport(ctx, userID, rep))

	reps, err := r.ListDailyReports(ctx, userID)
	require.NoError(t, err)
	require.Len(t, reps, 1, "same user and date must upsert")
	assert.True(t, reps[0].CurrentValue.Equal(dec("650")), "got %s", reps[0].CurrentValue)
}
