package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"folio/internal/ledger"
	"folio/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Repo is the persistence gateway: row-level CRUD over the four per-user
// collections. It implements ledger.Gateway.
type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

const investmentCols = `id, symbol, name, type, quantity::text AS quantity, buy_price::text AS buy_price,
	current_price::text AS current_price, total_invested::text AS total_invested,
	to_char(purchase_date, 'YYYY-MM-DD') AS purchase_date, status, notes,
	original_price::text AS original_price, exchange_rate::text AS exchange_rate,
	exchange_rate_now::text AS exchange_rate_now`

const transactionCols = `id, type, amount::text AS amount, to_char(date, 'YYYY-MM-DD') AS date,
	investment_id, price_per_unit::text AS price_per_unit, quantity::text AS quantity, description`

func (r *Repo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `SELECT username, capital::text AS capital FROM profiles WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{Capital: decimal.Zero}, nil
	}
	if err != nil {
		return models.Profile{}, err
	}
	capital, err := decimal.NewFromString(row.Capital)
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{Username: row.Username.String, Capital: capital}, nil
}

func (r *Repo) UpdateCapital(ctx context.Context, userID string, capital decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO profiles (id, capital) VALUES ($1, $2::numeric)
		ON CONFLICT (id) DO UPDATE SET capital = $2::numeric`, userID, capital.String())
	return err
}

func (r *Repo) EnsureProfileExists(ctx context.Context, userID, username string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO profiles (id, username, capital) VALUES ($1, $2, 0)
		ON CONFLICT (id) DO NOTHING`, userID, username)
	return err
}

func (r *Repo) ListInvestments(ctx context.Context, userID string) ([]models.Investment, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+investmentCols+` FROM investments WHERE user_id = $1 ORDER BY purchase_date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Investment{}
	for rows.Next() {
		var row investmentRow
		if err := rows.StructScan(&row); err != nil {
			r.log.Warnf("scan investment failed: %v", err)
			continue
		}
		inv, err := rowToInvestment(row)
		if err != nil {
			r.log.Warnf("map investment %s failed: %v", row.ID, err)
			continue
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r *Repo) GetInvestment(ctx context.Context, userID, id string) (models.Investment, error) {
	var row investmentRow
	err := r.db.GetContext(ctx, &row, `SELECT `+investmentCols+` FROM investments WHERE user_id = $1 AND id = $2`, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Investment{}, ledger.ErrNotFound
	}
	if err != nil {
		return models.Investment{}, err
	}
	return rowToInvestment(row)
}

func (r *Repo) InsertInvestment(ctx context.Context, userID string, inv models.Investment) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `INSERT INTO investments
		(id, user_id, symbol, name, type, quantity, buy_price, current_price, total_invested, purchase_date, status, notes, original_price, exchange_rate, exchange_rate_now, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13::numeric, $14::numeric, $15::numeric, now())`,
		id, userID, inv.Symbol, inv.Name, string(inv.Type),
		inv.Quantity.String(), inv.BuyPrice.String(), decimalOrNil(inv.CurrentPrice),
		inv.TotalInvested.String(), inv.PurchaseDate, string(inv.Status), nullIfEmpty(inv.Notes),
		decimalOrNil(inv.OriginalPrice), decimalOrNil(inv.ExchangeRate), decimalOrNil(inv.ExchangeRateNow))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) UpdateInvestment(ctx context.Context, userID, id string, patch ledger.InvestmentPatch) error {
	sets := []string{}
	args := []interface{}{}
	add := func(col, cast string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", col, len(args), cast))
	}
	if patch.Name != nil {
		add("name", "", *patch.Name)
	}
	if patch.Type != nil {
		add("type", "", string(*patch.Type))
	}
	if patch.PurchaseDate != nil {
		add("purchase_date", "", *patch.PurchaseDate)
	}
	if patch.Quantity != nil {
		add("quantity", "::numeric", patch.Quantity.String())
	}
	if patch.BuyPrice != nil {
		add("buy_price", "::numeric", patch.BuyPrice.String())
	}
	if patch.CurrentPrice != nil {
		add("current_price", "::numeric", patch.CurrentPrice.String())
	}
	if patch.TotalInvested != nil {
		add("total_invested", "::numeric", patch.TotalInvested.String())
	}
	if patch.Status != nil {
		add("status", "", string(*patch.Status))
	}
	if patch.Notes != nil {
		add("notes", "", *patch.Notes)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID, id)
	q := fmt.Sprintf(`UPDATE investments SET %s WHERE user_id = $%d AND id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteInvestment(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM investments WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *Repo) ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Transaction{}
	for rows.Next() {
		var row transactionRow
		if err := rows.StructScan(&row); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		tx, err := rowToTransaction(row)
		if err != nil {
			r.log.Warnf("map transaction %s failed: %v", row.ID, err)
			continue
		}
		res = append(res, tx)
	}
	return res, rows.Err()
}

func (r *Repo) GetTransaction(ctx context.Context, userID, id string) (models.Transaction, error) {
	var row transactionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+transactionCols+` FROM transactions WHERE user_id = $1 AND id = $2`, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return rowToTransaction(row)
}

func (r *Repo) InsertTransaction(ctx context.Context, userID string, tx models.Transaction) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions
		(id, user_id, type, amount, date, investment_id, price_per_unit, quantity, description, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8::numeric, $9, now())`,
		id, userID, string(tx.Type), tx.Amount.String(), tx.Date,
		nullIfEmpty(tx.InvestmentID), decimalOrNil(tx.PricePerUnit), decimalOrNil(tx.Quantity),
		nullIfEmpty(tx.Description))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteTransactionsByInvestment(ctx context.Context, userID, investmentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = $1 AND investment_id = $2`, userID, investmentID)
	return err
}

func (r *Repo) InsertDailyReport(ctx context.Context, userID string, rep models.DailyReport) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO daily_reports
		(id, user_id, date, total_invested, current_value, win_loss, transaction_count, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, now())
		ON CONFLICT (user_id, date) DO UPDATE SET
			total_invested = $4::numeric, current_value = $5::numeric, win_loss = $6::numeric, transaction_count = $7`,
		uuid.New().String(), userID, rep.Date,
		rep.TotalInvested.String(), rep.CurrentValue.String(), rep.WinLoss.String(), rep.TransactionCount)
	return err
}

func (r *Repo) ListDailyReports(ctx context.Context, userID string) ([]models.DailyReport, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, to_char(date, 'YYYY-MM-DD') AS date,
		total_invested::text AS total_invested, current_value::text AS current_value,
		win_loss::text AS win_loss, transaction_count
		FROM daily_reports WHERE user_id = $1 ORDER BY date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.DailyReport{}
	for rows.Next() {
		var row dailyReportRow
		if err := rows.StructScan(&row); err != nil {
			r.log.Warnf("scan daily report failed: %v", err)
			continue
		}
		rep, err := rowToDailyReport(row)
		if err != nil {
			r.log.Warnf("map daily report %s failed: %v", row.ID, err)
			continue
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// ListUserIDs returns every profile id, used by the daily report job.
func (r *Repo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id FROM profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.log.Warnf("scan user id failed: %v", err)
			continue
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func rowToInvestment(row investmentRow) (models.Investment, error) {
	quantity, err := decimal.NewFromString(row.Quantity)
	if err != nil {
		return models.Investment{}, err
	}
	buyPrice, err := decimal.NewFromString(row.BuyPrice)
	if err != nil {
		return models.Investment{}, err
	}
	totalInvested, err := decimal.NewFromString(row.TotalInvested)
	if err != nil {
		return models.Investment{}, err
	}
	inv := models.Investment{
		ID:            row.ID,
		Symbol:        row.Symbol,
		Name:          row.Name,
		Type:          models.InvestmentType(row.Type),
		Quantity:      quantity,
		BuyPrice:      buyPrice,
		TotalInvested: totalInvested,
		PurchaseDate:  row.PurchaseDate,
		Status:        models.InvestmentStatus(row.Status),
		Notes:         row.Notes.String,
	}
	if inv.CurrentPrice, err = nullDecimal(row.CurrentPrice); err != nil {
		return models.Investment{}, err
	}
	if inv.OriginalPrice, err = nullDecimal(row.OriginalPrice); err != nil {
		return models.Investment{}, err
	}
	if inv.ExchangeRate, err = nullDecimal(row.ExchangeRate); err != nil {
		return models.Investment{}, err
	}
	if inv.ExchangeRateNow, err = nullDecimal(row.ExchangeRateNow); err != nil {
		return models.Investment{}, err
	}
	return inv, nil
}

func rowToTransaction(row transactionRow) (models.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return models.Transaction{}, err
	}
	tx := models.Transaction{
		ID:           row.ID,
		Type:         models.TransactionType(row.Type),
		Amount:       amount,
		Date:         row.Date,
		InvestmentID: row.InvestmentID.String,
		Description:  row.Description.String,
	}
	if tx.PricePerUnit, err = nullDecimal(row.PricePerUnit); err != nil {
		return models.Transaction{}, err
	}
	if tx.Quantity, err = nullDecimal(row.Quantity); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func rowToDailyReport(row dailyReportRow) (models.DailyReport, error) {
	totalInvested, err := decimal.NewFromString(row.TotalInvested)
	if err != nil {
		return models.DailyReport{}, err
	}
	currentValue, err := decimal.NewFromString(row.CurrentValue)
	if err != nil {
		return models.DailyReport{}, err
	}
	winLoss, err := decimal.NewFromString(row.WinLoss)
	if err != nil {
		return models.DailyReport{}, err
	}
	return models.DailyReport{
		ID:               row.ID,
		Date:             row.Date,
		TotalInvested:    totalInvested,
		CurrentValue:     currentValue,
		WinLoss:          winLoss,
		TransactionCount: row.TransactionCount,
	}, nil
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalOrNil(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
