package database

import "database/sql"

// Row types mirror the wire schema: snake_case columns, numerics scanned as
// text and parsed to decimal on the way into the domain model.

type profileRow struct {
	Username sql.NullString `db:"username"`
	Capital  string         `db:"capital"`
}

type investmentRow struct {
	ID              string         `db:"id"`
	Symbol          string         `db:"symbol"`
	Name            string         `db:"name"`
	Type            string         `db:"type"`
	Quantity        string         `db:"quantity"`
	BuyPrice        string         `db:"buy_price"`
	CurrentPrice    sql.NullString `db:"current_price"`
	TotalInvested   string         `db:"total_invested"`
	PurchaseDate    string         `db:"purchase_date"`
	Status          string         `db:"status"`
	Notes           sql.NullString `db:"notes"`
	OriginalPrice   sql.NullString `db:"original_price"`
	ExchangeRate    sql.NullString `db:"exchange_rate"`
	ExchangeRateNow sql.NullString `db:"exchange_rate_now"`
}

type transactionRow struct {
	ID           string         `db:"id"`
	Type         string         `db:"type"`
	Amount       string         `db:"amount"`
	Date         string         `db:"date"`
	InvestmentID sql.NullString `db:"investment_id"`
	PricePerUnit sql.NullString `db:"price_per_unit"`
	Quantity     sql.NullString `db:"quantity"`
	Description  sql.NullString `db:"description"`
}

type dailyReportRow struct {
	ID               string `db:"id"`
	Date             string `db:"date"`
	TotalInvested    string `db:"total_invested"`
	CurrentValue     string `db:"current_value"`
	WinLoss          string `db:"win_loss"`
	TransactionCount int    `db:"transaction_count"`
}
