package models

import "github.com/shopspring/decimal"

type InvestmentType string

const (
	TypeStock  InvestmentType = "Stock"
	TypeCrypto InvestmentType = "Crypto"
	TypeFund   InvestmentType = "Fund"
	TypeETF    InvestmentType = "ETF"
	TypeBond   InvestmentType = "Bond"
	TypeOther  InvestmentType = "Other"
)

type InvestmentStatus string

const (
	StatusActive     InvestmentStatus = "Active"
	StatusSold       InvestmentStatus = "Sold"
	StatusSimulation InvestmentStatus = "Simulation"
)

type TransactionType string

const (
	TxBuy        TransactionType = "Buy"
	TxSell       TransactionType = "Sell"
	TxDeposit    TransactionType = "Deposit"
	TxWithdraw   TransactionType = "Withdraw"
	TxAdjustment TransactionType = "Adjustment"
)

// Investment is one purchase lot of an instrument. Prices are always in the
// account's base currency; the original-currency fields are metadata kept for
// foreign lots.
type Investment struct {
	ID            string           `json:"id"`
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name"`
	Type          InvestmentType   `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	BuyPrice      decimal.Decimal  `json:"buyPrice"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice"` // nil means "use buy price"
	TotalInvested decimal.Decimal  `json:"totalInvested"`
	PurchaseDate  string           `json:"purchaseDate"` // ISO date
	Status        InvestmentStatus `json:"status"`
	Notes         string           `json:"notes,omitempty"`

	OriginalPrice   *decimal.Decimal `json:"originalPrice,omitempty"`
	ExchangeRate    *decimal.Decimal `json:"exchangeRate,omitempty"`
	ExchangeRateNow *decimal.Decimal `json:"exchangeRateNow,omitempty"`
}

// ValuePrice is the price a lot is valued at: current price when known,
// otherwise the buy price.
func (i Investment) ValuePrice() decimal.Decimal {
	if i.CurrentPrice != nil {
		return *i.CurrentPrice
	}
	return i.BuyPrice
}

// CurrentValue is quantity times the valuation price.
func (i Investment) CurrentValue() decimal.Decimal {
	return i.Quantity.Mul(i.ValuePrice())
}

// Transaction is an append-only audit entry. Amounts are stored positive with
// meaning defined by the type, except Adjustment, which carries a signed
// capital delta.
type Transaction struct {
	ID           string           `json:"id"`
	Type         TransactionType  `json:"type"`
	Amount       decimal.Decimal  `json:"amount"`
	Date         string           `json:"date"` // ISO date
	InvestmentID string           `json:"investmentId,omitempty"`
	PricePerUnit *decimal.Decimal `json:"pricePerUnit,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Description  string           `json:"description,omitempty"`
}

// Profile is the single per-user row holding uninvested cash.
type Profile struct {
	Username string          `json:"username"`
	Capital  decimal.Decimal `json:"capital"`
}

// DailyReport is an end-of-day portfolio snapshot.
type DailyReport struct {
	ID               string          `json:"id"`
	Date             string          `json:"date"`
	TotalInvested    decimal.Decimal `json:"totalInvested"`
	CurrentValue     decimal.Decimal `json:"currentValue"`
	WinLoss          decimal.Decimal `json:"winLoss"`
	TransactionCount int             `json:"transactionCount"`
}
