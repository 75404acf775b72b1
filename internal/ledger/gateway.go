package ledger

import (
	"context"
	"errors"

	"folio/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a mutation references an investment or
	// transaction that no longer exists. Callers should treat it as a no-op.
	ErrNotFound = errors.New("ledger: not found")

	ErrNonPositiveAmount    = errors.New("ledger: amount must be positive")
	ErrInsufficientQuantity = errors.New("ledger: sell quantity exceeds held quantity")
	ErrNotActive            = errors.New("ledger: investment is not active")
	ErrNotSell              = errors.New("ledger: transaction is not a sell")
	ErrSimulation           = errors.New("ledger: investment is a simulation")
	ErrNotSimulation        = errors.New("ledger: investment is not a simulation")
)

// InvestmentPatch is a partial field set for an investment update. Nil fields
// are left untouched.
type InvestmentPatch struct {
	Name          *string
	Type          *models.InvestmentType
	PurchaseDate  *string
	Quantity      *decimal.Decimal
	BuyPrice      *decimal.Decimal
	CurrentPrice  *decimal.Decimal
	TotalInvested *decimal.Decimal
	Status        *models.InvestmentStatus
	Notes         *string
}

// Gateway is the persistence contract the engine writes through: row-level
// CRUD on the four per-user collections. There are no cross-table
// transactions behind it, which is why the engine sequences its writes and
// why RecomputeCapital exists.
type Gateway interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	UpdateCapital(ctx context.Context, userID string, capital decimal.Decimal) error

	ListInvestments(ctx context.Context, userID string) ([]models.Investment, error)
	GetInvestment(ctx context.Context, userID, id string) (models.Investment, error)
	InsertInvestment(ctx context.Context, userID string, inv models.Investment) (string, error)
	UpdateInvestment(ctx context.Context, userID, id string, patch InvestmentPatch) error
	DeleteInvestment(ctx context.Context, userID, id string) error

	ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (models.Transaction, error)
	InsertTransaction(ctx context.Context, userID string, tx models.Transaction) (string, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	DeleteTransactionsByInvestment(ctx context.Context, userID, investmentID string) error
}
