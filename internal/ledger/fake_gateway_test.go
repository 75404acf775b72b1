package ledger

import (
	"context"
	"fmt"
	"sync"

	"folio/internal/models"

	"github.com/shopspring/decimal"
)

// fakeGateway is an in-memory Gateway for engine tests. Transactions are
// listed newest-first, matching the real repo. failCapital simulates the
// partial-write failure mode: the transaction insert lands but the balance
// write does not.
type fakeGateway struct {
	mu          sync.Mutex
	nextID      int
	profiles    map[string]models.Profile
	investments map[string][]models.Investment
	txs         map[string][]models.Transaction
	failCapital bool
	failListTx  bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		profiles:    map[string]models.Profile{},
		investments: map[string][]models.Investment{},
		txs:         map[string][]models.Transaction{},
	}
}

func (f *fakeGateway) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeGateway) GetProfile(_ context.Context, userID string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[userID], nil
}

func (f *fakeGateway) UpdateCapital(_ context.Context, userID string, capital decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCapital {
		return fmt.Errorf("capital write refused")
	}
	p := f.profiles[userID]
	p.Capital = capital
	f.profiles[userID] = p
	return nil
}

func (f *fakeGateway) ListInvestments(_ context.Context, userID string) ([]models.Investment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Investment{}, f.investments[userID]...), nil
}

func (f *fakeGateway) GetInvestment(_ context.Context, userID, id string) (models.Investment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.investments[userID] {
		if inv.ID == id {
			return inv, nil
		}
	}
	return models.Investment{}, ErrNotFound
}

func (f *fakeGateway) InsertInvestment(_ context.Context, userID string, inv models.Investment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.ID = f.id()
	f.investments[userID] = append(f.investments[userID], inv)
	return inv.ID, nil
}

func (f *fakeGateway) UpdateInvestment(_ context.Context, userID, id string, patch InvestmentPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, inv := range f.investments[userID] {
		if inv.ID != id {
			continue
		}
		if patch.Name != nil {
			inv.Name = *patch.Name
		}
		if patch.Type != nil {
			inv.Type = *patch.Type
		}
		if patch.PurchaseDate != nil {
			inv.PurchaseDate = *patch.PurchaseDate
		}
		if patch.Quantity != nil {
			inv.Quantity = *patch.Quantity
		}
		if patch.BuyPrice != nil {
			inv.BuyPrice = *patch.BuyPrice
		}
		if patch.CurrentPrice != nil {
			cp := *patch.CurrentPrice
			inv.CurrentPrice = &cp
		}
		if patch.TotalInvested != nil {
			inv.TotalInvested = *patch.TotalInvested
		}
		if patch.Status != nil {
			inv.Status = *patch.Status
		}
		if patch.Notes != nil {
			inv.Notes = *patch.Notes
		}
		f.investments[userID][i] = inv
		return nil
	}
	return ErrNotFound
}

func (f *fakeGateway) DeleteInvestment(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	invs := f.investments[userID]
	for i, inv := range invs {
		if inv.ID == id {
			f.investments[userID] = append(invs[:i], invs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeGateway) ListTransactions(_ context.Context, userID string) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListTx {
		return nil, fmt.Errorf("transaction read refused")
	}
	stored := f.txs[userID]
	out := make([]models.Transaction, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

func (f *fakeGateway) GetTransaction(_ context.Context, userID, id string) (models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs[userID] {
		if tx.ID == id {
			return tx, nil
		}
	}
	return models.Transaction{}, ErrNotFound
}

func (f *fakeGateway) InsertTransaction(_ context.Context, userID string, tx models.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx.ID = f.id()
	f.txs[userID] = append(f.txs[userID], tx)
	return tx.ID, nil
}

func (f *fakeGateway) DeleteTransaction(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.txs[userID]
	for i, tx := range stored {
		if tx.ID == id {
			f.txs[userID] = append(stored[:i], stored[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeGateway) DeleteTransactionsByInvestment(_ context.Context, userID, investmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.txs[userID][:0]
	for _, tx := range f.txs[userID] {
		if tx.InvestmentID != investmentID {
			kept = append(kept, tx)
		}
	}
	f.txs[userID] = kept
	return nil
}

func (f *fakeGateway) transactionsFor(userID, investmentID string) []models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []models.Transaction{}
	for _, tx := range f.txs[userID] {
		if tx.InvestmentID == investmentID {
			res = append(res, tx)
		}
	}
	return res
}
