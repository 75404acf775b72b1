package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"folio/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// adjustmentEpsilon gates Adjustment transactions on edits so floating-point
// noise does not generate spurious audit entries.
var adjustmentEpsilon = decimal.NewFromFloat(0.01)

// Snapshot is the full in-memory view of one user's account. Published
// snapshots are immutable: every change installs a fresh value in the engine's
// map, so readers holding an old pointer need no lock.
type Snapshot struct {
	Investments  []models.Investment  `json:"investments"`
	Capital      decimal.Decimal      `json:"capital"`
	Username     string               `json:"username"`
	Transactions []models.Transaction `json:"transactions"`
}

func (s *Snapshot) findInvestment(id string) (models.Investment, bool) {
	for _, inv := range s.Investments {
		if inv.ID == id {
			return inv, true
		}
	}
	return models.Investment{}, false
}

// clone copies the snapshot with a fresh investments slice so the copy can be
// edited and re-published without touching the original.
func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.Investments = make([]models.Investment, len(s.Investments))
	copy(next.Investments, s.Investments)
	return &next
}

// Engine owns the authoritative in-memory state and the mutation operations
// that keep capital, investments and the transaction log consistent. Writes
// are sequenced so the transaction log lands before the capital balance: if a
// later step fails the log still explains the intended change and
// RecomputeCapital can heal the drift. Mutations for one user are serialized
// through a per-user mutex so two in-process writers cannot both read a stale
// balance and lose an update.
type Engine struct {
	gw  Gateway
	log *logrus.Logger

	mu     sync.Mutex
	state  map[string]*Snapshot
	userMu map[string]*sync.Mutex
}

func NewEngine(gw Gateway, log *logrus.Logger) *Engine {
	return &Engine{
		gw:     gw,
		log:    log,
		state:  map[string]*Snapshot{},
		userMu: map[string]*sync.Mutex{},
	}
}

// lockUser takes the mutation lock for one user and returns its unlock.
func (e *Engine) lockUser(userID string) func() {
	e.mu.Lock()
	mu, ok := e.userMu[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.userMu[userID] = mu
	}
	e.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Refresh re-reads the full account state. The three reads run concurrently;
// if any of them fails the previous snapshot is kept untouched (stale but
// consistent beats fresh but partial).
func (e *Engine) Refresh(ctx context.Context, userID string) (*Snapshot, error) {
	var (
		invs    []models.Investment
		profile models.Profile
		txs     []models.Transaction
	)
	var wg sync.WaitGroup
	var errInv, errProf, errTx error
	wg.Add(3)
	go func() {
		defer wg.Done()
		invs, errInv = e.gw.ListInvestments(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		profile, errProf = e.gw.GetProfile(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		txs, errTx = e.gw.ListTransactions(ctx, userID)
	}()
	wg.Wait()

	for _, err := range []error{errInv, errProf, errTx} {
		if err != nil {
			e.log.Warnf("snapshot refresh aborted for %s: %v", userID, err)
			return nil, err
		}
	}

	snap := &Snapshot{
		Investments:  invs,
		Capital:      profile.Capital,
		Username:     profile.Username,
		Transactions: txs,
	}
	e.mu.Lock()
	e.state[userID] = snap
	e.mu.Unlock()
	return snap, nil
}

// Snapshot returns the cached state for a user, fetching it first if the
// engine has not seen this user yet.
func (e *Engine) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	e.mu.Lock()
	snap, ok := e.state[userID]
	e.mu.Unlock()
	if ok {
		return snap, nil
	}
	return e.Refresh(ctx, userID)
}

// Deposit moves cash into the account: one Deposit transaction, then the
// capital increment, then a full refresh.
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal, date, description string) error {
	return e.adjustCapital(ctx, userID, amount, date, description, models.TxDeposit)
}

// Withdraw moves cash out of the account.
func (e *Engine) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, date, description string) error {
	return e.adjustCapital(ctx, userID, amount, date, description, models.TxWithdraw)
}

func (e *Engine) adjustCapital(ctx context.Context, userID string, amount decimal.Decimal, date, description string, typ models.TransactionType) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return ErrNonPositiveAmount
	}
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if description == "" {
		if typ == models.TxDeposit {
			description = "Capital Deposit"
		} else {
			description = "Capital Withdrawal"
		}
	}

	// Log before balance: the transaction row must land first.
	_, err = e.gw.InsertTransaction(ctx, userID, models.Transaction{
		Type:        typ,
		Amount:      amount,
		Date:        date,
		Description: description,
	})
	if err != nil {
		return err
	}

	newCapital := snap.Capital.Add(amount)
	if typ == models.TxWithdraw {
		newCapital = snap.Capital.Sub(amount)
	}
	if err := e.gw.UpdateCapital(ctx, userID, newCapital); err != nil {
		e.log.Errorf("capital write failed after %s transaction for %s, run recompute: %v", typ, userID, err)
		return err
	}

	_, err = e.Refresh(ctx, userID)
	return err
}

// NewInvestment is the input for opening a lot. BuyPrice and TotalInvested
// are already in the base currency; TotalInvested may differ from
// quantity*price when fees or rounding were folded in.
type NewInvestment struct {
	Symbol        string
	Name          string
	Type          models.InvestmentType
	Quantity      decimal.Decimal
	BuyPrice      decimal.Decimal
	TotalInvested decimal.Decimal
	PurchaseDate  string
	Simulation    bool
	Notes         string

	OriginalPrice *decimal.Decimal
	ExchangeRate  *decimal.Decimal
}

// AddInvestment opens a new lot. Simulation lots are fully isolated: no Buy
// transaction, no capital change. For real lots the investment insert comes
// first so a Buy transaction can never exist without its backing row.
func (e *Engine) AddInvestment(ctx context.Context, userID string, in NewInvestment) (string, error) {
	if in.Quantity.Cmp(decimal.Zero) <= 0 || in.BuyPrice.Cmp(decimal.Zero) <= 0 || in.TotalInvested.Cmp(decimal.Zero) <= 0 {
		return "", ErrNonPositiveAmount
	}
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	if in.Name == "" {
		in.Name = in.Symbol
	}
	status := models.StatusActive
	if in.Simulation {
		status = models.StatusSimulation
	}

	buyPrice := in.BuyPrice
	id, err := e.gw.InsertInvestment(ctx, userID, models.Investment{
		Symbol:        in.Symbol,
		Name:          in.Name,
		Type:          in.Type,
		Quantity:      in.Quantity,
		BuyPrice:      in.BuyPrice,
		CurrentPrice:  &buyPrice,
		TotalInvested: in.TotalInvested,
		PurchaseDate:  in.PurchaseDate,
		Status:        status,
		Notes:         in.Notes,
		OriginalPrice: in.OriginalPrice,
		ExchangeRate:  in.ExchangeRate,
	})
	if err != nil {
		return "", err
	}

	if in.Simulation {
		_, err = e.Refresh(ctx, userID)
		return id, err
	}

	qty := in.Quantity
	_, err = e.gw.InsertTransaction(ctx, userID, models.Transaction{
		Type:         models.TxBuy,
		Amount:       in.TotalInvested,
		Date:         in.PurchaseDate,
		InvestmentID: id,
		PricePerUnit: &buyPrice,
		Quantity:     &qty,
		Description:  fmt.Sprintf("Buy %s", in.Symbol),
	})
	if err != nil {
		return id, err
	}

	if err := e.gw.UpdateCapital(ctx, userID, snap.Capital.Sub(in.TotalInvested)); err != nil {
		e.log.Errorf("capital write failed after buy for %s, run recompute: %v", userID, err)
		return id, err
	}

	_, err = e.Refresh(ctx, userID)
	return id, err
}

// Sell realizes proceeds from an active lot. A full sell parks the lot at
// quantity zero with status Sold and leaves the cost basis untouched for
// historical reporting; a partial sell recomputes the basis as
// newQuantity*buyPrice.
func (e *Engine) Sell(ctx context.Context, userID, investmentID string, sellPrice, quantity decimal.Decimal, date string) error {
	if quantity.Cmp(decimal.Zero) <= 0 || sellPrice.Cmp(decimal.Zero) <= 0 {
		return ErrNonPositiveAmount
	}
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	inv, ok := snap.findInvestment(investmentID)
	if !ok {
		inv, err = e.gw.GetInvestment(ctx, userID, investmentID)
		if err != nil {
			return ErrNotFound
		}
	}
	if inv.Status != models.StatusActive {
		return ErrNotActive
	}
	if quantity.Cmp(inv.Quantity) > 0 {
		return ErrInsufficientQuantity
	}

	saleValue := sellPrice.Mul(quantity)
	qty := quantity
	price := sellPrice
	_, err = e.gw.InsertTransaction(ctx, userID, models.Transaction{
		Type:         models.TxSell,
		Amount:       saleValue,
		Date:         date,
		InvestmentID: investmentID,
		PricePerUnit: &price,
		Quantity:     &qty,
		Description:  fmt.Sprintf("Sell %s", inv.Symbol),
	})
	if err != nil {
		return err
	}

	if quantity.Cmp(inv.Quantity) >= 0 {
		zero := decimal.Zero
		sold := models.StatusSold
		err = e.gw.UpdateInvestment(ctx, userID, investmentID, InvestmentPatch{Quantity: &zero, Status: &sold})
	} else {
		newQty := inv.Quantity.Sub(quantity)
		newTotal := newQty.Mul(inv.BuyPrice)
		err = e.gw.UpdateInvestment(ctx, userID, investmentID, InvestmentPatch{Quantity: &newQty, TotalInvested: &newTotal})
	}
	if err != nil {
		return err
	}

	if err := e.gw.UpdateCapital(ctx, userID, snap.Capital.Add(saleValue)); err != nil {
		e.log.Errorf("capital write failed after sell for %s, run recompute: %v", userID, err)
		return err
	}

	_, err = e.Refresh(ctx, userID)
	return err
}

// UndoSell is the one designed compensation: restore the lot's quantity and
// recomputed basis, force it back to Active, take the sale proceeds out of
// capital, then delete the Sell transaction. If the buy price changed since
// the sale the restored basis is an approximation, not a byte-exact reversal.
func (e *Engine) UndoSell(ctx context.Context, userID, transactionID string) error {
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	tx, err := e.gw.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return ErrNotFound
	}
	if tx.Type != models.TxSell || tx.Quantity == nil {
		return ErrNotSell
	}
	inv, err := e.gw.GetInvestment(ctx, userID, tx.InvestmentID)
	if err != nil {
		return ErrNotFound
	}

	restoredQty := inv.Quantity.Add(*tx.Quantity)
	restoredTotal := restoredQty.Mul(inv.BuyPrice)
	active := models.StatusActive
	err = e.gw.UpdateInvestment(ctx, userID, inv.ID, InvestmentPatch{
		Quantity:      &restoredQty,
		TotalInvested: &restoredTotal,
		Status:        &active,
	})
	if err != nil {
		return err
	}
	if err := e.gw.UpdateCapital(ctx, userID, snap.Capital.Sub(tx.Amount)); err != nil {
		e.log.Errorf("capital write failed during undo-sell for %s, run recompute: %v", userID, err)
		return err
	}
	if err := e.gw.DeleteTransaction(ctx, userID, transactionID); err != nil {
		return err
	}

	_, err = e.Refresh(ctx, userID)
	return err
}

// EditInvestment applies a retroactive correction to a lot. The cost basis
// and capital move inversely: raising the basis charges capital, lowering it
// refunds capital, recorded through an Adjustment transaction. Simulation
// lots never touch capital.
func (e *Engine) EditInvestment(ctx context.Context, userID, id string, patch InvestmentPatch) error {
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	inv, ok := snap.findInvestment(id)
	if !ok {
		inv, err = e.gw.GetInvestment(ctx, userID, id)
		if err != nil {
			return ErrNotFound
		}
	}

	oldTotal := inv.TotalInvested
	newTotal := oldTotal
	switch {
	case patch.TotalInvested != nil:
		newTotal = *patch.TotalInvested
	case patch.Quantity != nil || patch.BuyPrice != nil:
		q := inv.Quantity
		if patch.Quantity != nil {
			q = *patch.Quantity
		}
		p := inv.BuyPrice
		if patch.BuyPrice != nil {
			p = *patch.BuyPrice
		}
		newTotal = q.Mul(p)
		patch.TotalInvested = &newTotal
	}
	capitalDiff := oldTotal.Sub(newTotal)

	// Edits never flip lifecycle status through this path.
	patch.Status = nil
	patch.CurrentPrice = nil

	if err := e.gw.UpdateInvestment(ctx, userID, id, patch); err != nil {
		return err
	}

	if inv.Status != models.StatusSimulation && capitalDiff.Abs().Cmp(adjustmentEpsilon) > 0 {
		kind := "Charge"
		if capitalDiff.Cmp(decimal.Zero) > 0 {
			kind = "Refund"
		}
		_, err = e.gw.InsertTransaction(ctx, userID, models.Transaction{
			Type:         models.TxAdjustment,
			Amount:       capitalDiff,
			Date:         time.Now().UTC().Format("2006-01-02"),
			InvestmentID: id,
			Description:  fmt.Sprintf("Correction for %s: %s", inv.Symbol, kind),
		})
		if err != nil {
			return err
		}
		if err := e.gw.UpdateCapital(ctx, userID, snap.Capital.Add(capitalDiff)); err != nil {
			e.log.Errorf("capital write failed after edit for %s, run recompute: %v", userID, err)
			return err
		}
	}

	_, err = e.Refresh(ctx, userID)
	return err
}

// UpdateCurrentPrice persists a new market price for a lot and republishes
// the cached snapshot with the new price instead of doing a full refresh.
func (e *Engine) UpdateCurrentPrice(ctx context.Context, userID, id string, price decimal.Decimal) error {
	defer e.lockUser(userID)()
	return e.updateCurrentPrice(ctx, userID, id, price)
}

func (e *Engine) updateCurrentPrice(ctx context.Context, userID, id string, price decimal.Decimal) error {
	p := price
	if err := e.gw.UpdateInvestment(ctx, userID, id, InvestmentPatch{CurrentPrice: &p}); err != nil {
		return err
	}
	e.mu.Lock()
	if snap, ok := e.state[userID]; ok {
		next := snap.clone()
		for i := range next.Investments {
			if next.Investments[i].ID == id {
				cp := price
				next.Investments[i].CurrentPrice = &cp
			}
		}
		e.state[userID] = next
	}
	e.mu.Unlock()
	return nil
}

// ApplyQuotes pushes a symbol->price mapping (already in base currency) onto
// every matching unsold lot.
func (e *Engine) ApplyQuotes(ctx context.Context, userID string, prices map[string]decimal.Decimal) error {
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	for _, inv := range snap.Investments {
		if inv.Status == models.StatusSold {
			continue
		}
		price, ok := prices[inv.Symbol]
		if !ok {
			continue
		}
		if err := e.updateCurrentPrice(ctx, userID, inv.ID, price); err != nil {
			e.log.Warnf("price update failed for %s %s: %v", userID, inv.Symbol, err)
		}
	}
	return nil
}

// ActiveSymbols lists the symbols of unsold lots with their instrument
// types, for the price updater.
func (e *Engine) ActiveSymbols(ctx context.Context, userID string) (map[string]models.InvestmentType, error) {
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	symbols := map[string]models.InvestmentType{}
	for _, inv := range snap.Investments {
		if inv.Status == models.StatusSold {
			continue
		}
		symbols[inv.Symbol] = inv.Type
	}
	return symbols, nil
}

// DeleteSimulation hard-deletes a simulation lot. No transactions were ever
// created for it, so a republished snapshot without the lot is enough.
func (e *Engine) DeleteSimulation(ctx context.Context, userID, id string) error {
	defer e.lockUser(userID)()
	inv, err := e.gw.GetInvestment(ctx, userID, id)
	if err != nil {
		return ErrNotFound
	}
	if inv.Status != models.StatusSimulation {
		return ErrNotSimulation
	}
	if err := e.gw.DeleteInvestment(ctx, userID, id); err != nil {
		return err
	}
	e.mu.Lock()
	if snap, ok := e.state[userID]; ok {
		next := *snap
		next.Investments = make([]models.Investment, 0, len(snap.Investments))
		for _, iv := range snap.Investments {
			if iv.ID != id {
				next.Investments = append(next.Investments, iv)
			}
		}
		e.state[userID] = &next
	}
	e.mu.Unlock()
	return nil
}

// DeleteInvestment removes a real lot as if it never happened: its linked
// transactions are cascaded manually, then the full cost basis is refunded to
// capital through an Adjustment. The refund only runs once both deletes
// succeeded.
func (e *Engine) DeleteInvestment(ctx context.Context, userID, id string) error {
	defer e.lockUser(userID)()
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	inv, err := e.gw.GetInvestment(ctx, userID, id)
	if err != nil {
		return ErrNotFound
	}
	if inv.Status == models.StatusSimulation {
		return ErrSimulation
	}

	if err := e.gw.DeleteTransactionsByInvestment(ctx, userID, id); err != nil {
		return err
	}
	if err := e.gw.DeleteInvestment(ctx, userID, id); err != nil {
		return err
	}

	refund := inv.TotalInvested
	_, err = e.gw.InsertTransaction(ctx, userID, models.Transaction{
		Type:        models.TxAdjustment,
		Amount:      refund,
		Date:        time.Now().UTC().Format("2006-01-02"),
		Description: fmt.Sprintf("Refund for deleted %s", inv.Symbol),
	})
	if err != nil {
		return err
	}
	if err := e.gw.UpdateCapital(ctx, userID, snap.Capital.Add(refund)); err != nil {
		e.log.Errorf("capital write failed after delete for %s, run recompute: %v", userID, err)
		return err
	}

	_, err = e.Refresh(ctx, userID)
	return err
}

// CapitalBreakdown is the per-type replay of the transaction log shown to the
// user before a recompute commit.
type CapitalBreakdown struct {
	Deposits    decimal.Decimal `json:"deposits"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Buys        decimal.Decimal `json:"buys"`
	Sells       decimal.Decimal `json:"sells"`
	Adjustments decimal.Decimal `json:"adjustments"`
	Computed    decimal.Decimal `json:"computed"`
	Stored      decimal.Decimal `json:"stored"`
	Drift       decimal.Decimal `json:"drift"`
}

// RecomputeCapital replays the entire transaction log from zero. It is the
// designed recovery path for drift left behind by an interrupted multi-step
// mutation, safe to run any number of times.
func (e *Engine) RecomputeCapital(ctx context.Context, userID string) (CapitalBreakdown, error) {
	txs, err := e.gw.ListTransactions(ctx, userID)
	if err != nil {
		return CapitalBreakdown{}, err
	}
	profile, err := e.gw.GetProfile(ctx, userID)
	if err != nil {
		return CapitalBreakdown{}, err
	}

	var b CapitalBreakdown
	for _, tx := range txs {
		switch tx.Type {
		case models.TxDeposit:
			b.Deposits = b.Deposits.Add(tx.Amount)
		case models.TxWithdraw:
			b.Withdrawals = b.Withdrawals.Add(tx.Amount)
		case models.TxBuy:
			b.Buys = b.Buys.Add(tx.Amount)
		case models.TxSell:
			b.Sells = b.Sells.Add(tx.Amount)
		case models.TxAdjustment:
			b.Adjustments = b.Adjustments.Add(tx.Amount)
		}
	}
	b.Computed = b.Deposits.Sub(b.Withdrawals).Sub(b.Buys).Add(b.Sells).Add(b.Adjustments)
	b.Stored = profile.Capital
	b.Drift = b.Stored.Sub(b.Computed)
	return b, nil
}

// CommitRecomputedCapital overwrites the stored capital with the replayed
// total and refreshes the snapshot.
func (e *Engine) CommitRecomputedCapital(ctx context.Context, userID string) (CapitalBreakdown, error) {
	defer e.lockUser(userID)()
	b, err := e.RecomputeCapital(ctx, userID)
	if err != nil {
		return b, err
	}
	if err := e.gw.UpdateCapital(ctx, userID, b.Computed); err != nil {
		return b, err
	}
	_, err = e.Refresh(ctx, userID)
	return b, err
}
