package ledger

import (
	"math"
	"sort"
	"time"

	"folio/internal/models"

	"github.com/shopspring/decimal"
)

// Summary is the dashboard view over active lots plus uninvested cash.
type Summary struct {
	TotalInvested decimal.Decimal `json:"totalInvested"`
	CurrentValue  decimal.Decimal `json:"currentValue"`
	UnrealizedPL  decimal.Decimal `json:"unrealizedPL"`
	Capital       decimal.Decimal `json:"capital"`
	CapitalTotal  decimal.Decimal `json:"capitalTotal"`
}

// Summarize folds the active lots of a snapshot. Sold and Simulation lots are
// excluded.
func Summarize(snap *Snapshot) Summary {
	s := Summary{Capital: snap.Capital}
	for _, inv := range snap.Investments {
		if inv.Status != models.StatusActive {
			continue
		}
		s.TotalInvested = s.TotalInvested.Add(inv.TotalInvested)
		s.CurrentValue = s.CurrentValue.Add(inv.CurrentValue())
	}
	s.UnrealizedPL = s.CurrentValue.Sub(s.TotalInvested)
	s.CapitalTotal = snap.Capital.Add(s.CurrentValue)
	return s
}

// HoldingDays is the ceiling of the holding period in days, used by the CAGR
// formulas.
func HoldingDays(purchaseDate string, now time.Time) int {
	pd, err := parseDate(purchaseDate)
	if err != nil {
		return 0
	}
	diff := now.Sub(pd)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24))
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// LotCAGR annualizes a lot's return over its holding period. The result is a
// percentage. ok is false when the value is undefined (zero-day holding, zero
// basis) or lands outside (-100%, 10000%], which happens with near-zero
// denominators and very short holdings; those render as a dash, and that
// suppression is deliberate.
func LotCAGR(inv models.Investment, now time.Time) (cagr float64, days int, ok bool) {
	days = HoldingDays(inv.PurchaseDate, now)
	if days == 0 || inv.TotalInvested.IsZero() {
		return 0, days, false
	}
	current := inv.CurrentValue()
	if current.Cmp(decimal.Zero) <= 0 {
		return -100, days, true
	}
	years := float64(days) / 365.25
	ratio := current.InexactFloat64() / inv.TotalInvested.InexactFloat64()
	cagr = (math.Pow(ratio, 1/years) - 1) * 100
	if math.IsNaN(cagr) || math.IsInf(cagr, 0) || cagr > 10000 || cagr < -100 {
		return 0, days, false
	}
	return cagr, days, true
}

// PortfolioCAGR applies the CAGR formula to portfolio totals using an
// investment-weighted average holding period rather than a naive mean.
func PortfolioCAGR(snap *Snapshot, now time.Time) (float64, bool) {
	var totalInvested, totalValue, weightedDays decimal.Decimal
	for _, inv := range snap.Investments {
		if inv.Status != models.StatusActive {
			continue
		}
		days := decimal.NewFromInt(int64(HoldingDays(inv.PurchaseDate, now)))
		totalInvested = totalInvested.Add(inv.TotalInvested)
		totalValue = totalValue.Add(inv.CurrentValue())
		weightedDays = weightedDays.Add(days.Mul(inv.TotalInvested))
	}
	if totalInvested.IsZero() {
		return 0, false
	}
	avgDays := weightedDays.Div(totalInvested).InexactFloat64()
	if avgDays < 1 {
		return 0, false
	}
	if totalValue.Cmp(decimal.Zero) <= 0 {
		return -100, true
	}
	years := avgDays / 365.25
	cagr := (math.Pow(totalValue.InexactFloat64()/totalInvested.InexactFloat64(), 1/years) - 1) * 100
	if math.IsNaN(cagr) || math.IsInf(cagr, 0) || cagr > 10000 || cagr < -100 {
		return 0, false
	}
	return cagr, true
}

// AllocationSlice is one group of the allocation breakdown.
type AllocationSlice struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
}

// AllocationByType groups active lots by instrument type, valued at the
// current (or buy) price, sorted descending by value.
func AllocationByType(invs []models.Investment) []AllocationSlice {
	return allocation(invs, func(inv models.Investment) string { return string(inv.Type) })
}

// AllocationBySymbol groups active lots by symbol.
func AllocationBySymbol(invs []models.Investment) []AllocationSlice {
	return allocation(invs, func(inv models.Investment) string { return inv.Symbol })
}

func allocation(invs []models.Investment, key func(models.Investment) string) []AllocationSlice {
	groups := map[string]decimal.Decimal{}
	for _, inv := range invs {
		if inv.Status != models.StatusActive {
			continue
		}
		k := key(inv)
		groups[k] = groups[k].Add(inv.CurrentValue())
	}
	out := make([]AllocationSlice, 0, len(groups))
	for k, v := range groups {
		out = append(out, AllocationSlice{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Value.Cmp(out[j].Value); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}
