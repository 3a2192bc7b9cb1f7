// Package split turns a shared expense into a bill with one share per participant.
package split

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/id"
	"github.com/susu3304/warikan/internal/ledger"
)

// Share is one participant's weight in an expense. Weight 0 means present but
// not charged.
type Share struct {
	UserID ledger.UserID `json:"user_id"`
	Weight float64       `json:"weight"`
}

// Equal gives every user weight 1.
func Equal(users ...ledger.UserID) []Share {
	out := make([]Share, len(users))
	for i, u := range users {
		out[i] = Share{UserID: u, Weight: 1}
	}
	return out
}

// Amounts divides total by weight in minor units. The parts always sum to
// total; leftover units go to the largest fractional parts, earlier
// participants first on ties.
func Amounts(total int64, shares []Share) ([]int64, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", ledger.ErrBadRequest)
	}
	wsum := decimal.Zero
	for _, s := range shares {
		if s.Weight < 0 {
			return nil, fmt.Errorf("%w: negative weight for %s", ledger.ErrBadRequest, s.UserID)
		}
		wsum = wsum.Add(decimal.NewFromFloat(s.Weight))
	}
	if !wsum.IsPositive() {
		return nil, fmt.Errorf("%w: weights must not all be zero", ledger.ErrBadRequest)
	}

	amounts := make([]int64, len(shares))
	fracs := make([]decimal.Decimal, len(shares))
	assigned := int64(0)
	t := decimal.NewFromInt(total)
	for i, s := range shares {
		exact := t.Mul(decimal.NewFromFloat(s.Weight)).Div(wsum)
		floor := exact.Floor()
		amounts[i] = floor.IntPart()
		fracs[i] = exact.Sub(floor)
		assigned += amounts[i]
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fracs[order[a]].GreaterThan(fracs[order[b]])
	})
	for k := 0; assigned < total; k = (k + 1) % len(order) {
		i := order[k]
		if shares[i].Weight == 0 {
			continue
		}
		amounts[i]++
		assigned++
	}
	return amounts, nil
}

// NewBill builds a bill for an expense of total advanced by payer. The payer
// may appear in shares; their part is simply not owed to anyone.
func NewBill(name string, payer ledger.UserID, total int64, shares []Share, now time.Time) (ledger.Bill, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Bill{}, fmt.Errorf("%w: bill name is required", ledger.ErrBadRequest)
	}
	if strings.TrimSpace(string(payer)) == "" {
		return ledger.Bill{}, fmt.Errorf("%w: payer is required", ledger.ErrBadRequest)
	}
	shares = dedupe(shares)
	if len(shares) == 0 {
		return ledger.Bill{}, fmt.Errorf("%w: at least one participant is required", ledger.ErrBadRequest)
	}
	amounts, err := Amounts(total, shares)
	if err != nil {
		return ledger.Bill{}, err
	}

	b := ledger.Bill{
		ID:             ledger.BillID(id.NewBill()),
		Name:           name,
		PayerID:        payer,
		ParticipantIDs: []ledger.UserID{payer},
		TotalAmount:    total,
		CreatedAt:      now.UTC(),
	}
	for i, s := range shares {
		if ledger.Same(s.UserID, payer) {
			continue
		}
		b.ParticipantIDs = append(b.ParticipantIDs, s.UserID)
		b.Entries = append(b.Entries, ledger.PaymentStatusEntry{
			UserID:     s.UserID,
			AmountOwed: amounts[i],
			IsPaid:     amounts[i] == 0,
		})
	}
	if len(b.Entries) == 0 {
		return ledger.Bill{}, fmt.Errorf("%w: nobody besides the payer shares this bill", ledger.ErrBadRequest)
	}
	b.IsSettled = b.AllPaid()
	return b, nil
}

// dedupe drops blank ids and keeps the first share per user.
func dedupe(shares []Share) []Share {
	out := make([]Share, 0, len(shares))
	for _, s := range shares {
		s.UserID = ledger.UserID(strings.TrimSpace(string(s.UserID)))
		if s.UserID == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if ledger.Same(o.UserID, s.UserID) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}
