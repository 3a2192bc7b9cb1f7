package ledger

import (
	"context"
	"fmt"
	"sort"
)

// Aggregator computes who owes whom from the current bill state.
type Aggregator struct {
	bills BillStore
}

func NewAggregator(bills BillStore) *Aggregator {
	return &Aggregator{bills: bills}
}

// DebtsOwedToUser lists what every counterparty still owes user on bills user paid for.
func (a *Aggregator) DebtsOwedToUser(ctx context.Context, user UserID) ([]Debt, error) {
	bills, err := a.bills.FindBillsByPayer(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("find bills paid by %s: %w", user, err)
	}

	acc := newDebtAccumulator()
	for i := range bills {
		b := &bills[i]
		if !Same(b.PayerID, user) {
			continue
		}
		for _, e := range b.Entries {
			if Same(e.UserID, user) || e.AmountPaid >= e.AmountOwed {
				continue
			}
			acc.add(e.UserID, b, e)
		}
	}
	return acc.sorted(), nil
}

// DebtsOwedByUser lists what user still owes each payer.
func (a *Aggregator) DebtsOwedByUser(ctx context.Context, user UserID) ([]Debt, error) {
	bills, err := a.bills.FindBillsByParticipant(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("find bills shared by %s: %w", user, err)
	}

	acc := newDebtAccumulator()
	for i := range bills {
		b := &bills[i]
		e, ok := b.Entry(user)
		if !ok || e.AmountPaid >= e.AmountOwed {
			continue
		}
		acc.add(b.PayerID, b, *e)
	}
	return acc.sorted(), nil
}

// Summary returns both directions and the net balance.
func (a *Aggregator) Summary(ctx context.Context, user UserID) (Summary, error) {
	owedToMe, err := a.DebtsOwedToUser(ctx, user)
	if err != nil {
		return Summary{}, err
	}
	iOwe, err := a.DebtsOwedByUser(ctx, user)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{OwedToMe: owedToMe, IOwe: iOwe}
	for _, d := range owedToMe {
		s.TotalOwedToMe += d.TotalAmount
	}
	for _, d := range iOwe {
		s.TotalIOwe += d.TotalAmount
	}
	s.NetBalance = s.TotalOwedToMe - s.TotalIOwe
	return s, nil
}

// DebtBetween returns the signed outstanding amount between a and b.
// Positive means a owes b.
func (a *Aggregator) DebtBetween(ctx context.Context, from, to UserID) (int64, error) {
	owed, err := a.DebtsOwedByUser(ctx, from)
	if err != nil {
		return 0, err
	}
	lent, err := a.DebtsOwedToUser(ctx, from)
	if err != nil {
		return 0, err
	}

	var net int64
	for _, d := range owed {
		if Same(d.CounterpartyID, to) {
			net += d.TotalAmount
		}
	}
	for _, d := range lent {
		if Same(d.CounterpartyID, to) {
			net -= d.TotalAmount
		}
	}
	return net, nil
}

type debtAccumulator struct {
	byUser map[UserID]*Debt
	order  []UserID
}

func newDebtAccumulator() *debtAccumulator {
	return &debtAccumulator{byUser: make(map[UserID]*Debt)}
}

func (acc *debtAccumulator) add(counterparty UserID, b *Bill, e PaymentStatusEntry) {
	d, ok := acc.byUser[counterparty]
	if !ok {
		d = &Debt{CounterpartyID: counterparty}
		acc.byUser[counterparty] = d
		acc.order = append(acc.order, counterparty)
	}
	remaining := e.Remaining()
	d.TotalAmount += remaining
	d.Bills = append(d.Bills, DebtBill{
		BillID:          b.ID,
		BillName:        b.Name,
		AmountOwed:      e.AmountOwed,
		AmountPaid:      e.AmountPaid,
		RemainingAmount: remaining,
	})
}

// sorted returns debts largest first; ties fall back to counterparty id so
// the order does not depend on store iteration.
func (acc *debtAccumulator) sorted() []Debt {
	out := make([]Debt, 0, len(acc.order))
	for _, uid := range acc.order {
		out = append(out, *acc.byUser[uid])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].CounterpartyID < out[j].CounterpartyID
	})
	return out
}
