package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Allocator applies payments to the bills a debtor owes one creditor.
type Allocator struct {
	bills BillStore
	now   func() time.Time
}

func NewAllocator(bills BillStore) *Allocator {
	return &Allocator{bills: bills, now: time.Now}
}

// Allocate spreads amount over the debtor's outstanding bills toward creditor,
// oldest first, with priority (if outstanding) jumping the queue.
//
// Whatever is left once every eligible bill is paid off is reported as
// LeftoverAmount and not credited. When a store update fails the returned
// result still lists the allocations applied before the failure.
func (a *Allocator) Allocate(ctx context.Context, debtor, creditor UserID, amount int64, priority BillID) (AllocationResult, error) {
	if amount <= 0 {
		return AllocationResult{}, fmt.Errorf("%w: amount must be positive", ErrBadRequest)
	}
	if Same(debtor, creditor) {
		return AllocationResult{}, fmt.Errorf("%w: debtor and creditor must differ", ErrBadRequest)
	}

	bills, err := a.bills.FindBillsByPayer(ctx, creditor)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("find bills paid by %s: %w", creditor, err)
	}
	candidates := outstandingBills(bills, creditor, debtor)
	sortOldestFirst(candidates)
	candidates = withPriority(candidates, priority)

	result := AllocationResult{Allocations: []Allocation{}}
	remainingPayment := amount
	for _, b := range candidates {
		if remainingPayment <= 0 {
			break
		}
		apply := min(b.RemainingFor(debtor), remainingPayment)
		if apply <= 0 {
			continue
		}
		alloc, err := a.ApplyToBill(ctx, b, debtor, apply)
		if err != nil {
			result.LeftoverAmount = remainingPayment
			return result, err
		}
		result.Allocations = append(result.Allocations, alloc)
		remainingPayment -= apply
	}
	result.LeftoverAmount = remainingPayment
	return result, nil
}

// ApplyToBill pays amount of debtor's share on bill.
// It is the single-bill primitive shared with the Balancer.
func (a *Allocator) ApplyToBill(ctx context.Context, b Bill, debtor UserID, amount int64) (Allocation, error) {
	if amount <= 0 {
		return Allocation{}, fmt.Errorf("%w: allocation must be positive", ErrBadRequest)
	}
	if _, err := a.bills.IncrementParticipantPaid(ctx, b.ID, debtor, amount, a.now().UTC()); err != nil {
		return Allocation{}, fmt.Errorf("apply %d to bill %s for %s: %w", amount, b.ID, debtor, err)
	}
	return Allocation{BillID: b.ID, BillName: b.Name, DebtorID: debtor, AmountPaid: amount}, nil
}

// outstandingBills keeps bills advanced by payer on which debtor still owes money.
func outstandingBills(bills []Bill, payer, debtor UserID) []Bill {
	var out []Bill
	for _, b := range bills {
		if !Same(b.PayerID, payer) {
			continue
		}
		if b.RemainingFor(debtor) > 0 {
			out = append(out, b)
		}
	}
	return out
}

func sortOldestFirst(bills []Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		if !bills[i].CreatedAt.Equal(bills[j].CreatedAt) {
			return bills[i].CreatedAt.Before(bills[j].CreatedAt)
		}
		return bills[i].ID < bills[j].ID
	})
}

// withPriority moves the priority bill to the front, leaving the rest in order.
// An unknown or already paid priority bill is ignored.
func withPriority(bills []Bill, priority BillID) []Bill {
	if priority == "" {
		return bills
	}
	for i, b := range bills {
		if !Same(b.ID, priority) {
			continue
		}
		out := make([]Bill, 0, len(bills))
		out = append(out, b)
		out = append(out, bills[:i]...)
		return append(out, bills[i+1:]...)
	}
	return bills
}
