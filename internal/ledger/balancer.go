package ledger

import (
	"context"
	"fmt"
	"sort"
)

// Balancer offsets what two users owe each other, bill against bill.
type Balancer struct {
	bills BillStore
	alloc *Allocator
}

func NewBalancer(bills BillStore) *Balancer {
	return &Balancer{bills: bills, alloc: NewAllocator(bills)}
}

// Balance matches the bills a owes b against the bills b owes a, smallest
// remaining first, and marks the offset amounts as paid on both sides.
func (bl *Balancer) Balance(ctx context.Context, a, b UserID) (BalanceResult, error) {
	if Same(a, b) {
		return BalanceResult{}, fmt.Errorf("%w: cannot balance a user with themselves", ErrBadRequest)
	}

	paidByB, err := bl.bills.FindBillsByPayer(ctx, b)
	if err != nil {
		return BalanceResult{}, fmt.Errorf("find bills paid by %s: %w", b, err)
	}
	paidByA, err := bl.bills.FindBillsByPayer(ctx, a)
	if err != nil {
		return BalanceResult{}, fmt.Errorf("find bills paid by %s: %w", a, err)
	}

	billsA := outstandingBills(paidByB, b, a) // a owes b
	billsB := outstandingBills(paidByA, a, b) // b owes a
	if len(billsA) == 0 && len(billsB) == 0 {
		return BalanceResult{}, ErrNothingToBalance
	}
	sortSmallestFirst(billsA, a)
	sortSmallestFirst(billsB, b)

	remA := remainingOf(billsA, a)
	remB := remainingOf(billsB, b)

	result := BalanceResult{Allocations: []Allocation{}}
	i, j := 0, 0
	for i < len(billsA) && j < len(billsB) {
		offset := min(remA[i], remB[j])
		if offset > 0 {
			allocA, err := bl.alloc.ApplyToBill(ctx, billsA[i], a, offset)
			if err != nil {
				return result, err
			}
			allocB, err := bl.alloc.ApplyToBill(ctx, billsB[j], b, offset)
			if err != nil {
				return result, err
			}
			result.Allocations = append(result.Allocations, allocA, allocB)
			remA[i] -= offset
			remB[j] -= offset
		}
		if remA[i] == 0 {
			i++
		}
		if remB[j] == 0 {
			j++
		}
	}

	result.NetDebt = sum(remA[i:]) - sum(remB[j:])
	return result, nil
}

// sortSmallestFirst orders by what debtor still owes; createdAt and id break ties.
func sortSmallestFirst(bills []Bill, debtor UserID) {
	sort.SliceStable(bills, func(i, j int) bool {
		ri, rj := bills[i].RemainingFor(debtor), bills[j].RemainingFor(debtor)
		if ri != rj {
			return ri < rj
		}
		if !bills[i].CreatedAt.Equal(bills[j].CreatedAt) {
			return bills[i].CreatedAt.Before(bills[j].CreatedAt)
		}
		return bills[i].ID < bills[j].ID
	})
}

func remainingOf(bills []Bill, debtor UserID) []int64 {
	out := make([]int64, len(bills))
	for i := range bills {
		out[i] = bills[i].RemainingFor(debtor)
	}
	return out
}

func sum(xs []int64) int64 {
	var total int64
	for _, x := range xs {
		total += x
	}
	return total
}
