// Package ledger aggregates debts from the bill ledger, issues and redeems
// payment confirmation tokens, allocates confirmed payments across bills and
// nets mutual debts between two users.
package ledger

import (
	"strings"
	"time"
)

// UserID identifies a user. Users come from Discord, so this is a snowflake string.
type UserID string

// BillID identifies a bill ("bill_..." TypeID).
type BillID string

// PaymentID identifies a payment request ("pay_..." TypeID).
type PaymentID string

// Same reports whether two ids refer to the same entity.
// Every id comparison inside the engine goes through here.
func Same[T ~string](a, b T) bool {
	return strings.TrimSpace(string(a)) == strings.TrimSpace(string(b))
}

// PaymentStatusEntry tracks what one participant owes on a bill.
type PaymentStatusEntry struct {
	UserID     UserID     `json:"user_id"`
	AmountOwed int64      `json:"amount_owed"`
	AmountPaid int64      `json:"amount_paid"`
	IsPaid     bool       `json:"is_paid"`
	PaidDate   *time.Time `json:"paid_date,omitempty"`
}

// Remaining returns the unpaid part of the entry, never negative.
func (e PaymentStatusEntry) Remaining() int64 {
	if r := e.AmountOwed - e.AmountPaid; r > 0 {
		return r
	}
	return 0
}

// Bill is a shared expense advanced by PayerID.
// Entries has one element per participant other than the payer.
type Bill struct {
	ID             BillID               `json:"id"`
	Name           string               `json:"name"`
	PayerID        UserID               `json:"payer_id"`
	ParticipantIDs []UserID             `json:"participant_ids"`
	Entries        []PaymentStatusEntry `json:"payment_status"`
	TotalAmount    int64                `json:"total_amount"`
	CreatedAt      time.Time            `json:"created_at"`
	IsSettled      bool                 `json:"is_settled"`
	OptedOutUsers  []UserID             `json:"opted_out_users,omitempty"`
}

// Entry returns the payment status entry for user, if any.
// The payer never has an entry on their own bill.
func (b *Bill) Entry(user UserID) (*PaymentStatusEntry, bool) {
	if Same(b.PayerID, user) {
		return nil, false
	}
	for i := range b.Entries {
		if Same(b.Entries[i].UserID, user) {
			return &b.Entries[i], true
		}
	}
	return nil, false
}

// RemainingFor returns what user still owes on the bill.
func (b *Bill) RemainingFor(user UserID) int64 {
	e, ok := b.Entry(user)
	if !ok {
		return 0
	}
	return e.Remaining()
}

// AllPaid reports whether every entry on the bill is paid off.
func (b *Bill) AllPaid() bool {
	for _, e := range b.Entries {
		if !e.IsPaid {
			return false
		}
	}
	return true
}

// ConfirmationRecord is the append-only proof that a token was redeemed.
type ConfirmationRecord struct {
	PaymentID      PaymentID `json:"payment_id"`
	Token          string    `json:"-"`
	RecipientID    UserID    `json:"recipient_id"`
	PayerID        UserID    `json:"payer_id"`
	Amount         int64     `json:"amount"`
	IsConfirmed    bool      `json:"is_confirmed"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
	PriorityBillID BillID    `json:"priority_bill_id,omitempty"`
}

// DebtBill is one bill contributing to a Debt.
type DebtBill struct {
	BillID          BillID `json:"bill_id"`
	BillName        string `json:"bill_name"`
	AmountOwed      int64  `json:"amount_owed"`
	AmountPaid      int64  `json:"amount_paid"`
	RemainingAmount int64  `json:"remaining_amount"`
}

// Debt is the outstanding amount between the queried user and one counterparty.
type Debt struct {
	CounterpartyID UserID     `json:"counterparty_id"`
	TotalAmount    int64      `json:"total_amount"`
	Bills          []DebtBill `json:"bills"`
}

// Summary is the two-sided view of a user's debts.
// NetBalance is positive when others owe the user more than the user owes.
type Summary struct {
	OwedToMe      []Debt `json:"owed_to_me"`
	IOwe          []Debt `json:"i_owe"`
	TotalOwedToMe int64  `json:"total_owed_to_me"`
	TotalIOwe     int64  `json:"total_i_owe"`
	NetBalance    int64  `json:"net_balance"`
}

// Allocation records how much was applied to one bill on behalf of DebtorID.
type Allocation struct {
	BillID     BillID `json:"bill_id"`
	BillName   string `json:"bill_name"`
	DebtorID   UserID `json:"debtor_id"`
	AmountPaid int64  `json:"amount_paid"`
}

// AllocationResult is the outcome of Allocate.
// LeftoverAmount is the part of the payment that found no outstanding debt;
// it is not credited anywhere.
type AllocationResult struct {
	Allocations    []Allocation `json:"allocations"`
	LeftoverAmount int64        `json:"leftover_amount"`
}

// Total sums the applied amounts.
func (r AllocationResult) Total() int64 {
	var sum int64
	for _, a := range r.Allocations {
		sum += a.AmountPaid
	}
	return sum
}

// BalanceResult is the outcome of Balance.
// NetDebt is positive when the first user still owes the second.
type BalanceResult struct {
	NetDebt     int64        `json:"net_debt"`
	Allocations []Allocation `json:"allocations"`
}

// EventType names an engine outcome reported to the activity feed.
type EventType string

const (
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventPaymentRejected  EventType = "payment_rejected"
	EventDebtBalanced     EventType = "debt_balanced"
)

// Event is what the engine reports after a ledger mutation commits.
type Event struct {
	Type           EventType    `json:"type"`
	ActorID        UserID       `json:"actor_id"`
	CounterpartyID UserID       `json:"counterparty_id"`
	Amount         int64        `json:"amount"`
	Allocations    []Allocation `json:"allocations"`
	PaymentID      PaymentID    `json:"payment_id,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}
