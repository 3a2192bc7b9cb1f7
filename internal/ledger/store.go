package ledger

import (
	"context"
	"time"
)

// BillStore reads bills and updates participant payment status.
type BillStore interface {
	GetBill(ctx context.Context, id BillID) (*Bill, error)
	// FindBillsByPayer returns bills advanced by payer, ordered by created_at then id.
	FindBillsByPayer(ctx context.Context, payer UserID) ([]Bill, error)
	// FindBillsByParticipant returns bills user takes part in (including as payer).
	FindBillsByParticipant(ctx context.Context, user UserID) ([]Bill, error)
	// IncrementParticipantPaid atomically adds amount to the user's amount_paid,
	// refreshing is_paid, paid_date and the bill's is_settled flag.
	// It returns ErrNotFound when the entry does not exist and ErrConflict
	// when the increment would push amount_paid past amount_owed.
	IncrementParticipantPaid(ctx context.Context, bill BillID, user UserID, amount int64, at time.Time) (PaymentStatusEntry, error)
}

// ConfirmationStore is the append-only set of redeemed tokens.
type ConfirmationStore interface {
	// InsertConfirmation inserts rec unless a record with the same token exists,
	// in which case it returns ErrAlreadyUsed. The insert is the only gate.
	InsertConfirmation(ctx context.Context, rec ConfirmationRecord) error
	FindConfirmation(ctx context.Context, token string) (*ConfirmationRecord, error)
}

// AllocationJournal remembers which (payment, bill) pairs were already applied.
type AllocationJournal interface {
	RecordAllocation(ctx context.Context, payment PaymentID, a Allocation, at time.Time) error
	AllocationsForPayment(ctx context.Context, payment PaymentID) ([]Allocation, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	BillStore
	ConfirmationStore
	AllocationJournal

	// CreateBill inserts a new bill, deriving is_paid and is_settled.
	CreateBill(ctx context.Context, b Bill) error

	// InTx runs fn against a store bound to a single transaction.
	// Changes made by fn are discarded when it returns an error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
