package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/warikan/internal/ledger"
)

// InsertConfirmation relies on the primary key on token; a duplicate is ErrAlreadyUsed.
func (db *DB) InsertConfirmation(ctx context.Context, rec ledger.ConfirmationRecord) error {
	var priority *string
	if rec.PriorityBillID != "" {
		s := string(rec.PriorityBillID)
		priority = &s
	}
	_, err := db.q.Exec(ctx,
		`INSERT INTO confirmations (token, payment_id, recipient_id, payer_id, amount, is_confirmed, confirmed_at, priority_bill_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Token, rec.PaymentID, rec.RecipientID, rec.PayerID, rec.Amount, rec.IsConfirmed, rec.ConfirmedAt, priority,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrAlreadyUsed
		}
		return err
	}
	return nil
}

func (db *DB) FindConfirmation(ctx context.Context, token string) (*ledger.ConfirmationRecord, error) {
	var (
		rec      ledger.ConfirmationRecord
		priority *string
	)
	err := db.q.QueryRow(ctx,
		`SELECT token, payment_id, recipient_id, payer_id, amount, is_confirmed, confirmed_at, priority_bill_id
		 FROM confirmations WHERE token = $1`,
		token,
	).Scan(&rec.Token, &rec.PaymentID, &rec.RecipientID, &rec.PayerID, &rec.Amount, &rec.IsConfirmed, &rec.ConfirmedAt, &priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	if priority != nil {
		rec.PriorityBillID = ledger.BillID(*priority)
	}
	return &rec, nil
}

func (db *DB) RecordAllocation(ctx context.Context, payment ledger.PaymentID, a ledger.Allocation, at time.Time) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO allocation_journal (payment_id, bill_id, bill_name, debtor_id, amount, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		payment, a.BillID, a.BillName, a.DebtorID, a.AmountPaid, at,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment %s on bill %s: %w", payment, a.BillID, ledger.ErrAlreadyUsed)
		}
		return err
	}
	return nil
}

func (db *DB) AllocationsForPayment(ctx context.Context, payment ledger.PaymentID) ([]ledger.Allocation, error) {
	rows, err := db.q.Query(ctx,
		`SELECT bill_id, bill_name, debtor_id, amount
		 FROM allocation_journal WHERE payment_id = $1 ORDER BY seq`,
		payment,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.Allocation{}
	for rows.Next() {
		var a ledger.Allocation
		if err := rows.Scan(&a.BillID, &a.BillName, &a.DebtorID, &a.AmountPaid); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
