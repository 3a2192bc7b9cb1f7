package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/warikan/internal/ledger"
)

const billColumns = `id, name, payer_id, total_amount, created_at, is_settled`

// CreateBill inserts a bill with its participants and payment status rows.
func (db *DB) CreateBill(ctx context.Context, b ledger.Bill) error {
	return db.InTx(ctx, func(ctx context.Context, tx ledger.Store) error {
		q := tx.(*DB).q
		settled := true
		for _, e := range b.Entries {
			if e.AmountPaid < e.AmountOwed {
				settled = false
			}
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO bills (id, name, payer_id, total_amount, created_at, is_settled)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			b.ID, b.Name, b.PayerID, b.TotalAmount, b.CreatedAt, settled,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: bill %s exists", ledger.ErrConflict, b.ID)
			}
			return err
		}

		optedOut := make(map[ledger.UserID]bool, len(b.OptedOutUsers))
		for _, u := range b.OptedOutUsers {
			optedOut[u] = true
		}
		for i, uid := range b.ParticipantIDs {
			if _, err := q.Exec(ctx,
				`INSERT INTO bill_participants (bill_id, user_id, position, opted_out)
				 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				b.ID, uid, i, optedOut[uid],
			); err != nil {
				return err
			}
		}
		for _, e := range b.Entries {
			if ledger.Same(e.UserID, b.PayerID) {
				continue
			}
			var paidDate *time.Time
			if e.AmountPaid >= e.AmountOwed {
				paidDate = e.PaidDate
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO payment_status (bill_id, user_id, amount_owed, amount_paid, is_paid, paid_date)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				b.ID, e.UserID, e.AmountOwed, e.AmountPaid, e.AmountPaid >= e.AmountOwed, paidDate,
			); err != nil {
				if isCheckViolation(err) {
					return fmt.Errorf("%w: bill %s entry %s out of range", ledger.ErrBadRequest, b.ID, e.UserID)
				}
				return err
			}
		}
		return nil
	})
}

func (db *DB) GetBill(ctx context.Context, id ledger.BillID) (*ledger.Bill, error) {
	bills, err := db.queryBills(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, fmt.Errorf("bill %s: %w", id, ledger.ErrNotFound)
	}
	return &bills[0], nil
}

func (db *DB) FindBillsByPayer(ctx context.Context, payer ledger.UserID) ([]ledger.Bill, error) {
	return db.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills WHERE payer_id = $1 ORDER BY created_at, id`,
		payer,
	)
}

func (db *DB) FindBillsByParticipant(ctx context.Context, user ledger.UserID) ([]ledger.Bill, error) {
	return db.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills
		 WHERE id IN (SELECT bill_id FROM bill_participants WHERE user_id = $1)
		 ORDER BY created_at, id`,
		user,
	)
}

// queryBills loads bill rows and then their participants and status rows.
// Inside a transaction the bill rows are locked until commit.
func (db *DB) queryBills(ctx context.Context, sql string, args ...any) ([]ledger.Bill, error) {
	if db.inTx {
		sql += ` FOR UPDATE`
	}
	rows, err := db.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var bills []ledger.Bill
	for rows.Next() {
		var b ledger.Bill
		if err := rows.Scan(&b.ID, &b.Name, &b.PayerID, &b.TotalAmount, &b.CreatedAt, &b.IsSettled); err != nil {
			rows.Close()
			return nil, err
		}
		bills = append(bills, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, nil
	}

	ids := make([]string, len(bills))
	index := make(map[ledger.BillID]int, len(bills))
	for i, b := range bills {
		ids[i] = string(b.ID)
		index[b.ID] = i
	}

	if err := db.loadParticipants(ctx, ids, bills, index); err != nil {
		return nil, err
	}
	if err := db.loadStatus(ctx, ids, bills, index); err != nil {
		return nil, err
	}
	return bills, nil
}

func (db *DB) loadParticipants(ctx context.Context, ids []string, bills []ledger.Bill, index map[ledger.BillID]int) error {
	rows, err := db.q.Query(ctx,
		`SELECT bill_id, user_id, opted_out FROM bill_participants
		 WHERE bill_id = ANY($1) ORDER BY bill_id, position`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			billID   ledger.BillID
			userID   ledger.UserID
			optedOut bool
		)
		if err := rows.Scan(&billID, &userID, &optedOut); err != nil {
			return err
		}
		b := &bills[index[billID]]
		b.ParticipantIDs = append(b.ParticipantIDs, userID)
		if optedOut {
			b.OptedOutUsers = append(b.OptedOutUsers, userID)
		}
	}
	return rows.Err()
}

func (db *DB) loadStatus(ctx context.Context, ids []string, bills []ledger.Bill, index map[ledger.BillID]int) error {
	rows, err := db.q.Query(ctx,
		`SELECT s.bill_id, s.user_id, s.amount_owed, s.amount_paid, s.is_paid, s.paid_date
		 FROM payment_status s
		 LEFT JOIN bill_participants p ON p.bill_id = s.bill_id AND p.user_id = s.user_id
		 WHERE s.bill_id = ANY($1)
		 ORDER BY s.bill_id, p.position NULLS LAST, s.user_id`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			billID ledger.BillID
			e      ledger.PaymentStatusEntry
		)
		if err := rows.Scan(&billID, &e.UserID, &e.AmountOwed, &e.AmountPaid, &e.IsPaid, &e.PaidDate); err != nil {
			return err
		}
		b := &bills[index[billID]]
		b.Entries = append(b.Entries, e)
	}
	return rows.Err()
}

// IncrementParticipantPaid adds amount to one entry. The WHERE clause is the
// overpayment guard, so two racing writers cannot push amount_paid past amount_owed.
func (db *DB) IncrementParticipantPaid(ctx context.Context, bill ledger.BillID, user ledger.UserID, amount int64, at time.Time) (ledger.PaymentStatusEntry, error) {
	if amount <= 0 {
		return ledger.PaymentStatusEntry{}, fmt.Errorf("%w: increment must be positive", ledger.ErrBadRequest)
	}

	var e ledger.PaymentStatusEntry
	err := db.q.QueryRow(ctx,
		`UPDATE payment_status
		 SET amount_paid = amount_paid + $3,
		     is_paid = (amount_paid + $3 >= amount_owed),
		     paid_date = CASE WHEN amount_paid + $3 >= amount_owed THEN COALESCE(paid_date, $4) ELSE paid_date END
		 WHERE bill_id = $1 AND user_id = $2 AND amount_paid + $3 <= amount_owed
		 RETURNING user_id, amount_owed, amount_paid, is_paid, paid_date`,
		bill, user, amount, at,
	).Scan(&e.UserID, &e.AmountOwed, &e.AmountPaid, &e.IsPaid, &e.PaidDate)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := db.q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payment_status WHERE bill_id = $1 AND user_id = $2)`,
			bill, user,
		).Scan(&exists); err != nil {
			return ledger.PaymentStatusEntry{}, err
		}
		if !exists {
			return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s has no entry for %s: %w", bill, user, ledger.ErrNotFound)
		}
		return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s entry %s: %w", bill, user, ledger.ErrConflict)
	}
	if err != nil {
		return ledger.PaymentStatusEntry{}, err
	}

	if _, err := db.q.Exec(ctx,
		`UPDATE bills
		 SET is_settled = NOT EXISTS (SELECT 1 FROM payment_status WHERE bill_id = $1 AND NOT is_paid)
		 WHERE id = $1`,
		bill,
	); err != nil {
		return ledger.PaymentStatusEntry{}, err
	}
	return e, nil
}
