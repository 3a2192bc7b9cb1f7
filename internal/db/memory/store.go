// Package memory is an in-process ledger store, used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/susu3304/warikan/internal/ledger"
)

type journalKey struct {
	payment ledger.PaymentID
	bill    ledger.BillID
}

type journalRow struct {
	alloc ledger.Allocation
	at    time.Time
	seq   int
}

type state struct {
	bills         map[ledger.BillID]ledger.Bill
	confirmations map[string]ledger.ConfirmationRecord
	journal       map[journalKey]journalRow
	seq           int
}

func (s *state) clone() *state {
	c := &state{
		bills:         make(map[ledger.BillID]ledger.Bill, len(s.bills)),
		confirmations: make(map[string]ledger.ConfirmationRecord, len(s.confirmations)),
		journal:       make(map[journalKey]journalRow, len(s.journal)),
		seq:           s.seq,
	}
	for k, v := range s.bills {
		c.bills[k] = copyBill(v)
	}
	for k, v := range s.confirmations {
		c.confirmations[k] = v
	}
	for k, v := range s.journal {
		c.journal[k] = v
	}
	return c
}

// core holds the data and implements every read and write.
type core struct {
	mu   sync.Mutex
	data *state
}

// Store keeps everything in maps behind one mutex.
// Transactions are serialized with writes made outside them and roll back by
// restoring a snapshot.
type Store struct {
	*core
	txMu sync.Mutex
}

// txStore is the view handed to InTx callbacks. It already holds txMu.
type txStore struct {
	*core
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Store = txStore{}
)

func New() *Store {
	return &Store{core: &core{data: &state{
		bills:         make(map[ledger.BillID]ledger.Bill),
		confirmations: make(map[string]ledger.ConfirmationRecord),
		journal:       make(map[journalKey]journalRow),
	}}}
}

// CreateBill inserts a bill, filling in derived flags.
func (s *core) CreateBill(_ context.Context, b ledger.Bill) error {
	if b.ID == "" {
		return fmt.Errorf("%w: bill id is required", ledger.ErrBadRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.bills[b.ID]; ok {
		return fmt.Errorf("%w: bill %s exists", ledger.ErrConflict, b.ID)
	}
	b = copyBill(b)
	for i := range b.Entries {
		e := &b.Entries[i]
		if e.AmountPaid < 0 || e.AmountPaid > e.AmountOwed {
			return fmt.Errorf("%w: bill %s entry %s out of range", ledger.ErrBadRequest, b.ID, e.UserID)
		}
		e.IsPaid = e.AmountPaid >= e.AmountOwed
	}
	b.IsSettled = b.AllPaid()
	s.data.bills[b.ID] = b
	return nil
}

func (s *core) GetBill(_ context.Context, id ledger.BillID) (*ledger.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bills[id]
	if !ok {
		return nil, fmt.Errorf("bill %s: %w", id, ledger.ErrNotFound)
	}
	c := copyBill(b)
	return &c, nil
}

func (s *core) FindBillsByPayer(_ context.Context, payer ledger.UserID) ([]ledger.Bill, error) {
	return s.filter(func(b *ledger.Bill) bool { return ledger.Same(b.PayerID, payer) }), nil
}

func (s *core) FindBillsByParticipant(_ context.Context, user ledger.UserID) ([]ledger.Bill, error) {
	return s.filter(func(b *ledger.Bill) bool {
		for _, p := range b.ParticipantIDs {
			if ledger.Same(p, user) {
				return true
			}
		}
		return false
	}), nil
}

func (s *core) filter(keep func(*ledger.Bill) bool) []ledger.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Bill
	for _, b := range s.data.bills {
		if keep(&b) {
			out = append(out, copyBill(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *core) IncrementParticipantPaid(_ context.Context, bill ledger.BillID, user ledger.UserID, amount int64, at time.Time) (ledger.PaymentStatusEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.data.bills[bill]
	if !ok {
		return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s: %w", bill, ledger.ErrNotFound)
	}
	b = copyBill(b)
	e, ok := b.Entry(user)
	if !ok {
		return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s has no entry for %s: %w", bill, user, ledger.ErrNotFound)
	}
	if amount <= 0 || e.AmountPaid+amount > e.AmountOwed {
		return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s entry %s: %w", bill, user, ledger.ErrConflict)
	}
	e.AmountPaid += amount
	if e.AmountPaid >= e.AmountOwed {
		e.IsPaid = true
		paid := at
		e.PaidDate = &paid
	}
	b.IsSettled = b.AllPaid()
	s.data.bills[bill] = b
	return *e, nil
}

func (s *core) InsertConfirmation(_ context.Context, rec ledger.ConfirmationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.confirmations[rec.Token]; ok {
		return ledger.ErrAlreadyUsed
	}
	s.data.confirmations[rec.Token] = rec
	return nil
}

func (s *core) FindConfirmation(_ context.Context, token string) (*ledger.ConfirmationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.confirmations[token]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &rec, nil
}

func (s *core) RecordAllocation(_ context.Context, payment ledger.PaymentID, a ledger.Allocation, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := journalKey{payment: payment, bill: a.BillID}
	if _, ok := s.data.journal[k]; ok {
		return fmt.Errorf("payment %s on bill %s: %w", payment, a.BillID, ledger.ErrAlreadyUsed)
	}
	s.data.seq++
	s.data.journal[k] = journalRow{alloc: a, at: at, seq: s.data.seq}
	return nil
}

func (s *core) AllocationsForPayment(_ context.Context, payment ledger.PaymentID) ([]ledger.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []journalRow
	for k, r := range s.data.journal {
		if k.payment == payment {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]ledger.Allocation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.alloc)
	}
	return out, nil
}

func (s *Store) CreateBill(ctx context.Context, b ledger.Bill) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.core.CreateBill(ctx, b)
}

func (s *Store) IncrementParticipantPaid(ctx context.Context, bill ledger.BillID, user ledger.UserID, amount int64, at time.Time) (ledger.PaymentStatusEntry, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.core.IncrementParticipantPaid(ctx, bill, user, amount, at)
}

func (s *Store) InsertConfirmation(ctx context.Context, rec ledger.ConfirmationRecord) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.core.InsertConfirmation(ctx, rec)
}

func (s *Store) RecordAllocation(ctx context.Context, payment ledger.PaymentID, a ledger.Allocation, at time.Time) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.core.RecordAllocation(ctx, payment, a, at)
}

// InTx runs fn with exclusive write access; on error the state is restored.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx, txStore{s.core}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// InTx on a transaction view joins the outer transaction.
func (t txStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	return fn(ctx, t)
}

func copyBill(b ledger.Bill) ledger.Bill {
	b.ParticipantIDs = append([]ledger.UserID(nil), b.ParticipantIDs...)
	b.OptedOutUsers = append([]ledger.UserID(nil), b.OptedOutUsers...)
	entries := make([]ledger.PaymentStatusEntry, len(b.Entries))
	for i, e := range b.Entries {
		if e.PaidDate != nil {
			d := *e.PaidDate
			e.PaidDate = &d
		}
		entries[i] = e
	}
	b.Entries = entries
	return b
}
