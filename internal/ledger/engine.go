package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/susu3304/warikan/internal/id"
)

// EventSink receives engine outcomes after they commit.
// Publish must not block; delivery is best-effort.
type EventSink interface {
	Publish(Event)
}

type discardSink struct{}

func (discardSink) Publish(Event) {}

// Engine ties the token ledger, allocator and balancer to one store.
type Engine struct {
	store  Store
	signer Signer
	sink   EventSink
	locks  *pairLocks
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink routes events to sink instead of dropping them.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, signer Signer, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		signer: signer,
		sink:   discardSink{},
		locks:  newPairLocks(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PaymentRequest is what a debtor submits to start a payment.
type PaymentRequest struct {
	PayerID        UserID
	RecipientID    UserID
	Amount         int64
	Note           string
	PriorityBillID BillID
}

// IssuedPayment is the token handed to the creditor.
type IssuedPayment struct {
	PaymentID PaymentID `json:"payment_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmResult is the outcome of ConfirmPayment.
type ConfirmResult struct {
	Record         *ConfirmationRecord `json:"record"`
	Allocations    []Allocation        `json:"allocations"`
	LeftoverAmount int64               `json:"leftover_amount"`
}

func (e *Engine) tokens(s ConfirmationStore) *TokenLedger {
	l := NewTokenLedger(e.signer, s)
	l.now = e.now
	return l
}

func (e *Engine) allocator(s BillStore) *Allocator {
	a := NewAllocator(s)
	a.now = e.now
	return a
}

func (e *Engine) balancer(s BillStore) *Balancer {
	return &Balancer{bills: s, alloc: e.allocator(s)}
}

// RequestPayment issues a confirmation token for a new payment.
func (e *Engine) RequestPayment(ctx context.Context, req PaymentRequest) (IssuedPayment, error) {
	paymentID := PaymentID(id.NewPayment())
	token, expiresAt, err := e.tokens(e.store).Issue(ctx, Payload{
		PaymentID:      paymentID,
		RecipientID:    req.RecipientID,
		PayerID:        req.PayerID,
		Amount:         req.Amount,
		Note:           req.Note,
		PriorityBillID: req.PriorityBillID,
	})
	if err != nil {
		return IssuedPayment{}, err
	}
	return IssuedPayment{PaymentID: paymentID, Token: token, ExpiresAt: expiresAt}, nil
}

// InspectConfirmation shows what a token would do, or what it already did.
func (e *Engine) InspectConfirmation(ctx context.Context, token string) (Inspection, error) {
	return e.tokens(e.store).Inspect(ctx, token)
}

// ConfirmPayment redeems token with the creditor's decision and, when
// confirmed, allocates the amount over the payer's bills toward the recipient.
// Redemption and allocation commit together. A token that was already
// redeemed returns ErrAlreadyUsed together with the stored record.
func (e *Engine) ConfirmPayment(ctx context.Context, token string, d Decision) (ConfirmResult, error) {
	p, err := e.signer.Verify(token)
	if err != nil {
		redemptionsTotal.WithLabelValues(outcomeError).Inc()
		return ConfirmResult{}, err
	}

	unlock := e.locks.lock(pairKey(p.RecipientID, p.PayerID))
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	var (
		result   ConfirmResult
		replayed bool
	)
	err = e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		result, replayed = ConfirmResult{}, false

		rec, err := e.tokens(tx).Redeem(ctx, token, d)
		if err != nil {
			return err
		}
		result.Record = rec
		result.Allocations = []Allocation{}
		if !rec.IsConfirmed {
			return nil
		}

		prior, err := tx.AllocationsForPayment(ctx, rec.PaymentID)
		if err != nil {
			return fmt.Errorf("load allocations for %s: %w", rec.PaymentID, err)
		}
		if len(prior) > 0 {
			replayed = true
			result.Allocations = prior
			return nil
		}

		alloc, err := e.allocator(tx).Allocate(ctx, rec.PayerID, rec.RecipientID, rec.Amount, rec.PriorityBillID)
		if err != nil {
			return err
		}
		at := e.now().UTC()
		for _, a := range alloc.Allocations {
			if err := tx.RecordAllocation(ctx, rec.PaymentID, a, at); err != nil {
				return fmt.Errorf("journal allocation for %s: %w", rec.PaymentID, err)
			}
		}
		result.Allocations = alloc.Allocations
		result.LeftoverAmount = alloc.LeftoverAmount
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			redemptionsTotal.WithLabelValues(outcomeAlreadyUsed).Inc()
			if rec, ferr := e.store.FindConfirmation(ctx, token); ferr == nil {
				return ConfirmResult{Record: rec}, err
			}
			return ConfirmResult{}, err
		}
		redemptionsTotal.WithLabelValues(outcomeError).Inc()
		return ConfirmResult{}, err
	}

	rec := result.Record
	ev := Event{
		ActorID:        rec.RecipientID,
		CounterpartyID: rec.PayerID,
		Amount:         rec.Amount,
		Allocations:    result.Allocations,
		PaymentID:      rec.PaymentID,
		OccurredAt:     rec.ConfirmedAt,
	}
	switch {
	case !rec.IsConfirmed:
		redemptionsTotal.WithLabelValues(outcomeRejected).Inc()
		ev.Type = EventPaymentRejected
	case replayed:
		redemptionsTotal.WithLabelValues(outcomeReplayed).Inc()
		ev.Type = EventPaymentConfirmed
	default:
		redemptionsTotal.WithLabelValues(outcomeConfirmed).Inc()
		allocationsTotal.Add(float64(len(result.Allocations)))
		allocatedAmountTotal.Add(float64(allocSum(result.Allocations)))
		leftoverAmountTotal.Add(float64(result.LeftoverAmount))
		ev.Type = EventPaymentConfirmed
	}
	e.sink.Publish(ev)
	return result, nil
}

// BalanceDebts nets what a and b owe each other.
func (e *Engine) BalanceDebts(ctx context.Context, a, b UserID) (BalanceResult, error) {
	if Same(a, b) {
		return BalanceResult{}, fmt.Errorf("%w: cannot balance a user with themselves", ErrBadRequest)
	}
	unlock := e.locks.lock(pairKey(a, b), pairKey(b, a))
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	var result BalanceResult
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		result, err = e.balancer(tx).Balance(ctx, a, b)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNothingToBalance) {
			balancesTotal.WithLabelValues(outcomeNothing).Inc()
		} else {
			balancesTotal.WithLabelValues(outcomeError).Inc()
		}
		return BalanceResult{}, err
	}

	balancesTotal.WithLabelValues(outcomeBalanced).Inc()
	e.sink.Publish(Event{
		Type:           EventDebtBalanced,
		ActorID:        a,
		CounterpartyID: b,
		Amount:         allocSum(result.Allocations) / 2,
		Allocations:    result.Allocations,
		OccurredAt:     e.now().UTC(),
	})
	return result, nil
}

// CreateBill stores a new bill. Bills are created whole; shares never change
// afterwards except through payments.
func (e *Engine) CreateBill(ctx context.Context, b Bill) error {
	if len(b.Entries) == 0 {
		return fmt.Errorf("%w: bill has no debtors", ErrBadRequest)
	}
	if err := e.store.CreateBill(ctx, b); err != nil {
		return fmt.Errorf("create bill %s: %w", b.ID, err)
	}
	billsCreatedTotal.Inc()
	return nil
}

func (e *Engine) DebtsOwedToUser(ctx context.Context, user UserID) ([]Debt, error) {
	return NewAggregator(e.store).DebtsOwedToUser(ctx, user)
}

func (e *Engine) DebtsOwedByUser(ctx context.Context, user UserID) ([]Debt, error) {
	return NewAggregator(e.store).DebtsOwedByUser(ctx, user)
}

func (e *Engine) Summary(ctx context.Context, user UserID) (Summary, error) {
	return NewAggregator(e.store).Summary(ctx, user)
}

func (e *Engine) DebtBetween(ctx context.Context, from, to UserID) (int64, error) {
	return NewAggregator(e.store).DebtBetween(ctx, from, to)
}

func allocSum(allocs []Allocation) int64 {
	var total int64
	for _, a := range allocs {
		total += a.AmountPaid
	}
	return total
}
