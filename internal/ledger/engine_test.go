package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/db/memory"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/token"
)

type recordingSink struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (r *recordingSink) Publish(ev ledger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) all() []ledger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Event(nil), r.events...)
}

func newEngine(t *testing.T) (*ledger.Engine, *memory.Store, *recordingSink) {
	t.Helper()
	s := memory.New()
	sink := &recordingSink{}
	e := ledger.NewEngine(s, token.NewSigner("engine-secret"), ledger.WithEventSink(sink))
	return e, s, sink
}

func request(t *testing.T, e *ledger.Engine, payer, recipient ledger.UserID, amount int64, priority ledger.BillID) ledger.IssuedPayment {
	t.Helper()
	p, err := e.RequestPayment(context.Background(), ledger.PaymentRequest{
		PayerID:        payer,
		RecipientID:    recipient,
		Amount:         amount,
		Note:           "thanks",
		PriorityBillID: priority,
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.Token)
	return p
}

func TestConfirmPaymentAllocates(t *testing.T) {
	e, s, sink := newEngine(t)
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 30})
	seedBill(t, s, "B2", userX, 1, share{user: userY, owed: 50})

	p := request(t, e, userY, userX, 100, "")
	assert.Regexp(t, `^pay_`, string(p.PaymentID))

	res, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.True(t, res.Record.IsConfirmed)
	assert.Equal(t, p.PaymentID, res.Record.PaymentID)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, int64(20), res.LeftoverAmount)

	journal, err := s.AllocationsForPayment(context.Background(), p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, res.Allocations, journal)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventPaymentConfirmed, events[0].Type)
	assert.Equal(t, userX, events[0].ActorID)
	assert.Equal(t, userY, events[0].CounterpartyID)
	assert.Equal(t, int64(100), events[0].Amount)
}

func TestConfirmPaymentPriority(t *testing.T) {
	e, s, _ := newEngine(t)
	seedBill(t, s, "old", userX, 0, share{user: userY, owed: 30})
	seedBill(t, s, "new", userX, 1, share{user: userY, owed: 30})

	p := request(t, e, userY, userX, 10, "new")
	res, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, ledger.BillID("new"), res.Allocations[0].BillID)
}

func TestConfirmThenRejectIsAlreadyUsed(t *testing.T) {
	e, s, sink := newEngine(t)
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 100})

	p := request(t, e, userY, userX, 40, "")
	_, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	require.NoError(t, err)

	res, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Rejected)
	require.ErrorIs(t, err, ledger.ErrAlreadyUsed)
	require.NotNil(t, res.Record)
	assert.True(t, res.Record.IsConfirmed)

	assert.Equal(t, int64(40), entryOf(t, s, "B1", userY).AmountPaid)
	assert.Len(t, sink.all(), 1)

	in, err := e.InspectConfirmation(context.Background(), p.Token)
	require.NoError(t, err)
	assert.False(t, in.Fresh)
	assert.True(t, in.Record.IsConfirmed)
}

func TestRejectLeavesBillsAlone(t *testing.T) {
	e, s, sink := newEngine(t)
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 100})

	p := request(t, e, userY, userX, 40, "")
	res, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Rejected)
	require.NoError(t, err)
	assert.False(t, res.Record.IsConfirmed)
	assert.Empty(t, res.Allocations)
	assert.Zero(t, entryOf(t, s, "B1", userY).AmountPaid)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventPaymentRejected, events[0].Type)
}

func TestConfirmPaymentConcurrent(t *testing.T) {
	e, s, _ := newEngine(t)
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 100})
	p := request(t, e, userY, userX, 60, "")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrAlreadyUsed)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(60), entryOf(t, s, "B1", userY).AmountPaid)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	e, s, _ := newEngine(t)
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 100})

	const n = 6
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = request(t, e, userY, userX, 30, "").Token
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var applied, leftover int64
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			res, err := e.ConfirmPayment(context.Background(), tok, ledger.Confirmed)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, a := range res.Allocations {
				applied += a.AmountPaid
			}
			leftover += res.LeftoverAmount
		}(tok)
	}
	wg.Wait()

	e1 := entryOf(t, s, "B1", userY)
	assert.Equal(t, int64(100), e1.AmountPaid)
	assert.True(t, e1.IsPaid)
	assert.Equal(t, int64(100), applied)
	assert.Equal(t, int64(80), leftover)
}

// failingJournal hands out transactions whose journal writes always fail.
type failingJournal struct {
	*memory.Store
}

var errJournalDown = errors.New("journal down")

func (f failingJournal) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx ledger.Store) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	ledger.Store
}

func (failingTx) RecordAllocation(context.Context, ledger.PaymentID, ledger.Allocation, time.Time) error {
	return errJournalDown
}

func TestConfirmPaymentRollsBack(t *testing.T) {
	s := memory.New()
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 100})
	e := ledger.NewEngine(failingJournal{s}, token.NewSigner("engine-secret"))

	p := request(t, e, userY, userX, 60, "")
	_, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	require.ErrorIs(t, err, errJournalDown)

	assert.Zero(t, entryOf(t, s, "B1", userY).AmountPaid)
	_, err = s.FindConfirmation(context.Background(), p.Token)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	// the token is still redeemable once the store recovers
	retry := ledger.NewEngine(s, token.NewSigner("engine-secret"))
	res, err := retry.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Allocations[0].AmountPaid)
}

func TestConfirmPaymentBadToken(t *testing.T) {
	e, _, sink := newEngine(t)
	_, err := e.ConfirmPayment(context.Background(), "nope", ledger.Confirmed)
	assert.ErrorIs(t, err, ledger.ErrBadRequest)

	other := ledger.NewEngine(memory.New(), token.NewSigner("other"))
	p := request(t, other, userY, userX, 10, "")
	_, err = e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Empty(t, sink.all())
}

func TestBalanceDebtsEmitsEvent(t *testing.T) {
	e, s, sink := newEngine(t)
	seedBill(t, s, "bill1", userY, 0, share{user: userX, owed: 100})
	seedBill(t, s, "bill2", userX, 1, share{user: userY, owed: 40})

	res, err := e.BalanceDebts(context.Background(), userX, userY)
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.NetDebt)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventDebtBalanced, events[0].Type)
	assert.Equal(t, int64(40), events[0].Amount)

	_, err = e.BalanceDebts(context.Background(), userX, userZ)
	assert.ErrorIs(t, err, ledger.ErrNothingToBalance)
	_, err = e.BalanceDebts(context.Background(), userX, userX)
	assert.ErrorIs(t, err, ledger.ErrBadRequest)
	assert.Len(t, sink.all(), 1)
}

func TestEngineSummaryAfterPayment(t *testing.T) {
	e, s, _ := newEngine(t)
	seedBill(t, s, "B1", userX, 0, share{user: userY, owed: 100})

	p := request(t, e, userY, userX, 25, "")
	_, err := e.ConfirmPayment(context.Background(), p.Token, ledger.Confirmed)
	require.NoError(t, err)

	sum, err := e.Summary(context.Background(), userY)
	require.NoError(t, err)
	assert.Equal(t, int64(75), sum.TotalIOwe)
	assert.Equal(t, int64(-75), sum.NetBalance)

	owed, err := e.DebtsOwedToUser(context.Background(), userX)
	require.NoError(t, err)
	require.Len(t, owed, 1)
	assert.Equal(t, int64(75), owed[0].TotalAmount)
}

func TestCreateBill(t *testing.T) {
	e, s, _ := newEngine(t)
	b := ledger.Bill{
		ID:             "bill_new",
		Name:           "yakiniku",
		PayerID:        userX,
		ParticipantIDs: []ledger.UserID{userX, userY},
		Entries:        []ledger.PaymentStatusEntry{{UserID: userY, AmountOwed: 3000}},
		TotalAmount:    6000,
		CreatedAt:      day0,
	}
	require.NoError(t, e.CreateBill(context.Background(), b))
	assert.Equal(t, int64(3000), entryOf(t, s, "bill_new", userY).Remaining())

	err := e.CreateBill(context.Background(), b)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	b.ID, b.Entries = "bill_empty", nil
	assert.ErrorIs(t, e.CreateBill(context.Background(), b), ledger.ErrBadRequest)
}
