package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/db/memory"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/token"
)

func newTokenLedger(t *testing.T) (*ledger.TokenLedger, *memory.Store) {
	t.Helper()
	s := memory.New()
	return ledger.NewTokenLedger(token.NewSigner("test-secret"), s), s
}

func issue(t *testing.T, l *ledger.TokenLedger) string {
	t.Helper()
	tok, expiresAt, err := l.Issue(context.Background(), ledger.Payload{
		PaymentID:   "pay_test",
		RecipientID: userX,
		PayerID:     userY,
		Amount:      500,
		Note:        "lunch",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(ledger.ConfirmationTTL), expiresAt, time.Minute)
	return tok
}

func TestIssueValidation(t *testing.T) {
	l, _ := newTokenLedger(t)
	tests := []struct {
		name string
		p    ledger.Payload
	}{
		{"zero amount", ledger.Payload{PaymentID: "pay_1", RecipientID: userX, PayerID: userY}},
		{"negative amount", ledger.Payload{PaymentID: "pay_1", RecipientID: userX, PayerID: userY, Amount: -1}},
		{"self payment", ledger.Payload{PaymentID: "pay_1", RecipientID: userX, PayerID: userX, Amount: 1}},
		{"missing payer", ledger.Payload{PaymentID: "pay_1", RecipientID: userX, Amount: 1}},
		{"missing payment id", ledger.Payload{RecipientID: userX, PayerID: userY, Amount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.Issue(context.Background(), tt.p)
			assert.ErrorIs(t, err, ledger.ErrBadRequest)
		})
	}
}

func TestInspectFreshThenUsed(t *testing.T) {
	l, _ := newTokenLedger(t)
	tok := issue(t, l)

	in, err := l.Inspect(context.Background(), tok)
	require.NoError(t, err)
	assert.True(t, in.Fresh)
	assert.Equal(t, int64(500), in.Payload.Amount)
	assert.Equal(t, "lunch", in.Payload.Note)
	assert.Nil(t, in.Record)

	_, err = l.Redeem(context.Background(), tok, ledger.Rejected)
	require.NoError(t, err)

	in, err = l.Inspect(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, in.Fresh)
	require.NotNil(t, in.Record)
	assert.False(t, in.Record.IsConfirmed)
}

func TestInspectBadToken(t *testing.T) {
	l, _ := newTokenLedger(t)
	_, err := l.Inspect(context.Background(), "garbage")
	assert.ErrorIs(t, err, ledger.ErrBadRequest)

	other := ledger.NewTokenLedger(token.NewSigner("other-secret"), memory.New())
	tok := issue(t, other)
	_, err = l.Inspect(context.Background(), tok)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestRedeemOnce(t *testing.T) {
	l, s := newTokenLedger(t)
	tok := issue(t, l)

	rec, err := l.Redeem(context.Background(), tok, ledger.Confirmed)
	require.NoError(t, err)
	assert.True(t, rec.IsConfirmed)
	assert.Equal(t, ledger.PaymentID("pay_test"), rec.PaymentID)

	_, err = l.Redeem(context.Background(), tok, ledger.Rejected)
	assert.ErrorIs(t, err, ledger.ErrAlreadyUsed)

	stored, err := s.FindConfirmation(context.Background(), tok)
	require.NoError(t, err)
	assert.True(t, stored.IsConfirmed)
}

func TestRedeemConcurrent(t *testing.T) {
	l, _ := newTokenLedger(t)
	tok := issue(t, l)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		already int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Redeem(context.Background(), tok, ledger.Decision(i%2 == 0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case ledger.IsConflict(err):
				already++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, already)
}
