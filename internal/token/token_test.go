package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/ledger"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func samplePayload() ledger.Payload {
	return ledger.Payload{
		PaymentID:      "pay_01h455vb4pex5vsknk084sn02q",
		RecipientID:    "111",
		PayerID:        "222",
		Amount:         1500,
		Note:           "ラーメン代",
		PriorityBillID: "bill_01h455vb4pex5vsknk084sn02q",
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSigner("secret").WithClock(fixedClock(now))

	tok, err := s.Sign(samplePayload(), 72*time.Hour)
	require.NoError(t, err)

	got, err := s.Verify(tok)
	require.NoError(t, err)
	want := samplePayload()
	want.ExpiresAt = now.Add(72 * time.Hour)
	assert.Equal(t, want.PaymentID, got.PaymentID)
	assert.Equal(t, want.RecipientID, got.RecipientID)
	assert.Equal(t, want.PayerID, got.PayerID)
	assert.Equal(t, want.Amount, got.Amount)
	assert.Equal(t, want.Note, got.Note)
	assert.Equal(t, want.PriorityBillID, got.PriorityBillID)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
}

func TestVerifyFailures(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewSigner("secret").WithClock(fixedClock(now))
	valid, err := s.Sign(samplePayload(), time.Hour)
	require.NoError(t, err)

	session, err := s.IssueSession("111", "alice", "")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"token_type": TypeConfirmation}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		signer *Signer
		token  string
		want   error
	}{
		{"expired", s.WithClock(fixedClock(now.Add(2 * time.Hour))), valid, ledger.ErrUnauthorized},
		{"wrong secret", NewSigner("other").WithClock(fixedClock(now)), valid, ledger.ErrUnauthorized},
		{"garbage", s, "not-a-jwt", ledger.ErrBadRequest},
		{"session token", s, session, ledger.ErrBadRequest},
		{"alg none", s, none, ledger.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.signer.Verify(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSession(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewSigner("secret").WithClock(fixedClock(now))

	tok, err := s.IssueSession("111", "alice", "access")
	require.NoError(t, err)

	claims, err := s.VerifySession(tok)
	require.NoError(t, err)
	assert.Equal(t, "111", claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	confirmation, err := s.Sign(samplePayload(), time.Hour)
	require.NoError(t, err)
	_, err = s.VerifySession(confirmation)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = s.WithClock(fixedClock(now.Add(SessionTTL + time.Second))).VerifySession(tok)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}
