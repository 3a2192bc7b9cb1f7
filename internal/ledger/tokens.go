package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ConfirmationTTL is how long a creditor has to confirm or reject a payment.
const ConfirmationTTL = 72 * time.Hour

// Payload is what a confirmation token carries.
type Payload struct {
	PaymentID      PaymentID
	RecipientID    UserID
	PayerID        UserID
	Amount         int64
	Note           string
	PriorityBillID BillID
	ExpiresAt      time.Time
}

// Signer signs and verifies confirmation tokens.
// Verify returns ErrUnauthorized for bad signatures or expired tokens and
// ErrBadRequest for tokens of the wrong type or shape.
type Signer interface {
	Sign(p Payload, ttl time.Duration) (string, error)
	Verify(token string) (Payload, error)
}

// Decision is the creditor's answer to a payment.
type Decision bool

const (
	Rejected  Decision = false
	Confirmed Decision = true
)

// Inspection describes a token before it is redeemed.
// When Fresh is false the token was already used and Record holds the stored
// decision; Payload is then left empty.
type Inspection struct {
	Fresh   bool
	Payload Payload
	Record  *ConfirmationRecord
}

// TokenLedger issues confirmation tokens and redeems each at most once.
type TokenLedger struct {
	signer Signer
	store  ConfirmationStore
	now    func() time.Time
}

func NewTokenLedger(signer Signer, store ConfirmationStore) *TokenLedger {
	return &TokenLedger{signer: signer, store: store, now: time.Now}
}

// Issue signs a token for a payment from payer to recipient.
func (l *TokenLedger) Issue(ctx context.Context, p Payload) (string, time.Time, error) {
	if err := validatePayload(p); err != nil {
		return "", time.Time{}, err
	}
	p.ExpiresAt = l.now().Add(ConfirmationTTL)
	token, err := l.signer.Sign(p, ConfirmationTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign confirmation token: %w", err)
	}
	return token, p.ExpiresAt, nil
}

// Inspect verifies the token and reports whether it was already used.
func (l *TokenLedger) Inspect(ctx context.Context, token string) (Inspection, error) {
	p, err := l.signer.Verify(token)
	if err != nil {
		return Inspection{}, err
	}

	rec, err := l.store.FindConfirmation(ctx, token)
	switch {
	case err == nil:
		return Inspection{Fresh: false, Record: rec}, nil
	case errors.Is(err, ErrNotFound):
		return Inspection{Fresh: true, Payload: p}, nil
	default:
		return Inspection{}, fmt.Errorf("find confirmation: %w", err)
	}
}

// Redeem records the decision for token. The insert against the unique token
// key decides which caller wins; a loser gets ErrAlreadyUsed and must not
// touch any bill.
func (l *TokenLedger) Redeem(ctx context.Context, token string, d Decision) (*ConfirmationRecord, error) {
	p, err := l.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	rec := ConfirmationRecord{
		PaymentID:      p.PaymentID,
		Token:          token,
		RecipientID:    p.RecipientID,
		PayerID:        p.PayerID,
		Amount:         p.Amount,
		IsConfirmed:    bool(d),
		ConfirmedAt:    l.now().UTC(),
		PriorityBillID: p.PriorityBillID,
	}
	if err := l.store.InsertConfirmation(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			return nil, err
		}
		return nil, fmt.Errorf("insert confirmation: %w", err)
	}
	return &rec, nil
}

func validatePayload(p Payload) error {
	switch {
	case p.PaymentID == "":
		return fmt.Errorf("%w: payment id is required", ErrBadRequest)
	case p.PayerID == "" || p.RecipientID == "":
		return fmt.Errorf("%w: payer and recipient are required", ErrBadRequest)
	case Same(p.PayerID, p.RecipientID):
		return fmt.Errorf("%w: cannot pay yourself", ErrBadRequest)
	case p.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrBadRequest)
	}
	return nil
}
