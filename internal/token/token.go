// Package token signs payment confirmation tokens and web session tokens as HS256 JWTs.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/susu3304/warikan/internal/ledger"
)

const (
	TypeConfirmation = "payment_confirmation"
	TypeSession      = "session"
)

// SessionTTL is how long a web login stays valid.
const SessionTTL = 24 * time.Hour

type ConfirmationClaims struct {
	TokenType      string `json:"token_type"`
	PaymentID      string `json:"payment_id"`
	RecipientID    string `json:"recipient_id"`
	PayerID        string `json:"payer_id"`
	Amount         int64  `json:"amount"`
	Note           string `json:"note,omitempty"`
	PriorityBillID string `json:"priority_bill_id,omitempty"`
	jwt.RegisteredClaims
}

type SessionClaims struct {
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token,omitempty"`
	jwt.RegisteredClaims
}

// Signer implements ledger.Signer and also issues session tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

var _ ledger.Signer = (*Signer)(nil)

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	return &Signer{secret: s.secret, now: now}
}

func (s *Signer) Sign(p ledger.Payload, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &ConfirmationClaims{
		TokenType:      TypeConfirmation,
		PaymentID:      string(p.PaymentID),
		RecipientID:    string(p.RecipientID),
		PayerID:        string(p.PayerID),
		Amount:         p.Amount,
		Note:           p.Note,
		PriorityBillID: string(p.PriorityBillID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.PaymentID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return signed, nil
}

func (s *Signer) Verify(tokenString string) (ledger.Payload, error) {
	claims := &ConfirmationClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return ledger.Payload{}, err
	}
	if claims.TokenType != TypeConfirmation {
		return ledger.Payload{}, fmt.Errorf("%w: token type %q", ledger.ErrBadRequest, claims.TokenType)
	}
	if claims.PaymentID == "" || claims.PayerID == "" || claims.RecipientID == "" || claims.Amount <= 0 {
		return ledger.Payload{}, fmt.Errorf("%w: malformed confirmation token", ledger.ErrBadRequest)
	}

	p := ledger.Payload{
		PaymentID:      ledger.PaymentID(claims.PaymentID),
		RecipientID:    ledger.UserID(claims.RecipientID),
		PayerID:        ledger.UserID(claims.PayerID),
		Amount:         claims.Amount,
		Note:           claims.Note,
		PriorityBillID: ledger.BillID(claims.PriorityBillID),
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// IssueSession signs a login token for a Discord user.
func (s *Signer) IssueSession(userID, username, accessToken string) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		TokenType:   TypeSession,
		UserID:      userID,
		Username:    username,
		AccessToken: accessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return signed, nil
}

func (s *Signer) VerifySession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeSession || claims.UserID == "" {
		return nil, fmt.Errorf("%w: not a session token", ledger.ErrUnauthorized)
	}
	return claims, nil
}

func (s *Signer) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: token expired", ledger.ErrUnauthorized)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: malformed token", ledger.ErrBadRequest)
	case err != nil:
		return fmt.Errorf("%w: %v", ledger.ErrUnauthorized, err)
	case !token.Valid:
		return fmt.Errorf("%w: invalid token", ledger.ErrUnauthorized)
	}
	return nil
}
