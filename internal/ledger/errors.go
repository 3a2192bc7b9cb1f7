package ledger

import "errors"

var (
	ErrNotFound         = errors.New("ledger: not found")
	ErrUnauthorized     = errors.New("ledger: invalid or expired token")
	ErrBadRequest       = errors.New("ledger: bad request")
	ErrAlreadyUsed      = errors.New("ledger: token already used")
	ErrConflict         = errors.New("ledger: concurrent update conflict")
	ErrNothingToBalance = errors.New("ledger: no mutual debt to balance")
)

// IsNotFound reports whether err means an unknown user, bill or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a redemption or update conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyUsed) || errors.Is(err, ErrConflict)
}

// IsRetryable reports whether the caller may retry the same request.
// Lost increment races are retryable; everything else is final.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
