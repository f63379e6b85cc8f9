package ledger

import "errors"

var (
	// ErrConflict is returned when settlement or cancellation is attempted
	// on an order that is no longer PENDING, typically because a retried
	// run already processed it.
	ErrConflict = errors.New("order is not in PENDING state")

	ErrOrderNotFound      = errors.New("order not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInsufficientFunds  = errors.New("insufficient available cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidAmount      = errors.New("amount must be positive")
)
