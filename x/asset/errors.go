package asset

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRecipientRejected   = errors.New("recipient rejected native transfer")
	ErrUnknownToken        = errors.New("unknown token")
	ErrBalanceOverflow     = errors.New("balance overflow")
)
