package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ledger failures. Every kind aborts the whole operation.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnauthorized
	KindNotAvailable
	KindInvalidCurrentPrice
	KindInvalidNewPrice
	KindInvalidCurrency
	KindTransferFailed
	KindNothingToCollect
	KindSlotNotFound
	KindInvalidArgument
)

// String returns the stable code of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotAvailable:
		return "not_available"
	case KindInvalidCurrentPrice:
		return "invalid_current_price"
	case KindInvalidNewPrice:
		return "invalid_new_price"
	case KindInvalidCurrency:
		return "invalid_currency"
	case KindTransferFailed:
		return "transfer_failed"
	case KindNothingToCollect:
		return "nothing_to_collect"
	case KindSlotNotFound:
		return "slot_not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Never mutate them; use newError for context.
var (
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "caller is not the authority"}
	ErrNotAvailable        = &Error{Kind: KindNotAvailable, Message: "bidding cycle has not elapsed"}
	ErrInvalidCurrentPrice = &Error{Kind: KindInvalidCurrentPrice, Message: "declared current price is stale"}
	ErrInvalidNewPrice     = &Error{Kind: KindInvalidNewPrice, Message: "new price is invalid"}
	ErrInvalidCurrency     = &Error{Kind: KindInvalidCurrency, Message: "currency is not accepted"}
	ErrTransferFailed      = &Error{Kind: KindTransferFailed, Message: "asset transfer failed"}
	ErrNothingToCollect    = &Error{Kind: KindNothingToCollect, Message: "no tax owed"}
	ErrSlotNotFound        = &Error{Kind: KindSlotNotFound, Message: "slot not found"}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
)

// Error is a structured ledger failure.
type Error struct {
	Kind    ErrorKind
	Message string
	SlotID  SlotID
	Cause   error
	Context map[string]interface{}
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.SlotID != 0 {
		msg = fmt.Sprintf("%s (slot %d)", msg, e.SlotID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithCause adds a cause error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSlot adds the slot identifier
func (e *Error) WithSlot(id SlotID) *Error {
	e.SlotID = id
	return e
}

// WithContext adds context information
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the kind of a ledger error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}
