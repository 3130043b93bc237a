package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindDependency ErrorKind = "dependency"
)

// Error is a classified failure. Message is safe to show to callers; Err
// carries the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and message so sentinel values work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }

func Dependency(msg string, err error) *Error {
	return &Error{Kind: KindDependency, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindDependency for unclassified errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindDependency
}

var (
	ErrDatesUnavailable  = Conflict("Selected dates are no longer available")
	ErrBookingNotFound   = NotFound("Booking not found")
	ErrPaymentNotFound   = NotFound("Payment record not found for this booking")
	ErrCannotCancelPaid  = Conflict("Cannot cancel a paid booking")
	ErrCannotExpirePaid  = Conflict("Cannot expire a confirmed booking")
	ErrBookingCanceled   = Conflict("Booking has been canceled")
	ErrBookingExpired    = Conflict("Booking has already expired")
	ErrHoldNotExpired    = Conflict("Hold has not expired yet")
	ErrHoldExpired       = Conflict("This hold has expired. Please create a new hold to continue.")
	ErrNoPayments        = Conflict("No payment records found for this booking")
	ErrNotAwaitingProof  = Conflict("This booking is not awaiting payment proof")
	ErrInvalidDateRange  = Validation("Check-out must be after check-in")
	ErrConcurrentChange  = Conflict("Booking was changed concurrently, please retry")
	ErrSyncAlreadyActive = Conflict("Another run of this job is in progress")
)
