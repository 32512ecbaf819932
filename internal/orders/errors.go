package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrCounterNotFound     = errors.New("inventory counter not found")
	ErrInvalidTransition   = errors.New("not permitted in current status")
	ErrRefundAmountInvalid = errors.New("refund amount invalid")
	ErrBadSignature        = errors.New("bad signature")
	ErrTxConflict          = errors.New("transaction conflict")
	ErrInconsistentState   = errors.New("inventory counter inconsistent")
	ErrUpstream            = errors.New("upstream unavailable")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrRatingNotAllowed    = errors.New("rating not allowed")
	ErrReservationFinal    = errors.New("reservation already final")
)

// ShortageError names the first unit that could not cover its requested quantity.
type ShortageError struct {
	UnitID    string
	Requested int64
	Available int64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for unit %s: requested %d, available %d", e.UnitID, e.Requested, e.Available)
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s %s", e.From, e.To, ErrInvalidTransition.Error())
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InvalidArgument wraps ErrInvalidArgument with a message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
