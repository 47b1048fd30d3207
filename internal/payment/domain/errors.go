package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidID              = errors.New("invalid_id")
	ErrNotFound               = errors.New("payment_not_found")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidMethod          = errors.New("invalid_method")
	ErrInvalidPaidAt          = errors.New("invalid_paid_at")
	ErrReasonRequired         = errors.New("reason_required")
	ErrInvoiceIDRequired      = errors.New("invoice_id_required")
	ErrChargeMismatch         = errors.New("charge_mismatch")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrConcurrentUpdate       = errors.New("concurrent_update")
)

// TransitionError reports an operation the payment's state forbids.
type TransitionError struct {
	From   State
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a %s payment", ErrInvalidStateTransition, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }
