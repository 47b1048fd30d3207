package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrganization      = errors.New("invalid_organization")
	ErrInvalidID                = errors.New("invalid_id")
	ErrNotFound                 = errors.New("charge_not_found")
	ErrInvalidAmount            = errors.New("invalid_amount")
	ErrAmountExceedsOutstanding = errors.New("amount_exceeds_outstanding")
	ErrAmountExceedsPaid        = errors.New("amount_exceeds_paid")
	ErrInvalidDueDate           = errors.New("invalid_due_date")
	ErrInvalidPeriod            = errors.New("invalid_period")
	ErrReasonRequired           = errors.New("reason_required")
	ErrInvalidStatus            = errors.New("invalid_status")
	ErrDuplicateCharge          = errors.New("duplicate_charge")
	ErrInvalidStateTransition   = errors.New("invalid_state_transition")
	ErrConcurrentUpdate         = errors.New("concurrent_update")
	ErrChargeBusy               = errors.New("charge_busy")
)

// TransitionError reports an operation the charge's current status forbids.
type TransitionError struct {
	From   Status
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot %s a %s charge", ErrInvalidStateTransition, e.Action, e.From)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

func transition(from Status, action, reason string) error {
	return &TransitionError{From: from, Action: action, Reason: reason}
}
