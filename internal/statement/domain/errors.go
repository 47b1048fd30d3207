package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidStudent      = errors.New("invalid_student")
	ErrReconciliation      = errors.New("reconciliation_failed")
)

// Mismatch is a charge whose stored balance disagrees with its amounts.
type Mismatch struct {
	ChargeID snowflake.ID
	Stored   decimal.Decimal
	Expected decimal.Decimal
}

// ReconciliationError means stored charge balances no longer add up. It is
// never retried.
type ReconciliationError struct {
	StudentID  snowflake.ID
	Mismatches []Mismatch
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: student %s: charges %s", ErrReconciliation, e.StudentID, strings.Join(e.ChargeIDs(), ","))
}

func (e *ReconciliationError) ChargeIDs() []string {
	ids := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		ids = append(ids, m.ChargeID.String())
	}
	return ids
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliation }
