package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/clock"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/pkg/money"
	"github.com/smallbiznis/bursar/pkg/validation"
)

// NewCharge issues a pending charge for the full concept amount.
func NewCharge(p NewChargeParams, now time.Time) (*Charge, error) {
	if p.ID == 0 || p.StudentID == 0 || p.Concept.ID == 0 {
		return nil, ErrInvalidID
	}
	if !p.Concept.Active {
		return nil, conceptdomain.ErrConceptInactive
	}
	period := strings.TrimSpace(p.Period)
	if period == "" {
		return nil, ErrInvalidPeriod
	}
	if p.DueDate.IsZero() {
		return nil, ErrInvalidDueDate
	}
	if p.Concept.BaseAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	amount := money.Round(p.Concept.BaseAmount)
	description := strings.TrimSpace(p.Description)
	if description == "" {
		description = p.Concept.Name
	}

	c := &Charge{
		ID:                 p.ID,
		OrgID:              p.Concept.OrgID,
		ConceptID:          p.Concept.ID,
		StudentID:          p.StudentID,
		Period:             period,
		Description:        description,
		Amount:             amount,
		Discount:           decimal.Zero,
		DiscountPercentage: decimal.Zero,
		FinalAmount:        amount,
		LateFee:            decimal.Zero,
		AmountPaid:         decimal.Zero,
		OutstandingBalance: amount,
		Status:             StatusPending,
		DueDate:            clock.Date(p.DueDate),
		Policy:             p.Concept.Policy,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	c.RefreshStatus(now)
	return c, nil
}

// TotalDue is the final amount plus the late fee.
func (c *Charge) TotalDue() decimal.Decimal {
	return c.FinalAmount.Add(c.LateFee)
}

// ExpectedOutstanding recomputes the balance from the stored amounts.
func (c *Charge) ExpectedOutstanding() decimal.Decimal {
	return c.FinalAmount.Add(c.LateFee).Sub(c.AmountPaid)
}

// DaysLate counts whole calendar days past the due date, or zero.
func (c *Charge) DaysLate(now time.Time) int {
	days := clock.DaysBetween(c.DueDate, now)
	if days < 0 {
		return 0
	}
	return days
}

func (c *Charge) IsCancelled() bool { return c.Status == StatusCancelled }

// IsOpen reports whether the charge still expects payment.
func (c *Charge) IsOpen() bool {
	return c.Status == StatusPending || c.Status == StatusPartial || c.Status == StatusOverdue
}

func (c *Charge) recalculate() {
	c.FinalAmount = money.Round(c.Amount.Sub(c.Discount))
	c.OutstandingBalance = c.ExpectedOutstanding()
}

// lateFeeAt is the late fee owed at now, floored so the balance never goes
// negative after the fee shrinks (e.g. a due date extension).
func (c *Charge) lateFeeAt(now time.Time) decimal.Decimal {
	fee := c.Policy.LateFee(c.Amount, c.DaysLate(now))
	floor := c.AmountPaid.Sub(c.FinalAmount)
	return money.Max(fee, money.Max(floor, decimal.Zero))
}

// RefreshStatus recomputes the late fee and status from the amounts, the due
// date and now. It is the only path by which a non-cancelled status changes.
func (c *Charge) RefreshStatus(now time.Time) {
	if c.Status == StatusCancelled {
		c.recalculate()
		return
	}

	c.recalculate()
	if c.OutstandingBalance.IsPositive() {
		c.LateFee = c.lateFeeAt(now)
		c.recalculate()
	}

	switch {
	case !c.OutstandingBalance.IsPositive():
		c.Status = StatusPaid
		if c.PaidInFullAt == nil {
			paidAt := now
			c.PaidInFullAt = &paidAt
		}
		return
	case clock.Date(now).After(c.DueDate):
		c.Status = StatusOverdue
	case c.AmountPaid.IsPositive():
		c.Status = StatusPartial
	default:
		c.Status = StatusPending
	}
	c.PaidInFullAt = nil
}

// refreshed returns a copy of c brought up to date with now, so callers can
// validate against current amounts without touching c.
func (c *Charge) refreshed(now time.Time) Charge {
	cp := *c
	cp.RefreshStatus(now)
	return cp
}

// AccrueLateFee recomputes the late fee for now. Repeated calls with the same
// now give the same fee.
func (c *Charge) AccrueLateFee(now time.Time) {
	if c.Status == StatusCancelled || c.Status == StatusPaid {
		return
	}
	c.RefreshStatus(now)
}

// ApplyDiscount replaces any previous discount with pct percent of the
// original amount. Only allowed before payments are registered. pct is
// rounded to two places first so the stored rate reproduces the discount.
func (c *Charge) ApplyDiscount(pct decimal.Decimal, reason string, now time.Time) error {
	pct = money.RoundPercentage(pct)
	next := c.refreshed(now)
	switch {
	case next.Status == StatusPaid || next.Status == StatusCancelled:
		return transition(next.Status, "discount", "")
	case next.AmountPaid.IsPositive():
		return transition(next.Status, "discount", "payments_exist")
	}

	discounted, err := next.Policy.AmountWithDiscount(next.Amount, pct)
	if err != nil {
		return err
	}

	next.Discount = next.Amount.Sub(discounted)
	next.DiscountPercentage = pct
	next.DiscountReason = strings.TrimSpace(reason)
	next.UpdatedAt = now
	next.RefreshStatus(now)
	*c = next
	return nil
}

// RegisterPayment applies amount against the outstanding balance.
func (c *Charge) RegisterPayment(amount decimal.Decimal, now time.Time) error {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	next := c.refreshed(now)
	if next.Status == StatusCancelled || next.Status == StatusPaid {
		return transition(next.Status, "pay", "")
	}
	if amount.GreaterThan(next.OutstandingBalance) {
		return ErrAmountExceedsOutstanding
	}

	next.AmountPaid = next.AmountPaid.Add(amount)
	next.UpdatedAt = now
	next.RefreshStatus(now)
	*c = next
	return nil
}

// ReversePayment takes back amount previously registered, e.g. when a
// payment is cancelled.
func (c *Charge) ReversePayment(amount decimal.Decimal, now time.Time) error {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if c.Status == StatusCancelled {
		return transition(c.Status, "reverse payment on", "")
	}
	if amount.GreaterThan(c.AmountPaid) {
		return ErrAmountExceedsPaid
	}

	c.AmountPaid = c.AmountPaid.Sub(amount)
	c.PaidInFullAt = nil
	c.UpdatedAt = now
	c.RefreshStatus(now)
	return nil
}

// Cancel voids an unpaid charge.
func (c *Charge) Cancel(reason, actor string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	next := c.refreshed(now)
	switch {
	case next.Status == StatusPaid || next.Status == StatusCancelled:
		return transition(next.Status, "cancel", "")
	case next.AmountPaid.IsPositive():
		return transition(next.Status, "cancel", "payments_exist")
	}

	cancelledAt := now
	next.Status = StatusCancelled
	next.CancelledAt = &cancelledAt
	next.CancelReason = reason
	next.CancelledBy = strings.TrimSpace(actor)
	next.PaidInFullAt = nil
	next.UpdatedAt = now
	*c = next
	return nil
}

// Reactivate restores a cancelled charge; its status is re-derived.
func (c *Charge) Reactivate(now time.Time) error {
	if c.Status != StatusCancelled {
		return transition(c.Status, "reactivate", "")
	}

	c.Status = StatusPending
	c.CancelledAt = nil
	c.CancelReason = ""
	c.CancelledBy = ""
	c.UpdatedAt = now
	c.RefreshStatus(now)
	return nil
}

// ExtendDueDate moves the due date later and recomputes the late fee. The
// reason is optional and replaces any earlier one.
func (c *Charge) ExtendDueDate(newDate time.Time, reason string, now time.Time) error {
	if newDate.IsZero() {
		return ErrInvalidDueDate
	}
	next := c.refreshed(now)
	if next.Status == StatusPaid || next.Status == StatusCancelled {
		return transition(next.Status, "extend the due date of", "")
	}
	newDate = clock.Date(newDate)
	if !newDate.After(next.DueDate) {
		return ErrInvalidDueDate
	}

	next.DueDate = newDate
	next.DueDateReason = strings.TrimSpace(reason)
	next.UpdatedAt = now
	next.RefreshStatus(now)
	*c = next
	return nil
}

// Validate reports every broken invariant. It never mutates c.
func (c *Charge) Validate() validation.Violations {
	var v validation.Violations
	if !c.Status.Valid() {
		v.Add("status", "invalid", "unknown status")
	}
	if c.Amount.IsNegative() {
		v.Add("amount", "negative", "amount must not be negative")
	}
	if c.Discount.IsNegative() || c.Discount.GreaterThan(c.Amount) {
		v.Add("discount", "out_of_range", "discount must be between 0 and amount")
	}
	if !c.FinalAmount.Equal(c.Amount.Sub(c.Discount)) {
		v.Add("final_amount", "mismatch", "final amount must equal amount minus discount")
	}
	if c.LateFee.IsNegative() {
		v.Add("late_fee", "negative", "late fee must not be negative")
	}
	if c.AmountPaid.IsNegative() {
		v.Add("amount_paid", "negative", "amount paid must not be negative")
	}
	if !c.OutstandingBalance.Equal(c.ExpectedOutstanding()) {
		v.Add("outstanding_balance", "mismatch", "outstanding balance must equal final amount plus late fee minus amount paid")
	}
	if c.OutstandingBalance.IsNegative() {
		v.Add("outstanding_balance", "negative", "outstanding balance must not be negative")
	}
	switch c.Status {
	case StatusCancelled:
		if !c.AmountPaid.IsZero() {
			v.Add("amount_paid", "cancelled_with_payments", "cancelled charges cannot hold payments")
		}
		if c.CancelledAt == nil || c.CancelReason == "" {
			v.Add("cancelled_at", "required", "cancellation time and reason are set together")
		}
	case StatusPaid:
		if !c.OutstandingBalance.IsZero() {
			v.Add("outstanding_balance", "paid_with_balance", "paid charges have no outstanding balance")
		}
		if c.PaidInFullAt == nil {
			v.Add("paid_in_full_at", "required", "paid charges record when they were paid in full")
		}
	}
	if c.Status != StatusCancelled && (c.CancelledAt != nil || c.CancelReason != "" || c.CancelledBy != "") {
		v.Add("cancelled_at", "not_allowed", "only cancelled charges carry cancellation data")
	}
	return v
}
