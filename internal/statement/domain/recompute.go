package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
)

const DefaultNeedsAttentionThreshold = 3

type Options struct {
	// NeedsAttentionThreshold is the overdue charge count that flags a
	// student for follow-up.
	NeedsAttentionThreshold int
}

// Recompute folds charges and payments into fresh aggregates. Cancelled
// charges only contribute to CancelledCount and cancelled payments are
// ignored. The result depends on nothing but its inputs.
func Recompute(charges []chargedomain.Charge, payments []paymentdomain.Payment, opts Options) Aggregates {
	threshold := opts.NeedsAttentionThreshold
	if threshold <= 0 {
		threshold = DefaultNeedsAttentionThreshold
	}

	agg := Aggregates{
		TotalCharged:       decimal.Zero,
		TotalDiscounted:    decimal.Zero,
		TotalLateFees:      decimal.Zero,
		TotalPaid:          decimal.Zero,
		OutstandingBalance: decimal.Zero,
		CreditBalance:      decimal.Zero,
	}

	for i := range charges {
		c := &charges[i]
		agg.ChargeCount++
		switch c.Status {
		case chargedomain.StatusCancelled:
			agg.CancelledCount++
			continue
		case chargedomain.StatusPending:
			agg.PendingCount++
		case chargedomain.StatusPartial:
			agg.PartialCount++
		case chargedomain.StatusPaid:
			agg.PaidCount++
		case chargedomain.StatusOverdue:
			agg.OverdueCount++
		}

		agg.TotalCharged = agg.TotalCharged.Add(c.Amount)
		agg.TotalDiscounted = agg.TotalDiscounted.Add(c.Discount)
		agg.TotalLateFees = agg.TotalLateFees.Add(c.LateFee)

		if c.IsOpen() {
			agg.OldestDueDate = earliest(agg.OldestDueDate, c.DueDate)
		}
		agg.LatestChargeDate = latest(agg.LatestChargeDate, c.CreatedAt)
	}

	for i := range payments {
		p := &payments[i]
		if p.Cancelled {
			continue
		}
		agg.PaymentCount++
		agg.TotalPaid = agg.TotalPaid.Add(p.Amount)
		agg.LastPaymentDate = latest(agg.LastPaymentDate, p.PaidAt)
	}

	outstanding := agg.TotalCharged.
		Sub(agg.TotalDiscounted).
		Add(agg.TotalLateFees).
		Sub(agg.TotalPaid)
	if outstanding.IsNegative() {
		agg.CreditBalance = outstanding.Neg()
		outstanding = decimal.Zero
	}
	agg.OutstandingBalance = outstanding

	agg.HasOverdue = agg.OverdueCount > 0
	agg.IsCurrent = agg.OutstandingBalance.IsZero() && !agg.HasOverdue
	agg.NeedsAttention = agg.OverdueCount >= threshold
	return agg
}

func earliest(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.Before(*cur) {
		v := t
		return &v
	}
	return cur
}

func latest(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		v := t
		return &v
	}
	return cur
}

// Reconcile checks every non-cancelled charge's stored outstanding balance
// against finalAmount + lateFee - amountPaid.
func Reconcile(studentID snowflake.ID, charges []chargedomain.Charge) error {
	var mismatches []Mismatch
	for i := range charges {
		c := &charges[i]
		if c.Status == chargedomain.StatusCancelled {
			continue
		}
		expected := c.ExpectedOutstanding()
		if !c.OutstandingBalance.Equal(expected) {
			mismatches = append(mismatches, Mismatch{ChargeID: c.ID, Stored: c.OutstandingBalance, Expected: expected})
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].ChargeID < mismatches[j].ChargeID })
	return &ReconciliationError{StudentID: studentID, Mismatches: mismatches}
}
