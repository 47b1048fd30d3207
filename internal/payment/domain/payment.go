package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/pkg/money"
	"gorm.io/datatypes"
)

// NewReceiptNumber returns a sortable, unique receipt number.
func NewReceiptNumber(now time.Time) string {
	return "RCPT-" + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

type NewPaymentParams struct {
	ID            snowflake.ID
	Amount        decimal.Decimal
	Method        Method
	PaidAt        time.Time
	ReceiptNumber string
	Reference     string
	Notes         string
	RecordedBy    string
}

// NewPayment applies a payment to charge. The charge is mutated only when
// the payment is valid.
func NewPayment(charge *chargedomain.Charge, p NewPaymentParams, now time.Time) (*Payment, error) {
	if p.ID == 0 || charge == nil || charge.ID == 0 {
		return nil, ErrInvalidID
	}
	amount := money.Round(p.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !p.Method.Valid() {
		return nil, ErrInvalidMethod
	}
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	if paidAt.After(now) {
		return nil, ErrInvalidPaidAt
	}

	if err := charge.RegisterPayment(amount, now); err != nil {
		return nil, err
	}

	receipt := strings.TrimSpace(p.ReceiptNumber)
	if receipt == "" {
		receipt = NewReceiptNumber(now)
	}
	return &Payment{
		ID:            p.ID,
		OrgID:         charge.OrgID,
		ChargeID:      charge.ID,
		StudentID:     charge.StudentID,
		Amount:        amount,
		Method:        p.Method,
		PaidAt:        paidAt.UTC(),
		ReceiptNumber: receipt,
		Reference:     strings.TrimSpace(p.Reference),
		Notes:         strings.TrimSpace(p.Notes),
		RecordedBy:    strings.TrimSpace(p.RecordedBy),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Cancel voids the payment and reverses its amount on charge.
func (p *Payment) Cancel(charge *chargedomain.Charge, reason, actor string, now time.Time) error {
	if state := p.State(); state != StateActive {
		return &TransitionError{From: state, Action: "cancel"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if charge == nil || charge.ID != p.ChargeID {
		return ErrChargeMismatch
	}

	if err := charge.ReversePayment(p.Amount, now); err != nil {
		return err
	}

	cancelledAt := now
	p.Cancelled = true
	p.CancelReason = reason
	p.CancelledBy = strings.TrimSpace(actor)
	p.CancelledAt = &cancelledAt
	p.UpdatedAt = now
	return nil
}

// MarkInvoiced records the invoice that covers this payment. Invoiced
// payments can no longer be cancelled.
func (p *Payment) MarkInvoiced(invoiceID string, refs map[string]any, now time.Time) error {
	if state := p.State(); state != StateActive {
		return &TransitionError{From: state, Action: "invoice"}
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return ErrInvoiceIDRequired
	}

	invoicedAt := now
	p.Invoiced = true
	p.InvoiceID = invoiceID
	p.InvoiceRefs = nil
	if len(refs) > 0 {
		p.InvoiceRefs = datatypes.JSONMap(refs)
	}
	p.InvoicedAt = &invoicedAt
	p.UpdatedAt = now
	return nil
}

// ReverseInvoice clears the invoice data so the payment becomes cancellable.
func (p *Payment) ReverseInvoice(now time.Time) error {
	if !p.Invoiced {
		return &TransitionError{From: p.State(), Action: "reverse the invoice of"}
	}
	p.Invoiced = false
	p.InvoiceID = ""
	p.InvoiceRefs = nil
	p.InvoicedAt = nil
	p.UpdatedAt = now
	return nil
}
