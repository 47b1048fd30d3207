package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type RegisterPaymentRequest struct {
	ChargeID  string
	Amount    decimal.Decimal
	Method    Method
	PaidAt    *time.Time
	Reference string
	Notes     string
}

type CancelPaymentRequest struct {
	ID     string
	Reason string
}

type MarkInvoicedRequest struct {
	ID        string
	InvoiceID string
	Refs      map[string]any
}

type ListPaymentRequest struct {
	pagination.Pagination
	StudentID string
	ChargeID  string
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

// Result is a payment together with the charge it changed.
type Result struct {
	Payment Payment             `json:"payment"`
	Charge  chargedomain.Charge `json:"charge"`
}

type Service interface {
	Register(ctx context.Context, req RegisterPaymentRequest) (Result, error)
	Cancel(ctx context.Context, req CancelPaymentRequest) (Result, error)
	MarkInvoiced(ctx context.Context, req MarkInvoicedRequest) (Payment, error)
	ReverseInvoice(ctx context.Context, id string) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	// ListByCharge returns every payment of a charge, cancelled ones included.
	ListByCharge(ctx context.Context, chargeID string) ([]Payment, error)
	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
}
