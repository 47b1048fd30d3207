package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodCheck        Method = "check"
	MethodOther        Method = "other"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodCheck, MethodOther:
		return true
	default:
		return false
	}
}

// State summarizes the cancellation and invoicing flags.
type State string

const (
	StateActive    State = "active"
	StateCancelled State = "cancelled"
	StateInvoiced  State = "invoiced"
)

// Payment is money received and applied against exactly one charge.
type Payment struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;index" json:"school_id"`
	ChargeID      snowflake.ID    `gorm:"not null;index" json:"charge_id"`
	StudentID     snowflake.ID    `gorm:"not null;index" json:"student_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Method        Method          `gorm:"type:text;not null" json:"method"`
	PaidAt        time.Time       `gorm:"not null" json:"paid_at"`
	ReceiptNumber string          `gorm:"type:text;not null;uniqueIndex" json:"receipt_number"`
	Reference     string          `gorm:"type:text" json:"reference,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	RecordedBy    string          `gorm:"type:text;not null" json:"recorded_by"`

	Cancelled    bool       `gorm:"not null;default:false" json:"cancelled"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledBy  string     `gorm:"type:text" json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	Invoiced    bool              `gorm:"not null;default:false" json:"invoiced"`
	InvoiceID   string            `gorm:"type:text" json:"invoice_id,omitempty"`
	InvoiceRefs datatypes.JSONMap `gorm:"type:jsonb" json:"invoice_refs,omitempty"`
	InvoicedAt  *time.Time        `json:"invoiced_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) State() State {
	switch {
	case p.Cancelled:
		return StateCancelled
	case p.Invoiced:
		return StateInvoiced
	default:
		return StateActive
	}
}
