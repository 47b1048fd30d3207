package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Aggregates is the result of folding a student's charges and payments.
type Aggregates struct {
	TotalCharged       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_charged"`
	TotalDiscounted    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_discounted"`
	TotalLateFees      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_late_fees"`
	TotalPaid          decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_paid"`
	OutstandingBalance decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"outstanding_balance"`
	CreditBalance      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"credit_balance"`

	ChargeCount    int `gorm:"not null" json:"charge_count"`
	PendingCount   int `gorm:"not null" json:"pending_count"`
	PartialCount   int `gorm:"not null" json:"partial_count"`
	PaidCount      int `gorm:"not null" json:"paid_count"`
	OverdueCount   int `gorm:"not null" json:"overdue_count"`
	CancelledCount int `gorm:"not null" json:"cancelled_count"`
	PaymentCount   int `gorm:"not null" json:"payment_count"`

	OldestDueDate    *time.Time `json:"oldest_due_date,omitempty"`
	LatestChargeDate *time.Time `json:"latest_charge_date,omitempty"`
	LastPaymentDate  *time.Time `json:"last_payment_date,omitempty"`

	IsCurrent      bool `gorm:"not null" json:"is_current"`
	HasOverdue     bool `gorm:"not null" json:"has_overdue"`
	NeedsAttention bool `gorm:"not null" json:"needs_attention"`
}

// AccountStatement is the stored snapshot of a student's balance for a
// period. An empty period covers every period.
type AccountStatement struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;uniqueIndex:ux_account_statements_student_period,priority:1" json:"school_id"`
	StudentID snowflake.ID `gorm:"not null;uniqueIndex:ux_account_statements_student_period,priority:2" json:"student_id"`
	Period    string       `gorm:"type:text;not null;default:'';uniqueIndex:ux_account_statements_student_period,priority:3" json:"period"`

	Aggregates `gorm:"embedded"`

	GeneratedAt time.Time `gorm:"not null" json:"generated_at"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (AccountStatement) TableName() string { return "account_statements" }
