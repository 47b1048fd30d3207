package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// OpenStatuses are the statuses of charges that still expect payment.
var OpenStatuses = []Status{StatusPending, StatusPartial, StatusOverdue}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// Charge is money owed by one student for one concept and period.
//
// Status is derived from the amounts, the due date and the clock, and only
// changes through RefreshStatus or Cancel.
type Charge struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_charges_concept_student_period,priority:1" json:"school_id"`
	ConceptID   snowflake.ID `gorm:"not null;uniqueIndex:ux_charges_concept_student_period,priority:2" json:"concept_id"`
	StudentID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_charges_concept_student_period,priority:3" json:"student_id"`
	Period      string       `gorm:"type:text;not null;uniqueIndex:ux_charges_concept_student_period,priority:4" json:"period"`
	Description string       `gorm:"type:text" json:"description,omitempty"`

	Amount             decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Discount           decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"discount"`
	DiscountPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_percentage"`
	DiscountReason     string          `gorm:"type:text" json:"discount_reason,omitempty"`
	FinalAmount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"final_amount"`
	LateFee            decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"late_fee"`
	AmountPaid         decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount_paid"`
	OutstandingBalance decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"outstanding_balance"`

	Status        Status     `gorm:"type:text;not null;index" json:"status"`
	DueDate       time.Time  `gorm:"not null;index" json:"due_date"`
	DueDateReason string     `gorm:"type:text" json:"due_date_reason,omitempty"`
	PaidInFullAt  *time.Time `json:"paid_in_full_at,omitempty"`

	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledBy  string     `gorm:"type:text" json:"cancelled_by,omitempty"`

	// Policy is copied from the concept when the charge is created.
	Policy conceptdomain.Policy `gorm:"embedded;embeddedPrefix:policy_" json:"policy"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Charge) TableName() string { return "charges" }

// NewChargeParams carries everything needed to issue a charge from a concept.
type NewChargeParams struct {
	ID          snowflake.ID
	Concept     conceptdomain.PaymentConcept
	StudentID   snowflake.ID
	Period      string
	DueDate     time.Time
	Description string
}
