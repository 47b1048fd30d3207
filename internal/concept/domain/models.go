package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryOneTime   Category = "one_time"
	CategoryRecurring Category = "recurring"
)

type Periodicity string

const (
	PeriodicityMonthly   Periodicity = "monthly"
	PeriodicityQuarterly Periodicity = "quarterly"
	PeriodicityYearly    Periodicity = "yearly"
)

// Policy holds the discount and late-fee rules of a concept. Charges keep a
// copy taken at creation time.
type Policy struct {
	DiscountEnabled       bool             `gorm:"column:discount_enabled;not null;default:false" json:"discount_enabled"`
	MaxDiscountPercentage *decimal.Decimal `gorm:"column:max_discount_percentage;type:numeric(5,2)" json:"max_discount_percentage,omitempty"`
	LateFeeEnabled        bool             `gorm:"column:late_fee_enabled;not null;default:false" json:"late_fee_enabled"`
	LateFeePercentage     *decimal.Decimal `gorm:"column:late_fee_percentage;type:numeric(7,4)" json:"late_fee_percentage,omitempty"`
	GraceDays             *int             `gorm:"column:grace_days" json:"grace_days,omitempty"`
}

// PaymentConcept is a chargeable item a school bills students for.
type PaymentConcept struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_payment_concepts_org_code,priority:1" json:"school_id"`
	Code        string          `gorm:"type:text;not null;uniqueIndex:ux_payment_concepts_org_code,priority:2" json:"code"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	BaseAmount  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"base_amount"`
	Category    Category        `gorm:"type:text;not null" json:"category"`
	Periodicity *Periodicity    `gorm:"type:text" json:"periodicity,omitempty"`
	Policy      `gorm:"embedded"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (PaymentConcept) TableName() string { return "payment_concepts" }

// IsMonthly reports whether the concept is billed every month.
func (c PaymentConcept) IsMonthly() bool {
	return c.Category == CategoryRecurring && c.Periodicity != nil && *c.Periodicity == PeriodicityMonthly
}
