package domain

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/pkg/money"
	"github.com/smallbiznis/bursar/pkg/validation"
)

// AmountWithDiscount returns base reduced by pct percent.
func (p Policy) AmountWithDiscount(base, pct decimal.Decimal) (decimal.Decimal, error) {
	if !money.ValidPercentage(pct) {
		return decimal.Zero, ErrInvalidPercentage
	}
	if pct.IsZero() {
		return money.Round(base), nil
	}
	if !p.DiscountEnabled {
		return decimal.Zero, ErrDiscountNotAllowed
	}
	if p.MaxDiscountPercentage != nil && pct.GreaterThan(*p.MaxDiscountPercentage) {
		return decimal.Zero, ErrDiscountExceedsMax
	}
	return money.Round(base.Sub(money.Percentage(base, pct))), nil
}

// LateFee returns base × pct/100 × (daysLate − graceDays), or zero while
// inside the grace period or when late fees are disabled.
func (p Policy) LateFee(base decimal.Decimal, daysLate int) decimal.Decimal {
	if !p.LateFeeEnabled || p.LateFeePercentage == nil {
		return decimal.Zero
	}
	grace := 0
	if p.GraceDays != nil {
		grace = *p.GraceDays
	}
	if daysLate <= grace {
		return decimal.Zero
	}
	billable := decimal.NewFromInt(int64(daysLate - grace))
	return money.Round(base.Mul(*p.LateFeePercentage).Div(money.Hundred).Mul(billable))
}

// Validate reports policy rule violations.
func (p Policy) Validate() validation.Violations {
	var v validation.Violations
	if p.MaxDiscountPercentage != nil && !money.ValidPercentage(*p.MaxDiscountPercentage) {
		v.Add("max_discount_percentage", "out_of_range", "max discount percentage must be between 0 and 100")
	}
	if p.LateFeeEnabled {
		if p.LateFeePercentage == nil {
			v.Add("late_fee_percentage", "required", "late fee percentage is required when late fees are enabled")
		} else if p.LateFeePercentage.IsNegative() {
			v.Add("late_fee_percentage", "negative", "late fee percentage must not be negative")
		}
		if p.GraceDays == nil {
			v.Add("grace_days", "required", "grace days are required when late fees are enabled")
		} else if *p.GraceDays < 0 {
			v.Add("grace_days", "negative", "grace days must not be negative")
		}
	}
	return v
}

func (c PaymentConcept) AmountWithDiscount(pct decimal.Decimal) (decimal.Decimal, error) {
	return c.Policy.AmountWithDiscount(c.BaseAmount, pct)
}

func (c PaymentConcept) LateFee(daysLate int) decimal.Decimal {
	return c.Policy.LateFee(c.BaseAmount, daysLate)
}

// Validate reports every broken concept rule.
func (c PaymentConcept) Validate() validation.Violations {
	var v validation.Violations
	if c.Name == "" {
		v.Add("name", "required", "name is required")
	}
	if c.BaseAmount.IsNegative() {
		v.Add("base_amount", "negative", "base amount must not be negative")
	}
	switch c.Category {
	case CategoryOneTime:
		if c.Periodicity != nil {
			v.Add("periodicity", "not_allowed", "one-time concepts have no periodicity")
		}
	case CategoryRecurring:
		if c.Periodicity == nil {
			v.Add("periodicity", "required", "recurring concepts need a periodicity")
		} else if !validPeriodicity(*c.Periodicity) {
			v.Add("periodicity", "invalid", "periodicity must be monthly, quarterly or yearly")
		}
	default:
		v.Add("category", "invalid", "category must be one_time or recurring")
	}
	return append(v, c.Policy.Validate()...)
}

func validPeriodicity(p Periodicity) bool {
	switch p {
	case PeriodicityMonthly, PeriodicityQuarterly, PeriodicityYearly:
		return true
	default:
		return false
	}
}
