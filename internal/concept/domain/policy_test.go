package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func intPtr(v int) *int { return &v }

func TestAmountWithDiscount(t *testing.T) {
	concept := PaymentConcept{
		BaseAmount: dec("1000"),
		Policy:     Policy{DiscountEnabled: true, MaxDiscountPercentage: decPtr("20")},
	}

	cases := []struct {
		name    string
		pct     string
		want    string
		wantErr error
	}{
		{name: "ten percent", pct: "10", want: "900"},
		{name: "zero", pct: "0", want: "1000"},
		{name: "at max", pct: "20", want: "800"},
		{name: "fractional", pct: "12.345", want: "876.55"},
		{name: "above max", pct: "25", wantErr: ErrDiscountExceedsMax},
		{name: "negative", pct: "-1", wantErr: ErrInvalidPercentage},
		{name: "over hundred", pct: "101", wantErr: ErrInvalidPercentage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := concept.AmountWithDiscount(dec(tc.pct))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Truef(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestAmountWithDiscountDisabledPolicy(t *testing.T) {
	concept := PaymentConcept{BaseAmount: dec("500")}
	_, err := concept.AmountWithDiscount(dec("5"))
	assert.ErrorIs(t, err, ErrDiscountNotAllowed)
}

func TestAmountWithDiscountWithoutMax(t *testing.T) {
	concept := PaymentConcept{BaseAmount: dec("500"), Policy: Policy{DiscountEnabled: true}}
	got, err := concept.AmountWithDiscount(dec("100"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestLateFee(t *testing.T) {
	concept := PaymentConcept{
		BaseAmount: dec("1000"),
		Policy: Policy{
			LateFeeEnabled:    true,
			LateFeePercentage: decPtr("2"),
			GraceDays:         intPtr(5),
		},
	}

	assert.True(t, concept.LateFee(0).IsZero())
	assert.True(t, concept.LateFee(5).IsZero(), "inside grace period")
	assert.True(t, concept.LateFee(10).Equal(dec("1000").Mul(dec("0.02")).Mul(dec("5"))))
	assert.True(t, concept.LateFee(6).Equal(dec("20")))
}

func TestLateFeeDisabled(t *testing.T) {
	concept := PaymentConcept{BaseAmount: dec("1000"), Policy: Policy{LateFeePercentage: decPtr("2"), GraceDays: intPtr(0)}}
	assert.True(t, concept.LateFee(30).IsZero())
}

func TestLateFeeRounding(t *testing.T) {
	p := Policy{LateFeeEnabled: true, LateFeePercentage: decPtr("0.333"), GraceDays: intPtr(0)}
	// 123.45 * 0.00333 * 3 = 1.2332655
	assert.Equal(t, "1.23", p.LateFee(dec("123.45"), 3).StringFixed(2))
}

func TestValidate(t *testing.T) {
	monthly := PeriodicityMonthly

	valid := PaymentConcept{
		Name:        "Tuition",
		BaseAmount:  dec("1000"),
		Category:    CategoryRecurring,
		Periodicity: &monthly,
		Policy:      Policy{LateFeeEnabled: true, LateFeePercentage: decPtr("1"), GraceDays: intPtr(3)},
	}
	assert.True(t, valid.Validate().Empty())

	invalid := PaymentConcept{
		BaseAmount: dec("-1"),
		Category:   CategoryRecurring,
		Policy:     Policy{LateFeeEnabled: true, MaxDiscountPercentage: decPtr("150")},
	}
	violations := invalid.Validate()
	fields := map[string]bool{}
	for _, v := range violations {
		fields[v.Field] = true
	}
	for _, f := range []string{"name", "base_amount", "periodicity", "max_discount_percentage", "late_fee_percentage", "grace_days"} {
		assert.Truef(t, fields[f], "expected violation on %s", f)
	}
}

func TestIsMonthly(t *testing.T) {
	monthly := PeriodicityMonthly
	yearly := PeriodicityYearly
	assert.True(t, PaymentConcept{Category: CategoryRecurring, Periodicity: &monthly}.IsMonthly())
	assert.False(t, PaymentConcept{Category: CategoryRecurring, Periodicity: &yearly}.IsMonthly())
	assert.False(t, PaymentConcept{Category: CategoryOneTime}.IsMonthly())
}
