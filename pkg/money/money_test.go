package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
		{"10", "10"},
	}
	for _, tc := range cases {
		got := Round(decimal.RequireFromString(tc.in))
		assert.Truef(t, got.Equal(decimal.RequireFromString(tc.want)), "Round(%s) = %s, want %s", tc.in, got, tc.want)
	}
}

func TestPercentage(t *testing.T) {
	got := Percentage(decimal.NewFromInt(1000), decimal.NewFromInt(10))
	assert.True(t, got.Equal(decimal.NewFromInt(100)))

	got = Percentage(decimal.RequireFromString("333.33"), decimal.RequireFromString("12.5"))
	assert.Equal(t, "41.67", got.StringFixed(2))
}

func TestRoundPercentage(t *testing.T) {
	assert.Equal(t, "12.35", RoundPercentage(decimal.RequireFromString("12.345")).StringFixed(2))
	assert.Equal(t, "12.34", RoundPercentage(decimal.RequireFromString("12.344")).StringFixed(2))
}

func TestValidPercentage(t *testing.T) {
	assert.True(t, ValidPercentage(decimal.Zero))
	assert.True(t, ValidPercentage(Hundred))
	assert.False(t, ValidPercentage(decimal.NewFromInt(-1)))
	assert.False(t, ValidPercentage(decimal.RequireFromString("100.01")))
}

func TestParse(t *testing.T) {
	d, err := Parse("12.345")
	require.NoError(t, err)
	assert.Equal(t, "12.35", d.StringFixed(2))

	_, err = Parse("abc")
	assert.Error(t, err)
}
