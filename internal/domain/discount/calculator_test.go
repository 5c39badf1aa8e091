package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		value    decimal.Decimal
		eligible decimal.Decimal
		maxCap   decimal.NullDecimal
		want     decimal.Decimal
	}{
		{
			name:     "percentage of eligible amount",
			typ:      TypePercentage,
			value:    d("10"),
			eligible: d("250"),
			want:     d("25"),
		},
		{
			name:     "percentage capped by max discount",
			typ:      TypePercentage,
			value:    d("20"),
			eligible: d("1000"),
			maxCap:   nd("50"),
			want:     d("50"),
		},
		{
			name:     "zero cap means uncapped",
			typ:      TypePercentage,
			value:    d("20"),
			eligible: d("1000"),
			maxCap:   nd("0"),
			want:     d("200"),
		},
		{
			name:     "fixed below eligible",
			typ:      TypeFixed,
			value:    d("50"),
			eligible: d("250"),
			want:     d("50"),
		},
		{
			name:     "fixed above eligible clamps",
			typ:      TypeFixed,
			value:    d("500"),
			eligible: d("120"),
			want:     d("120"),
		},
		{
			name:     "fixed ignores max cap",
			typ:      TypeFixed,
			value:    d("80"),
			eligible: d("200"),
			maxCap:   nd("10"),
			want:     d("80"),
		},
		{
			name:     "zero eligible",
			typ:      TypePercentage,
			value:    d("10"),
			eligible: decimal.Zero,
			want:     decimal.Zero,
		},
		{
			name:     "unknown type",
			typ:      Type("bogus"),
			value:    d("10"),
			eligible: d("100"),
			want:     decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.typ, tt.value, tt.eligible, tt.maxCap)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(decimal.Max(tt.eligible, decimal.Zero)))
		})
	}
}

func TestDistribute(t *testing.T) {
	items := []Item{
		{ProductID: "laptop", Category: "electronics", UnitPrice: d("100"), Quantity: 2},
		{ProductID: "novel", Category: "books", UnitPrice: d("50"), Quantity: 1},
	}

	t.Run("proportional over every item", func(t *testing.T) {
		got := Distribute(items, d("25"), d("250"), nil)
		require.Len(t, got, 2)
		assert.Equal(t, "20.00", got[0].Discount.StringFixed(2))
		assert.Equal(t, "180.00", got[0].DiscountedPrice.StringFixed(2))
		assert.Equal(t, "5.00", got[1].Discount.StringFixed(2))
		assert.Equal(t, "45.00", got[1].DiscountedPrice.StringFixed(2))
	})

	t.Run("ineligible items get nothing", func(t *testing.T) {
		scope := &Scope{Categories: []string{"electronics"}, ItemIDs: []string{"laptop"}}
		got := Distribute(items, d("40"), d("200"), scope)
		require.Len(t, got, 2)
		assert.Equal(t, "40.00", got[0].Discount.StringFixed(2))
		assert.True(t, got[1].Discount.IsZero())
		assert.Equal(t, "50.00", got[1].DiscountedPrice.StringFixed(2))
	})

	t.Run("zero eligible amount", func(t *testing.T) {
		got := Distribute(items, d("40"), decimal.Zero, nil)
		for _, a := range got {
			assert.True(t, a.Discount.IsZero())
			assert.True(t, a.LineTotal.Equal(a.DiscountedPrice))
		}
	})

	t.Run("rounded shares sum close to total", func(t *testing.T) {
		three := []Item{
			{ProductID: "a", UnitPrice: d("10"), Quantity: 1},
			{ProductID: "b", UnitPrice: d("10"), Quantity: 1},
			{ProductID: "c", UnitPrice: d("10"), Quantity: 1},
		}
		got := Distribute(three, d("10"), d("30"), nil)
		sum := decimal.Zero
		for _, a := range got {
			assert.Equal(t, "3.33", a.Discount.StringFixed(2))
			sum = sum.Add(a.Discount)
		}
		diff := d("10").Sub(sum).Abs()
		assert.True(t, diff.LessThanOrEqual(d("0.03")), "diff %s", diff)
	})

	t.Run("half up rounding", func(t *testing.T) {
		got := Distribute([]Item{{ProductID: "a", UnitPrice: d("0.25"), Quantity: 1}}, d("0.125"), d("0.25"), nil)
		assert.Equal(t, "0.13", got[0].Discount.StringFixed(2))
	})
}
