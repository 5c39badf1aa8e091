package discount

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute converts a discount type and value into a monetary amount against
// eligibleAmount. The result is never negative and never exceeds
// eligibleAmount. maxCap only applies to percentage discounts.
func Compute(t Type, value, eligibleAmount decimal.Decimal, maxCap decimal.NullDecimal) decimal.Decimal {
	if !eligibleAmount.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch t {
	case TypePercentage:
		amount = eligibleAmount.Mul(value).Div(hundred)
		if maxCap.Valid && maxCap.Decimal.IsPositive() {
			amount = decimal.Min(amount, maxCap.Decimal)
		}
	case TypeFixed:
		amount = decimal.Min(value, eligibleAmount)
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, eligibleAmount)
}

// Allocation is one item's share of a distributed discount. Amounts are
// rounded to cents.
type Allocation struct {
	Item            Item
	LineTotal       decimal.Decimal
	Discount        decimal.Decimal
	DiscountedPrice decimal.Decimal
}

// Distribute spreads total over the items inside scope in proportion to
// their line totals. Items outside scope get nothing. Rounding happens once
// per output value, after the share is computed.
func Distribute(items []Item, total, eligibleAmount decimal.Decimal, scope *Scope) []Allocation {
	out := make([]Allocation, len(items))
	for i, item := range items {
		lineTotal := item.LineTotal()
		share := decimal.Zero
		if scope.Matches(item) && eligibleAmount.IsPositive() {
			share = total.Mul(lineTotal).Div(eligibleAmount)
		}

		discounted := lineTotal.Sub(share)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}

		out[i] = Allocation{
			Item:            item,
			LineTotal:       lineTotal.Round(2),
			Discount:        share.Round(2),
			DiscountedPrice: discounted.Round(2),
		}
	}
	return out
}
