package discount

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Matches reports whether item falls inside the scope.
//
// The two dimensions are joined with OR and each one treats an empty list as
// "match everything". A scope with item ids but no categories therefore
// matches every item.
func (s *Scope) Matches(item Item) bool {
	if s == nil {
		return true
	}
	categoryMatch := len(s.Categories) == 0 || slices.Contains(s.Categories, item.Category)
	itemMatch := len(s.ItemIDs) == 0 || slices.Contains(s.ItemIDs, item.ProductID)
	return categoryMatch || itemMatch
}

// Resolve returns the items inside scope and the sum of their line totals.
func Resolve(items []Item, scope *Scope) ([]Item, decimal.Decimal) {
	eligible := make([]Item, 0, len(items))
	amount := decimal.Zero
	for _, item := range items {
		if !scope.Matches(item) {
			continue
		}
		eligible = append(eligible, item)
		amount = amount.Add(item.LineTotal())
	}
	return eligible, amount
}
