package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

// Check validates that e can be applied to an order with the given subtotal
// at instant now. Rules are checked in a fixed order and the first failure
// is returned as a *RuleError.
func Check(e *Entity, now time.Time, subTotal decimal.Decimal) error {
	if now.After(e.ExpiresAt) {
		return &RuleError{Kind: e.Kind, Rule: ErrExpired}
	}
	if e.UsesCount >= e.UsageLimit {
		return &RuleError{Kind: e.Kind, Rule: ErrExhausted}
	}
	if e.MinOrderValue.Valid && subTotal.LessThan(e.MinOrderValue.Decimal) {
		return &RuleError{Kind: e.Kind, Rule: ErrMinimumOrderNotMet, MinOrderValue: e.MinOrderValue.Decimal}
	}
	return nil
}

// Application is a validated discount ready to be shown or committed.
type Application struct {
	Entity         *Entity
	EligibleAmount decimal.Decimal
	// Amount is the unrounded discount before any order-level cap.
	Amount decimal.Decimal
}

// Scope returns the entity scope used for distribution; nil for vouchers.
func (a *Application) Scope() *Scope {
	if a.Entity.Kind == KindVoucher {
		return nil
	}
	return a.Entity.Scope
}

// Apply validates e against the cart and computes its discount. Vouchers are
// computed against the whole subtotal; promotions against their scope, which
// must leave a positive eligible amount.
func Apply(e *Entity, items []Item, subTotal decimal.Decimal, now time.Time) (*Application, error) {
	if err := Check(e, now, subTotal); err != nil {
		return nil, err
	}

	app := &Application{Entity: e, EligibleAmount: subTotal}
	if e.Kind == KindPromotion {
		_, app.EligibleAmount = Resolve(items, e.Scope)
		if app.EligibleAmount.IsZero() {
			return nil, &RuleError{Kind: e.Kind, Rule: ErrNoEligibleItems}
		}
	}

	app.Amount = Compute(e.Type, e.Value, app.EligibleAmount, e.MaxDiscountAmount)
	return app, nil
}
