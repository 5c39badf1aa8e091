package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/discount"
)

// LineItem is a priced line of an order with its share of the discount.
// All amounts are rounded to cents.
type LineItem struct {
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Quantity        int             `json:"quantity"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
	Discount        decimal.Decimal `json:"discount"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
}

// AppliedDiscount records which promotion or voucher priced the order.
type AppliedDiscount struct {
	Code   string
	Kind   discount.Kind
	Type   discount.Type
	Amount decimal.Decimal
}

// Quote is the result of pricing a cart. It is what calculate returns and
// what an order is built from.
type Quote struct {
	Items      []LineItem
	SubTotal   decimal.Decimal
	Discount   *AppliedDiscount
	FinalTotal decimal.Decimal
}

// DiscountAmount returns the applied discount or zero.
func (q *Quote) DiscountAmount() decimal.Decimal {
	if q.Discount == nil {
		return decimal.Zero
	}
	return q.Discount.Amount
}

// Order is a persisted, immutable quote.
type Order struct {
	ID string
	Quote
	CreatedAt time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}
