package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/order-pricing/internal/domain/discount"
)

var (
	ErrNotFound           = errors.New("order not found")
	ErrEmptyItems         = errors.New("items required")
	ErrMultipleCodes      = errors.New("only one discount code can be applied per order")
	ErrDuplicateCodeUsage = errors.New("the same code cannot be used as both promotion and voucher")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductOutOfStockError indicates a requested product cannot be sold.
type ProductOutOfStockError struct {
	ProductID string
	Name      string
}

func (e *ProductOutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock", e.Name)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CodeNotFoundError indicates that a supplied code matches no promotion or
// voucher.
type CodeNotFoundError struct {
	Code string
}

func (e *CodeNotFoundError) Error() string {
	return fmt.Sprintf("discount code %s not found", e.Code)
}

func (e *CodeNotFoundError) Unwrap() error {
	return discount.ErrNotFound
}
