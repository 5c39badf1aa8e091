package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Category    string
	Price       decimal.Decimal
	Description string
	InStock     bool
}

// Repository defines read operations for the product catalog.
//
// GetByIDs returns only the products that exist; callers detect missing ids
// by comparing against the request.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Writer seeds or replaces catalog entries.
type Writer interface {
	Upsert(ctx context.Context, products []Product) error
}
