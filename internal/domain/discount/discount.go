package discount

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage takes a percentage of the eligible amount.
	TypePercentage Type = "percentage"
	// TypeFixed takes a fixed monetary amount, capped at the eligible amount.
	TypeFixed Type = "fixed"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixed
}

// Kind tells promotions (scoped) and vouchers (whole order) apart.
type Kind string

const (
	KindPromotion Kind = "promotion"
	KindVoucher   Kind = "voucher"
)

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	return k == KindPromotion || k == KindVoucher
}

// Title returns the capitalized kind for user-facing messages.
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// MaxPercentage is the ceiling applied to percentage values on create and update.
var MaxPercentage = decimal.NewFromInt(50)

// Scope restricts a promotion to a set of categories and/or product ids.
// A nil scope matches every item.
type Scope struct {
	Categories []string `json:"eligibleCategories"`
	ItemIDs    []string `json:"eligibleItemIds"`
}

// Entity is a promotion or a voucher. Vouchers never carry a Scope.
type Entity struct {
	ID                string
	Kind              Kind
	Code              string
	Type              Type
	Value             decimal.Decimal
	ExpiresAt         time.Time
	UsageLimit        int
	UsesCount         int
	MinOrderValue     decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	Scope             *Scope
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Deleted reports whether the entity has been soft-deleted.
func (e *Entity) Deleted() bool {
	return e.DeletedAt != nil
}

// Item is a priced line item as seen by the eligibility resolver and calculator.
type Item struct {
	ProductID string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NormalizeCode upper-cases and trims a discount code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Status filters entity listings.
type Status string

const (
	StatusAll     Status = ""
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// ListFilter narrows List results.
type ListFilter struct {
	Kind   Kind
	Status Status
	// Now is the instant active/expired are evaluated against.
	Now time.Time
}

// Repository stores promotions and vouchers.
//
// FindActiveByCode and IncrementUse are the only operations the pricing path
// needs; the rest serve administration. IncrementUse is the single mutation
// path for UsesCount.
type Repository interface {
	// FindActiveByCode returns the non-deleted entity with the code, expired
	// or not. It returns ErrNotFound when there is none.
	FindActiveByCode(ctx context.Context, kind Kind, code string) (*Entity, error)
	// IncrementUse bumps UsesCount by one only if it still equals expectedUses
	// and is below UsageLimit. It returns ErrUsageConflict when no row matched.
	IncrementUse(ctx context.Context, kind Kind, id string, expectedUses int) (*Entity, error)

	Create(ctx context.Context, e *Entity) error
	Update(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, kind Kind, id string) (*Entity, error)
	SoftDelete(ctx context.Context, kind Kind, id string, at time.Time) error
	List(ctx context.Context, filter ListFilter) ([]Entity, error)
}
