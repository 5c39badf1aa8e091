// Package memory implements the domain repositories in process memory. It is
// used for local runs without PostgreSQL and in tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/domain/product"
)

var (
	_ product.Repository  = (*ProductStore)(nil)
	_ product.Writer      = (*ProductStore)(nil)
	_ discount.Repository = (*DiscountStore)(nil)
	_ order.Repository    = (*OrderStore)(nil)
)

// ProductStore is an in-memory catalog.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewProductStore returns a catalog holding products.
func NewProductStore(products ...product.Product) *ProductStore {
	s := &ProductStore{products: make(map[string]product.Product, len(products))}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *ProductStore) List(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *ProductStore) GetByID(_ context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *ProductStore) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *ProductStore) Upsert(_ context.Context, products []product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		s.products[p.ID] = p
	}
	return nil
}

// DiscountStore keeps promotions and vouchers. All mutations hold the write
// lock, which makes IncrementUse a true compare-and-set.
type DiscountStore struct {
	mu       sync.RWMutex
	entities map[string]*discount.Entity
}

// NewDiscountStore returns an empty store.
func NewDiscountStore() *DiscountStore {
	return &DiscountStore{entities: make(map[string]*discount.Entity)}
}

func (s *DiscountStore) FindActiveByCode(_ context.Context, kind discount.Kind, code string) (*discount.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e := s.findLocked(kind, code); e != nil {
		return clone(e), nil
	}
	return nil, discount.ErrNotFound
}

func (s *DiscountStore) IncrementUse(_ context.Context, kind discount.Kind, id string, expectedUses int) (*discount.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok || e.Kind != kind || e.Deleted() || e.UsesCount != expectedUses || e.UsesCount >= e.UsageLimit {
		return nil, discount.ErrUsageConflict
	}
	e.UsesCount++
	e.UpdatedAt = time.Now()
	return clone(e), nil
}

func (s *DiscountStore) Create(_ context.Context, e *discount.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(e.Kind, e.Code) != nil {
		return discount.ErrDuplicateCode
	}
	s.entities[e.ID] = clone(e)
	return nil
}

func (s *DiscountStore) Update(_ context.Context, e *discount.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entities[e.ID]
	if !ok || cur.Kind != e.Kind || cur.Deleted() {
		return discount.ErrNotFound
	}
	if other := s.findLocked(e.Kind, e.Code); other != nil && other.ID != e.ID {
		return discount.ErrDuplicateCode
	}
	next := clone(e)
	next.UsesCount = cur.UsesCount
	next.CreatedAt = cur.CreatedAt
	s.entities[e.ID] = next
	return nil
}

func (s *DiscountStore) GetByID(_ context.Context, kind discount.Kind, id string) (*discount.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok || e.Kind != kind {
		return nil, discount.ErrNotFound
	}
	return clone(e), nil
}

func (s *DiscountStore) SoftDelete(_ context.Context, kind discount.Kind, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok || e.Kind != kind || e.Deleted() {
		return discount.ErrNotFound
	}
	e.DeletedAt = &at
	e.UpdatedAt = at
	return nil
}

func (s *DiscountStore) List(_ context.Context, f discount.ListFilter) ([]discount.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []discount.Entity
	for _, e := range s.entities {
		if e.Kind != f.Kind || !matchesStatus(e, f) {
			continue
		}
		out = append(out, *clone(e))
	}
	slices.SortFunc(out, func(a, b discount.Entity) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *DiscountStore) findLocked(kind discount.Kind, code string) *discount.Entity {
	for _, e := range s.entities {
		if e.Kind == kind && e.Code == code && !e.Deleted() {
			return e
		}
	}
	return nil
}

func matchesStatus(e *discount.Entity, f discount.ListFilter) bool {
	switch f.Status {
	case discount.StatusActive:
		return !e.Deleted() && e.ExpiresAt.After(f.Now) && e.UsesCount < e.UsageLimit
	case discount.StatusExpired:
		return !e.Deleted() && !e.ExpiresAt.After(f.Now)
	case discount.StatusDeleted:
		return e.Deleted()
	default:
		return true
	}
}

func clone(e *discount.Entity) *discount.Entity {
	cp := *e
	if e.Scope != nil {
		cp.Scope = &discount.Scope{
			Categories: slices.Clone(e.Scope.Categories),
			ItemIDs:    slices.Clone(e.Scope.ItemIDs),
		}
	}
	if e.DeletedAt != nil {
		at := *e.DeletedAt
		cp.DeletedAt = &at
	}
	return &cp
}

// OrderStore keeps placed orders.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]order.Order
}

// NewOrderStore returns an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]order.Order)}
}

func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	cp.Items = slices.Clone(o.Items)
	s.orders[o.ID] = cp
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

// Len returns the number of stored orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
