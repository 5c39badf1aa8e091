package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockDiscountRepo struct {
	mu         sync.Mutex
	entities   map[discount.Kind]map[string]*discount.Entity
	findErr    error
	incrErr    error
	increments int
}

func newDiscountRepo(entities ...*discount.Entity) *mockDiscountRepo {
	m := &mockDiscountRepo{entities: map[discount.Kind]map[string]*discount.Entity{
		discount.KindPromotion: {},
		discount.KindVoucher:   {},
	}}
	for _, e := range entities {
		m.entities[e.Kind][e.Code] = e
	}
	return m
}

func (m *mockDiscountRepo) FindActiveByCode(_ context.Context, kind discount.Kind, code string) (*discount.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	e, ok := m.entities[kind][code]
	if !ok {
		return nil, discount.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockDiscountRepo) IncrementUse(_ context.Context, kind discount.Kind, id string, expected int) (*discount.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrErr != nil {
		return nil, m.incrErr
	}
	for _, e := range m.entities[kind] {
		if e.ID != id {
			continue
		}
		if e.UsesCount != expected || e.UsesCount >= e.UsageLimit {
			return nil, discount.ErrUsageConflict
		}
		e.UsesCount++
		m.increments++
		cp := *e
		return &cp, nil
	}
	return nil, discount.ErrUsageConflict
}

func (m *mockDiscountRepo) Create(context.Context, *discount.Entity) error { return nil }
func (m *mockDiscountRepo) Update(context.Context, *discount.Entity) error { return nil }
func (m *mockDiscountRepo) GetByID(context.Context, discount.Kind, string) (*discount.Entity, error) {
	return nil, discount.ErrNotFound
}
func (m *mockDiscountRepo) SoftDelete(context.Context, discount.Kind, string, time.Time) error {
	return nil
}
func (m *mockDiscountRepo) List(context.Context, discount.ListFilter) ([]discount.Entity, error) {
	return nil, nil
}

type mockOrderRepo struct {
	lastOrder *Order
	err       error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	if m.lastOrder == nil || m.lastOrder.ID != id {
		return nil, ErrNotFound
	}
	return m.lastOrder, nil
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// newProductRepo returns a small catalog; "retired" is out of stock.
func newProductRepo() *mockProductRepo {
	return &mockProductRepo{byID: map[string]product.Product{
		"laptop":  {ID: "laptop", Name: "Laptop", Category: "electronics", Price: d("100.00"), InStock: true},
		"novel":   {ID: "novel", Name: "Novel", Category: "books", Price: d("50.00"), InStock: true},
		"phone":   {ID: "phone", Name: "Phone", Category: "electronics", Price: d("1000.00"), InStock: true},
		"retired": {ID: "retired", Name: "Retired", Category: "books", Price: d("5.00"), InStock: false},
	}}
}

func newTestService(t *testing.T, discounts *mockDiscountRepo, orders *mockOrderRepo) *Service {
	t.Helper()
	svc, err := NewService(newProductRepo(), discounts, orders, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	svc.newID = func() string { return "order-1" }
	return svc
}

func voucher(code string, typ discount.Type, value string) *discount.Entity {
	return &discount.Entity{
		ID:         "v-" + code,
		Kind:       discount.KindVoucher,
		Code:       code,
		Type:       typ,
		Value:      d(value),
		ExpiresAt:  testNow.Add(24 * time.Hour),
		UsageLimit: 10,
	}
}

func promotion(code string, typ discount.Type, value string, scope *discount.Scope) *discount.Entity {
	e := voucher(code, typ, value)
	e.ID = "p-" + code
	e.Kind = discount.KindPromotion
	e.Scope = scope
	return e
}

// cart: 2 laptops (200.00) + 1 novel (50.00) = 250.00
var cart = []RequestItem{
	{ProductID: "laptop", Quantity: 2},
	{ProductID: "novel", Quantity: 1},
}

// --- Tests ---

func TestCalculate_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		entity       *discount.Entity
		items        []RequestItem
		req          func(r *Request)
		wantDiscount string
		wantFinal    string
		wantItems    []string
	}{
		{
			name:         "voucher 10 percent",
			entity:       voucher("SAVE10", discount.TypePercentage, "10"),
			items:        cart,
			req:          func(r *Request) { r.VoucherCode = "save10" },
			wantDiscount: "25.00",
			wantFinal:    "225.00",
			wantItems:    []string{"20.00", "5.00"},
		},
		{
			name:         "voucher fixed 50",
			entity:       voucher("FLAT50", discount.TypeFixed, "50"),
			items:        cart,
			req:          func(r *Request) { r.Code = "FLAT50" },
			wantDiscount: "50.00",
			wantFinal:    "200.00",
			wantItems:    []string{"40.00", "10.00"},
		},
		{
			name: "promotion scoped to electronics",
			entity: promotion("TECH20", discount.TypePercentage, "20",
				&discount.Scope{Categories: []string{"electronics"}, ItemIDs: []string{"laptop"}}),
			items:        cart,
			req:          func(r *Request) { r.PromotionCode = "TECH20" },
			wantDiscount: "40.00",
			wantFinal:    "210.00",
			wantItems:    []string{"40.00", "0.00"},
		},
		{
			// Empty item ids match everything, so a categories-only scope
			// covers the whole cart.
			name: "promotion with categories only",
			entity: promotion("CAT20", discount.TypePercentage, "20",
				&discount.Scope{Categories: []string{"electronics"}}),
			items:        cart,
			req:          func(r *Request) { r.PromotionCode = "CAT20" },
			wantDiscount: "50.00",
			wantFinal:    "200.00",
			wantItems:    []string{"40.00", "10.00"},
		},
		{
			name: "categories-only scope on a cart outside it",
			entity: promotion("BOOKSONLY", discount.TypePercentage, "10",
				&discount.Scope{Categories: []string{"books"}}),
			items:        []RequestItem{{ProductID: "laptop", Quantity: 2}},
			req:          func(r *Request) { r.PromotionCode = "BOOKSONLY" },
			wantDiscount: "20.00",
			wantFinal:    "180.00",
			wantItems:    []string{"20.00"},
		},
		{
			name:         "global cap at half of subtotal",
			entity:       voucher("HUGE", discount.TypePercentage, "90"),
			items:        []RequestItem{{ProductID: "phone", Quantity: 1}},
			req:          func(r *Request) { r.Code = "HUGE" },
			wantDiscount: "500.00",
			wantFinal:    "500.00",
			wantItems:    []string{"500.00"},
		},
		{
			name:         "no code",
			items:        cart,
			req:          func(*Request) {},
			wantDiscount: "0.00",
			wantFinal:    "250.00",
			wantItems:    []string{"0.00", "0.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var repo *mockDiscountRepo
			if tt.entity != nil {
				repo = newDiscountRepo(tt.entity)
			} else {
				repo = newDiscountRepo()
			}
			svc := newTestService(t, repo, &mockOrderRepo{})

			req := Request{Items: tt.items}
			tt.req(&req)

			q, err := svc.Calculate(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDiscount, q.DiscountAmount().StringFixed(2))
			assert.Equal(t, tt.wantFinal, q.FinalTotal.StringFixed(2))
			require.Len(t, q.Items, len(tt.wantItems))
			for i, want := range tt.wantItems {
				assert.Equal(t, want, q.Items[i].Discount.StringFixed(2), "item %d", i)
				assert.False(t, q.Items[i].DiscountedPrice.IsNegative())
			}
			assert.True(t, q.DiscountAmount().LessThanOrEqual(q.SubTotal.Mul(d("0.5"))))
			assert.Zero(t, repo.increments, "calculate must not consume uses")
		})
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	repo := newDiscountRepo(voucher("SAVE10", discount.TypePercentage, "10"))
	svc := newTestService(t, repo, &mockOrderRepo{})
	req := Request{Items: cart, Code: "SAVE10"}

	first, err := svc.Calculate(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Calculate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalculate_CodeResolution(t *testing.T) {
	both := promotion("SHARED", discount.TypeFixed, "10", nil)
	shared := voucher("SHARED", discount.TypeFixed, "20")
	onlyVoucher := voucher("VONLY", discount.TypeFixed, "5")

	tests := []struct {
		name     string
		req      Request
		wantKind discount.Kind
		wantErr  error
	}{
		{name: "code prefers promotion", req: Request{Code: "shared"}, wantKind: discount.KindPromotion},
		{name: "code falls back to voucher", req: Request{Code: "VONLY"}, wantKind: discount.KindVoucher},
		{name: "voucher field skips promotion", req: Request{VoucherCode: "SHARED"}, wantKind: discount.KindVoucher},
		{name: "promotion field does not fall back", req: Request{PromotionCode: "VONLY"}, wantErr: discount.ErrNotFound},
		{name: "unknown code", req: Request{Code: "NOPE"}, wantErr: discount.ErrNotFound},
		{name: "same code in both fields", req: Request{PromotionCode: "SHARED", VoucherCode: "shared"}, wantErr: ErrDuplicateCodeUsage},
		{name: "two different codes", req: Request{PromotionCode: "SHARED", VoucherCode: "VONLY"}, wantErr: ErrMultipleCodes},
		{name: "code conflicts with explicit field", req: Request{Code: "OTHER", VoucherCode: "VONLY"}, wantErr: ErrMultipleCodes},
		{name: "code repeats explicit field", req: Request{Code: "vonly", VoucherCode: "VONLY"}, wantKind: discount.KindVoucher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, newDiscountRepo(both, shared, onlyVoucher), &mockOrderRepo{})
			tt.req.Items = cart

			q, err := svc.Calculate(context.Background(), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, q.Discount)
			assert.Equal(t, tt.wantKind, q.Discount.Kind)
		})
	}
}

func TestCalculate_Errors(t *testing.T) {
	expired := voucher("OLD", discount.TypeFixed, "5")
	expired.ExpiresAt = testNow.Add(-time.Minute)
	exhausted := voucher("USED", discount.TypeFixed, "5")
	exhausted.UsesCount = exhausted.UsageLimit
	minOrder := voucher("BIG", discount.TypeFixed, "5")
	minOrder.MinOrderValue = decimal.NewNullDecimal(d("300"))
	books := promotion("BOOKS", discount.TypePercentage, "10",
		&discount.Scope{Categories: []string{"books"}, ItemIDs: []string{"novel"}})

	tests := []struct {
		name    string
		req     Request
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{name: "empty items", req: Request{}, wantErr: ErrEmptyItems},
		{
			name: "zero quantity",
			req:  Request{Items: []RequestItem{{ProductID: "laptop", Quantity: 0}}},
			check: func(t *testing.T, err error) {
				var qErr *InvalidQuantityError
				require.ErrorAs(t, err, &qErr)
				assert.Equal(t, "laptop", qErr.ProductID)
			},
		},
		{
			name: "unknown product",
			req:  Request{Items: []RequestItem{{ProductID: "ghost", Quantity: 1}}},
			check: func(t *testing.T, err error) {
				var pErr *ProductNotFoundError
				require.ErrorAs(t, err, &pErr)
				assert.Equal(t, "ghost", pErr.ProductID)
			},
		},
		{
			name: "out of stock",
			req:  Request{Items: []RequestItem{{ProductID: "retired", Quantity: 1}}},
			check: func(t *testing.T, err error) {
				var sErr *ProductOutOfStockError
				require.ErrorAs(t, err, &sErr)
				assert.Equal(t, "retired", sErr.ProductID)
			},
		},
		{name: "expired", req: Request{Items: cart, Code: "OLD"}, wantErr: discount.ErrExpired},
		{name: "exhausted", req: Request{Items: cart, Code: "USED"}, wantErr: discount.ErrExhausted},
		{
			name:    "minimum order",
			req:     Request{Items: cart, Code: "BIG"},
			wantErr: discount.ErrMinimumOrderNotMet,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "300.00")
			},
		},
		{
			name:    "no eligible items",
			req:     Request{Items: []RequestItem{{ProductID: "laptop", Quantity: 1}}, Code: "BOOKS"},
			wantErr: discount.ErrNoEligibleItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, newDiscountRepo(expired, exhausted, minOrder, books), &mockOrderRepo{})
			_, err := svc.Calculate(context.Background(), tt.req)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestCalculate_StorageFailure(t *testing.T) {
	repo := newDiscountRepo()
	repo.findErr = errors.New("connection reset")
	svc := newTestService(t, repo, &mockOrderRepo{})

	_, err := svc.Calculate(context.Background(), Request{Items: cart, Code: "ANY"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, discount.ErrNotFound)
}

func TestCreate(t *testing.T) {
	v := voucher("SAVE10", discount.TypePercentage, "10")
	repo := newDiscountRepo(v)
	orders := &mockOrderRepo{}
	svc := newTestService(t, repo, orders)

	o, err := svc.Create(context.Background(), Request{Items: cart, Code: "SAVE10"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, testNow, o.CreatedAt)
	assert.Equal(t, "225.00", o.FinalTotal.StringFixed(2))
	assert.Equal(t, "SAVE10", o.Discount.Code)
	assert.Same(t, o, orders.lastOrder)
	assert.Equal(t, 1, v.UsesCount)

	got, err := svc.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Same(t, o, got)

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_WithoutCodeSkipsIncrement(t *testing.T) {
	repo := newDiscountRepo()
	svc := newTestService(t, repo, &mockOrderRepo{})

	o, err := svc.Create(context.Background(), Request{Items: cart})
	require.NoError(t, err)
	assert.Nil(t, o.Discount)
	assert.Zero(t, repo.increments)
}

func TestCreate_Conflict(t *testing.T) {
	v := voucher("LAST", discount.TypeFixed, "5")
	repo := newDiscountRepo(v)
	repo.incrErr = discount.ErrUsageConflict
	orders := &mockOrderRepo{}
	svc := newTestService(t, repo, orders)

	_, err := svc.Create(context.Background(), Request{Items: cart, Code: "LAST"})
	var conflict *discount.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "LAST", conflict.Code)
	assert.ErrorIs(t, err, discount.ErrUsageConflict)
	assert.Nil(t, orders.lastOrder, "order must not be persisted")
}

func TestCreate_RacingLastUse(t *testing.T) {
	v := voucher("ONCE", discount.TypeFixed, "5")
	v.UsageLimit = 1
	repo := newDiscountRepo(v)

	// Both requests read usesCount=0 before either commits.
	first := newTestService(t, repo, &mockOrderRepo{})
	second := newTestService(t, repo, &mockOrderRepo{})
	p1, err := first.price(context.Background(), Request{Items: cart, Code: "ONCE"}, testNow)
	require.NoError(t, err)
	p2, err := second.price(context.Background(), Request{Items: cart, Code: "ONCE"}, testNow)
	require.NoError(t, err)

	_, err = repo.IncrementUse(context.Background(), discount.KindVoucher, p1.applied.Entity.ID, p1.applied.Entity.UsesCount)
	require.NoError(t, err)
	_, err = repo.IncrementUse(context.Background(), discount.KindVoucher, p2.applied.Entity.ID, p2.applied.Entity.UsesCount)
	require.ErrorIs(t, err, discount.ErrUsageConflict)

	_, err = second.Create(context.Background(), Request{Items: cart, Code: "ONCE"})
	require.ErrorIs(t, err, discount.ErrExhausted)
	assert.Equal(t, 1, v.UsesCount)
}

func TestCreate_PersistFailureKeepsIncrement(t *testing.T) {
	v := voucher("SAVE10", discount.TypePercentage, "10")
	repo := newDiscountRepo(v)
	svc := newTestService(t, repo, &mockOrderRepo{err: errors.New("db write failed")})

	_, err := svc.Create(context.Background(), Request{Items: cart, Code: "SAVE10"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 1, v.UsesCount)
}
