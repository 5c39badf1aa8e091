package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/product"
)

// maxDiscountShare caps any discount at half of the order subtotal.
var maxDiscountShare = decimal.RequireFromString("0.5")

// RequestItem is a product reference and quantity as submitted by a client.
type RequestItem struct {
	ProductID string
	Quantity  int
}

// Request holds the input shared by Calculate and Create.
//
// Code is looked up as a promotion first and then as a voucher.
// PromotionCode and VoucherCode only match their own kind.
type Request struct {
	Items         []RequestItem
	Code          string
	PromotionCode string
	VoucherCode   string
}

// Service prices carts and places orders.
type Service struct {
	products  product.Repository
	discounts discount.Repository
	orders    Repository
	now       func() time.Time
	newID     func() string

	tracer         trace.Tracer
	ordersCreated  metric.Int64Counter
	discountsUsed  metric.Int64Counter
	usageConflicts metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	discounts discount.Repository,
	orders Repository,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("pricing")
	s := &Service{
		products:  products,
		discounts: discounts,
		orders:    orders,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		tracer:    tp.Tracer("pricing"),
	}

	var err error
	if s.ordersCreated, err = meter.Int64Counter("pricing.orders.created",
		metric.WithDescription("Orders persisted"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if s.discountsUsed, err = meter.Int64Counter("pricing.discounts.applied",
		metric.WithDescription("Discount uses committed"),
	); err != nil {
		return nil, errors.Wrap(err, "discounts counter")
	}
	if s.usageConflicts, err = meter.Int64Counter("pricing.usage.conflicts",
		metric.WithDescription("Orders rejected by a concurrent usage update"),
	); err != nil {
		return nil, errors.Wrap(err, "conflicts counter")
	}
	return s, nil
}

// Calculate prices the request without side effects.
func (s *Service) Calculate(ctx context.Context, req Request) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Calculate")
	defer func() { endSpan(span, rerr) }()

	p, err := s.price(ctx, req, s.now())
	if err != nil {
		return nil, err
	}
	return &p.quote, nil
}

// Create prices the request, consumes one use of the applied discount and
// persists the order.
//
// The usage increment and the order insert are not atomic: a failed insert
// after a successful increment leaves the use consumed.
func (s *Service) Create(ctx context.Context, req Request) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() { endSpan(span, rerr) }()

	lg := zctx.From(ctx)
	now := s.now()

	p, err := s.price(ctx, req, now)
	if err != nil {
		return nil, err
	}

	if p.applied != nil {
		e := p.applied.Entity
		if _, err := s.discounts.IncrementUse(ctx, e.Kind, e.ID, e.UsesCount); err != nil {
			if errors.Is(err, discount.ErrUsageConflict) {
				s.usageConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
				lg.Warn("Discount usage conflict",
					zap.String("kind", string(e.Kind)),
					zap.String("code", e.Code),
					zap.Int("expected_uses", e.UsesCount),
				)
				return nil, &discount.ConflictError{Kind: e.Kind, Code: e.Code}
			}
			return nil, errors.Wrapf(err, "increment %s usage", e.Kind)
		}
		s.discountsUsed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
	}

	o := &Order{
		ID:        s.newID(),
		Quote:     p.quote,
		CreatedAt: now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.ordersCreated.Add(ctx, 1)

	fields := []zap.Field{
		zap.String("order_id", o.ID),
		zap.Stringer("sub_total", o.SubTotal),
		zap.Stringer("final_total", o.FinalTotal),
	}
	if o.Discount != nil {
		fields = append(fields, zap.String("code", o.Discount.Code))
	}
	lg.Info("Order created", fields...)

	return o, nil
}

// Get returns a persisted order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

type pricing struct {
	quote   Quote
	applied *discount.Application
}

func (s *Service) price(ctx context.Context, req Request, now time.Time) (*pricing, error) {
	items, err := s.enrich(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	discountItems := make([]discount.Item, len(items))
	subTotal := decimal.Zero
	for i, it := range items {
		discountItems[i] = discount.Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
		subTotal = subTotal.Add(discountItems[i].LineTotal())
	}

	entity, err := s.resolveCode(ctx, req)
	if err != nil {
		return nil, err
	}

	p := &pricing{}
	amount := decimal.Zero
	var scope *discount.Scope
	eligible := decimal.Zero
	if entity != nil {
		app, err := discount.Apply(entity, discountItems, subTotal, now)
		if err != nil {
			return nil, err
		}
		p.applied = app
		scope = app.Scope()
		eligible = app.EligibleAmount

		amount = decimal.Min(app.Amount, subTotal.Mul(maxDiscountShare))
	}

	for i, a := range discount.Distribute(discountItems, amount, eligible, scope) {
		items[i].LineTotal = a.LineTotal
		items[i].Discount = a.Discount
		items[i].DiscountedPrice = a.DiscountedPrice
	}

	final := subTotal.Sub(amount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	p.quote = Quote{
		Items:      items,
		SubTotal:   subTotal.Round(2),
		FinalTotal: final.Round(2),
	}
	if entity != nil {
		p.quote.Discount = &AppliedDiscount{
			Code:   entity.Code,
			Kind:   entity.Kind,
			Type:   entity.Type,
			Amount: amount.Round(2),
		}
	}
	return p, nil
}

// enrich validates the requested items and attaches catalog data to them.
func (s *Service) enrich(ctx context.Context, reqItems []RequestItem) ([]LineItem, error) {
	if len(reqItems) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(reqItems))
	for i, item := range reqItems {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]LineItem, len(reqItems))
	for i, item := range reqItems {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.InStock {
			return nil, &ProductOutOfStockError{ProductID: p.ID, Name: p.Name}
		}
		items[i] = LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		}
	}
	return items, nil
}

// resolveCode finds the single entity the request refers to, or nil when no
// code was supplied.
func (s *Service) resolveCode(ctx context.Context, req Request) (*discount.Entity, error) {
	code := discount.NormalizeCode(req.Code)
	promo := discount.NormalizeCode(req.PromotionCode)
	voucher := discount.NormalizeCode(req.VoucherCode)

	if promo != "" && voucher != "" {
		if promo == voucher {
			return nil, ErrDuplicateCodeUsage
		}
		return nil, ErrMultipleCodes
	}

	kinds := []discount.Kind{discount.KindPromotion, discount.KindVoucher}
	switch {
	case promo != "":
		if code != "" && code != promo {
			return nil, ErrMultipleCodes
		}
		code, kinds = promo, kinds[:1]
	case voucher != "":
		if code != "" && code != voucher {
			return nil, ErrMultipleCodes
		}
		code, kinds = voucher, kinds[1:]
	case code == "":
		return nil, nil
	}

	for _, kind := range kinds {
		e, err := s.discounts.FindActiveByCode(ctx, kind, code)
		switch {
		case err == nil:
			return e, nil
		case errors.Is(err, discount.ErrNotFound):
			continue
		default:
			return nil, errors.Wrapf(err, "find %s", kind)
		}
	}
	return nil, &CodeNotFoundError{Code: code}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
