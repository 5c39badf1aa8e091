package handler

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/domain/product"
)

type orderItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Qty       int    `json:"qty" validate:"min=1"`
}

type orderRequest struct {
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Code          string             `json:"code" validate:"max=64"`
	PromotionCode string             `json:"promotionCode" validate:"max=64"`
	VoucherCode   string             `json:"voucherCode" validate:"max=64"`
}

func (req orderRequest) domain() order.Request {
	items := make([]order.RequestItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.RequestItem{ProductID: it.ProductID, Quantity: it.Qty}
	}
	return order.Request{
		Items:         items,
		Code:          req.Code,
		PromotionCode: req.PromotionCode,
		VoucherCode:   req.VoucherCode,
	}
}

type lineItemResponse struct {
	ProductID       string  `json:"productId"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	UnitPrice       float64 `json:"unitPrice"`
	Qty             int     `json:"qty"`
	LineTotal       float64 `json:"lineTotal"`
	DiscountAmount  float64 `json:"discountAmount"`
	DiscountedPrice float64 `json:"discountedPrice"`
}

type appliedDiscountResponse struct {
	Code   string  `json:"code"`
	Kind   string  `json:"kind"`
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

type orderResponse struct {
	ID         string                   `json:"id,omitempty"`
	Items      []lineItemResponse       `json:"items"`
	SubTotal   float64                  `json:"subTotal"`
	Discount   *appliedDiscountResponse `json:"discount"`
	FinalTotal float64                  `json:"finalTotal"`
	CreatedAt  *time.Time               `json:"createdAt,omitempty"`
}

func quoteResponse(q *order.Quote) orderResponse {
	resp := orderResponse{
		Items:      make([]lineItemResponse, len(q.Items)),
		SubTotal:   q.SubTotal.InexactFloat64(),
		FinalTotal: q.FinalTotal.InexactFloat64(),
	}
	for i, it := range q.Items {
		resp.Items[i] = lineItemResponse{
			ProductID:       it.ProductID,
			Name:            it.Name,
			Category:        it.Category,
			UnitPrice:       it.UnitPrice.InexactFloat64(),
			Qty:             it.Quantity,
			LineTotal:       it.LineTotal.InexactFloat64(),
			DiscountAmount:  it.Discount.InexactFloat64(),
			DiscountedPrice: it.DiscountedPrice.InexactFloat64(),
		}
	}
	if d := q.Discount; d != nil {
		resp.Discount = &appliedDiscountResponse{
			Code:   d.Code,
			Kind:   string(d.Kind),
			Type:   string(d.Type),
			Amount: d.Amount.InexactFloat64(),
		}
	}
	return resp
}

func placedOrderResponse(o *order.Order) orderResponse {
	resp := quoteResponse(&o.Quote)
	resp.ID = o.ID
	created := o.CreatedAt
	resp.CreatedAt = &created
	return resp
}

type createDiscountRequest struct {
	Code               string           `json:"code" validate:"max=64"`
	Type               string           `json:"type" validate:"required,oneof=percentage fixed"`
	Value              *decimal.Decimal `json:"value" validate:"required"`
	ExpiresAt          *time.Time       `json:"expiresAt" validate:"required"`
	UsageLimit         int              `json:"usageLimit" validate:"required,min=1"`
	MinOrderValue      *decimal.Decimal `json:"minOrderValue"`
	MaxDiscountAmount  *decimal.Decimal `json:"maxDiscountAmount"`
	EligibleCategories []string         `json:"eligibleCategories" validate:"dive,required"`
	EligibleItems      []string         `json:"eligibleItems" validate:"dive,required"`
}

func (req createDiscountRequest) domain(kind discount.Kind) discount.CreateInput {
	in := discount.CreateInput{
		Kind:       kind,
		Code:       req.Code,
		Type:       discount.Type(req.Type),
		Value:      *req.Value,
		ExpiresAt:  *req.ExpiresAt,
		UsageLimit: req.UsageLimit,
	}
	if req.MinOrderValue != nil {
		in.MinOrderValue = decimal.NewNullDecimal(*req.MinOrderValue)
	}
	if req.MaxDiscountAmount != nil {
		in.MaxDiscountAmount = decimal.NewNullDecimal(*req.MaxDiscountAmount)
	}
	if req.EligibleCategories != nil || req.EligibleItems != nil {
		in.Scope = &discount.Scope{Categories: req.EligibleCategories, ItemIDs: req.EligibleItems}
	}
	return in
}

// nullable tells an absent field from an explicit null.
type nullable struct {
	set   bool
	value decimal.NullDecimal
}

func (n *nullable) UnmarshalJSON(b []byte) error {
	n.set = true
	if bytes.Equal(b, []byte("null")) {
		n.value = decimal.NullDecimal{}
		return nil
	}
	if err := n.value.Decimal.UnmarshalJSON(b); err != nil {
		return err
	}
	n.value.Valid = true
	return nil
}

func (n nullable) ptr() *decimal.NullDecimal {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}

type updateDiscountRequest struct {
	Code               *string          `json:"code" validate:"omitempty,min=1,max=64"`
	Type               *string          `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Value              *decimal.Decimal `json:"value"`
	ExpiresAt          *time.Time       `json:"expiresAt"`
	UsageLimit         *int             `json:"usageLimit" validate:"omitempty,min=1"`
	MinOrderValue      nullable         `json:"minOrderValue"`
	MaxDiscountAmount  nullable         `json:"maxDiscountAmount"`
	EligibleCategories *[]string        `json:"eligibleCategories" validate:"omitempty,dive,required"`
	EligibleItems      *[]string        `json:"eligibleItems" validate:"omitempty,dive,required"`
}

func (req updateDiscountRequest) empty() bool {
	return req.Code == nil && req.Type == nil && req.Value == nil && req.ExpiresAt == nil &&
		req.UsageLimit == nil && !req.MinOrderValue.set && !req.MaxDiscountAmount.set &&
		req.EligibleCategories == nil && req.EligibleItems == nil
}

func (req updateDiscountRequest) domain() discount.UpdateInput {
	in := discount.UpdateInput{
		Code:              req.Code,
		Value:             req.Value,
		ExpiresAt:         req.ExpiresAt,
		UsageLimit:        req.UsageLimit,
		MinOrderValue:     req.MinOrderValue.ptr(),
		MaxDiscountAmount: req.MaxDiscountAmount.ptr(),
		Categories:        req.EligibleCategories,
		ItemIDs:           req.EligibleItems,
	}
	if req.Type != nil {
		t := discount.Type(*req.Type)
		in.Type = &t
	}
	return in
}

type discountResponse struct {
	ID                 string     `json:"id"`
	Kind               string     `json:"kind"`
	Code               string     `json:"code"`
	Type               string     `json:"type"`
	Value              float64    `json:"value"`
	ExpiresAt          time.Time  `json:"expiresAt"`
	UsageLimit         int        `json:"usageLimit"`
	UsesCount          int        `json:"usesCount"`
	MinOrderValue      *float64   `json:"minOrderValue,omitempty"`
	MaxDiscountAmount  *float64   `json:"maxDiscountAmount,omitempty"`
	EligibleCategories []string   `json:"eligibleCategories,omitempty"`
	EligibleItems      []string   `json:"eligibleItems,omitempty"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func optionalFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func entityResponse(e *discount.Entity) discountResponse {
	resp := discountResponse{
		ID:                e.ID,
		Kind:              string(e.Kind),
		Code:              e.Code,
		Type:              string(e.Type),
		Value:             e.Value.InexactFloat64(),
		ExpiresAt:         e.ExpiresAt,
		UsageLimit:        e.UsageLimit,
		UsesCount:         e.UsesCount,
		MinOrderValue:     optionalFloat(e.MinOrderValue),
		MaxDiscountAmount: optionalFloat(e.MaxDiscountAmount),
		DeletedAt:         e.DeletedAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.Scope != nil {
		resp.EligibleCategories = e.Scope.Categories
		resp.EligibleItems = e.Scope.ItemIDs
	}
	return resp
}

type productResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	InStock     bool    `json:"inStock"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       p.Price.InexactFloat64(),
		Description: p.Description,
		InStock:     p.InStock,
	}
}
