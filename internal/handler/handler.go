// Package handler exposes the pricing engine over HTTP.
package handler

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/domain/product"
)

// Handler serves the order, discount administration and catalog endpoints.
type Handler struct {
	products  product.Repository
	orders    *order.Service
	discounts *discount.Manager
	validate  *validator.Validate
}

// New constructs a Handler with the required domain dependencies.
func New(products product.Repository, orders *order.Service, discounts *discount.Manager) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		products:  products,
		orders:    orders,
		discounts: discounts,
		validate:  v,
	}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/calculate", h.CalculateOrder)
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
	})
	r.Route("/promotions", h.discountRoutes(discount.KindPromotion))
	r.Route("/vouchers", h.discountRoutes(discount.KindVoucher))
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (h *Handler) discountRoutes(kind discount.Kind) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/", h.createDiscount(kind))
		r.Get("/", h.listDiscounts(kind))
		r.Get("/{code}", h.getDiscount(kind))
		r.Put("/{id}", h.updateDiscount(kind))
		r.Delete("/{id}", h.deleteDiscount(kind))
	}
}
