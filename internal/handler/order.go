package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CalculateOrder prices a cart without side effects.
func (h *Handler) CalculateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	quote, err := h.orders.Calculate(r.Context(), req.domain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse(quote))
}

// CreateOrder prices a cart, consumes one use of the applied code and
// persists the order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), req.domain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placedOrderResponse(o))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placedOrderResponse(o))
}
