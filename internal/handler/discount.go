package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/order-pricing/internal/domain/discount"
)

type messageResponse struct {
	Message string `json:"message"`
}

// failDiscount reports a missing entity by its kind ("Voucher not found").
func (h *Handler) failDiscount(w http.ResponseWriter, r *http.Request, kind discount.Kind, err error) {
	if errors.Is(err, discount.ErrNotFound) {
		writeError(w, http.StatusNotFound, kind.Title()+" not found")
		return
	}
	h.fail(w, r, err)
}

func (h *Handler) createDiscount(kind discount.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDiscountRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		e, err := h.discounts.Create(r.Context(), req.domain(kind))
		if err != nil {
			h.failDiscount(w, r, kind, err)
			return
		}
		writeJSON(w, http.StatusCreated, entityResponse(e))
	}
}

func (h *Handler) listDiscounts(kind discount.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := discount.Status(r.URL.Query().Get("status"))
		list, err := h.discounts.List(r.Context(), kind, status)
		if err != nil {
			h.failDiscount(w, r, kind, err)
			return
		}
		resp := make([]discountResponse, len(list))
		for i := range list {
			resp[i] = entityResponse(&list[i])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) getDiscount(kind discount.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := h.discounts.GetByCode(r.Context(), kind, chi.URLParam(r, "code"))
		if err != nil {
			h.failDiscount(w, r, kind, err)
			return
		}
		writeJSON(w, http.StatusOK, entityResponse(e))
	}
}

func (h *Handler) updateDiscount(kind discount.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateDiscountRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		if req.empty() {
			h.fail(w, r, &requestError{msg: "at least one field is required"})
			return
		}
		e, err := h.discounts.Update(r.Context(), kind, chi.URLParam(r, "id"), req.domain())
		if err != nil {
			h.failDiscount(w, r, kind, err)
			return
		}
		writeJSON(w, http.StatusOK, entityResponse(e))
	}
}

func (h *Handler) deleteDiscount(kind discount.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.discounts.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			h.failDiscount(w, r, kind, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: kind.Title() + " deleted successfully"})
	}
}
