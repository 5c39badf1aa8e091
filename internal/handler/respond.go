package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/domain/product"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &requestError{msg: "request body is required"}
		}
		return &requestError{msg: "invalid JSON: " + err.Error()}
	}
	if err := h.validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return &requestError{msg: fieldMessage(fields[0])}
		}
		return &requestError{msg: err.Error()}
	}
	return nil
}

// requestError is a malformed request caught before it reaches the domain.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s element(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// statusOf maps domain errors to HTTP statuses. Anything unknown is a storage
// or programming fault and is reported as 500.
func statusOf(err error) int {
	var (
		reqErr       *requestError
		validation   *discount.ValidationError
		rule         *discount.RuleError
		outOfStock   *order.ProductOutOfStockError
		badQuantity  *order.InvalidQuantityError
		missingItem  *order.ProductNotFoundError
		usageChanged *discount.ConflictError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.As(err, &validation),
		errors.As(err, &rule),
		errors.As(err, &outOfStock),
		errors.As(err, &badQuantity),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrMultipleCodes),
		errors.Is(err, order.ErrDuplicateCodeUsage):
		return http.StatusBadRequest
	case errors.As(err, &missingItem),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, discount.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &usageChanged),
		errors.Is(err, discount.ErrUsageConflict),
		errors.Is(err, discount.ErrDuplicateCode):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messageOf returns the client-facing text for err. Domain errors are
// reported by their innermost typed value so wrapping context stays internal.
func messageOf(err error) string {
	var (
		reqErr      *requestError
		validation  *discount.ValidationError
		rule        *discount.RuleError
		outOfStock  *order.ProductOutOfStockError
		badQuantity *order.InvalidQuantityError
		missingItem *order.ProductNotFoundError
		unknownCode *order.CodeNotFoundError
		conflict    *discount.ConflictError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.Error()
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &rule):
		return rule.Error()
	case errors.As(err, &outOfStock):
		return outOfStock.Error()
	case errors.As(err, &badQuantity):
		return badQuantity.Error()
	case errors.As(err, &missingItem):
		return missingItem.Error()
	case errors.As(err, &unknownCode):
		return unknownCode.Error()
	case errors.As(err, &conflict):
		return conflict.Error()
	}
	for _, sentinel := range []error{
		order.ErrEmptyItems,
		order.ErrMultipleCodes,
		order.ErrDuplicateCodeUsage,
		order.ErrNotFound,
		product.ErrNotFound,
		discount.ErrNotFound,
		discount.ErrDuplicateCode,
		discount.ErrUsageConflict,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, messageOf(err))
}
