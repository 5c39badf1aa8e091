package discount

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no active entity matches a code or id.
	ErrNotFound = errors.New("discount not found")
	// ErrDuplicateCode is returned when an active entity of the same kind
	// already uses the code.
	ErrDuplicateCode = errors.New("discount code already exists")
	// ErrCodeGeneration is returned when no free code was found in time.
	ErrCodeGeneration = errors.New("failed to generate unique discount code")
	// ErrUsageConflict is returned by Repository.IncrementUse when the usage
	// counter moved between read and write, or the limit was reached.
	ErrUsageConflict = errors.New("discount usage changed concurrently")

	ErrExpired            = errors.New("discount expired")
	ErrExhausted          = errors.New("discount usage limit reached")
	ErrMinimumOrderNotMet = errors.New("minimum order value not met")
	ErrNoEligibleItems    = errors.New("no eligible items")
)

// RuleError reports a business rule the resolved entity does not satisfy.
// Rule is one of ErrExpired, ErrExhausted, ErrMinimumOrderNotMet or
// ErrNoEligibleItems.
type RuleError struct {
	Kind          Kind
	Rule          error
	MinOrderValue decimal.Decimal
}

func (e *RuleError) Error() string {
	switch e.Rule {
	case ErrExpired:
		return fmt.Sprintf("%s has expired", e.Kind.Title())
	case ErrExhausted:
		return fmt.Sprintf("%s usage limit reached", e.Kind.Title())
	case ErrMinimumOrderNotMet:
		return fmt.Sprintf("Minimum order value of %s not met for %s", e.MinOrderValue.StringFixed(2), e.Kind)
	case ErrNoEligibleItems:
		return fmt.Sprintf("No eligible items for this %s", e.Kind)
	default:
		return fmt.Sprintf("%s rejected: %v", e.Kind, e.Rule)
	}
}

func (e *RuleError) Unwrap() error {
	return e.Rule
}

// ConflictError reports that a racing request consumed the entity between
// validation and commit. Callers may retry with a new request.
type ConflictError struct {
	Kind Kind
	Code string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s usage limit reached due to concurrent usage", e.Kind, e.Code)
}

func (e *ConflictError) Unwrap() error {
	return ErrUsageConflict
}

// ValidationError reports malformed administrative input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
