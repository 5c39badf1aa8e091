package discount

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 10
	codeGenAttempts = 10
	maxCodeLength   = 64
	minUsageLimit   = 1
)

// CreateInput holds the fields of a new promotion or voucher. An empty Code
// asks the manager to generate one.
type CreateInput struct {
	Kind              Kind
	Code              string
	Type              Type
	Value             decimal.Decimal
	ExpiresAt         time.Time
	UsageLimit        int
	MinOrderValue     decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	Scope             *Scope
}

// UpdateInput is a partial update. Nil fields are left untouched; a non-nil
// NullDecimal with Valid=false clears the optional cap.
type UpdateInput struct {
	Code              *string
	Type              *Type
	Value             *decimal.Decimal
	ExpiresAt         *time.Time
	UsageLimit        *int
	MinOrderValue     *decimal.NullDecimal
	MaxDiscountAmount *decimal.NullDecimal
	// Categories and ItemIDs replace their scope dimension when set and
	// leave it untouched otherwise. Ignored for vouchers.
	Categories *[]string
	ItemIDs    *[]string
}

// Manager administers promotions and vouchers.
type Manager struct {
	repo    Repository
	now     func() time.Time
	newID   func() string
	genCode func() (string, error)
}

// NewManager creates a Manager backed by repo.
func NewManager(repo Repository) *Manager {
	return &Manager{
		repo:    repo,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		genCode: randomCode,
	}
}

// Create validates in, assigns or checks the code and stores a new entity
// with a zero usage count.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Entity, error) {
	if !in.Kind.Valid() {
		return nil, &ValidationError{Field: "kind", Reason: "unknown kind"}
	}
	now := m.now()
	e := &Entity{
		ID:                m.newID(),
		Kind:              in.Kind,
		Type:              in.Type,
		Value:             in.Value,
		ExpiresAt:         in.ExpiresAt,
		UsageLimit:        in.UsageLimit,
		MinOrderValue:     in.MinOrderValue,
		MaxDiscountAmount: in.MaxDiscountAmount,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Kind == KindPromotion {
		e.Scope = normalizeScope(in.Scope)
	}
	if err := prepare(e); err != nil {
		return nil, err
	}

	code := NormalizeCode(in.Code)
	if code == "" {
		generated, err := m.uniqueCode(ctx, in.Kind)
		if err != nil {
			return nil, err
		}
		code = generated
	} else if err := validateCode(code); err != nil {
		return nil, err
	}
	e.Code = code

	if err := m.repo.Create(ctx, e); err != nil {
		return nil, errors.Wrapf(err, "create %s", in.Kind)
	}
	return e, nil
}

// List returns entities of kind filtered by status, newest first.
func (m *Manager) List(ctx context.Context, kind Kind, status Status) ([]Entity, error) {
	switch status {
	case StatusAll, StatusActive, StatusExpired, StatusDeleted:
	default:
		return nil, &ValidationError{Field: "status", Reason: "must be one of active, expired, deleted"}
	}
	list, err := m.repo.List(ctx, ListFilter{Kind: kind, Status: status, Now: m.now()})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", kind)
	}
	return list, nil
}

// GetByCode returns the non-deleted entity of kind with the code.
func (m *Manager) GetByCode(ctx context.Context, kind Kind, code string) (*Entity, error) {
	e, err := m.repo.FindActiveByCode(ctx, kind, NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", kind)
	}
	return e, nil
}

// Update applies a partial update to the entity with the given id. The usage
// counter is never changed here.
func (m *Manager) Update(ctx context.Context, kind Kind, id string, in UpdateInput) (*Entity, error) {
	e, err := m.repo.GetByID(ctx, kind, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", kind)
	}
	if e.Deleted() {
		return nil, ErrNotFound
	}

	if in.Code != nil {
		code := NormalizeCode(*in.Code)
		if err := validateCode(code); err != nil {
			return nil, err
		}
		e.Code = code
	}
	if in.Type != nil {
		e.Type = *in.Type
	}
	if in.Value != nil {
		e.Value = *in.Value
	}
	if in.ExpiresAt != nil {
		e.ExpiresAt = *in.ExpiresAt
	}
	if in.UsageLimit != nil {
		if *in.UsageLimit < e.UsesCount {
			return nil, &ValidationError{Field: "usageLimit", Reason: "must not be below usesCount"}
		}
		e.UsageLimit = *in.UsageLimit
	}
	if in.MinOrderValue != nil {
		e.MinOrderValue = *in.MinOrderValue
	}
	if in.MaxDiscountAmount != nil {
		e.MaxDiscountAmount = *in.MaxDiscountAmount
	}
	if kind == KindPromotion && (in.Categories != nil || in.ItemIDs != nil) {
		e.Scope = mergeScope(e.Scope, in.Categories, in.ItemIDs)
	}
	if err := prepare(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = m.now()

	if err := m.repo.Update(ctx, e); err != nil {
		return nil, errors.Wrapf(err, "update %s", kind)
	}
	return e, nil
}

// Delete soft-deletes the entity with the given id.
func (m *Manager) Delete(ctx context.Context, kind Kind, id string) error {
	if err := m.repo.SoftDelete(ctx, kind, id, m.now()); err != nil {
		return errors.Wrapf(err, "delete %s", kind)
	}
	return nil
}

// prepare validates e and clamps percentage values.
func prepare(e *Entity) error {
	if !e.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be percentage or fixed"}
	}
	if e.Value.IsNegative() {
		return &ValidationError{Field: "value", Reason: "must not be negative"}
	}
	if e.Type == TypePercentage && e.Value.GreaterThan(MaxPercentage) {
		e.Value = MaxPercentage
	}
	if e.ExpiresAt.IsZero() {
		return &ValidationError{Field: "expiresAt", Reason: "required"}
	}
	if e.UsageLimit < minUsageLimit {
		return &ValidationError{Field: "usageLimit", Reason: "must be at least 1"}
	}
	if e.MinOrderValue.Valid && e.MinOrderValue.Decimal.IsNegative() {
		return &ValidationError{Field: "minOrderValue", Reason: "must not be negative"}
	}
	if e.MaxDiscountAmount.Valid && e.MaxDiscountAmount.Decimal.IsNegative() {
		return &ValidationError{Field: "maxDiscountAmount", Reason: "must not be negative"}
	}
	return nil
}

func validateCode(code string) error {
	if code == "" {
		return &ValidationError{Field: "code", Reason: "must not be blank"}
	}
	if len(code) > maxCodeLength {
		return &ValidationError{Field: "code", Reason: "too long"}
	}
	return nil
}

// mergeScope replaces only the dimensions that are set.
func mergeScope(cur *Scope, categories, itemIDs *[]string) *Scope {
	next := normalizeScope(cur)
	if next == nil {
		next = &Scope{Categories: []string{}, ItemIDs: []string{}}
	}
	if categories != nil {
		next.Categories = append([]string{}, *categories...)
	}
	if itemIDs != nil {
		next.ItemIDs = append([]string{}, *itemIDs...)
	}
	return next
}

func normalizeScope(s *Scope) *Scope {
	if s == nil {
		return nil
	}
	out := &Scope{
		Categories: make([]string, 0, len(s.Categories)),
		ItemIDs:    make([]string, 0, len(s.ItemIDs)),
	}
	out.Categories = append(out.Categories, s.Categories...)
	out.ItemIDs = append(out.ItemIDs, s.ItemIDs...)
	return out
}

func (m *Manager) uniqueCode(ctx context.Context, kind Kind) (string, error) {
	for range codeGenAttempts {
		code, err := m.genCode()
		if err != nil {
			return "", errors.Wrap(err, "generate code")
		}
		_, err = m.repo.FindActiveByCode(ctx, kind, code)
		switch {
		case errors.Is(err, ErrNotFound):
			return code, nil
		case err != nil:
			return "", errors.Wrap(err, "check code")
		}
	}
	return "", ErrCodeGeneration
}

func randomCode() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
