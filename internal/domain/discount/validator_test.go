package discount

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	base := func() *Entity {
		return &Entity{
			Kind:       KindVoucher,
			Code:       "SAVE10",
			Type:       TypePercentage,
			Value:      d("10"),
			ExpiresAt:  now.Add(time.Hour),
			UsageLimit: 5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(e *Entity)
		total   decimal.Decimal
		wantErr error
	}{
		{name: "valid", mutate: func(*Entity) {}, total: d("100")},
		{name: "expires exactly now is still valid", mutate: func(e *Entity) { e.ExpiresAt = now }, total: d("100")},
		{name: "expired", mutate: func(e *Entity) { e.ExpiresAt = now.Add(-time.Second) }, total: d("100"), wantErr: ErrExpired},
		{name: "exhausted", mutate: func(e *Entity) { e.UsesCount = 5 }, total: d("100"), wantErr: ErrExhausted},
		{
			name:    "minimum not met",
			mutate:  func(e *Entity) { e.MinOrderValue = nd("150") },
			total:   d("100"),
			wantErr: ErrMinimumOrderNotMet,
		},
		{name: "minimum met exactly", mutate: func(e *Entity) { e.MinOrderValue = nd("100") }, total: d("100")},
		{
			name: "expired reported before exhausted",
			mutate: func(e *Entity) {
				e.ExpiresAt = now.Add(-time.Hour)
				e.UsesCount = 5
			},
			total:   d("100"),
			wantErr: ErrExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(e)
			err := Check(e, now, tt.total)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var ruleErr *RuleError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, KindVoucher, ruleErr.Kind)
		})
	}
}

func TestRuleErrorMessage(t *testing.T) {
	err := &RuleError{Kind: KindPromotion, Rule: ErrMinimumOrderNotMet, MinOrderValue: d("150")}
	assert.Equal(t, "Minimum order value of 150.00 not met for promotion", err.Error())

	err = &RuleError{Kind: KindVoucher, Rule: ErrExpired}
	assert.Equal(t, "Voucher has expired", err.Error())
}

func TestApply(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	items := []Item{
		{ProductID: "phone", Category: "electronics", UnitPrice: d("100"), Quantity: 2},
		{ProductID: "novel", Category: "books", UnitPrice: d("50"), Quantity: 1},
	}
	subTotal := d("250")

	t.Run("voucher uses whole subtotal", func(t *testing.T) {
		e := &Entity{
			Kind: KindVoucher, Type: TypeFixed, Value: d("50"),
			ExpiresAt: now.Add(time.Hour), UsageLimit: 1,
			// Vouchers ignore any scope.
			Scope: &Scope{Categories: []string{"toys"}, ItemIDs: []string{"robot"}},
		}
		app, err := Apply(e, items, subTotal, now)
		require.NoError(t, err)
		assert.Equal(t, "250", app.EligibleAmount.String())
		assert.Equal(t, "50", app.Amount.String())
		assert.Nil(t, app.Scope())
	})

	t.Run("promotion uses scope", func(t *testing.T) {
		e := &Entity{
			Kind: KindPromotion, Type: TypePercentage, Value: d("20"),
			ExpiresAt: now.Add(time.Hour), UsageLimit: 1,
			Scope: &Scope{Categories: []string{"electronics"}, ItemIDs: []string{"phone"}},
		}
		app, err := Apply(e, items, subTotal, now)
		require.NoError(t, err)
		assert.Equal(t, "200", app.EligibleAmount.String())
		assert.Equal(t, "40", app.Amount.String())
		assert.NotNil(t, app.Scope())
	})

	t.Run("promotion without eligible items", func(t *testing.T) {
		e := &Entity{
			Kind: KindPromotion, Type: TypePercentage, Value: d("20"),
			ExpiresAt: now.Add(time.Hour), UsageLimit: 1,
			Scope: &Scope{Categories: []string{"garden"}, ItemIDs: []string{"hose"}},
		}
		_, err := Apply(e, items, subTotal, now)
		require.ErrorIs(t, err, ErrNoEligibleItems)
		assert.Equal(t, "No eligible items for this promotion", err.Error())
	})

	t.Run("rule failure wins over eligibility", func(t *testing.T) {
		e := &Entity{
			Kind: KindPromotion, Type: TypePercentage, Value: d("20"),
			ExpiresAt: now.Add(-time.Hour), UsageLimit: 1,
			Scope: &Scope{Categories: []string{"garden"}, ItemIDs: []string{"hose"}},
		}
		_, err := Apply(e, items, subTotal, now)
		assert.True(t, errors.Is(err, ErrExpired))
	})
}
