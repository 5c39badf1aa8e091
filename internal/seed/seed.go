// Package seed loads the sample catalog, promotions and vouchers.
package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/db"
	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/product"
)

const day = 24 * time.Hour

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	InStock     bool            `json:"inStock"`
}

// Products parses the embedded catalog.
func Products() ([]product.Product, error) {
	var raw []productJSON
	if err := json.Unmarshal(db.Products, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products")
	}
	out := make([]product.Product, len(raw))
	for i, p := range raw {
		out[i] = product.Product(p)
	}
	return out, nil
}

// Fixture is a sample promotion or voucher together with the state it should
// be left in: Uses consumed uses and, optionally, soft-deleted.
type Fixture struct {
	Input   discount.CreateInput
	Uses    int
	Deleted bool
}

func money(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// Discounts returns the sample vouchers and promotions. Expiry is relative to
// now; item-scoped promotions reference ids from catalog.
func Discounts(now time.Time, catalog []product.Product) []Fixture {
	byCategory := make(map[string][]string)
	for _, p := range catalog {
		byCategory[p.Category] = append(byCategory[p.Category], p.ID)
	}
	first := func(ids []string, n int) []string {
		if len(ids) < n {
			return ids
		}
		return ids[:n]
	}

	fixture := func(kind discount.Kind, code string, typ discount.Type, value int64, ttl time.Duration, limit int) discount.CreateInput {
		return discount.CreateInput{
			Kind:       kind,
			Code:       code,
			Type:       typ,
			Value:      decimal.NewFromInt(value),
			ExpiresAt:  now.Add(ttl),
			UsageLimit: limit,
		}
	}

	v := discount.KindVoucher
	p := discount.KindPromotion
	pct := discount.TypePercentage
	fixed := discount.TypeFixed

	return []Fixture{
		{Input: with(fixture(v, "SAVE10", pct, 10, 30*day, 100), maxCap("100"))},
		{Input: with(fixture(v, "FLAT50", fixed, 50, 15*day, 50), minOrder("200"))},
		{Input: with(fixture(v, "MEGA50", pct, 50, 30*day, 20), maxCap("150"), minOrder("100"))},
		{Input: fixture(v, "WELCOME5", fixed, 5, 60*day, 1000)},
		{Input: with(fixture(v, "VIP100", fixed, 100, 30*day, 10), minOrder("500"))},
		{Input: with(fixture(v, "LIMITED", pct, 15, 30*day, 5), maxCap("50")), Uses: 4},
		{Input: with(fixture(v, "SOLDOUT", pct, 20, 30*day, 10), maxCap("100")), Uses: 10},
		{Input: with(fixture(v, "EXPIRED", pct, 20, -day, 10), maxCap("50"))},
		{Input: with(fixture(v, "DELETED", pct, 25, 30*day, 50), maxCap("75")), Uses: 5, Deleted: true},
		{Input: with(fixture(v, "LASTDAY", fixed, 30, time.Hour, 100), minOrder("100"))},

		{Input: with(fixture(p, "ELECTRONICS20", pct, 20, 30*day, 200), maxCap("200"), categories("electronics"))},
		{Input: with(fixture(p, "FASHION15", pct, 15, 20*day, 150), minOrder("100"), maxCap("150"), categories("fashion", "clothing"))},
		{Input: with(fixture(p, "ITEM50OFF", fixed, 50, 30*day, 100), items(first(byCategory["electronics"], 3)...))},
		{Input: with(fixture(p, "BOOKS25", pct, 25, 30*day, 50), maxCap("100"), scope([]string{"books"}, byCategory["books"]))},
		{Input: fixture(p, "NEWUSER", fixed, 25, 60*day, 1000)},
		{Input: with(fixture(p, "FURNITURE100", fixed, 100, 30*day, 30), minOrder("500"), categories("furniture", "home"))},
		{Input: with(fixture(p, "SPORTS30", pct, 30, 30*day, 100), categories("sports"))},
	}
}

type option func(*discount.CreateInput)

func with(in discount.CreateInput, opts ...option) discount.CreateInput {
	for _, o := range opts {
		o(&in)
	}
	return in
}

func maxCap(v string) option   { return func(in *discount.CreateInput) { in.MaxDiscountAmount = money(v) } }
func minOrder(v string) option { return func(in *discount.CreateInput) { in.MinOrderValue = money(v) } }

func categories(c ...string) option { return scope(c, nil) }
func items(ids ...string) option    { return scope(nil, ids) }

func scope(cats, ids []string) option {
	return func(in *discount.CreateInput) {
		in.Scope = &discount.Scope{Categories: cats, ItemIDs: ids}
	}
}

// Stats counts what Load wrote.
type Stats struct {
	Products  int
	Discounts int
	Skipped   int
}

// Load writes the catalog and the sample discounts. Discounts whose code is
// already taken are skipped, so Load can run against a seeded store.
func Load(ctx context.Context, products product.Writer, repo discount.Repository, now time.Time) (Stats, error) {
	lg := zctx.From(ctx)

	catalog, err := Products()
	if err != nil {
		return Stats{}, err
	}
	if err := products.Upsert(ctx, catalog); err != nil {
		return Stats{}, errors.Wrap(err, "upsert products")
	}
	stats := Stats{Products: len(catalog)}

	mgr := discount.NewManager(repo)
	for _, f := range Discounts(now, catalog) {
		if f.Deleted {
			seeded, err := deletedExists(ctx, mgr, f.Input)
			if err != nil {
				return stats, err
			}
			if seeded {
				stats.Skipped++
				continue
			}
		}
		e, err := mgr.Create(ctx, f.Input)
		if errors.Is(err, discount.ErrDuplicateCode) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, errors.Wrapf(err, "create %s", f.Input.Code)
		}
		for range f.Uses {
			if e, err = repo.IncrementUse(ctx, e.Kind, e.ID, e.UsesCount); err != nil {
				return stats, errors.Wrapf(err, "use %s", f.Input.Code)
			}
		}
		if f.Deleted {
			if err := mgr.Delete(ctx, e.Kind, e.ID); err != nil {
				return stats, err
			}
		}
		stats.Discounts++
		lg.Debug("Seeded discount", zap.String("kind", string(e.Kind)), zap.String("code", e.Code))
	}
	return stats, nil
}

func deletedExists(ctx context.Context, mgr *discount.Manager, in discount.CreateInput) (bool, error) {
	deleted, err := mgr.List(ctx, in.Kind, discount.StatusDeleted)
	if err != nil {
		return false, err
	}
	for _, e := range deleted {
		if e.Code == in.Code {
			return true, nil
		}
	}
	return false, nil
}
