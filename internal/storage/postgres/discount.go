package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-pricing/internal/domain/discount"
)

const discountColumns = `id, kind, code, discount_type, value, expires_at, usage_limit, uses_count,
	min_order_value, max_discount_amount, eligible_categories, eligible_item_ids,
	deleted_at, created_at, updated_at`

const (
	findDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE kind = $1 AND code = $2 AND deleted_at IS NULL`

	getDiscountByIDSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE kind = $1 AND id = $2`

	incrementDiscountUseSQL = `UPDATE discounts
		SET uses_count = uses_count + 1, updated_at = now()
		WHERE kind = $1 AND id = $2 AND uses_count = $3
			AND uses_count < usage_limit AND deleted_at IS NULL
		RETURNING ` + discountColumns

	createDiscountSQL = `INSERT INTO discounts (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateDiscountSQL = `UPDATE discounts
		SET code = $3, discount_type = $4, value = $5, expires_at = $6, usage_limit = $7,
			min_order_value = $8, max_discount_amount = $9,
			eligible_categories = $10, eligible_item_ids = $11, updated_at = $12
		WHERE kind = $1 AND id = $2 AND deleted_at IS NULL`

	softDeleteDiscountSQL = `UPDATE discounts SET deleted_at = $3, updated_at = $3
		WHERE kind = $1 AND id = $2 AND deleted_at IS NULL`

	listDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE kind = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
// Promotions and vouchers share one table keyed by kind.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindActiveByCode returns the non-deleted entity of kind with the code.
func (r *DiscountRepository) FindActiveByCode(ctx context.Context, kind discount.Kind, code string) (*discount.Entity, error) {
	rows, err := r.pool.Query(ctx, findDiscountByCodeSQL, kind, code)
	if err != nil {
		return nil, fmt.Errorf("finding %s by code %q: %w", kind, code, err)
	}
	return collectOne(rows, kind, code)
}

// IncrementUse performs the compare-and-set on uses_count. Zero updated rows
// means another request got there first or the limit was reached.
func (r *DiscountRepository) IncrementUse(ctx context.Context, kind discount.Kind, id string, expectedUses int) (*discount.Entity, error) {
	rows, err := r.pool.Query(ctx, incrementDiscountUseSQL, kind, id, expectedUses)
	if err != nil {
		return nil, fmt.Errorf("incrementing %s %s: %w", kind, id, err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrUsageConflict
		}
		return nil, fmt.Errorf("incrementing %s %s: %w", kind, id, err)
	}
	return &e, nil
}

// Create inserts a new entity. A live entity of the same kind with the same
// code yields discount.ErrDuplicateCode.
func (r *DiscountRepository) Create(ctx context.Context, e *discount.Entity) error {
	cats, ids := scopeColumns(e)
	_, err := r.pool.Exec(ctx, createDiscountSQL,
		e.ID, e.Kind, e.Code, e.Type, e.Value, e.ExpiresAt, e.UsageLimit, e.UsesCount,
		e.MinOrderValue, e.MaxDiscountAmount, cats, ids,
		e.DeletedAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrDuplicateCode
		}
		return fmt.Errorf("creating %s %q: %w", e.Kind, e.Code, err)
	}
	return nil
}

// Update rewrites the mutable fields of a live entity. uses_count is not
// touched.
func (r *DiscountRepository) Update(ctx context.Context, e *discount.Entity) error {
	cats, ids := scopeColumns(e)
	tag, err := r.pool.Exec(ctx, updateDiscountSQL,
		e.Kind, e.ID, e.Code, e.Type, e.Value, e.ExpiresAt, e.UsageLimit,
		e.MinOrderValue, e.MaxDiscountAmount, cats, ids, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrDuplicateCode
		}
		return fmt.Errorf("updating %s %s: %w", e.Kind, e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// GetByID returns the entity with the id, deleted or not.
func (r *DiscountRepository) GetByID(ctx context.Context, kind discount.Kind, id string) (*discount.Entity, error) {
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, kind, id)
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", kind, id, err)
	}
	return collectOne(rows, kind, id)
}

// SoftDelete marks a live entity as deleted.
func (r *DiscountRepository) SoftDelete(ctx context.Context, kind discount.Kind, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, softDeleteDiscountSQL, kind, id, at)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// List returns entities of the filter kind, newest first.
func (r *DiscountRepository) List(ctx context.Context, f discount.ListFilter) ([]discount.Entity, error) {
	query := listDiscountsSQL
	args := []any{f.Kind}
	switch f.Status {
	case discount.StatusActive:
		query += ` AND deleted_at IS NULL AND expires_at > $2 AND uses_count < usage_limit`
		args = append(args, f.Now)
	case discount.StatusExpired:
		query += ` AND deleted_at IS NULL AND expires_at <= $2`
		args = append(args, f.Now)
	case discount.StatusDeleted:
		query += ` AND deleted_at IS NOT NULL`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", f.Kind, err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

func collectOne(rows pgx.Rows, kind discount.Kind, key string) (*discount.Entity, error) {
	e, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting %s %q: %w", kind, key, err)
	}
	return &e, nil
}

// scopeColumns maps a promotion scope to the two nullable array columns.
func scopeColumns(e *discount.Entity) (cats, ids []string) {
	if e.Kind != discount.KindPromotion || e.Scope == nil {
		return nil, nil
	}
	cats, ids = e.Scope.Categories, e.Scope.ItemIDs
	if cats == nil {
		cats = []string{}
	}
	if ids == nil {
		ids = []string{}
	}
	return cats, ids
}

func scanDiscount(row pgx.CollectableRow) (discount.Entity, error) {
	var (
		e    discount.Entity
		cats []string
		ids  []string
	)
	err := row.Scan(
		&e.ID, &e.Kind, &e.Code, &e.Type, &e.Value, &e.ExpiresAt, &e.UsageLimit, &e.UsesCount,
		&e.MinOrderValue, &e.MaxDiscountAmount, &cats, &ids,
		&e.DeletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	if e.Kind == discount.KindPromotion && (cats != nil || ids != nil) {
		e.Scope = &discount.Scope{Categories: cats, ItemIDs: ids}
	}
	return e, nil
}
