package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethnicwear/storefront/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, value, description, min_items, max_discount,
		valid_from, valid_until, active, max_uses, uses, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = UPPER($1)`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code`

	insertCouponSQL = `INSERT INTO coupons (code, discount_type, value, description, min_items, max_discount,
			valid_from, valid_until, active, max_uses, uses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11)`

	setCouponActiveSQL = `UPDATE coupons SET active = $2 WHERE code = $1`

	// consumeCouponUseSQL takes one use only while uses remain.
	consumeCouponUseSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = $1 AND (max_uses = 0 OR uses < max_uses)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrCouponNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// Create inserts a coupon. An existing code yields coupon.ErrCouponCodeTaken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Rule) error {
	return insertCoupon(ctx, r.pool, c)
}

func insertCoupon(ctx context.Context, q querier, c *coupon.Rule) error {
	_, err := q.Exec(ctx, insertCouponSQL,
		c.Code, string(c.DiscountType), c.Value, c.Description, c.MinItems, c.MaxDiscount,
		c.ValidFrom, c.ValidUntil, c.Active, c.MaxUses, c.CreatedAt,
	)
	if err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanCouponRule)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return list, nil
}

// SetActive switches a coupon on or off.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

// CopyCoupons bulk-inserts coupons that share everything but their code,
// skipping codes that already exist. It returns the number inserted.
func (r *CouponRepository) CopyCoupons(ctx context.Context, template coupon.Rule, codes []string) (int64, error) {
	var inserted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE TEMP TABLE coupon_import (code TEXT) ON COMMIT DROP`); err != nil {
			return fmt.Errorf("creating staging table: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"coupon_import"}, []string{"code"},
			pgx.CopyFromSlice(len(codes), func(i int) ([]any, error) {
				return []any{codes[i]}, nil
			}),
		); err != nil {
			return fmt.Errorf("copying codes: %w", err)
		}

		tag, err := tx.Exec(ctx, `INSERT INTO coupons (code, discount_type, value, description, min_items,
				max_discount, valid_from, valid_until, active, max_uses, uses, created_at)
			SELECT DISTINCT UPPER(code), $1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10 FROM coupon_import
			ON CONFLICT (code) DO NOTHING`,
			string(template.DiscountType), template.Value, template.Description, template.MinItems,
			template.MaxDiscount, template.ValidFrom, template.ValidUntil, template.Active,
			template.MaxUses, template.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting coupons: %w", err)
		}
		inserted = tag.RowsAffected()
		return nil
	})
	return inserted, err
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &rule.Description, &rule.MinItems, &rule.MaxDiscount,
		&rule.ValidFrom, &rule.ValidUntil, &rule.Active, &rule.MaxUses, &rule.Uses, &rule.CreatedAt,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	return rule, err
}
