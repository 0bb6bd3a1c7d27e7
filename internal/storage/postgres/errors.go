package postgres

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/domain/order"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// uniqueConstraints maps unique constraint and index names to domain errors.
var uniqueConstraints = map[string]error{
	"products_slug_key":             catalog.ErrSlugTaken,
	"variations_sku_key":            catalog.ErrSKUTaken,
	"categories_name_key":           catalog.ErrCategoryNameTaken,
	"brands_name_key":               catalog.ErrBrandNameTaken,
	"coupons_pkey":                  coupon.ErrCouponCodeTaken,
	"cart_items_user_variation_key": cart.ErrLineExists,
	"orders_idempotency_key":        order.ErrDuplicateOrder,
	"orders_number_key":             order.ErrNumberTaken,
}

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// uniqueViolation returns the domain error for a unique violation on a known
// constraint, or nil.
func uniqueViolation(err error) error {
	pgErr, ok := pgError(err)
	if !ok || pgErr.Code != codeUniqueViolation {
		return nil
	}
	return uniqueConstraints[pgErr.ConstraintName]
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == codeForeignKeyViolation
}

// validID reports whether id can be a primary key. Lookups by malformed ids
// are answered as not found without a round trip.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
