// Package coupon evaluates discount codes against a cart.
package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, clamped to the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a supported discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrCouponNotFound is returned when no coupon has the given code.
	ErrCouponNotFound = apperr.NotFound("invalid coupon code")
	// ErrCouponInactive is returned when the coupon was switched off.
	ErrCouponInactive = apperr.Validation("coupon is not active")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = apperr.Validation("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = apperr.Validation("coupon usage limit reached")
	// ErrCouponMinItems is returned when the cart holds fewer items than required.
	ErrCouponMinItems = apperr.Validation("cart does not meet the coupon's minimum item count")
	// ErrCouponCodeTaken is returned when creating a coupon with an existing code.
	ErrCouponCodeTaken = apperr.Conflict("a coupon with this code already exists")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// Codes are stored upper-cased and matched case-insensitively.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	Description  string
	MinItems     int
	MaxDiscount  decimal.Decimal
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Active       bool
	MaxUses      int
	Uses         int
	CreatedAt    time.Time
}

// Discount holds the computed discount amount and a human-readable description.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Repository provides lookup and administration of coupon rules. Consuming a
// use happens inside the order transaction, not here.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	Create(ctx context.Context, r *Rule) error
	List(ctx context.Context) ([]Rule, error)
	SetActive(ctx context.Context, code string, active bool) error
}
