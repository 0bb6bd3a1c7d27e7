package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// Validator validates a coupon code against a cart and returns the computed
// discount.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, itemCount int) (*Discount, error)
}

// Service implements Validator by looking up coupon rules from a Repository,
// and exposes the admin operations on coupons.
type Service struct {
	repo Repository
	now  func() time.Time
}

var _ Validator = (*Service)(nil)

// NewService creates a Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate looks up the coupon rule for code, checks the active flag, the
// validity window and usage limit, then applies it. No use is consumed.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal, itemCount int) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.Required("code")
	}

	rule, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := Check(rule, s.now()); err != nil {
		return nil, err
	}

	d, err := Apply(rule, subtotal, itemCount)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Check reports why rule cannot be redeemed at now, or nil.
func Check(rule *Rule, now time.Time) error {
	if !rule.Active {
		return ErrCouponInactive
	}
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return ErrCouponUsageLimitReached
	}
	return nil
}

// Create validates and stores a new coupon rule.
func (s *Service) Create(ctx context.Context, r Rule) (*Rule, error) {
	r.Code = NormalizeCode(r.Code)
	r.Description = strings.TrimSpace(r.Description)
	if err := ValidateRule(&r); err != nil {
		return nil, err
	}
	r.Uses = 0
	r.CreatedAt = s.now().UTC()

	if err := s.repo.Create(ctx, &r); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return &r, nil
}

// ValidateRule checks the static constraints of a rule.
func ValidateRule(r *Rule) error {
	switch {
	case r.Code == "":
		return apperr.Required("code")
	case !r.DiscountType.Valid():
		return apperr.Invalid("discount_type", "must be percentage or fixed")
	case !r.Value.IsPositive():
		return apperr.Invalid("value", "must be greater than 0")
	case r.DiscountType == DiscountPercentage && r.Value.GreaterThan(hundred):
		return apperr.Invalid("value", "percentage must not exceed 100")
	case r.MinItems < 0:
		return apperr.Invalid("min_items", "must not be negative")
	case r.MaxUses < 0:
		return apperr.Invalid("max_uses", "must not be negative")
	case r.MaxDiscount.IsNegative():
		return apperr.Invalid("max_discount", "must not be negative")
	case r.ValidFrom != nil && r.ValidUntil != nil && !r.ValidUntil.After(*r.ValidFrom):
		return apperr.Invalid("valid_until", "must be after valid_from")
	}
	return nil
}

// List returns every coupon, newest first.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return rules, nil
}

// SetActive switches a coupon on or off.
func (s *Service) SetActive(ctx context.Context, code string, active bool) error {
	if err := s.repo.SetActive(ctx, NormalizeCode(code), active); err != nil {
		return errors.Wrap(err, "set coupon active")
	}
	return nil
}
