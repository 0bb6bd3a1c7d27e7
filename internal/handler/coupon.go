package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	// Subtotal overrides the cart subtotal when set.
	Subtotal *decimal.Decimal `json:"subtotal"`
}

type validateCouponResponse struct {
	Code        string  `json:"code"`
	Discount    float64 `json:"discount"`
	Description string  `json:"description"`
	Subtotal    float64 `json:"subtotal"`
	Total       float64 `json:"total"`
}

type couponRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	DiscountType string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal `json:"value"`
	Description  string          `json:"description" validate:"max=500"`
	MinItems     int             `json:"min_items" validate:"min=0"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`
	ValidFrom    *time.Time      `json:"valid_from"`
	ValidUntil   *time.Time      `json:"valid_until"`
	MaxUses      int             `json:"max_uses" validate:"min=0"`
	Active       *bool           `json:"active"`
}

type couponResponse struct {
	Code         string     `json:"code"`
	DiscountType string     `json:"discount_type"`
	Value        float64    `json:"value"`
	Description  string     `json:"description"`
	MinItems     int        `json:"min_items"`
	MaxDiscount  float64    `json:"max_discount"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	Active       bool       `json:"active"`
	MaxUses      int        `json:"max_uses"`
	Uses         int        `json:"uses"`
	CreatedAt    time.Time  `json:"created_at"`
}

type couponActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func couponDTO(c coupon.Rule) couponResponse {
	return couponResponse{
		Code:         c.Code,
		DiscountType: string(c.DiscountType),
		Value:        money(c.Value),
		Description:  c.Description,
		MinItems:     c.MinItems,
		MaxDiscount:  money(c.MaxDiscount),
		ValidFrom:    c.ValidFrom,
		ValidUntil:   c.ValidUntil,
		Active:       c.Active,
		MaxUses:      c.MaxUses,
		Uses:         c.Uses,
		CreatedAt:    c.CreatedAt,
	}
}

// ValidateCoupon handles POST /api/coupons/validate. The discount is computed
// against the caller's cart; nothing is consumed.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.carts.Get(r.Context(), userID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	subtotal := c.Subtotal()
	if req.Subtotal != nil {
		if err := checkSubtotal(*req.Subtotal); err != nil {
			fail(w, r, err)
			return
		}
		subtotal = *req.Subtotal
	}

	d, err := h.coupons.Validate(r.Context(), req.Code, subtotal, c.ItemCount())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateCouponResponse{
		Code:        d.Code,
		Discount:    money(d.Amount),
		Description: d.Description,
		Subtotal:    money(subtotal),
		Total:       money(subtotal.Sub(d.Amount)),
	})
}

// ListCoupons handles GET /api/coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]couponResponse, 0, len(list))
	for _, c := range list {
		out = append(out, couponDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateCoupon handles POST /api/coupons. New coupons are active unless the
// request says otherwise.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	c, err := h.coupons.Create(r.Context(), coupon.Rule{
		Code:         req.Code,
		DiscountType: coupon.DiscountType(req.DiscountType),
		Value:        req.Value,
		Description:  req.Description,
		MinItems:     req.MinItems,
		MaxDiscount:  req.MaxDiscount,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		Active:       active,
		MaxUses:      req.MaxUses,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponDTO(*c))
}

// SetCouponActive handles PATCH /api/coupons/{code}.
func (h *Handler) SetCouponActive(w http.ResponseWriter, r *http.Request) {
	var req couponActiveRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.coupons.SetActive(r.Context(), chi.URLParam(r, "code"), *req.Active); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkSubtotal accepts only positive amounts in whole paise.
func checkSubtotal(d decimal.Decimal) error {
	if !d.IsPositive() {
		return apperr.Invalid("subtotal", "must be greater than 0")
	}
	if !d.Equal(d.Round(2)) {
		return apperr.Invalid("subtotal", "must have at most 2 decimal places")
	}
	return nil
}
