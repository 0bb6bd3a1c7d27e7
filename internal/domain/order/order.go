// Package order places customer orders and tracks their fulfilment.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

// Sentinel errors for order placement and tracking.
var (
	ErrOrderNotFound = apperr.NotFound("order not found")
	ErrEmptyCart     = apperr.Validation("cart is empty")
	// ErrIllegalTransition is matched by every TransitionError.
	ErrIllegalTransition = apperr.Validation("illegal status transition")
	// ErrDuplicateOrder is returned by Repository.Place when an order with the
	// same user and idempotency key was stored concurrently.
	ErrDuplicateOrder = apperr.Conflict("order already placed")
	// ErrNumberTaken is returned by Repository.Place when the order number is
	// already in use. PlaceOrder retries with a fresh id.
	ErrNumberTaken = errors.New("order number taken")
)

// PaymentMethod is how the customer intends to pay. It is recorded only.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit-card"
	PaymentDebitCard  PaymentMethod = "debit-card"
	PaymentUPI        PaymentMethod = "upi"
	PaymentNetBanking PaymentMethod = "net-banking"
	PaymentCOD        PaymentMethod = "cod"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentUPI, PaymentNetBanking, PaymentCOD:
		return true
	}
	return false
}

// PaymentStatus tracks payment collection.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid || s == PaymentFailed
}

// Line is a snapshot of one purchased variation. It never references live
// catalog data.
type Line struct {
	ProductID   string          `json:"product_id"`
	VariationID string          `json:"variation_id"`
	Name        string          `json:"name"`
	Image       string          `json:"image"`
	Size        catalog.Size    `json:"size"`
	Color       string          `json:"color"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// LineTotal is price × quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a placed order. Items, amounts and addresses are fixed at
// creation; only status, payment status, tracking number and notes change.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []Line
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	CouponCode      string
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	ShippingAddress address.Address
	BillingAddress  address.Address
	TrackingNumber  string
	Notes           string
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Filter narrows the admin order listing.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Place stores o in a single transaction together with its side effects:
	// stock of every line is decremented only if enough remains (a
	// catalog.StockError otherwise), a coupon use is consumed if o has a
	// coupon and uses remain (coupon.ErrCouponUsageLimitReached otherwise),
	// and the user's cart is cleared.
	Place(ctx context.Context, o *Order) error
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// Update loads the order under a row lock, applies mutate and saves it.
	// Lines are restocked when NeedsRestock reports true for the change.
	Update(ctx context.Context, id string, mutate func(o *Order) error) (*Order, error)
}
