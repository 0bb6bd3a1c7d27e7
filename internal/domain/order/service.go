package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/checkout"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
)

const (
	instrumentationName = "github.com/ethnicwear/storefront/internal/domain/order"
	maxIdempotencyKey   = 255
	maxNumberAttempts   = 5
)

// CartReader is the part of the cart the order writer reads.
type CartReader interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
}

// AddressLister lists a user's saved addresses.
type AddressLister interface {
	List(ctx context.Context, userID string) ([]address.Address, error)
}

// PlaceOrderInput holds the checkout request of one user.
type PlaceOrderInput struct {
	Shipping       checkout.Selection
	Billing        checkout.Selection
	SameAsShipping bool
	PaymentMethod  PaymentMethod
	CouponCode     string
	Notes          string
	IdempotencyKey string
}

// PlaceOrderResult holds the placed order. Replayed is set when the order
// already existed for the idempotency key.
type PlaceOrderResult struct {
	Order    *Order
	Replayed bool
}

// StatusUpdate changes selected admin-editable fields. Nil fields are kept.
type StatusUpdate struct {
	Status         *Status
	PaymentStatus  *PaymentStatus
	TrackingNumber *string
	Notes          *string
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the meter provider for order metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for order spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// Service encapsulates order placement and tracking.
type Service struct {
	orders    Repository
	carts     CartReader
	addresses AddressLister
	coupons   coupon.Validator

	now   func() time.Time
	newID func() string

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	transitions    metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	carts CartReader,
	addresses AddressLister,
	coupons coupon.Validator,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		orders:         orders,
		carts:          carts,
		addresses:      addresses,
		coupons:        coupons,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.meterProvider.Meter(instrumentationName)
	var err error
	if s.placed, err = meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders placed, by payment method"),
	); err != nil {
		return nil, errors.Wrap(err, "orders_placed_total")
	}
	if s.transitions, err = meter.Int64Counter("order_status_transitions_total",
		metric.WithDescription("Admin status changes, by target status"),
	); err != nil {
		return nil, errors.Wrap(err, "order_status_transitions_total")
	}
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	return s, nil
}

// PlaceOrder turns the user's cart into an order. Repeating a call with the
// same idempotency key returns the first order.
func (s *Service) PlaceOrder(ctx context.Context, userID string, in PlaceOrderInput) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) > maxIdempotencyKey {
		return nil, apperr.Invalid("idempotency_key", "must be at most 255 characters")
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.Invalid("payment_method", "must be one of credit-card, debit-card, upi, net-banking, cod")
	}

	if in.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, userID, in.IdempotencyKey)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("order.replayed", true))
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		case !errors.Is(err, ErrOrderNotFound):
			return nil, errors.Wrap(err, "find by idempotency key")
		}
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	saved, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	addrs, err := checkout.ResolveBoth(saved, in.Shipping, in.Billing, in.SameAsShipping)
	if err != nil {
		return nil, err
	}

	subtotal := c.Subtotal()
	discount := decimal.Zero
	code := ""
	if strings.TrimSpace(in.CouponCode) != "" {
		d, err := s.coupons.Validate(ctx, in.CouponCode, subtotal, c.ItemCount())
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = d.Amount
		code = d.Code
	}

	o := s.newOrder(userID, c, addrs, in)
	o.Subtotal = subtotal.Round(2)
	o.Discount = discount.Round(2)
	o.CouponCode = code
	o.Total = Total(o.Subtotal, o.Discount, o.Shipping)

	if err := s.place(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateOrder) && in.IdempotencyKey != "" {
			existing, ferr := s.orders.FindByIdempotencyKey(ctx, userID, in.IdempotencyKey)
			if ferr != nil {
				return nil, errors.Wrap(ferr, "find by idempotency key")
			}
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		}
		return nil, errors.Wrap(err, "place order")
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(o.PaymentMethod)),
		attribute.Bool("coupon", o.CouponCode != ""),
	))
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.Number),
		attribute.Int("order.lines", len(o.Items)),
		attribute.String("order.total", o.Total.StringFixed(2)),
	)
	return &PlaceOrderResult{Order: o}, nil
}

// place stores o, drawing a new id and number while the number collides
// with an existing order.
func (s *Service) place(ctx context.Context, o *Order) error {
	for attempt := 1; ; attempt++ {
		err := s.orders.Place(ctx, o)
		if !errors.Is(err, ErrNumberTaken) || attempt == maxNumberAttempts {
			return err
		}
		o.ID = s.newID()
		o.Number = Number(o.CreatedAt, o.ID)
	}
}

func (s *Service) newOrder(userID string, c *cart.Cart, addrs checkout.Addresses, in PlaceOrderInput) *Order {
	now := s.now().UTC()
	id := s.newID()

	lines := make([]Line, len(c.Items))
	for i, it := range c.Items {
		lines[i] = Line{
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			Name:        it.Name,
			Image:       it.Image,
			Size:        it.Size,
			Color:       it.Color,
			SKU:         it.SKU,
			Price:       it.Price,
			Quantity:    it.Quantity,
		}
	}

	return &Order{
		ID:              id,
		Number:          Number(now, id),
		UserID:          userID,
		Items:           lines,
		Shipping:        decimal.Zero,
		Status:          StatusPending,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   PaymentPending,
		ShippingAddress: addrs.Shipping,
		BillingAddress:  addrs.Billing,
		Notes:           strings.TrimSpace(in.Notes),
		IdempotencyKey:  in.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Total is subtotal − discount + shipping, never negative, rounded to 2 places.
func Total(subtotal, discount, shipping decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// Number formats the human-facing order number EW-YYYYMMDD-XXXXXX, where the
// suffix is taken from the order id.
func Number(at time.Time, id string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return "EW-" + at.Format("20060102") + "-" + suffix
}

// Get returns one of the user's orders. Orders of other users are reported
// as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	list, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

// AdminList returns one page of all orders, newest first.
func (s *Service) AdminList(ctx context.Context, f Filter) ([]Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("status", "unknown status")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = 50
	case f.Limit > 200:
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return list, total, nil
}

// AdminGet returns any order.
func (s *Service) AdminGet(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// UpdateStatus applies an admin change. Status changes must follow
// CanTransition; cancelling restocks the order's lines.
func (s *Service) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()

	if u.Status != nil && !u.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown status")
	}
	if u.PaymentStatus != nil && !u.PaymentStatus.Valid() {
		return nil, apperr.Invalid("payment_status", "unknown payment status")
	}

	var from Status
	o, err := s.orders.Update(ctx, id, func(o *Order) error {
		from = o.Status
		if u.Status != nil {
			if !CanTransition(o.Status, *u.Status) {
				return &TransitionError{From: o.Status, To: *u.Status}
			}
			o.Status = *u.Status
		}
		if u.PaymentStatus != nil {
			o.PaymentStatus = *u.PaymentStatus
		}
		if u.TrackingNumber != nil {
			o.TrackingNumber = strings.TrimSpace(*u.TrackingNumber)
		}
		if u.Notes != nil {
			o.Notes = strings.TrimSpace(*u.Notes)
		}
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	if from != o.Status {
		s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
		span.SetAttributes(
			attribute.String("order.status.from", string(from)),
			attribute.String("order.status.to", string(o.Status)),
		)
	}
	return o, nil
}
