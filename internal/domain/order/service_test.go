package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/checkout"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders    map[string]*Order
	placeErr  error
	placed    int
	restocked int
	attempts  int

	// uniqueNumbers rejects a second order with the same number.
	uniqueNumbers bool
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: map[string]*Order{}}
}

func (m *mockOrderRepo) Place(_ context.Context, o *Order) error {
	m.attempts++
	if m.placeErr != nil {
		return m.placeErr
	}
	if m.uniqueNumbers {
		for _, existing := range m.orders {
			if existing.Number == o.Number {
				return ErrNumberTaken
			}
		}
	}
	cp := *o
	m.orders[o.ID] = &cp
	m.placed++
	return nil
}

func (m *mockOrderRepo) FindByIdempotencyKey(_ context.Context, userID, key string) (*Order, error) {
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter) ([]Order, int, error) {
	var out []Order
	for _, o := range m.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) Update(_ context.Context, id string, mutate func(*Order) error) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	if NeedsRestock(o.Status, cp.Status) {
		m.restocked++
	}
	m.orders[id] = &cp
	out := cp
	return &out, nil
}

type mockCarts struct {
	cart *cart.Cart
	err  error
}

func (m *mockCarts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil || m.cart.UserID != userID {
		return &cart.Cart{UserID: userID}, nil
	}
	return m.cart, nil
}

type mockAddresses struct {
	list []address.Address
}

func (m *mockAddresses) List(_ context.Context, _ string) ([]address.Address, error) {
	return m.list, nil
}

type mockCouponValidator struct {
	discount *coupon.Discount
	err      error
	gotTotal decimal.Decimal
	gotCount int
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, subtotal decimal.Decimal, itemCount int) (*coupon.Discount, error) {
	m.gotTotal = subtotal
	m.gotCount = itemCount
	return m.discount, m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 8, 15, 9, 30, 0, 0, time.UTC)

func sampleCart(userID string) *cart.Cart {
	return &cart.Cart{
		UserID: userID,
		Items: []cart.Item{{
			ID:          "ci1",
			ProductID:   "p1",
			VariationID: "v1",
			Quantity:    2,
			Price:       decimal.NewFromInt(1000),
			Name:        "Saree X",
			Image:       "/uploads/2025/08/a.jpg",
			Size:        catalog.SizeM,
			Color:       "Red",
			SKU:         "SKU1",
		}},
	}
}

func addressA1() address.Address {
	return address.Address{
		ID: "A1", UserID: "u1", FullName: "Asha Rao", Phone: "98450", Line1: "12 MG Road",
		City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN", IsDefault: true,
	}
}

type fixture struct {
	svc     *Service
	orders  *mockOrderRepo
	carts   *mockCarts
	coupons *mockCouponValidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders:  newMockOrderRepo(),
		carts:   &mockCarts{cart: sampleCart("u1")},
		coupons: &mockCouponValidator{},
	}
	svc, err := NewService(f.orders, f.carts, &mockAddresses{list: []address.Address{addressA1()}}, f.coupons)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("0a1b2c3d-0000-0000-0000-%012d", n)
	}
	f.svc = svc
	return f
}

func placeInput() PlaceOrderInput {
	return PlaceOrderInput{
		Shipping:       checkout.Selection{SavedID: "A1"},
		SameAsShipping: true,
		PaymentMethod:  PaymentCreditCard,
	}
}

// --- Tests ---

func TestPlaceOrder_FromCart(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.PlaceOrder(context.Background(), "u1", placeInput())
	require.NoError(t, err)
	require.False(t, res.Replayed)

	o := res.Order
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, PaymentCreditCard, o.PaymentMethod)
	assert.Equal(t, "EW-20250815-0A1B2C", o.Number)
	assert.Equal(t, "A1", o.ShippingAddress.ID)
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)

	require.Len(t, o.Items, 1)
	line := o.Items[0]
	item := f.carts.cart.Items[0]
	assert.Equal(t, item.ProductID, line.ProductID)
	assert.Equal(t, item.VariationID, line.VariationID)
	assert.Equal(t, item.Quantity, line.Quantity)
	assert.True(t, item.Price.Equal(line.Price))
	assert.Equal(t, item.Name, line.Name)
	assert.Equal(t, item.SKU, line.SKU)

	assert.True(t, decimal.NewFromInt(2000).Equal(o.Subtotal))
	assert.True(t, decimal.Zero.Equal(o.Discount))
	assert.True(t, decimal.NewFromInt(2000).Equal(o.Total))
	assert.Equal(t, 1, f.orders.placed)
}

func TestPlaceOrder_RetriesTakenNumber(t *testing.T) {
	ids := func(list ...string) func() string {
		return func() string {
			id := list[0]
			list = list[1:]
			return id
		}
	}

	t.Run("fresh number after collision", func(t *testing.T) {
		f := newFixture(t)
		f.orders.uniqueNumbers = true
		f.orders.orders["old"] = &Order{ID: "old", UserID: "u2", Number: "EW-20250815-0A1B2C"}
		f.svc.newID = ids(
			"0a1b2c3d-0000-0000-0000-000000000001",
			"0a1b2cff-0000-0000-0000-000000000002",
			"9f8e7d6c-0000-0000-0000-000000000003",
		)

		res, err := f.svc.PlaceOrder(context.Background(), "u1", placeInput())
		require.NoError(t, err)
		assert.Equal(t, 3, f.orders.attempts)
		assert.Equal(t, "9f8e7d6c-0000-0000-0000-000000000003", res.Order.ID)
		assert.Equal(t, "EW-20250815-9F8E7D", res.Order.Number)
		assert.Contains(t, f.orders.orders, res.Order.ID)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		f := newFixture(t)
		f.orders.placeErr = ErrNumberTaken

		_, err := f.svc.PlaceOrder(context.Background(), "u1", placeInput())
		require.ErrorIs(t, err, ErrNumberTaken)
		assert.Equal(t, maxNumberAttempts, f.orders.attempts)
	})
}

func TestPlaceOrder_TotalIdentity(t *testing.T) {
	tests := []struct {
		name     string
		discount decimal.Decimal
		want     decimal.Decimal
	}{
		{name: "SAVE10", discount: decimal.NewFromInt(200), want: decimal.NewFromInt(1800)},
		{name: "FLAT5000 clamped", discount: decimal.NewFromInt(2000), want: decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.coupons.discount = &coupon.Discount{Code: tt.name, Amount: tt.discount}

			in := placeInput()
			in.CouponCode = tt.name
			res, err := f.svc.PlaceOrder(context.Background(), "u1", in)
			require.NoError(t, err)

			o := res.Order
			assert.True(t, tt.want.Equal(o.Total), "total %s", o.Total)
			assert.True(t, o.Total.Equal(o.Subtotal.Sub(o.Discount).Add(o.Shipping)))
			assert.Equal(t, tt.name, o.CouponCode)
			assert.True(t, decimal.NewFromInt(2000).Equal(f.coupons.gotTotal))
			assert.Equal(t, 2, f.coupons.gotCount)
		})
	}
}

func TestPlaceOrder_InvalidCoupon(t *testing.T) {
	f := newFixture(t)
	f.coupons.err = coupon.ErrCouponExpired

	in := placeInput()
	in.CouponCode = "OLD"
	_, err := f.svc.PlaceOrder(context.Background(), "u1", in)
	require.ErrorIs(t, err, coupon.ErrCouponExpired)
	assert.Zero(t, f.orders.placed)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), "someone-else", placeInput())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPlaceOrder_InputValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PlaceOrderInput)
		field  string
	}{
		{name: "payment method", mutate: func(in *PlaceOrderInput) { in.PaymentMethod = "cheque" }, field: "payment_method"},
		{name: "no shipping", mutate: func(in *PlaceOrderInput) { in.Shipping = checkout.Selection{} }, field: "shipping"},
		{
			name: "incomplete new shipping",
			mutate: func(in *PlaceOrderInput) {
				in.Shipping = checkout.Selection{New: &address.Address{FullName: "X"}}
			},
			field: "phone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := placeInput()
			tt.mutate(&in)

			_, err := f.svc.PlaceOrder(context.Background(), "u1", in)
			var fe *apperr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Zero(t, f.orders.placed)
		})
	}
}

func TestPlaceOrder_UnknownSavedAddress(t *testing.T) {
	f := newFixture(t)
	in := placeInput()
	in.Shipping = checkout.Selection{SavedID: "A9"}

	_, err := f.svc.PlaceOrder(context.Background(), "u1", in)
	require.ErrorIs(t, err, checkout.ErrUnknownAddress)
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := placeInput()
	in.IdempotencyKey = "key-1"

	first, err := f.svc.PlaceOrder(ctx, "u1", in)
	require.NoError(t, err)

	second, err := f.svc.PlaceOrder(ctx, "u1", in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.orders.placed)

	in.IdempotencyKey = "key-2"
	third, err := f.svc.PlaceOrder(ctx, "u1", in)
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, third.Order.ID)
}

func TestPlaceOrder_ConcurrentDuplicateReplays(t *testing.T) {
	f := newFixture(t)
	existing := &Order{ID: "o-1", UserID: "u1", IdempotencyKey: "k"}
	f.orders.orders[existing.ID] = existing

	// The first lookup misses, then Place reports the duplicate stored meanwhile.
	f.orders.placeErr = ErrDuplicateOrder
	repo := &missOnceRepo{mockOrderRepo: f.orders}
	f.svc.orders = repo

	in := placeInput()
	in.IdempotencyKey = "k"
	res, err := f.svc.PlaceOrder(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "o-1", res.Order.ID)
}

type missOnceRepo struct {
	*mockOrderRepo
	missed bool
}

func (m *missOnceRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error) {
	if !m.missed {
		m.missed = true
		return nil, ErrOrderNotFound
	}
	return m.mockOrderRepo.FindByIdempotencyKey(ctx, userID, key)
}

func TestPlaceOrder_StockConflict(t *testing.T) {
	f := newFixture(t)
	f.orders.placeErr = &catalog.StockError{SKU: "SKU1", Requested: 2, Available: 1}

	_, err := f.svc.PlaceOrder(context.Background(), "u1", placeInput())
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, err.Error(), "SKU1")
}

func TestPlaceOrder_RepoError(t *testing.T) {
	f := newFixture(t)
	f.orders.placeErr = errors.New("db write failed")

	_, err := f.svc.PlaceOrder(context.Background(), "u1", placeInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place order")
}

func TestGet_OwnOrdersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, "u1", placeInput())
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.Number, got.Number)

	_, err = f.svc.Get(ctx, "u2", res.Order.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatus_SkipToShipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, "u1", placeInput())
	require.NoError(t, err)

	shipped := StatusShipped
	tracking := " TRK123 "
	o, err := f.svc.UpdateStatus(ctx, res.Order.ID, StatusUpdate{Status: &shipped, TrackingNumber: &tracking})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, "TRK123", o.TrackingNumber)

	stored, err := f.svc.AdminGet(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, stored.Status)
	assert.Equal(t, "TRK123", stored.TrackingNumber)
}

func TestUpdateStatus_Rules(t *testing.T) {
	st := func(s Status) *Status { return &s }

	tests := []struct {
		name        string
		from        Status
		update      StatusUpdate
		wantErr     error
		wantStatus  Status
		wantRestock bool
	}{
		{name: "backwards", from: StatusShipped, update: StatusUpdate{Status: st(StatusProcessing)}, wantErr: ErrIllegalTransition},
		{name: "from delivered", from: StatusDelivered, update: StatusUpdate{Status: st(StatusCancelled)}, wantErr: ErrIllegalTransition},
		{name: "revive cancelled", from: StatusCancelled, update: StatusUpdate{Status: st(StatusPending)}, wantErr: ErrIllegalTransition},
		{name: "unknown status", from: StatusPending, update: StatusUpdate{Status: st("lost")}, wantErr: apperr.ErrValidation},
		{name: "cancel restocks", from: StatusProcessing, update: StatusUpdate{Status: st(StatusCancelled)}, wantStatus: StatusCancelled, wantRestock: true},
		{name: "same status is no-op", from: StatusDelivered, update: StatusUpdate{Status: st(StatusDelivered)}, wantStatus: StatusDelivered},
		{name: "notes on terminal order", from: StatusCancelled, update: StatusUpdate{Notes: new(string)}, wantStatus: StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.orders["o1"] = &Order{ID: "o1", UserID: "u1", Status: tt.from}

			o, err := f.svc.UpdateStatus(context.Background(), "o1", tt.update)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, f.orders.orders["o1"].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, o.Status)
			assert.Equal(t, tt.wantRestock, f.orders.restocked == 1)
		})
	}
}

func TestUpdateStatus_PaymentStatus(t *testing.T) {
	f := newFixture(t)
	f.orders.orders["o1"] = &Order{ID: "o1", Status: StatusPending, PaymentStatus: PaymentPending}

	paid := PaymentPaid
	o, err := f.svc.UpdateStatus(context.Background(), "o1", StatusUpdate{PaymentStatus: &paid})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)

	bogus := PaymentStatus("refunded")
	_, err = f.svc.UpdateStatus(context.Background(), "o1", StatusUpdate{PaymentStatus: &bogus})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAdminList_Defaults(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.AdminList(context.Background(), Filter{Status: "lost"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, total, err := f.svc.AdminList(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Zero(t, total)
}
