//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(testPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Applying twice is a no-op.
	if err := RunMigrations(testPool); err != nil {
		log.Fatalf("migrate again: %v", err)
	}

	return m.Run()
}

type fixture struct {
	product   *catalog.Product
	variation *catalog.Variation
}

// seedProduct creates a brand, a category and a product with one variation
// holding qty units.
func seedProduct(t *testing.T, qty int) fixture {
	t.Helper()
	ctx := context.Background()

	brands := NewBrandRepository(testPool)
	categories := NewCategoryRepository(testPool)
	products := NewProductRepository(testPool)

	suffix := uuid.NewString()[:8]
	b := &catalog.Brand{ID: uuid.NewString(), Name: "Brand " + suffix}
	require.NoError(t, brands.CreateBrand(ctx, b))
	c := &catalog.Category{ID: uuid.NewString(), Name: "Sarees " + suffix}
	require.NoError(t, categories.CreateCategory(ctx, c))

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &catalog.Product{
		ID:         uuid.NewString(),
		Name:       "Saree " + suffix,
		Slug:       "saree-" + suffix,
		BrandID:    b.ID,
		CategoryID: c.ID,
		Tags:       []string{"silk"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, products.CreateProduct(ctx, p))

	v := &catalog.Variation{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Size:      catalog.SizeM,
		Color:     "Red",
		Price:     decimal.RequireFromString("1000"),
		SKU:       "SKU-" + suffix,
		Quantity:  qty,
		MainImage: "/uploads/a.jpg",
	}
	require.NoError(t, products.CreateVariation(ctx, v))
	return fixture{product: p, variation: v}
}

func testOrder(userID string, f fixture, qty int) *order.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	price := f.variation.Price
	subtotal := price.Mul(decimal.NewFromInt(int64(qty)))
	addr := address.Address{
		FullName: "Asha Rao", Phone: "9999999999", Line1: "12 MG Road",
		City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
	}
	return &order.Order{
		ID:     id,
		Number: order.Number(now, id),
		UserID: userID,
		Items: []order.Line{{
			ProductID: f.product.ID, VariationID: f.variation.ID, Name: f.product.Name,
			Size: f.variation.Size, Color: f.variation.Color, SKU: f.variation.SKU,
			Price: price, Quantity: qty,
		}},
		Subtotal:        subtotal,
		Total:           subtotal,
		Status:          order.StatusPending,
		PaymentMethod:   order.PaymentCOD,
		PaymentStatus:   order.PaymentPending,
		ShippingAddress: addr,
		BillingAddress:  addr,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCatalog_ProductLifecycle(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository(testPool)
	f := seedProduct(t, 5)

	got, err := products.GetProductBySlug(ctx, f.product.Slug)
	require.NoError(t, err)
	require.Len(t, got.Variations, 1)
	assert.Equal(t, f.variation.SKU, got.Variations[0].SKU)
	assert.True(t, decimal.RequireFromString("1000").Equal(got.Variations[0].Price))

	dup := *f.product
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, products.CreateProduct(ctx, &dup), catalog.ErrSlugTaken)

	list, total, err := products.ListProducts(ctx, catalog.ProductFilter{Query: f.product.Name, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	require.NoError(t, products.DeleteProduct(ctx, f.product.ID))
	_, err = products.GetVariation(ctx, f.variation.ID)
	assert.ErrorIs(t, err, catalog.ErrVariationNotFound)

	_, err = products.GetProduct(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCatalog_BrandInUse(t *testing.T) {
	f := seedProduct(t, 1)
	err := NewBrandRepository(testPool).DeleteBrand(context.Background(), f.product.BrandID)
	assert.ErrorIs(t, err, catalog.ErrBrandInUse)
}

func TestAddress_SingleDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewAddressRepository(testPool)
	userID := "user-" + uuid.NewString()

	mk := func() *address.Address {
		return &address.Address{
			ID: uuid.NewString(), UserID: userID, FullName: "Asha Rao", Phone: "9999999999",
			Line1: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
			CreatedAt: time.Now().UTC(),
		}
	}
	a, b := mk(), mk()
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.SetDefault(ctx, userID, a.ID))
	require.NoError(t, repo.SetDefault(ctx, userID, b.ID))

	list, err := repo.List(ctx, userID)
	require.NoError(t, err)
	defaults := 0
	for _, x := range list {
		if x.IsDefault {
			defaults++
			assert.Equal(t, b.ID, x.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	assert.ErrorIs(t, repo.SetDefault(ctx, "someone-else", a.ID), address.ErrNotFound)
}

func TestOrder_PlaceTakesStockAndClearsCart(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 3)
	userID := "user-" + uuid.NewString()

	carts := NewCartRepository(testPool)
	require.NoError(t, carts.InsertItem(ctx, userID, &cart.Item{
		ID: uuid.NewString(), ProductID: f.product.ID, VariationID: f.variation.ID,
		Quantity: 2, Price: f.variation.Price, AddedAt: time.Now().UTC(),
	}))

	orders := NewOrderRepository(testPool)
	o := testOrder(userID, f, 2)
	require.NoError(t, orders.Place(ctx, o))

	v, err := NewProductRepository(testPool).GetVariation(ctx, f.variation.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Quantity)

	c, err := carts.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.Equal(t, "Pune", got.ShippingAddress.City)
	require.Len(t, got.Items, 1)
	assert.Equal(t, f.variation.SKU, got.Items[0].SKU)
	assert.True(t, o.Total.Equal(got.Total))

	// Not enough left for another two.
	err = orders.Place(ctx, testOrder(userID, f, 2))
	var stockErr *catalog.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
}

func TestOrder_ConcurrentPlaceNeverOversells(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 1)
	orders := NewOrderRepository(testPool)

	const buyers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := orders.Place(ctx, testOrder(fmt.Sprintf("buyer-%d-%s", i, f.product.ID), f, 1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
			} else if assert.ErrorIs(t, err, catalog.ErrInsufficientStock) {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	assert.Equal(t, buyers-1, rejected)

	v, err := NewProductRepository(testPool).GetVariation(ctx, f.variation.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Quantity)
}

func TestOrder_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 5)
	orders := NewOrderRepository(testPool)
	userID := "user-" + uuid.NewString()

	first := testOrder(userID, f, 1)
	first.IdempotencyKey = "key-1"
	require.NoError(t, orders.Place(ctx, first))

	second := testOrder(userID, f, 1)
	second.IdempotencyKey = "key-1"
	assert.ErrorIs(t, orders.Place(ctx, second), order.ErrDuplicateOrder)

	got, err := orders.FindByIdempotencyKey(ctx, userID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// The rolled back attempt must not have taken stock.
	v, err := NewProductRepository(testPool).GetVariation(ctx, f.variation.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Quantity)
}

func TestOrder_NumberTaken(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 5)
	orders := NewOrderRepository(testPool)

	first := testOrder("user-"+uuid.NewString(), f, 1)
	require.NoError(t, orders.Place(ctx, first))

	second := testOrder("user-"+uuid.NewString(), f, 1)
	second.Number = first.Number
	assert.ErrorIs(t, orders.Place(ctx, second), order.ErrNumberTaken)

	v, err := NewProductRepository(testPool).GetVariation(ctx, f.variation.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Quantity)
}

func TestCart_DuplicateLine(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 5)
	carts := NewCartRepository(testPool)
	userID := "user-" + uuid.NewString()

	line := func() *cart.Item {
		return &cart.Item{
			ID: uuid.NewString(), ProductID: f.product.ID, VariationID: f.variation.ID,
			Quantity: 1, Price: f.variation.Price, AddedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, carts.InsertItem(ctx, userID, line()))
	assert.ErrorIs(t, carts.InsertItem(ctx, userID, line()), cart.ErrLineExists)
}

func TestOrder_CouponUsageLimit(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 5)
	coupons := NewCouponRepository(testPool)
	orders := NewOrderRepository(testPool)

	code := strings.ToUpper("ONCE" + uuid.NewString()[:6])
	require.NoError(t, coupons.Create(ctx, &coupon.Rule{
		Code: code, DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(100),
		Active: true, MaxUses: 1, CreatedAt: time.Now().UTC(),
	}))

	o := testOrder("user-"+uuid.NewString(), f, 1)
	o.CouponCode = code
	require.NoError(t, orders.Place(ctx, o))

	o2 := testOrder("user-"+uuid.NewString(), f, 1)
	o2.CouponCode = code
	assert.ErrorIs(t, orders.Place(ctx, o2), coupon.ErrCouponUsageLimitReached)

	rule, err := coupons.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, rule.Uses)
}

func TestOrder_CancelRestocks(t *testing.T) {
	ctx := context.Background()
	f := seedProduct(t, 4)
	orders := NewOrderRepository(testPool)

	o := testOrder("user-"+uuid.NewString(), f, 3)
	require.NoError(t, orders.Place(ctx, o))

	got, err := orders.Update(ctx, o.ID, func(o *order.Order) error {
		o.Status = order.StatusCancelled
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	v, err := NewProductRepository(testPool).GetVariation(ctx, f.variation.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Quantity)

	list, total, err := orders.List(ctx, order.Filter{Status: order.StatusCancelled, Limit: 200})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	found := false
	for _, x := range list {
		found = found || x.ID == o.ID
	}
	assert.True(t, found)
}

func TestCoupon_CopyCoupons(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)
	prefix := "BULK" + uuid.NewString()[:4]

	template := coupon.Rule{
		DiscountType: coupon.DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	codes := []string{prefix + "A", prefix + "B", prefix + "a"}
	n, err := repo.CopyCoupons(ctx, template, codes)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.CopyCoupons(ctx, template, codes)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = repo.FindByCode(ctx, prefix+"b")
	assert.NoError(t, err)
}
