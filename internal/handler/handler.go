// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/auth"
	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/domain/order"
	"github.com/ethnicwear/storefront/pkg/httpmiddleware"
)

// CatalogService is the catalog API used by the handlers.
type CatalogService interface {
	CreateProduct(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, idOrSlug string) (*catalog.Product, error)
	ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, int, error)

	AddVariation(ctx context.Context, productID string, in catalog.VariationInput, main *catalog.Upload, gallery []catalog.Upload) (*catalog.Variation, error)
	UpdateVariation(ctx context.Context, id string, patch catalog.VariationPatch) (*catalog.Variation, error)
	DeleteVariation(ctx context.Context, id string) error
	GetVariation(ctx context.Context, id string) (*catalog.Variation, error)

	CreateCategory(ctx context.Context, in catalog.CategoryInput) (*catalog.Category, error)
	UpdateCategory(ctx context.Context, id string, in catalog.CategoryInput) (*catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]catalog.Category, error)

	CreateBrand(ctx context.Context, name string) (*catalog.Brand, error)
	UpdateBrand(ctx context.Context, id, name string) (*catalog.Brand, error)
	DeleteBrand(ctx context.Context, id string) error
	ListBrands(ctx context.Context) ([]catalog.Brand, error)
}

// CartService is the cart API used by the handlers.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID string, in cart.AddItemInput) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// CouponService is the coupon API used by the handlers.
type CouponService interface {
	coupon.Validator
	Create(ctx context.Context, r coupon.Rule) (*coupon.Rule, error)
	List(ctx context.Context) ([]coupon.Rule, error)
	SetActive(ctx context.Context, code string, active bool) error
}

// AddressService is the address book API used by the handlers.
type AddressService interface {
	List(ctx context.Context, userID string) ([]address.Address, error)
	Create(ctx context.Context, userID string, a address.Address) (*address.Address, error)
	Update(ctx context.Context, userID, id string, a address.Address) (*address.Address, error)
	Delete(ctx context.Context, userID, id string) error
	SetDefault(ctx context.Context, userID, id string) (*address.Address, error)
}

// OrderService is the order API used by the handlers.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, in order.PlaceOrderInput) (*order.PlaceOrderResult, error)
	Get(ctx context.Context, userID, id string) (*order.Order, error)
	List(ctx context.Context, userID string) ([]order.Order, error)
	AdminList(ctx context.Context, f order.Filter) ([]order.Order, int, error)
	AdminGet(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, u order.StatusUpdate) (*order.Order, error)
}

// TokenVerifier returns the user id a bearer token was issued for.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// PublicBaseURL is prepended to image paths in responses. When empty,
	// paths are returned as stored, e.g. /uploads/2025/08/<id>.jpg.
	PublicBaseURL string
	// MaxUploadBytes bounds a whole multipart variation request.
	MaxUploadBytes int64
	// APIKeyPepper is the HMAC key admin API keys are hashed with.
	APIKeyPepper []byte
}

// Deps are the services the Handler delegates to.
type Deps struct {
	Catalog   CatalogService
	Carts     CartService
	Coupons   CouponService
	Addresses AddressService
	Orders    OrderService
	Tokens    TokenVerifier
	APIKeys   auth.Repository

	// CustomerLimit, when set, limits coupon checks and order placement per
	// customer.
	CustomerLimit *httpmiddleware.Limiter
}

// Handler serves the /api routes.
type Handler struct {
	catalog   CatalogService
	carts     CartService
	coupons   CouponService
	addresses AddressService
	orders    OrderService
	tokens    TokenVerifier
	apikeys   auth.Repository

	customerLimit  httpmiddleware.Middleware
	publicBaseURL  string
	maxUploadBytes int64
	pepper         []byte
	validate       *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, d Deps) *Handler {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	customerLimit := func(next http.Handler) http.Handler { return next }
	if d.CustomerLimit != nil {
		customerLimit = d.CustomerLimit.Middleware(customerKey)
	}
	return &Handler{
		catalog:        d.Catalog,
		carts:          d.Carts,
		coupons:        d.Coupons,
		addresses:      d.Addresses,
		orders:         d.Orders,
		tokens:         d.Tokens,
		apikeys:        d.APIKeys,
		customerLimit:  customerLimit,
		publicBaseURL:  cfg.PublicBaseURL,
		maxUploadBytes: maxUpload,
		pepper:         cfg.APIKeyPepper,
		validate:       newValidator(),
	}
}

// Register mounts the API under /api on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// Public catalog.
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/variations/{id}", h.GetVariation)
		r.Get("/categories", h.ListCategories)
		r.Get("/brands", h.ListBrands)

		// Admin.
		r.Group(func(r chi.Router) {
			r.Use(h.APIKeyAuth)

			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/products/{id}/variations", h.AddVariation)
			r.Patch("/variations/{id}", h.UpdateVariation)
			r.Delete("/variations/{id}", h.DeleteVariation)

			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)

			r.Post("/brands", h.CreateBrand)
			r.Put("/brands/{id}", h.UpdateBrand)
			r.Delete("/brands/{id}", h.DeleteBrand)

			r.Get("/coupons", h.ListCoupons)
			r.Post("/coupons", h.CreateCoupon)
			r.Patch("/coupons/{code}", h.SetCouponActive)

			r.Get("/admin/orders", h.AdminListOrders)
			r.Get("/admin/orders/{id}", h.AdminGetOrder)
			r.Patch("/admin/orders/{id}", h.UpdateOrderStatus)
		})

		// Customer.
		r.Group(func(r chi.Router) {
			r.Use(h.BearerAuth)

			r.Get("/cart", h.GetCart)
			r.Post("/cart", h.AddCartItem)
			r.Delete("/cart", h.ClearCart)
			r.Patch("/cart/{itemId}", h.UpdateCartItem)
			r.Delete("/cart/{itemId}", h.RemoveCartItem)

			r.With(h.customerLimit).Post("/coupons/validate", h.ValidateCoupon)

			r.Get("/addresses", h.ListAddresses)
			r.Post("/addresses", h.CreateAddress)
			r.Put("/addresses/{id}", h.UpdateAddress)
			r.Delete("/addresses/{id}", h.DeleteAddress)
			r.Post("/addresses/{id}/default", h.SetDefaultAddress)

			r.Get("/orders", h.ListOrders)
			r.With(h.customerLimit).Post("/orders", h.PlaceOrder)
			r.Get("/orders/{id}", h.GetOrder)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "route not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		})
	})
}

// money renders an amount for responses.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
