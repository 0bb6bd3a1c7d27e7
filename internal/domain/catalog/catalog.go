// Package catalog holds the product catalog: products, their size/colour
// variations, brands and the category tree.
package catalog

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// Domain errors.
var (
	ErrProductNotFound   = apperr.NotFound("product not found")
	ErrVariationNotFound = apperr.NotFound("variation not found")
	ErrCategoryNotFound  = apperr.NotFound("category not found")
	ErrBrandNotFound     = apperr.NotFound("brand not found")

	ErrSlugTaken         = apperr.Conflict("a product with this slug already exists")
	ErrSKUTaken          = apperr.Conflict("a variation with this sku already exists")
	ErrCategoryNameTaken = apperr.Conflict("a category with this name already exists")
	ErrBrandNameTaken    = apperr.Conflict("a brand with this name already exists")
	ErrCategoryInUse     = apperr.Conflict("category is referenced by products or subcategories")
	ErrBrandInUse        = apperr.Conflict("brand is referenced by products")

	ErrCategoryCycle = apperr.Validation("category cannot be its own ancestor")

	// ErrInsufficientStock is matched by every StockError.
	ErrInsufficientStock = apperr.Conflict("insufficient stock")
)

// StockError reports a variation that cannot cover a requested quantity.
type StockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Size is a garment size.
type Size string

// Supported sizes.
const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Valid reports whether s is one of the supported sizes.
func (s Size) Valid() bool {
	switch s {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL:
		return true
	}
	return false
}

// Product is a catalog entry. Its variations are ordered by insertion.
type Product struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	BrandID      string
	CategoryID   string
	Material     string
	Tags         []string
	IsFeatured   bool
	IsBestSeller bool
	Variations   []Variation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Variation is a purchasable size/colour instance of a product.
type Variation struct {
	ID        string
	ProductID string
	Size      Size
	Color     string
	Price     decimal.Decimal
	SalePrice *decimal.Decimal
	SKU       string
	Quantity  int
	MainImage string
	Gallery   []string
}

// EffectivePrice is the price a customer pays: the sale price when set.
func (v Variation) EffectivePrice() decimal.Decimal {
	if v.SalePrice != nil {
		return *v.SalePrice
	}
	return v.Price
}

// Category is a node of the category tree. Roots have no parent.
type Category struct {
	ID       string
	Name     string
	ParentID *string
}

// Brand is a product brand.
type Brand struct {
	ID   string
	Name string
}

// ProductFilter narrows a product listing. Zero values mean "any".
type ProductFilter struct {
	CategoryID string
	BrandID    string
	Featured   *bool
	BestSeller *bool
	Tag        string
	Query      string
	Limit      int
	Offset     int
}

// Upload is an image file received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// ProductRepository persists products and their variations.
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	// DeleteProduct removes the product together with its variations.
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error)

	// CreateVariation appends v to the end of its product's variation list.
	CreateVariation(ctx context.Context, v *Variation) error
	UpdateVariation(ctx context.Context, v *Variation) error
	DeleteVariation(ctx context.Context, id string) error
	GetVariation(ctx context.Context, id string) (*Variation, error)
}

// CategoryRepository persists the category tree.
type CategoryRepository interface {
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id string) error
	GetCategory(ctx context.Context, id string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// BrandRepository persists brands.
type BrandRepository interface {
	CreateBrand(ctx context.Context, b *Brand) error
	UpdateBrand(ctx context.Context, b *Brand) error
	DeleteBrand(ctx context.Context, id string) error
	GetBrand(ctx context.Context, id string) (*Brand, error)
	ListBrands(ctx context.Context) ([]Brand, error)
}

// ImageStore saves uploaded images and returns their public relative path.
type ImageStore interface {
	Save(ctx context.Context, u Upload) (string, error)
	Delete(ctx context.Context, path string) error
}
