package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// maxCategoryDepth bounds the ancestor walk when checking for cycles.
const maxCategoryDepth = 64

// ProductInput carries the admin-editable fields of a product.
type ProductInput struct {
	Name         string
	Description  string
	BrandID      string
	CategoryID   string
	Material     string
	Tags         []string
	IsFeatured   bool
	IsBestSeller bool
}

// VariationInput carries the fields of a new variation.
type VariationInput struct {
	Size      Size
	Color     string
	Price     decimal.Decimal
	SalePrice *decimal.Decimal
	SKU       string
	Quantity  int
}

// VariationPatch changes selected fields of a variation. Nil fields are kept.
type VariationPatch struct {
	Size           *Size
	Color          *string
	Price          *decimal.Decimal
	SalePrice      *decimal.Decimal
	ClearSalePrice bool
	SKU            *string
	Quantity       *int
}

// CategoryInput carries the fields of a category.
type CategoryInput struct {
	Name     string
	ParentID *string
}

// Service implements catalog administration and browsing.
type Service struct {
	products   ProductRepository
	categories CategoryRepository
	brands     BrandRepository
	images     ImageStore
	newID      func() string
}

// NewService creates a catalog Service.
func NewService(
	products ProductRepository,
	categories CategoryRepository,
	brands BrandRepository,
	images ImageStore,
) *Service {
	return &Service{
		products:   products,
		categories: categories,
		brands:     brands,
		images:     images,
		newID:      func() string { return uuid.New().String() },
	}
}

// CreateProduct validates the input, derives the slug and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	p := &Product{ID: s.newID()}
	if err := s.applyProductInput(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// UpdateProduct replaces the editable fields of a product. Renaming re-derives
// the slug.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if err := s.applyProductInput(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.products.UpdateProduct(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// DeleteProduct removes a product and its variations.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	return nil
}

// GetProduct returns a product by id, falling back to a slug lookup so that
// storefront URLs can use either.
func (s *Service) GetProduct(ctx context.Context, idOrSlug string) (*Product, error) {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		p, err := s.products.GetProduct(ctx, idOrSlug)
		if err == nil || !errors.Is(err, ErrProductNotFound) {
			return p, err
		}
	}
	return s.products.GetProductBySlug(ctx, idOrSlug)
}

// ListProducts returns one page of products matching f and the total count.
func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = 20
	case f.Limit > 100:
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	f.Query = strings.TrimSpace(f.Query)
	return s.products.ListProducts(ctx, f)
}

func (s *Service) applyProductInput(ctx context.Context, p *Product, in ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Material = strings.TrimSpace(in.Material)
	tags := normalizeTags(in.Tags)

	switch {
	case in.Name == "":
		return apperr.Required("name")
	case in.Description == "":
		return apperr.Required("description")
	case in.BrandID == "":
		return apperr.Required("brand_id")
	case in.CategoryID == "":
		return apperr.Required("category_id")
	case in.Material == "":
		return apperr.Required("material")
	case len(tags) == 0:
		return apperr.Required("tags")
	}

	slug := Slugify(in.Name)
	if slug == "" {
		return apperr.Invalid("name", "must contain at least one letter or digit")
	}

	if _, err := s.brands.GetBrand(ctx, in.BrandID); err != nil {
		if errors.Is(err, ErrBrandNotFound) {
			return apperr.Invalid("brand_id", "unknown brand")
		}
		return errors.Wrap(err, "get brand")
	}
	if _, err := s.categories.GetCategory(ctx, in.CategoryID); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return apperr.Invalid("category_id", "unknown category")
		}
		return errors.Wrap(err, "get category")
	}

	p.Name = in.Name
	p.Slug = slug
	p.Description = in.Description
	p.BrandID = in.BrandID
	p.CategoryID = in.CategoryID
	p.Material = in.Material
	p.Tags = tags
	p.IsFeatured = in.IsFeatured
	p.IsBestSeller = in.IsBestSeller
	return nil
}

// normalizeTags trims and lowercases tags, dropping blanks and duplicates
// while keeping first-seen order.
func normalizeTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AddVariation stores the uploaded images and appends a new variation to the
// product. Images are removed again if the variation cannot be stored.
func (s *Service) AddVariation(ctx context.Context, productID string, in VariationInput, main *Upload, gallery []Upload) (*Variation, error) {
	in.Color = strings.TrimSpace(in.Color)
	in.SKU = strings.TrimSpace(in.SKU)
	if err := validateVariation(in.Size, in.Color, in.SKU, in.Price, in.SalePrice, in.Quantity); err != nil {
		return nil, err
	}
	if main == nil {
		return nil, apperr.Required("image")
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	var saved []string
	cleanup := func() {
		for _, path := range saved {
			_ = s.images.Delete(context.WithoutCancel(ctx), path)
		}
	}

	mainPath, err := s.images.Save(ctx, *main)
	if err != nil {
		return nil, errors.Wrap(err, "save main image")
	}
	saved = append(saved, mainPath)

	galleryPaths := make([]string, 0, len(gallery))
	for _, u := range gallery {
		path, err := s.images.Save(ctx, u)
		if err != nil {
			cleanup()
			return nil, errors.Wrap(err, "save gallery image")
		}
		saved = append(saved, path)
		galleryPaths = append(galleryPaths, path)
	}

	v := &Variation{
		ID:        s.newID(),
		ProductID: productID,
		Size:      in.Size,
		Color:     in.Color,
		Price:     in.Price,
		SalePrice: in.SalePrice,
		SKU:       in.SKU,
		Quantity:  in.Quantity,
		MainImage: mainPath,
		Gallery:   galleryPaths,
	}
	if err := s.products.CreateVariation(ctx, v); err != nil {
		cleanup()
		return nil, errors.Wrap(err, "create variation")
	}
	return v, nil
}

// UpdateVariation applies a patch to a variation and re-validates the result.
func (s *Service) UpdateVariation(ctx context.Context, id string, patch VariationPatch) (*Variation, error) {
	v, err := s.products.GetVariation(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get variation")
	}

	if patch.Size != nil {
		v.Size = *patch.Size
	}
	if patch.Color != nil {
		v.Color = strings.TrimSpace(*patch.Color)
	}
	if patch.Price != nil {
		v.Price = *patch.Price
	}
	if patch.ClearSalePrice {
		v.SalePrice = nil
	} else if patch.SalePrice != nil {
		sp := *patch.SalePrice
		v.SalePrice = &sp
	}
	if patch.SKU != nil {
		v.SKU = strings.TrimSpace(*patch.SKU)
	}
	if patch.Quantity != nil {
		v.Quantity = *patch.Quantity
	}

	if err := validateVariation(v.Size, v.Color, v.SKU, v.Price, v.SalePrice, v.Quantity); err != nil {
		return nil, err
	}
	if err := s.products.UpdateVariation(ctx, v); err != nil {
		return nil, errors.Wrap(err, "update variation")
	}
	return v, nil
}

// DeleteVariation removes a variation. Its images stay on disk because
// existing orders may still reference them.
func (s *Service) DeleteVariation(ctx context.Context, id string) error {
	if err := s.products.DeleteVariation(ctx, id); err != nil {
		return errors.Wrap(err, "delete variation")
	}
	return nil
}

// GetVariation returns a variation by id.
func (s *Service) GetVariation(ctx context.Context, id string) (*Variation, error) {
	return s.products.GetVariation(ctx, id)
}

func validateVariation(size Size, color, sku string, price decimal.Decimal, sale *decimal.Decimal, qty int) error {
	switch {
	case size == "":
		return apperr.Required("size")
	case !size.Valid():
		return apperr.Invalid("size", "must be one of XS, S, M, L, XL, XXL")
	case color == "":
		return apperr.Required("color")
	case sku == "":
		return apperr.Required("sku")
	case !price.IsPositive():
		return apperr.Invalid("price", "must be greater than 0")
	case qty < 0:
		return apperr.Invalid("quantity", "must not be negative")
	}
	if sale != nil {
		if !sale.IsPositive() {
			return apperr.Invalid("sale_price", "must be greater than 0")
		}
		if !sale.LessThan(price) {
			return apperr.Invalid("sale_price", "must be lower than price")
		}
	}
	return nil
}

// CreateCategory stores a new category under an optional parent.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	c := &Category{ID: s.newID()}
	if err := s.applyCategoryInput(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return c, nil
}

// UpdateCategory renames or re-parents a category. Re-parenting under one of
// its own descendants fails with ErrCategoryCycle.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*Category, error) {
	c, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	if err := s.applyCategoryInput(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.categories.UpdateCategory(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

func (s *Service) applyCategoryInput(ctx context.Context, c *Category, in CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperr.Required("name")
	}
	if in.ParentID != nil && *in.ParentID == "" {
		in.ParentID = nil
	}
	if in.ParentID != nil {
		if err := s.checkAncestry(ctx, c.ID, *in.ParentID); err != nil {
			return err
		}
	}
	c.Name = in.Name
	c.ParentID = in.ParentID
	return nil
}

// checkAncestry walks up from parentID and fails if id is reached.
func (s *Service) checkAncestry(ctx context.Context, id, parentID string) error {
	cur := parentID
	for depth := 0; ; depth++ {
		if cur == id {
			return ErrCategoryCycle
		}
		if depth >= maxCategoryDepth {
			return ErrCategoryCycle
		}
		c, err := s.categories.GetCategory(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrCategoryNotFound) && cur == parentID {
				return apperr.Invalid("parent_id", "unknown category")
			}
			return errors.Wrap(err, "get ancestor category")
		}
		if c.ParentID == nil {
			return nil
		}
		cur = *c.ParentID
	}
}

// DeleteCategory removes a category that nothing references.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		return errors.Wrap(err, "delete category")
	}
	return nil
}

// GetCategory returns a category by id.
func (s *Service) GetCategory(ctx context.Context, id string) (*Category, error) {
	return s.categories.GetCategory(ctx, id)
}

// ListCategories returns every category ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.categories.ListCategories(ctx)
}

// CreateBrand stores a new brand.
func (s *Service) CreateBrand(ctx context.Context, name string) (*Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Required("name")
	}
	b := &Brand{ID: s.newID(), Name: name}
	if err := s.brands.CreateBrand(ctx, b); err != nil {
		return nil, errors.Wrap(err, "create brand")
	}
	return b, nil
}

// UpdateBrand renames a brand.
func (s *Service) UpdateBrand(ctx context.Context, id, name string) (*Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Required("name")
	}
	b, err := s.brands.GetBrand(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get brand")
	}
	b.Name = name
	if err := s.brands.UpdateBrand(ctx, b); err != nil {
		return nil, errors.Wrap(err, "update brand")
	}
	return b, nil
}

// DeleteBrand removes a brand that no product references.
func (s *Service) DeleteBrand(ctx context.Context, id string) error {
	if err := s.brands.DeleteBrand(ctx, id); err != nil {
		return errors.Wrap(err, "delete brand")
	}
	return nil
}

// GetBrand returns a brand by id.
func (s *Service) GetBrand(ctx context.Context, id string) (*Brand, error) {
	return s.brands.GetBrand(ctx, id)
}

// ListBrands returns every brand ordered by name.
func (s *Service) ListBrands(ctx context.Context) ([]Brand, error) {
	return s.brands.ListBrands(ctx)
}
