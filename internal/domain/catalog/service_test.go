package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// --- Fakes ---

type memCatalog struct {
	products   map[string]*Product
	variations map[string]*Variation
	categories map[string]*Category
	brands     map[string]*Brand
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		products:   map[string]*Product{},
		variations: map[string]*Variation{},
		categories: map[string]*Category{},
		brands:     map[string]*Brand{},
	}
}

func (m *memCatalog) CreateProduct(_ context.Context, p *Product) error {
	for _, other := range m.products {
		if other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memCatalog) UpdateProduct(_ context.Context, p *Product) error {
	for _, other := range m.products {
		if other.ID != p.ID && other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memCatalog) DeleteProduct(_ context.Context, id string) error {
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.products, id)
	for vid, v := range m.variations {
		if v.ProductID == id {
			delete(m.variations, vid)
		}
	}
	return nil
}

func (m *memCatalog) GetProduct(_ context.Context, id string) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memCatalog) GetProductBySlug(_ context.Context, slug string) (*Product, error) {
	for _, p := range m.products {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProductNotFound
}

func (m *memCatalog) ListProducts(_ context.Context, f ProductFilter) ([]Product, int, error) {
	var out []Product
	for _, p := range m.products {
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memCatalog) CreateVariation(_ context.Context, v *Variation) error {
	for _, other := range m.variations {
		if other.SKU == v.SKU {
			return ErrSKUTaken
		}
	}
	p, ok := m.products[v.ProductID]
	if !ok {
		return ErrProductNotFound
	}
	cp := *v
	m.variations[v.ID] = &cp
	p.Variations = append(p.Variations, cp)
	return nil
}

func (m *memCatalog) UpdateVariation(_ context.Context, v *Variation) error {
	for _, other := range m.variations {
		if other.ID != v.ID && other.SKU == v.SKU {
			return ErrSKUTaken
		}
	}
	cp := *v
	m.variations[v.ID] = &cp
	return nil
}

func (m *memCatalog) DeleteVariation(_ context.Context, id string) error {
	if _, ok := m.variations[id]; !ok {
		return ErrVariationNotFound
	}
	delete(m.variations, id)
	return nil
}

func (m *memCatalog) GetVariation(_ context.Context, id string) (*Variation, error) {
	v, ok := m.variations[id]
	if !ok {
		return nil, ErrVariationNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memCatalog) CreateCategory(_ context.Context, c *Category) error {
	for _, other := range m.categories {
		if strings.EqualFold(other.Name, c.Name) {
			return ErrCategoryNameTaken
		}
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memCatalog) UpdateCategory(_ context.Context, c *Category) error {
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memCatalog) DeleteCategory(_ context.Context, id string) error {
	delete(m.categories, id)
	return nil
}

func (m *memCatalog) GetCategory(_ context.Context, id string) (*Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCatalog) ListCategories(_ context.Context) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memCatalog) CreateBrand(_ context.Context, b *Brand) error {
	cp := *b
	m.brands[b.ID] = &cp
	return nil
}

func (m *memCatalog) UpdateBrand(_ context.Context, b *Brand) error {
	cp := *b
	m.brands[b.ID] = &cp
	return nil
}

func (m *memCatalog) DeleteBrand(_ context.Context, id string) error {
	delete(m.brands, id)
	return nil
}

func (m *memCatalog) GetBrand(_ context.Context, id string) (*Brand, error) {
	b, ok := m.brands[id]
	if !ok {
		return nil, ErrBrandNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memCatalog) ListBrands(_ context.Context) ([]Brand, error) {
	var out []Brand
	for _, b := range m.brands {
		out = append(out, *b)
	}
	return out, nil
}

type memImages struct {
	saved   []string
	deleted []string
	failAt  int
}

func (m *memImages) Save(_ context.Context, u Upload) (string, error) {
	if m.failAt > 0 && len(m.saved)+1 == m.failAt {
		return "", errors.New("disk full")
	}
	path := fmt.Sprintf("/uploads/%d-%s", len(m.saved), u.Filename)
	m.saved = append(m.saved, path)
	return path, nil
}

func (m *memImages) Delete(_ context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	return nil
}

// --- Helpers ---

func newTestService(t *testing.T) (*Service, *memCatalog, *memImages) {
	t.Helper()

	repo := newMemCatalog()
	images := &memImages{}
	svc := NewService(repo, repo, repo, images)

	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}

	repo.brands["b1"] = &Brand{ID: "b1", Name: "Weaves"}
	repo.categories["c1"] = &Category{ID: "c1", Name: "Sarees"}
	return svc, repo, images
}

func validProductInput() ProductInput {
	return ProductInput{
		Name:        "Saree X",
		Description: "Handwoven silk saree",
		BrandID:     "b1",
		CategoryID:  "c1",
		Material:    "Silk",
		Tags:        []string{"Silk", "festive", "silk"},
	}
}

func validVariationInput() VariationInput {
	return VariationInput{
		Size:     SizeM,
		Color:    "Red",
		Price:    decimal.NewFromInt(1000),
		SKU:      "SKU1",
		Quantity: 5,
	}
}

func mainImage() *Upload {
	return &Upload{Filename: "main.jpg", Body: strings.NewReader("jpeg")}
}

// --- Tests ---

func TestCreateProduct(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.CreateProduct(context.Background(), validProductInput())
	require.NoError(t, err)

	assert.Equal(t, "saree-x", p.Slug)
	assert.Equal(t, []string{"silk", "festive"}, p.Tags)
	assert.NotEmpty(t, p.ID)
}

func TestCreateProduct_RequiredFields(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*ProductInput)
	}{
		{field: "name", mutate: func(in *ProductInput) { in.Name = "  " }},
		{field: "description", mutate: func(in *ProductInput) { in.Description = "" }},
		{field: "brand_id", mutate: func(in *ProductInput) { in.BrandID = "" }},
		{field: "category_id", mutate: func(in *ProductInput) { in.CategoryID = "" }},
		{field: "material", mutate: func(in *ProductInput) { in.Material = "" }},
		{field: "tags", mutate: func(in *ProductInput) { in.Tags = []string{" "} }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			in := validProductInput()
			tt.mutate(&in)

			_, err := svc.CreateProduct(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var fe *apperr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestCreateProduct_UnknownBrand(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := validProductInput()
	in.BrandID = "nope"

	_, err := svc.CreateProduct(context.Background(), in)
	var fe *apperr.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "brand_id", fe.Field)
}

func TestCreateProduct_SlugCollision(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)

	in := validProductInput()
	in.Name = "saree   x!"
	_, err = svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, ErrSlugTaken)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestGetProduct_ByIDOrSlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)

	byID, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, byID.Name)

	bySlug, err := svc.GetProduct(ctx, "saree-x")
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySlug.ID)

	_, err = svc.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestAddVariation(t *testing.T) {
	svc, repo, images := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)

	gallery := []Upload{
		{Filename: "g1.jpg", Body: strings.NewReader("a")},
		{Filename: "g2.jpg", Body: strings.NewReader("b")},
	}
	v, err := svc.AddVariation(ctx, p.ID, validVariationInput(), mainImage(), gallery)
	require.NoError(t, err)

	assert.Equal(t, p.ID, v.ProductID)
	assert.Equal(t, images.saved[0], v.MainImage)
	assert.Equal(t, images.saved[1:], v.Gallery)
	require.Len(t, repo.products[p.ID].Variations, 1)
	assert.Equal(t, v.ID, repo.products[p.ID].Variations[0].ID)
}

func TestAddVariation_Validation(t *testing.T) {
	sale := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}

	tests := []struct {
		name   string
		field  string
		mutate func(*VariationInput)
	}{
		{name: "missing size", field: "size", mutate: func(in *VariationInput) { in.Size = "" }},
		{name: "unknown size", field: "size", mutate: func(in *VariationInput) { in.Size = "XXXL" }},
		{name: "missing color", field: "color", mutate: func(in *VariationInput) { in.Color = "" }},
		{name: "missing sku", field: "sku", mutate: func(in *VariationInput) { in.SKU = "" }},
		{name: "zero price", field: "price", mutate: func(in *VariationInput) { in.Price = decimal.Zero }},
		{name: "negative quantity", field: "quantity", mutate: func(in *VariationInput) { in.Quantity = -1 }},
		{name: "sale equal to price", field: "sale_price", mutate: func(in *VariationInput) { in.SalePrice = sale(1000) }},
		{name: "sale above price", field: "sale_price", mutate: func(in *VariationInput) { in.SalePrice = sale(1200) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			ctx := context.Background()
			p, err := svc.CreateProduct(ctx, validProductInput())
			require.NoError(t, err)

			in := validVariationInput()
			tt.mutate(&in)
			_, err = svc.AddVariation(ctx, p.ID, in, mainImage(), nil)

			var fe *apperr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestAddVariation_MainImageRequired(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)

	_, err = svc.AddVariation(ctx, p.ID, validVariationInput(), nil, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAddVariation_DuplicateSKURemovesImages(t *testing.T) {
	svc, _, images := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)

	_, err = svc.AddVariation(ctx, p.ID, validVariationInput(), mainImage(), nil)
	require.NoError(t, err)

	in := validVariationInput()
	in.Color = "Blue"
	_, err = svc.AddVariation(ctx, p.ID, in, mainImage(), nil)
	require.ErrorIs(t, err, ErrSKUTaken)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, []string{images.saved[1]}, images.deleted)
}

func TestAddVariation_GalleryFailureCleansUp(t *testing.T) {
	svc, _, images := newTestService(t)
	images.failAt = 2
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)

	_, err = svc.AddVariation(ctx, p.ID, validVariationInput(), mainImage(), []Upload{{Filename: "g.jpg"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save gallery image")
	assert.Equal(t, images.saved, images.deleted)
}

func TestAddVariation_UnknownProduct(t *testing.T) {
	svc, _, images := newTestService(t)

	_, err := svc.AddVariation(context.Background(), "missing", validVariationInput(), mainImage(), nil)
	require.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, images.saved)
}

func TestUpdateVariation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)
	v, err := svc.AddVariation(ctx, p.ID, validVariationInput(), mainImage(), nil)
	require.NoError(t, err)

	sale := decimal.NewFromInt(800)
	qty := 9
	updated, err := svc.UpdateVariation(ctx, v.ID, VariationPatch{SalePrice: &sale, Quantity: &qty})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(800).Equal(updated.EffectivePrice()))
	assert.Equal(t, 9, updated.Quantity)

	cleared, err := svc.UpdateVariation(ctx, v.ID, VariationPatch{ClearSalePrice: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.SalePrice)
	assert.True(t, decimal.NewFromInt(1000).Equal(cleared.EffectivePrice()))

	low := decimal.NewFromInt(500)
	_, err = svc.UpdateVariation(ctx, v.ID, VariationPatch{Price: &low, SalePrice: &sale})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDeleteProduct_CascadesVariations(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, validProductInput())
	require.NoError(t, err)
	v, err := svc.AddVariation(ctx, p.ID, validVariationInput(), mainImage(), nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))

	_, err = svc.GetVariation(ctx, v.ID)
	require.ErrorIs(t, err, ErrVariationNotFound)
	assert.Empty(t, repo.variations)
}

func TestCategoryCycles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, CategoryInput{Name: "Women"})
	require.NoError(t, err)
	child, err := svc.CreateCategory(ctx, CategoryInput{Name: "Kurtas", ParentID: &root.ID})
	require.NoError(t, err)
	grandchild, err := svc.CreateCategory(ctx, CategoryInput{Name: "Anarkali", ParentID: &child.ID})
	require.NoError(t, err)

	t.Run("self parent", func(t *testing.T) {
		_, err := svc.UpdateCategory(ctx, root.ID, CategoryInput{Name: "Women", ParentID: &root.ID})
		require.ErrorIs(t, err, ErrCategoryCycle)
	})

	t.Run("descendant parent", func(t *testing.T) {
		_, err := svc.UpdateCategory(ctx, root.ID, CategoryInput{Name: "Women", ParentID: &grandchild.ID})
		require.ErrorIs(t, err, ErrCategoryCycle)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("sibling move is fine", func(t *testing.T) {
		other, err := svc.CreateCategory(ctx, CategoryInput{Name: "Men"})
		require.NoError(t, err)
		moved, err := svc.UpdateCategory(ctx, grandchild.ID, CategoryInput{Name: "Anarkali", ParentID: &other.ID})
		require.NoError(t, err)
		assert.Equal(t, other.ID, *moved.ParentID)
	})

	t.Run("unknown parent", func(t *testing.T) {
		missing := "missing"
		_, err := svc.CreateCategory(ctx, CategoryInput{Name: "Orphan", ParentID: &missing})
		var fe *apperr.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "parent_id", fe.Field)
	})
}

func TestCreateCategory_DuplicateName(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "sarees"})
	require.ErrorIs(t, err, ErrCategoryNameTaken)
}

func TestBrands(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBrand(ctx, " ")
	require.ErrorIs(t, err, apperr.ErrValidation)

	b, err := svc.CreateBrand(ctx, "Loom & Co")
	require.NoError(t, err)

	renamed, err := svc.UpdateBrand(ctx, b.ID, "Loom and Co")
	require.NoError(t, err)
	assert.Equal(t, "Loom and Co", renamed.Name)

	_, err = svc.UpdateBrand(ctx, "missing", "x")
	require.ErrorIs(t, err, ErrBrandNotFound)
}

func TestListProducts_ClampsPaging(t *testing.T) {
	repo := &recordingLister{}
	svc := NewService(repo, nil, nil, nil)

	_, _, err := svc.ListProducts(context.Background(), ProductFilter{Limit: 1000, Offset: -5, Tag: " Silk "})
	require.NoError(t, err)
	assert.Equal(t, 100, repo.got.Limit)
	assert.Equal(t, 0, repo.got.Offset)
	assert.Equal(t, "silk", repo.got.Tag)

	_, _, err = svc.ListProducts(context.Background(), ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 20, repo.got.Limit)
}

type recordingLister struct {
	ProductRepository
	got ProductFilter
}

func (r *recordingLister) ListProducts(_ context.Context, f ProductFilter) ([]Product, int, error) {
	r.got = f
	return nil, 0, nil
}
