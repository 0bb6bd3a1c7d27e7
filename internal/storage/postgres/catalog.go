package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

const (
	productColumns = `id, name, slug, description, brand_id, category_id, material, tags,
		is_featured, is_best_seller, created_at, updated_at`

	variationColumns = `id, product_id, size, color, price, sale_price, sku, quantity, main_image, gallery`

	insertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at`

	updateProductSQL = `UPDATE products SET name = $2, slug = $3, description = $4, brand_id = $5,
		category_id = $6, material = $7, tags = $8, is_featured = $9, is_best_seller = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	getProductSQL       = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`

	lockProductSQL = `SELECT id FROM products WHERE id = $1 FOR UPDATE`

	insertVariationSQL = `INSERT INTO variations (id, product_id, position, size, color, price, sale_price,
			sku, quantity, main_image, gallery)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM variations WHERE product_id = $2),
			$3, $4, $5, $6, $7, $8, $9, $10)`

	updateVariationSQL = `UPDATE variations SET size = $2, color = $3, price = $4, sale_price = $5,
		sku = $6, quantity = $7
		WHERE id = $1`

	deleteVariationSQL = `DELETE FROM variations WHERE id = $1`

	getVariationSQL = `SELECT ` + variationColumns + ` FROM variations WHERE id = $1`

	listVariationsSQL = `SELECT ` + variationColumns + ` FROM variations
		WHERE product_id = ANY($1) ORDER BY product_id, position`
)

var _ catalog.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements catalog.ProductRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// CreateProduct inserts a product without variations.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL,
		p.ID, p.Name, p.Slug, p.Description, p.BrandID, p.CategoryID, p.Material, p.Tags,
		p.IsFeatured, p.IsBestSeller,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// UpdateProduct saves the editable product fields.
func (r *ProductRepository) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, p.Description, p.BrandID, p.CategoryID, p.Material, p.Tags,
		p.IsFeatured, p.IsBestSeller,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrProductNotFound
		}
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	return nil
}

// DeleteProduct removes a product. Variations and the cart lines pointing at
// them go with it through ON DELETE CASCADE.
func (r *ProductRepository) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrProductNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// GetProduct returns a product with its variations.
func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	if !validID(id) {
		return nil, catalog.ErrProductNotFound
	}
	return r.getOne(ctx, getProductSQL, id)
}

// GetProductBySlug returns a product with its variations.
func (r *ProductRepository) GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

func (r *ProductRepository) getOne(ctx context.Context, sql, arg string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}

	products := []catalog.Product{p}
	if err := r.attachVariations(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// ListProducts returns one page of products matching f, newest first, and
// the number of matches across all pages.
func (r *ProductRepository) ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.CategoryID != "" {
		if !validID(f.CategoryID) {
			return nil, 0, nil
		}
		where = append(where, "category_id = "+arg(f.CategoryID))
	}
	if f.BrandID != "" {
		if !validID(f.BrandID) {
			return nil, 0, nil
		}
		where = append(where, "brand_id = "+arg(f.BrandID))
	}
	if f.Featured != nil {
		where = append(where, "is_featured = "+arg(*f.Featured))
	}
	if f.BestSeller != nil {
		where = append(where, "is_best_seller = "+arg(*f.BestSeller))
	}
	if f.Tag != "" {
		where = append(where, arg(f.Tag)+" = ANY(tags)")
	}
	if f.Query != "" {
		p := arg("%" + escapeLike(f.Query) + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + productColumns + ", COUNT(*) OVER () FROM products")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id")
	sb.WriteString(" LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}

	total := 0
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Description, &p.BrandID, &p.CategoryID, &p.Material, &p.Tags,
			&p.IsFeatured, &p.IsBestSeller, &p.CreatedAt, &p.UpdatedAt, &total,
		)
		return p, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}

	if err := r.attachVariations(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *ProductRepository) attachVariations(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, listVariationsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing variations: %w", err)
	}
	variations, err := pgx.CollectRows(rows, scanVariation)
	if err != nil {
		return fmt.Errorf("listing variations: %w", err)
	}

	for _, v := range variations {
		i := index[v.ProductID]
		products[i].Variations = append(products[i].Variations, v)
	}
	return nil
}

// CreateVariation appends v after the product's existing variations. The
// product row is locked so concurrent inserts get distinct positions.
func (r *ProductRepository) CreateVariation(ctx context.Context, v *catalog.Variation) error {
	if !validID(v.ProductID) {
		return catalog.ErrProductNotFound
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, lockProductSQL, v.ProductID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrProductNotFound
			}
			return fmt.Errorf("locking product %q: %w", v.ProductID, err)
		}

		_, err := tx.Exec(ctx, insertVariationSQL,
			v.ID, v.ProductID, string(v.Size), v.Color, v.Price, v.SalePrice,
			v.SKU, v.Quantity, v.MainImage, nonNil(v.Gallery),
		)
		if err != nil {
			if derr := uniqueViolation(err); derr != nil {
				return derr
			}
			return fmt.Errorf("creating variation %q: %w", v.ID, err)
		}
		return nil
	})
}

// UpdateVariation saves the editable variation fields. Images are not
// changed here.
func (r *ProductRepository) UpdateVariation(ctx context.Context, v *catalog.Variation) error {
	tag, err := r.pool.Exec(ctx, updateVariationSQL,
		v.ID, string(v.Size), v.Color, v.Price, v.SalePrice, v.SKU, v.Quantity,
	)
	if err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("updating variation %q: %w", v.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrVariationNotFound
	}
	return nil
}

// DeleteVariation removes a variation and the cart lines pointing at it.
func (r *ProductRepository) DeleteVariation(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrVariationNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteVariationSQL, id)
	if err != nil {
		return fmt.Errorf("deleting variation %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrVariationNotFound
	}
	return nil
}

// GetVariation returns a single variation.
func (r *ProductRepository) GetVariation(ctx context.Context, id string) (*catalog.Variation, error) {
	if !validID(id) {
		return nil, catalog.ErrVariationNotFound
	}
	rows, err := r.pool.Query(ctx, getVariationSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variation %q: %w", id, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariationNotFound
		}
		return nil, fmt.Errorf("getting variation %q: %w", id, err)
	}
	return &v, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.BrandID, &p.CategoryID, &p.Material, &p.Tags,
		&p.IsFeatured, &p.IsBestSeller, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanVariation(row pgx.CollectableRow) (catalog.Variation, error) {
	var (
		v    catalog.Variation
		size string
	)
	err := row.Scan(
		&v.ID, &v.ProductID, &size, &v.Color, &v.Price, &v.SalePrice, &v.SKU, &v.Quantity,
		&v.MainImage, &v.Gallery,
	)
	v.Size = catalog.Size(size)
	return v, err
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const (
	categoryColumns = `id, name, parent_id`

	insertCategorySQL = `INSERT INTO categories (id, name, parent_id) VALUES ($1, $2, $3)`
	updateCategorySQL = `UPDATE categories SET name = $2, parent_id = $3 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
	getCategorySQL    = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories ORDER BY LOWER(name)`
)

var _ catalog.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements catalog.CategoryRepository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// CreateCategory inserts a category.
func (r *CategoryRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	if _, err := r.pool.Exec(ctx, insertCategorySQL, c.ID, c.Name, c.ParentID); err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("creating category %q: %w", c.ID, err)
	}
	return nil
}

// UpdateCategory saves name and parent.
func (r *CategoryRepository) UpdateCategory(ctx context.Context, c *catalog.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL, c.ID, c.Name, c.ParentID)
	if err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory removes a category. Categories still referenced by products
// or child categories are kept and reported as in use.
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrCategoryNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return catalog.ErrCategoryInUse
		}
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

// GetCategory returns a category by id.
func (r *CategoryRepository) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	if !validID(id) {
		return nil, catalog.ErrCategoryNotFound
	}
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	return &c, nil
}

// ListCategories returns every category ordered by name.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return list, nil
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.Name, &c.ParentID)
	return c, err
}

const (
	insertBrandSQL = `INSERT INTO brands (id, name) VALUES ($1, $2)`
	updateBrandSQL = `UPDATE brands SET name = $2 WHERE id = $1`
	deleteBrandSQL = `DELETE FROM brands WHERE id = $1`
	getBrandSQL    = `SELECT id, name FROM brands WHERE id = $1`
	listBrandsSQL  = `SELECT id, name FROM brands ORDER BY LOWER(name)`
)

var _ catalog.BrandRepository = (*BrandRepository)(nil)

// BrandRepository implements catalog.BrandRepository backed by PostgreSQL.
type BrandRepository struct {
	pool *pgxpool.Pool
}

// NewBrandRepository returns a BrandRepository that uses the given pool.
func NewBrandRepository(pool *pgxpool.Pool) *BrandRepository {
	return &BrandRepository{pool: pool}
}

// CreateBrand inserts a brand.
func (r *BrandRepository) CreateBrand(ctx context.Context, b *catalog.Brand) error {
	if _, err := r.pool.Exec(ctx, insertBrandSQL, b.ID, b.Name); err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("creating brand %q: %w", b.ID, err)
	}
	return nil
}

// UpdateBrand renames a brand.
func (r *BrandRepository) UpdateBrand(ctx context.Context, b *catalog.Brand) error {
	tag, err := r.pool.Exec(ctx, updateBrandSQL, b.ID, b.Name)
	if err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		return fmt.Errorf("updating brand %q: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrBrandNotFound
	}
	return nil
}

// DeleteBrand removes a brand no product references.
func (r *BrandRepository) DeleteBrand(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrBrandNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteBrandSQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return catalog.ErrBrandInUse
		}
		return fmt.Errorf("deleting brand %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrBrandNotFound
	}
	return nil
}

// GetBrand returns a brand by id.
func (r *BrandRepository) GetBrand(ctx context.Context, id string) (*catalog.Brand, error) {
	if !validID(id) {
		return nil, catalog.ErrBrandNotFound
	}
	rows, err := r.pool.Query(ctx, getBrandSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting brand %q: %w", id, err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[catalog.Brand])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrBrandNotFound
		}
		return nil, fmt.Errorf("getting brand %q: %w", id, err)
	}
	return &b, nil
}

// ListBrands returns every brand ordered by name.
func (r *BrandRepository) ListBrands(ctx context.Context) ([]catalog.Brand, error) {
	rows, err := r.pool.Query(ctx, listBrandsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing brands: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalog.Brand])
	if err != nil {
		return nil, fmt.Errorf("listing brands: %w", err)
	}
	return list, nil
}
