// Command seed-catalog loads brands, categories, products, variations and
// coupons from an .xlsx workbook and creates an admin API key.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/ethnicwear/storefront/internal/domain/auth"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/storage/files"
	"github.com/ethnicwear/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		workbookPath string
		uploadDir    string
		apiKey       string
		apiKeyName   string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&workbookPath, "workbook", "db/seed/catalog.xlsx", "path to the seed workbook; image paths are relative to it")
	flag.StringVar(&uploadDir, "upload-dir", "./uploads", "directory images are copied to (or STORE_UPLOAD_DIR env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to store; generated when empty (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyName, "api-key-name", "Seed admin key", "name of the admin API key")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if v := os.Getenv("STORE_UPLOAD_DIR"); v != "" && uploadDir == "./uploads" {
		uploadDir = v
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, workbookPath, uploadDir, apiKey, apiKeyName, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, workbookPath, uploadDir, apiKey, apiKeyName, pepper string) error {
	f, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return errors.Wrap(err, "open workbook")
	}
	defer func() { _ = f.Close() }()

	wb, err := parseWorkbook(f)
	if err != nil {
		return errors.Wrap(err, "parse workbook")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return errors.Wrap(err, "create upload dir")
	}
	s := &seeder{
		catalog: catalog.NewService(
			postgres.NewProductRepository(pool),
			postgres.NewCategoryRepository(pool),
			postgres.NewBrandRepository(pool),
			files.NewImages(uploadDir, 10<<20),
		),
		coupons: coupon.NewService(postgres.NewCouponRepository(pool)),
		baseDir: filepath.Dir(workbookPath),
	}
	if err := s.seed(ctx, wb); err != nil {
		return err
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, apiKeyName, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

// catalogWriter is the part of the catalog service the seeder uses.
type catalogWriter interface {
	ListBrands(ctx context.Context) ([]catalog.Brand, error)
	CreateBrand(ctx context.Context, name string) (*catalog.Brand, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (*catalog.Category, error)
	GetProduct(ctx context.Context, idOrSlug string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	AddVariation(ctx context.Context, productID string, in catalog.VariationInput, main *catalog.Upload, gallery []catalog.Upload) (*catalog.Variation, error)
}

type couponWriter interface {
	Create(ctx context.Context, r coupon.Rule) (*coupon.Rule, error)
}

// seeder applies a workbook. Existing brands, categories, products and
// coupons are matched by name, slug or code and left untouched.
type seeder struct {
	catalog catalogWriter
	coupons couponWriter
	baseDir string
}

func (s *seeder) seed(ctx context.Context, wb *workbook) error {
	brands, err := s.seedBrands(ctx, wb.Brands)
	if err != nil {
		return errors.Wrap(err, "seed brands")
	}
	categories, err := s.seedCategories(ctx, wb.Categories)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}
	created, err := s.seedProducts(ctx, wb.Products, brands, categories)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := s.seedVariations(ctx, wb.Variations, created); err != nil {
		return errors.Wrap(err, "seed variations")
	}
	if err := s.seedCoupons(ctx, wb.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (s *seeder) seedBrands(ctx context.Context, names []string) (map[string]string, error) {
	existing, err := s.catalog.ListBrands(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing))
	for _, b := range existing {
		ids[key(b.Name)] = b.ID
	}
	for _, name := range names {
		if _, ok := ids[key(name)]; ok {
			continue
		}
		b, err := s.catalog.CreateBrand(ctx, name)
		if err != nil {
			return nil, errors.Wrapf(err, "create brand %q", name)
		}
		ids[key(b.Name)] = b.ID
		slog.Info("created brand", slog.String("name", b.Name))
	}
	return ids, nil
}

func (s *seeder) seedCategories(ctx context.Context, rows []categoryRow) (map[string]string, error) {
	existing, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing))
	for _, c := range existing {
		ids[key(c.Name)] = c.ID
	}
	for _, row := range rows {
		if _, ok := ids[key(row.Name)]; ok {
			continue
		}
		in := catalog.CategoryInput{Name: row.Name}
		if row.Parent != "" {
			parentID, ok := ids[key(row.Parent)]
			if !ok {
				return nil, errors.Errorf("category %q: parent %q must be listed first", row.Name, row.Parent)
			}
			in.ParentID = &parentID
		}
		c, err := s.catalog.CreateCategory(ctx, in)
		if err != nil {
			return nil, errors.Wrapf(err, "create category %q", row.Name)
		}
		ids[key(c.Name)] = c.ID
		slog.Info("created category", slog.String("name", c.Name))
	}
	return ids, nil
}

// seedProducts returns the ids of the products it created by name. Products
// whose slug already exists are skipped together with their variations.
func (s *seeder) seedProducts(ctx context.Context, rows []productRow, brands, categories map[string]string) (map[string]string, error) {
	created := make(map[string]string, len(rows))
	for _, row := range rows {
		if _, err := s.catalog.GetProduct(ctx, catalog.Slugify(row.Name)); err == nil {
			slog.Info("product exists, skipping", slog.String("name", row.Name))
			continue
		} else if !errors.Is(err, catalog.ErrProductNotFound) {
			return nil, errors.Wrapf(err, "lookup product %q", row.Name)
		}

		in := row.ProductInput
		var ok bool
		if in.BrandID, ok = brands[key(row.Brand)]; !ok {
			return nil, errors.Errorf("product %q: unknown brand %q", row.Name, row.Brand)
		}
		if in.CategoryID, ok = categories[key(row.Category)]; !ok {
			return nil, errors.Errorf("product %q: unknown category %q", row.Name, row.Category)
		}
		p, err := s.catalog.CreateProduct(ctx, in)
		if err != nil {
			return nil, errors.Wrapf(err, "create product %q", row.Name)
		}
		created[key(row.Name)] = p.ID
		slog.Info("created product", slog.String("name", p.Name), slog.String("slug", p.Slug))
	}
	return created, nil
}

func (s *seeder) seedVariations(ctx context.Context, rows []variationRow, products map[string]string) error {
	for _, row := range rows {
		productID, ok := products[key(row.Product)]
		if !ok {
			continue
		}
		if err := s.addVariation(ctx, productID, row); err != nil {
			return errors.Wrapf(err, "variation %s", row.SKU)
		}
		slog.Info("created variation", slog.String("product", row.Product), slog.String("sku", row.SKU))
	}
	return nil
}

func (s *seeder) addVariation(ctx context.Context, productID string, row variationRow) error {
	if row.Image == "" {
		return errors.New("image is required")
	}
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	open := func(p string) (catalog.Upload, error) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.baseDir, p)
		}
		f, err := os.Open(p)
		if err != nil {
			return catalog.Upload{}, errors.Wrap(err, "open image")
		}
		opened = append(opened, f)
		return catalog.Upload{Filename: filepath.Base(p), Body: f}, nil
	}

	mainImage, err := open(row.Image)
	if err != nil {
		return err
	}
	gallery := make([]catalog.Upload, 0, len(row.Gallery))
	for _, g := range row.Gallery {
		u, err := open(g)
		if err != nil {
			return err
		}
		gallery = append(gallery, u)
	}
	_, err = s.catalog.AddVariation(ctx, productID, row.VariationInput, &mainImage, gallery)
	return err
}

func (s *seeder) seedCoupons(ctx context.Context, rules []coupon.Rule) error {
	for _, r := range rules {
		c, err := s.coupons.Create(ctx, r)
		switch {
		case errors.Is(err, coupon.ErrCouponCodeTaken):
			slog.Info("coupon exists, skipping", slog.String("code", coupon.NormalizeCode(r.Code)))
		case err != nil:
			return errors.Wrapf(err, "create coupon %q", r.Code)
		default:
			slog.Info("created coupon", slog.String("code", c.Code), slog.String("description", c.Description))
		}
	}
	return nil
}

type apiKeySaver interface {
	Save(ctx context.Context, k *auth.APIKeyInfo) error
}

func seedAPIKey(ctx context.Context, repo apiKeySaver, apiKey, name, pepper string) error {
	generated := apiKey == ""
	if generated {
		var err error
		if apiKey, err = auth.GenerateKey(); err != nil {
			return err
		}
	}

	info := &auth.APIKeyInfo{
		ID:      uuid.New().String(),
		KeyHash: hex.EncodeToString(auth.HashKey([]byte(pepper), apiKey)),
		Name:    name,
		Scopes:  []string{"admin"},
	}
	if err := repo.Save(ctx, info); err != nil {
		return err
	}

	if generated {
		slog.Info("generated admin API key, store it now", slog.String("name", name), slog.String("api_key", apiKey))
	} else {
		slog.Info("stored admin API key", slog.String("name", name))
	}
	return nil
}
