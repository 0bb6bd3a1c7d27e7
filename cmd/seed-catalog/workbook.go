package main

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
)

// Sheet names of the seed workbook. Every sheet is optional and starts with
// a header row; columns are matched by header name.
const (
	sheetBrands     = "brands"
	sheetCategories = "categories"
	sheetProducts   = "products"
	sheetVariations = "variations"
	sheetCoupons    = "coupons"
)

type categoryRow struct {
	Name   string
	Parent string
}

type productRow struct {
	catalog.ProductInput
	Brand    string
	Category string
}

type variationRow struct {
	Product string
	catalog.VariationInput
	Image   string
	Gallery []string
}

type workbook struct {
	Brands     []string
	Categories []categoryRow
	Products   []productRow
	Variations []variationRow
	Coupons    []coupon.Rule
}

// sheet is one worksheet with its header row indexed by column name.
type sheet struct {
	name   string
	header map[string]int
	rows   [][]string
}

func (s *sheet) get(row []string, col string) string {
	i, ok := s.header[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (s *sheet) rowErr(i int, err error) error {
	return errors.Wrapf(err, "%s row %d", s.name, i+2)
}

func readSheet(f *excelize.File, name string) (*sheet, error) {
	s := &sheet{name: name, header: map[string]int{}}
	if !slices.Contains(f.GetSheetList(), name) {
		return s, nil
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", name)
	}
	if len(rows) == 0 {
		return s, nil
	}
	for i, h := range rows[0] {
		s.header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, row := range rows[1:] {
		if !slices.ContainsFunc(row, func(c string) bool { return strings.TrimSpace(c) != "" }) {
			continue
		}
		s.rows = append(s.rows, row)
	}
	return s, nil
}

func parseWorkbook(f *excelize.File) (*workbook, error) {
	wb := &workbook{}

	brands, err := readSheet(f, sheetBrands)
	if err != nil {
		return nil, err
	}
	for _, row := range brands.rows {
		wb.Brands = append(wb.Brands, brands.get(row, "name"))
	}

	cats, err := readSheet(f, sheetCategories)
	if err != nil {
		return nil, err
	}
	for _, row := range cats.rows {
		wb.Categories = append(wb.Categories, categoryRow{Name: cats.get(row, "name"), Parent: cats.get(row, "parent")})
	}

	products, err := readSheet(f, sheetProducts)
	if err != nil {
		return nil, err
	}
	for i, row := range products.rows {
		p, err := parseProduct(products, row)
		if err != nil {
			return nil, products.rowErr(i, err)
		}
		wb.Products = append(wb.Products, p)
	}

	variations, err := readSheet(f, sheetVariations)
	if err != nil {
		return nil, err
	}
	for i, row := range variations.rows {
		v, err := parseVariation(variations, row)
		if err != nil {
			return nil, variations.rowErr(i, err)
		}
		wb.Variations = append(wb.Variations, v)
	}

	coupons, err := readSheet(f, sheetCoupons)
	if err != nil {
		return nil, err
	}
	for i, row := range coupons.rows {
		c, err := parseCoupon(coupons, row)
		if err != nil {
			return nil, coupons.rowErr(i, err)
		}
		wb.Coupons = append(wb.Coupons, c)
	}
	return wb, nil
}

func parseProduct(s *sheet, row []string) (productRow, error) {
	featured, err := parseBool(s.get(row, "featured"))
	if err != nil {
		return productRow{}, errors.Wrap(err, "featured")
	}
	bestSeller, err := parseBool(s.get(row, "best_seller"))
	if err != nil {
		return productRow{}, errors.Wrap(err, "best_seller")
	}
	return productRow{
		ProductInput: catalog.ProductInput{
			Name:         s.get(row, "name"),
			Description:  s.get(row, "description"),
			Material:     s.get(row, "material"),
			Tags:         splitList(s.get(row, "tags")),
			IsFeatured:   featured,
			IsBestSeller: bestSeller,
		},
		Brand:    s.get(row, "brand"),
		Category: s.get(row, "category"),
	}, nil
}

func parseVariation(s *sheet, row []string) (variationRow, error) {
	v := variationRow{
		Product: s.get(row, "product"),
		VariationInput: catalog.VariationInput{
			Size:  catalog.Size(strings.ToUpper(s.get(row, "size"))),
			Color: s.get(row, "color"),
			SKU:   s.get(row, "sku"),
		},
		Image:   s.get(row, "image"),
		Gallery: splitList(s.get(row, "gallery")),
	}

	var err error
	if v.Price, err = decimal.NewFromString(s.get(row, "price")); err != nil {
		return v, errors.Wrap(err, "price")
	}
	if sp := s.get(row, "sale_price"); sp != "" {
		d, err := decimal.NewFromString(sp)
		if err != nil {
			return v, errors.Wrap(err, "sale_price")
		}
		v.SalePrice = &d
	}
	if v.Quantity, err = strconv.Atoi(s.get(row, "quantity")); err != nil {
		return v, errors.Wrap(err, "quantity")
	}
	return v, nil
}

func parseCoupon(s *sheet, row []string) (coupon.Rule, error) {
	r := coupon.Rule{
		Code:         s.get(row, "code"),
		DiscountType: coupon.DiscountType(strings.ToLower(s.get(row, "type"))),
		Description:  s.get(row, "description"),
		Active:       true,
	}

	var err error
	if r.Value, err = decimal.NewFromString(s.get(row, "value")); err != nil {
		return r, errors.Wrap(err, "value")
	}
	if v := s.get(row, "max_discount"); v != "" {
		if r.MaxDiscount, err = decimal.NewFromString(v); err != nil {
			return r, errors.Wrap(err, "max_discount")
		}
	}
	if r.MinItems, err = parseInt(s.get(row, "min_items")); err != nil {
		return r, errors.Wrap(err, "min_items")
	}
	if r.MaxUses, err = parseInt(s.get(row, "max_uses")); err != nil {
		return r, errors.Wrap(err, "max_uses")
	}
	if r.ValidFrom, err = parseDate(s.get(row, "valid_from")); err != nil {
		return r, errors.Wrap(err, "valid_from")
	}
	if r.ValidUntil, err = parseDate(s.get(row, "valid_until")); err != nil {
		return r, errors.Wrap(err, "valid_until")
	}
	if v := s.get(row, "active"); v != "" {
		if r.Active, err = strconv.ParseBool(v); err != nil {
			return r, errors.Wrap(err, "active")
		}
	}
	return r, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	switch strings.ToLower(s) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC).
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("unrecognized date %q", s)
}
