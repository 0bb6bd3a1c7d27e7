package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/storage/files"
)

const maxGalleryImages = 10

type productRequest struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Description  string   `json:"description" validate:"max=5000"`
	BrandID      string   `json:"brand_id" validate:"required"`
	CategoryID   string   `json:"category_id" validate:"required"`
	Material     string   `json:"material" validate:"max=200"`
	Tags         []string `json:"tags" validate:"max=20,dive,required,max=50"`
	IsFeatured   bool     `json:"is_featured"`
	IsBestSeller bool     `json:"is_best_seller"`
}

func (p productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:         p.Name,
		Description:  p.Description,
		BrandID:      p.BrandID,
		CategoryID:   p.CategoryID,
		Material:     p.Material,
		Tags:         p.Tags,
		IsFeatured:   p.IsFeatured,
		IsBestSeller: p.IsBestSeller,
	}
}

type variationResponse struct {
	ID        string   `json:"id"`
	ProductID string   `json:"product_id"`
	Size      string   `json:"size"`
	Color     string   `json:"color"`
	Price     float64  `json:"price"`
	SalePrice *float64 `json:"sale_price,omitempty"`
	SKU       string   `json:"sku"`
	Quantity  int      `json:"quantity"`
	InStock   bool     `json:"in_stock"`
	MainImage string   `json:"main_image"`
	Gallery   []string `json:"gallery"`
}

type productResponse struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Slug         string              `json:"slug"`
	Description  string              `json:"description"`
	BrandID      string              `json:"brand_id"`
	CategoryID   string              `json:"category_id"`
	Material     string              `json:"material"`
	Tags         []string            `json:"tags"`
	IsFeatured   bool                `json:"is_featured"`
	IsBestSeller bool                `json:"is_best_seller"`
	Variations   []variationResponse `json:"variations"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type productListResponse struct {
	Products []productResponse `json:"products"`
	Total    int               `json:"total"`
}

type categoryRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	ParentID *string `json:"parent_id"`
}

type categoryResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type brandRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type brandResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type variationPatchRequest struct {
	Size           *string          `json:"size" validate:"omitempty,oneof=XS S M L XL XXL"`
	Color          *string          `json:"color" validate:"omitempty,max=50"`
	Price          *decimal.Decimal `json:"price"`
	SalePrice      *decimal.Decimal `json:"sale_price"`
	ClearSalePrice bool             `json:"clear_sale_price"`
	SKU            *string          `json:"sku" validate:"omitempty,max=64"`
	Quantity       *int             `json:"quantity" validate:"omitempty,min=0"`
}

func (h *Handler) image(p string) string {
	return files.PublicURL(h.publicBaseURL, p)
}

func (h *Handler) variationDTO(v catalog.Variation) variationResponse {
	out := variationResponse{
		ID:        v.ID,
		ProductID: v.ProductID,
		Size:      string(v.Size),
		Color:     v.Color,
		Price:     money(v.Price),
		SKU:       v.SKU,
		Quantity:  v.Quantity,
		InStock:   v.Quantity > 0,
		MainImage: h.image(v.MainImage),
		Gallery:   make([]string, 0, len(v.Gallery)),
	}
	if v.SalePrice != nil {
		sp := money(*v.SalePrice)
		out.SalePrice = &sp
	}
	for _, g := range v.Gallery {
		out.Gallery = append(out.Gallery, h.image(g))
	}
	return out
}

func (h *Handler) productDTO(p catalog.Product) productResponse {
	out := productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Slug:         p.Slug,
		Description:  p.Description,
		BrandID:      p.BrandID,
		CategoryID:   p.CategoryID,
		Material:     p.Material,
		Tags:         p.Tags,
		IsFeatured:   p.IsFeatured,
		IsBestSeller: p.IsBestSeller,
		Variations:   make([]variationResponse, 0, len(p.Variations)),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	for _, v := range p.Variations {
		out.Variations = append(out.Variations, h.variationDTO(v))
	}
	return out
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.ProductFilter{
		CategoryID: q.Get("category"),
		BrandID:    q.Get("brand"),
		Tag:        q.Get("tag"),
		Query:      strings.TrimSpace(q.Get("q")),
	}

	var err error
	if f.Featured, err = queryBool(q.Get("featured"), "featured"); err != nil {
		fail(w, r, err)
		return
	}
	if f.BestSeller, err = queryBool(q.Get("best_seller"), "best_seller"); err != nil {
		fail(w, r, err)
		return
	}
	if f.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		fail(w, r, err)
		return
	}
	if f.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		fail(w, r, err)
		return
	}

	list, total, err := h.catalog.ListProducts(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	resp := productListResponse{Products: make([]productResponse, 0, len(list)), Total: total}
	for _, p := range list {
		resp.Products = append(resp.Products, h.productDTO(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct handles GET /api/products/{id}; id may also be a slug.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productDTO(*p))
}

// CreateProduct handles POST /api/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.CreateProduct(r.Context(), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.productDTO(*p))
}

// UpdateProduct handles PUT /api/products/{id}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productDTO(*p))
}

// DeleteProduct handles DELETE /api/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddVariation handles POST /api/products/{id}/variations. The body is a
// multipart form with the variation fields, a required "image" file and up
// to ten "gallery[]" files.
func (h *Handler) AddVariation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(w, r, err)
			return
		}
		fail(w, r, apperr.Validation("request must be multipart/form-data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in, err := variationForm(r.MultipartForm)
	if err != nil {
		fail(w, r, err)
		return
	}

	var main *catalog.Upload
	if fhs := r.MultipartForm.File["image"]; len(fhs) > 0 {
		u, closeFn, err := openUpload(fhs[0])
		if err != nil {
			fail(w, r, err)
			return
		}
		defer closeFn()
		main = &u
	}

	galleryFiles := append(r.MultipartForm.File["gallery[]"], r.MultipartForm.File["gallery"]...)
	if len(galleryFiles) > maxGalleryImages {
		fail(w, r, apperr.Invalid("gallery", "at most "+strconv.Itoa(maxGalleryImages)+" images"))
		return
	}
	gallery := make([]catalog.Upload, 0, len(galleryFiles))
	for _, fh := range galleryFiles {
		u, closeFn, err := openUpload(fh)
		if err != nil {
			fail(w, r, err)
			return
		}
		defer closeFn()
		gallery = append(gallery, u)
	}

	v, err := h.catalog.AddVariation(r.Context(), chi.URLParam(r, "id"), in, main, gallery)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.variationDTO(*v))
}

func openUpload(fh *multipart.FileHeader) (catalog.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return catalog.Upload{}, nil, errors.Wrap(err, "open upload")
	}
	return catalog.Upload{Filename: fh.Filename, Body: f}, func() { _ = f.Close() }, nil
}

func variationForm(form *multipart.Form) (catalog.VariationInput, error) {
	get := func(k string) string {
		if vs := form.Value[k]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	in := catalog.VariationInput{
		Size:  catalog.Size(strings.ToUpper(get("size"))),
		Color: get("color"),
		SKU:   get("sku"),
	}

	s := get("price")
	if s == "" {
		return in, apperr.Required("price")
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return in, apperr.Invalid("price", "must be a number")
	}
	in.Price = price

	if s := get("sale_price"); s != "" {
		p, err := decimal.NewFromString(s)
		if err != nil {
			return in, apperr.Invalid("sale_price", "must be a number")
		}
		in.SalePrice = &p
	}
	s = get("quantity")
	if s == "" {
		return in, apperr.Required("quantity")
	}
	if in.Quantity, err = strconv.Atoi(s); err != nil {
		return in, apperr.Invalid("quantity", "must be an integer")
	}
	return in, nil
}

// GetVariation handles GET /api/variations/{id}.
func (h *Handler) GetVariation(w http.ResponseWriter, r *http.Request) {
	v, err := h.catalog.GetVariation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.variationDTO(*v))
}

// UpdateVariation handles PATCH /api/variations/{id}.
func (h *Handler) UpdateVariation(w http.ResponseWriter, r *http.Request) {
	var req variationPatchRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	patch := catalog.VariationPatch{
		Color:          req.Color,
		Price:          req.Price,
		SalePrice:      req.SalePrice,
		ClearSalePrice: req.ClearSalePrice,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
	}
	if req.Size != nil {
		s := catalog.Size(*req.Size)
		patch.Size = &s
	}

	v, err := h.catalog.UpdateVariation(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.variationDTO(*v))
}

// DeleteVariation handles DELETE /api/variations/{id}.
func (h *Handler) DeleteVariation(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteVariation(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func categoryDTO(c catalog.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, ParentID: c.ParentID}
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(list))
	for _, c := range list {
		out = append(out, categoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateCategory handles POST /api/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.catalog.CreateCategory(r.Context(), catalog.CategoryInput{Name: req.Name, ParentID: req.ParentID})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryDTO(*c))
}

// UpdateCategory handles PUT /api/categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.catalog.UpdateCategory(r.Context(), chi.URLParam(r, "id"),
		catalog.CategoryInput{Name: req.Name, ParentID: req.ParentID})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryDTO(*c))
}

// DeleteCategory handles DELETE /api/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBrands handles GET /api/brands.
func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.ListBrands(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]brandResponse, 0, len(list))
	for _, b := range list {
		out = append(out, brandResponse{ID: b.ID, Name: b.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateBrand handles POST /api/brands.
func (h *Handler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	b, err := h.catalog.CreateBrand(r.Context(), req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, brandResponse{ID: b.ID, Name: b.Name})
}

// UpdateBrand handles PUT /api/brands/{id}.
func (h *Handler) UpdateBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	b, err := h.catalog.UpdateBrand(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, brandResponse{ID: b.ID, Name: b.Name})
}

// DeleteBrand handles DELETE /api/brands/{id}.
func (h *Handler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteBrand(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryBool(s, field string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, apperr.Invalid(field, "must be true or false")
	}
	return &b, nil
}

func queryInt(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Invalid(field, "must be a non-negative integer")
	}
	return n, nil
}
