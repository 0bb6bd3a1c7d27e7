package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethnicwear/storefront/internal/domain/cart"
)

type addCartItemRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	VariationID string `json:"variation_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1,max=100"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=100"`
}

type cartItemResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	VariationID string    `json:"variation_id"`
	Name        string    `json:"name"`
	Image       string    `json:"image"`
	Size        string    `json:"size"`
	Color       string    `json:"color"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	LineTotal   float64   `json:"line_total"`
	AddedAt     time.Time `json:"added_at"`
}

type cartResponse struct {
	Items     []cartItemResponse `json:"items"`
	Subtotal  float64            `json:"subtotal"`
	ItemCount int                `json:"item_count"`
}

func (h *Handler) cartDTO(c *cart.Cart) cartResponse {
	out := cartResponse{
		Items:     make([]cartItemResponse, 0, len(c.Items)),
		Subtotal:  money(c.Subtotal()),
		ItemCount: c.ItemCount(),
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, cartItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			Name:        it.Name,
			Image:       h.image(it.Image),
			Size:        string(it.Size),
			Color:       it.Color,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			Price:       money(it.Price),
			LineTotal:   money(it.LineTotal()),
			AddedAt:     it.AddedAt,
		})
	}
	return out
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), userID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartDTO(c))
}

// AddCartItem handles POST /api/cart. Adding a variation already in the cart
// increases that line's quantity.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.AddItem(r.Context(), userID(r.Context()), cart.AddItemInput{
		ProductID:   req.ProductID,
		VariationID: req.VariationID,
		Quantity:    req.Quantity,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartDTO(c))
}

// UpdateCartItem handles PATCH /api/cart/{itemId}.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.UpdateQuantity(r.Context(), userID(r.Context()), chi.URLParam(r, "itemId"), req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartDTO(c))
}

// RemoveCartItem handles DELETE /api/cart/{itemId}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), userID(r.Context()), chi.URLParam(r, "itemId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartDTO(c))
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), userID(r.Context())); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
