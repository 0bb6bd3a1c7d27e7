package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethnicwear/storefront/internal/domain/checkout"
	"github.com/ethnicwear/storefront/internal/domain/order"
)

// IdempotencyKeyHeader makes order placement safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

type addressSelection struct {
	SavedID string          `json:"saved_id"`
	New     *addressRequest `json:"new"`
}

func (s *addressSelection) selection() checkout.Selection {
	if s == nil {
		return checkout.Selection{}
	}
	sel := checkout.Selection{SavedID: strings.TrimSpace(s.SavedID)}
	if s.New != nil {
		a := s.New.address()
		sel.New = &a
	}
	return sel
}

type placeOrderRequest struct {
	Shipping       *addressSelection `json:"shipping" validate:"required"`
	Billing        *addressSelection `json:"billing"`
	SameAsShipping bool              `json:"same_as_shipping"`
	PaymentMethod  string            `json:"payment_method" validate:"required,oneof=credit-card debit-card upi net-banking cod"`
	CouponCode     string            `json:"coupon_code" validate:"max=64"`
	Notes          string            `json:"notes" validate:"max=1000"`
}

type orderStatusRequest struct {
	Status         *string `json:"status" validate:"omitempty,oneof=pending processing shipped delivered cancelled"`
	PaymentStatus  *string `json:"payment_status" validate:"omitempty,oneof=pending paid failed"`
	TrackingNumber *string `json:"tracking_number" validate:"omitempty,max=100"`
	Notes          *string `json:"notes" validate:"omitempty,max=1000"`
}

type orderLineResponse struct {
	ProductID   string  `json:"product_id"`
	VariationID string  `json:"variation_id"`
	Name        string  `json:"name"`
	Image       string  `json:"image"`
	Size        string  `json:"size"`
	Color       string  `json:"color"`
	SKU         string  `json:"sku"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	Number          string              `json:"number"`
	UserID          string              `json:"user_id"`
	Items           []orderLineResponse `json:"items"`
	Subtotal        float64             `json:"subtotal"`
	Discount        float64             `json:"discount"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	Shipping        float64             `json:"shipping"`
	Total           float64             `json:"total"`
	Status          string              `json:"status"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentStatus   string              `json:"payment_status"`
	ShippingAddress addressResponse     `json:"shipping_address"`
	BillingAddress  addressResponse     `json:"billing_address"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
}

func (h *Handler) orderDTO(o *order.Order) orderResponse {
	out := orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Items:           make([]orderLineResponse, 0, len(o.Items)),
		Subtotal:        money(o.Subtotal),
		Discount:        money(o.Discount),
		CouponCode:      o.CouponCode,
		Shipping:        money(o.Shipping),
		Total:           money(o.Total),
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentStatus:   string(o.PaymentStatus),
		ShippingAddress: addressDTO(o.ShippingAddress),
		BillingAddress:  addressDTO(o.BillingAddress),
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, l := range o.Items {
		out.Items = append(out.Items, orderLineResponse{
			ProductID:   l.ProductID,
			VariationID: l.VariationID,
			Name:        l.Name,
			Image:       h.image(l.Image),
			Size:        string(l.Size),
			Color:       l.Color,
			SKU:         l.SKU,
			Price:       money(l.Price),
			Quantity:    l.Quantity,
			LineTotal:   money(l.LineTotal()),
		})
	}
	return out
}

func (h *Handler) orderList(list []order.Order, total int) orderListResponse {
	out := orderListResponse{Orders: make([]orderResponse, 0, len(list)), Total: total}
	for i := range list {
		out.Orders = append(out.Orders, h.orderDTO(&list[i]))
	}
	return out
}

// PlaceOrder handles POST /api/orders. A new order is answered with 201; a
// retry carrying an already used Idempotency-Key gets the original order
// with 200.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), userID(r.Context()), order.PlaceOrderInput{
		Shipping:       req.Shipping.selection(),
		Billing:        req.Billing.selection(),
		SameAsShipping: req.SameAsShipping,
		PaymentMethod:  order.PaymentMethod(req.PaymentMethod),
		CouponCode:     req.CouponCode,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, h.orderDTO(res.Order))
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context(), userID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderList(list, len(list)))
}

// GetOrder handles GET /api/orders/{id}. Orders of other users are reported
// as not found.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderDTO(o))
}

// AdminListOrders handles GET /api/admin/orders.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{Status: order.Status(q.Get("status"))}

	var err error
	if f.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		fail(w, r, err)
		return
	}
	if f.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		fail(w, r, err)
		return
	}

	list, total, err := h.orders.AdminList(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderList(list, total))
}

// AdminGetOrder handles GET /api/admin/orders/{id}.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.AdminGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderDTO(o))
}

// UpdateOrderStatus handles PATCH /api/admin/orders/{id}.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	var u order.StatusUpdate
	if req.Status != nil {
		s := order.Status(*req.Status)
		u.Status = &s
	}
	if req.PaymentStatus != nil {
		s := order.PaymentStatus(*req.PaymentStatus)
		u.PaymentStatus = &s
	}
	u.TrackingNumber = req.TrackingNumber
	u.Notes = req.Notes

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderDTO(o))
}
