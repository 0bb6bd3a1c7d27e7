package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethnicwear/storefront/internal/domain/address"
)

type addressRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,max=100"`
	IsDefault  bool   `json:"is_default"`
}

func (a addressRequest) address() address.Address {
	return address.Address{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
	}
}

type addressResponse struct {
	ID         string     `json:"id,omitempty"`
	FullName   string     `json:"full_name"`
	Phone      string     `json:"phone"`
	Line1      string     `json:"line1"`
	Line2      string     `json:"line2,omitempty"`
	City       string     `json:"city"`
	State      string     `json:"state"`
	PostalCode string     `json:"postal_code"`
	Country    string     `json:"country"`
	IsDefault  bool       `json:"is_default"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

func addressDTO(a address.Address) addressResponse {
	out := addressResponse{
		ID:         a.ID,
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
	}
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt
		out.CreatedAt = &t
	}
	return out
}

// ListAddresses handles GET /api/addresses.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.addresses.List(r.Context(), userID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]addressResponse, 0, len(list))
	for _, a := range list {
		out = append(out, addressDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateAddress handles POST /api/addresses.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.addresses.Create(r.Context(), userID(r.Context()), req.address())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addressDTO(*a))
}

// UpdateAddress handles PUT /api/addresses/{id}.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.addresses.Update(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), req.address())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addressDTO(*a))
}

// DeleteAddress handles DELETE /api/addresses/{id}.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.addresses.Delete(r.Context(), userID(r.Context()), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultAddress handles POST /api/addresses/{id}/default.
func (h *Handler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	a, err := h.addresses.SetDefault(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addressDTO(*a))
}
