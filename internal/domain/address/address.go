// Package address manages customers' saved shipping and billing addresses.
package address

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// ErrNotFound is returned when an address does not exist or belongs to
// another user.
var ErrNotFound = apperr.NotFound("address not found")

// Address is a postal address. The same shape is snapshotted into orders.
type Address struct {
	ID         string
	UserID     string
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
}

// Normalize trims every text field.
func (a *Address) Normalize() {
	for _, f := range []*string{&a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate reports the first missing required field.
func (a *Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if f.value == "" {
			return apperr.Required(f.name)
		}
	}
	return nil
}

// Repository persists addresses. SetDefault must clear the user's previous
// default and set the new one atomically.
type Repository interface {
	List(ctx context.Context, userID string) ([]Address, error)
	Get(ctx context.Context, userID, id string) (*Address, error)
	Create(ctx context.Context, a *Address) error
	Update(ctx context.Context, a *Address) error
	Delete(ctx context.Context, userID, id string) error
	SetDefault(ctx context.Context, userID, id string) error
}

// Service implements the address book.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService creates an address Service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// List returns the user's addresses, default first.
func (s *Service) List(ctx context.Context, userID string) ([]Address, error) {
	list, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return list, nil
}

// Get returns one of the user's addresses.
func (s *Service) Get(ctx context.Context, userID, id string) (*Address, error) {
	return s.repo.Get(ctx, userID, id)
}

// Create stores a new address. A user's first address becomes the default.
func (s *Service) Create(ctx context.Context, userID string, a Address) (*Address, error) {
	a.Normalize()
	if err := a.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	wantDefault := a.IsDefault || len(existing) == 0

	a.ID = s.newID()
	a.UserID = userID
	a.IsDefault = false
	a.CreatedAt = s.now().UTC()
	if err := s.repo.Create(ctx, &a); err != nil {
		return nil, errors.Wrap(err, "create address")
	}

	if wantDefault {
		if err := s.repo.SetDefault(ctx, userID, a.ID); err != nil {
			return nil, errors.Wrap(err, "set default address")
		}
		a.IsDefault = true
	}
	return &a, nil
}

// Update replaces the fields of an address. The default flag is changed
// only through SetDefault.
func (s *Service) Update(ctx context.Context, userID, id string, in Address) (*Address, error) {
	cur, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, errors.Wrap(err, "get address")
	}

	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.ID = cur.ID
	in.UserID = cur.UserID
	in.IsDefault = cur.IsDefault
	in.CreatedAt = cur.CreatedAt

	if err := s.repo.Update(ctx, &in); err != nil {
		return nil, errors.Wrap(err, "update address")
	}
	return &in, nil
}

// Delete removes an address. Orders keep their own snapshot.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return errors.Wrap(err, "delete address")
	}
	return nil
}

// SetDefault makes id the user's only default address.
func (s *Service) SetDefault(ctx context.Context, userID, id string) (*Address, error) {
	if err := s.repo.SetDefault(ctx, userID, id); err != nil {
		return nil, errors.Wrap(err, "set default address")
	}
	return s.repo.Get(ctx, userID, id)
}
