package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

// AddItemInput identifies the variation to add and how many.
type AddItemInput struct {
	ProductID   string
	VariationID string
	Quantity    int
}

// Service implements cart operations. Every operation is scoped to the user
// id passed in; there is no ambient session.
type Service struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
	newID   func() string
}

// NewService creates a cart Service.
func NewService(repo Repository, cat Catalog) *Service {
	return &Service{
		repo:    repo,
		catalog: cat,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Get returns the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds a variation to the cart. A variation already in the cart has
// its quantity increased instead of getting a second line. The resulting
// quantity must not exceed current stock; stock is not reserved.
func (s *Service) AddItem(ctx context.Context, userID string, in AddItemInput) (*Cart, error) {
	switch {
	case in.ProductID == "":
		return nil, apperr.Required("product_id")
	case in.VariationID == "":
		return nil, apperr.Required("variation_id")
	case in.Quantity < 1:
		return nil, apperr.Invalid("quantity", "must be at least 1")
	}

	p, err := s.catalog.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	v, err := s.catalog.GetVariation(ctx, in.VariationID)
	if err != nil {
		return nil, errors.Wrap(err, "get variation")
	}
	if v.ProductID != p.ID {
		return nil, ErrVariationMismatch
	}

	// A concurrent add of the same variation may insert its line between our
	// read and write; the second pass merges into that line.
	for attempt := 1; ; attempt++ {
		c, err := s.add(ctx, userID, p, v, in.Quantity)
		if errors.Is(err, ErrLineExists) && attempt < 2 {
			continue
		}
		return c, err
	}
}

func (s *Service) add(ctx context.Context, userID string, p *catalog.Product, v *catalog.Variation, qty int) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	if i, ok := c.find(func(it Item) bool { return it.VariationID == v.ID }); ok {
		it := c.Items[i]
		it.Quantity += qty
		if err := checkStock(v, it.Quantity); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateItem(ctx, userID, &it); err != nil {
			return nil, errors.Wrap(err, "update cart item")
		}
		c.Items[i] = it
		return c, nil
	}

	if err := checkStock(v, qty); err != nil {
		return nil, err
	}
	it := Item{
		ID:          s.newID(),
		ProductID:   p.ID,
		VariationID: v.ID,
		Quantity:    qty,
		Price:       v.EffectivePrice(),
		Name:        p.Name,
		Image:       v.MainImage,
		Size:        v.Size,
		Color:       v.Color,
		SKU:         v.SKU,
		AddedAt:     s.now().UTC(),
	}
	if err := s.repo.InsertItem(ctx, userID, &it); err != nil {
		return nil, errors.Wrap(err, "insert cart item")
	}
	c.Items = append(c.Items, it)
	return c, nil
}

// UpdateQuantity sets a line's quantity and refreshes its price from the
// variation.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID string, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, apperr.Invalid("quantity", "must be at least 1")
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	i, ok := c.find(func(it Item) bool { return it.ID == itemID })
	if !ok {
		return nil, ErrItemNotFound
	}

	it := c.Items[i]
	v, err := s.catalog.GetVariation(ctx, it.VariationID)
	if err != nil {
		return nil, errors.Wrap(err, "get variation")
	}
	if err := checkStock(v, qty); err != nil {
		return nil, err
	}
	it.Quantity = qty
	it.Price = v.EffectivePrice()

	if err := s.repo.UpdateItem(ctx, userID, &it); err != nil {
		return nil, errors.Wrap(err, "update cart item")
	}
	c.Items[i] = it
	return c, nil
}

// RemoveItem deletes one line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	if err := s.repo.DeleteItem(ctx, userID, itemID); err != nil {
		return nil, errors.Wrap(err, "delete cart item")
	}
	return s.Get(ctx, userID)
}

// Clear removes every line from the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func checkStock(v *catalog.Variation, qty int) error {
	if qty > v.Quantity {
		return &catalog.StockError{SKU: v.SKU, Requested: qty, Available: v.Quantity}
	}
	return nil
}
