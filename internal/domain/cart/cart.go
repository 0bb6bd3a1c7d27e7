// Package cart keeps each customer's shopping cart.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

var (
	// ErrItemNotFound is returned when a cart line does not exist or belongs to
	// another user.
	ErrItemNotFound = apperr.NotFound("cart item not found")
	// ErrVariationMismatch is returned when the variation is not one of the
	// product's variations.
	ErrVariationMismatch = apperr.Validation("variation does not belong to product")
	// ErrLineExists is returned by Repository.InsertItem when the user's cart
	// already holds a line for the variation.
	ErrLineExists = apperr.Conflict("variation is already in the cart")
)

// Item is one cart line. Price is captured when the line is added and
// refreshed when its quantity changes. The display fields are a snapshot of
// the product at that time.
type Item struct {
	ID          string
	ProductID   string
	VariationID string
	Quantity    int
	Price       decimal.Decimal

	Name  string
	Image string
	Size  catalog.Size
	Color string
	SKU   string

	AddedAt time.Time
}

// LineTotal is price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the set of lines owned by one user, in the order they were added.
type Cart struct {
	UserID string
	Items  []Item
}

// Subtotal is the sum of every line total.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// ItemCount is the total quantity across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) find(pred func(Item) bool) (int, bool) {
	for i, it := range c.Items {
		if pred(it) {
			return i, true
		}
	}
	return -1, false
}

// Repository persists cart lines. Get returns an empty cart for users
// without lines.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	InsertItem(ctx context.Context, userID string, it *Item) error
	UpdateItem(ctx context.Context, userID string, it *Item) error
	DeleteItem(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
}

// Catalog is the subset of the catalog the cart reads from.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	GetVariation(ctx context.Context, id string) (*catalog.Variation, error)
}
