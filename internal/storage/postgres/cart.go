package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

const (
	cartItemColumns = `id, product_id, variation_id, quantity, price, name, image, size, color, sku, added_at`

	listCartItemsSQL = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY added_at, id`

	insertCartItemSQL = `INSERT INTO cart_items (id, user_id, product_id, variation_id, quantity, price,
			name, image, size, color, sku, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateCartItemSQL = `UPDATE cart_items SET quantity = $3, price = $4 WHERE id = $1 AND user_id = $2`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart lines in insertion order.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	return getCart(ctx, r.pool, userID)
}

func getCart(ctx context.Context, q querier, userID string) (*cart.Cart, error) {
	rows, err := q.Query(ctx, listCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return &cart.Cart{UserID: userID, Items: items}, nil
}

// InsertItem adds a new line.
func (r *CartRepository) InsertItem(ctx context.Context, userID string, it *cart.Item) error {
	_, err := r.pool.Exec(ctx, insertCartItemSQL,
		it.ID, userID, it.ProductID, it.VariationID, it.Quantity, it.Price,
		it.Name, it.Image, string(it.Size), it.Color, it.SKU, it.AddedAt,
	)
	if err != nil {
		if derr := uniqueViolation(err); derr != nil {
			return derr
		}
		if isForeignKeyViolation(err) {
			return catalog.ErrVariationNotFound
		}
		return fmt.Errorf("inserting cart item: %w", err)
	}
	return nil
}

// UpdateItem saves quantity and price of a line.
func (r *CartRepository) UpdateItem(ctx context.Context, userID string, it *cart.Item) error {
	tag, err := r.pool.Exec(ctx, updateCartItemSQL, it.ID, userID, it.Quantity, it.Price)
	if err != nil {
		return fmt.Errorf("updating cart item %q: %w", it.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes a line.
func (r *CartRepository) DeleteItem(ctx context.Context, userID, itemID string) error {
	if !validID(itemID) {
		return cart.ErrItemNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, itemID, userID)
	if err != nil {
		return fmt.Errorf("deleting cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// Clear removes every line of the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		it   cart.Item
		size string
	)
	err := row.Scan(
		&it.ID, &it.ProductID, &it.VariationID, &it.Quantity, &it.Price,
		&it.Name, &it.Image, &size, &it.Color, &it.SKU, &it.AddedAt,
	)
	it.Size = catalog.Size(size)
	return it, err
}
