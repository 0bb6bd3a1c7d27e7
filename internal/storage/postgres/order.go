package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, items, subtotal, discount, coupon_code, shipping, total, status,
		payment_method, payment_status, shipping_address, billing_address, tracking_number, notes,
		COALESCE(idempotency_key, ''), created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (id, number, user_id, items, subtotal, discount, coupon_code, shipping,
			total, status, payment_method, payment_status, shipping_address, billing_address, tracking_number,
			notes, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULLIF($17, ''), $18, $19)`

	// decrementStockSQL takes stock only if enough remains.
	decrementStockSQL = `UPDATE variations SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`

	restockSQL = `UPDATE variations SET quantity = quantity + $2 WHERE id = $1`

	availableStockSQL = `SELECT quantity FROM variations WHERE id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	getOrderByKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	listUserOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, tracking_number = $4, notes = $5,
		updated_at = $6
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// addressJSON is the stored snapshot of an address.
type addressJSON struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func toAddressJSON(a address.Address) addressJSON {
	return addressJSON{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (a addressJSON) address() address.Address {
	return address.Address{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// Place writes the order and its side effects in one transaction: guarded
// stock decrements, the coupon use, the order row and clearing the cart.
// Variations are updated in id order so concurrent checkouts lock rows in
// the same sequence.
func (r *OrderRepository) Place(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shipJSON, err := json.Marshal(toAddressJSON(o.ShippingAddress))
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billJSON, err := json.Marshal(toAddressJSON(o.BillingAddress))
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}

	lines := slices.Clone(o.Items)
	slices.SortFunc(lines, func(a, b order.Line) int { return strings.Compare(a.VariationID, b.VariationID) })

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, l := range lines {
			if err := takeStock(ctx, tx, l); err != nil {
				return err
			}
		}

		if o.CouponCode != "" {
			tag, err := tx.Exec(ctx, consumeCouponUseSQL, o.CouponCode)
			if err != nil {
				return fmt.Errorf("consuming coupon %q: %w", o.CouponCode, err)
			}
			if tag.RowsAffected() == 0 {
				return coupon.ErrCouponUsageLimitReached
			}
		}

		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.Number, o.UserID, itemsJSON, o.Subtotal, o.Discount, o.CouponCode, o.Shipping,
			o.Total, string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus), shipJSON, billJSON,
			o.TrackingNumber, o.Notes, o.IdempotencyKey, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			if derr := uniqueViolation(err); derr != nil {
				return derr
			}
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		if _, err := tx.Exec(ctx, clearCartSQL, o.UserID); err != nil {
			return fmt.Errorf("clearing cart: %w", err)
		}
		return nil
	})
}

func takeStock(ctx context.Context, tx pgx.Tx, l order.Line) error {
	tag, err := tx.Exec(ctx, decrementStockSQL, l.VariationID, l.Quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", l.SKU, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	available := 0
	if err := tx.QueryRow(ctx, availableStockSQL, l.VariationID).Scan(&available); err != nil &&
		!errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reading stock of %q: %w", l.SKU, err)
	}
	return &catalog.StockError{SKU: l.SKU, Requested: l.Quantity, Available: available}
}

// FindByIdempotencyKey returns the user's order placed with key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return r.getOne(ctx, r.pool, getOrderByKeySQL, userID, key)
}

// Get returns an order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrOrderNotFound
	}
	return r.getOne(ctx, r.pool, getOrderSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, q querier, sql string, args ...any) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return list, nil
}

// List returns one page of all orders, newest first, and the total count.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	sql := `SELECT ` + orderColumns + `, COUNT(*) OVER () FROM orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, sql, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}

	total := 0
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrderInto(row, &total)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return list, total, nil
}

// Update applies mutate to the order under a row lock. When the change
// cancels the order, its lines go back to stock in the same transaction.
// Lines whose variation was deleted since are skipped.
func (r *OrderRepository) Update(ctx context.Context, id string, mutate func(o *order.Order) error) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrOrderNotFound
	}

	var out *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := r.getOne(ctx, tx, lockOrderSQL, id)
		if err != nil {
			return err
		}
		prev := o.Status

		if err := mutate(o); err != nil {
			return err
		}

		if order.NeedsRestock(prev, o.Status) {
			for _, l := range o.Items {
				if _, err := tx.Exec(ctx, restockSQL, l.VariationID, l.Quantity); err != nil {
					return fmt.Errorf("restocking %q: %w", l.SKU, err)
				}
			}
		}

		if _, err := tx.Exec(ctx, updateOrderSQL,
			o.ID, string(o.Status), string(o.PaymentStatus), o.TrackingNumber, o.Notes, o.UpdatedAt,
		); err != nil {
			return fmt.Errorf("updating order %q: %w", o.ID, err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	return scanOrderInto(row)
}

// scanOrderInto scans the order columns followed by any extra destinations.
func scanOrderInto(row pgx.CollectableRow, extra ...any) (order.Order, error) {
	var (
		o                             order.Order
		items, ship, bill             []byte
		status, method, paymentStatus string
	)
	dest := []any{
		&o.ID, &o.Number, &o.UserID, &items, &o.Subtotal, &o.Discount, &o.CouponCode, &o.Shipping, &o.Total,
		&status, &method, &paymentStatus, &ship, &bill, &o.TrackingNumber, &o.Notes,
		&o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return o, err
	}

	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.ID, err)
	}
	var sa, ba addressJSON
	if err := json.Unmarshal(ship, &sa); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address of %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(bill, &ba); err != nil {
		return o, fmt.Errorf("unmarshaling billing address of %q: %w", o.ID, err)
	}
	o.ShippingAddress = sa.address()
	o.BillingAddress = ba.address()
	return o, nil
}
