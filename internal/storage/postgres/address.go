package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethnicwear/storefront/internal/domain/address"
)

const (
	addressColumns = `id, user_id, full_name, phone, line1, line2, city, state, postal_code, country,
		is_default, created_at`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1
		ORDER BY is_default DESC, created_at, id`

	getAddressSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1 AND user_id = $2`

	insertAddressSQL = `INSERT INTO addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)`

	updateAddressSQL = `UPDATE addresses SET full_name = $3, phone = $4, line1 = $5, line2 = $6, city = $7,
		state = $8, postal_code = $9, country = $10
		WHERE id = $1 AND user_id = $2`

	deleteAddressSQL = `DELETE FROM addresses WHERE id = $1 AND user_id = $2`

	clearDefaultSQL = `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`
	setDefaultSQL   = `UPDATE addresses SET is_default = TRUE WHERE id = $1 AND user_id = $2`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// List returns the user's addresses, default first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanAddress)
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	return list, nil
}

// Get returns one of the user's addresses.
func (r *AddressRepository) Get(ctx context.Context, userID, id string) (*address.Address, error) {
	if !validID(id) {
		return nil, address.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getAddressSQL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}

// Create inserts a non-default address.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	_, err := r.pool.Exec(ctx, insertAddressSQL,
		a.ID, a.UserID, a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating address: %w", err)
	}
	return nil
}

// Update saves the address fields. The default flag is left alone.
func (r *AddressRepository) Update(ctx context.Context, a *address.Address) error {
	tag, err := r.pool.Exec(ctx, updateAddressSQL,
		a.ID, a.UserID, a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country,
	)
	if err != nil {
		return fmt.Errorf("updating address %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

// Delete removes one of the user's addresses.
func (r *AddressRepository) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return address.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteAddressSQL, id, userID)
	if err != nil {
		return fmt.Errorf("deleting address %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

// SetDefault clears the user's current default and sets id in one
// transaction. The addresses_one_default index rejects a concurrent second
// default, which surfaces as an error rather than two defaults.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return address.ErrNotFound
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearDefaultSQL, userID); err != nil {
			return fmt.Errorf("clearing default address: %w", err)
		}
		tag, err := tx.Exec(ctx, setDefaultSQL, id, userID)
		if err != nil {
			return fmt.Errorf("setting default address %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return address.ErrNotFound
		}
		return nil
	})
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var a address.Address
	err := row.Scan(
		&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode,
		&a.Country, &a.IsDefault, &a.CreatedAt,
	)
	return a, err
}
