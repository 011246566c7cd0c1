package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ministore/api/internal/domain/cart"
	"github.com/ministore/api/internal/domain/product"
)

const (
	// The join captures the product's live price at read time; that price is
	// what the order will freeze.
	snapshotCartSQL = `SELECT ci.product_id, p.name, ci.quantity, p.price
	FROM cart_items ci JOIN products p ON p.id = ci.product_id
	WHERE ci.user_id = $1 ORDER BY ci.added_at`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

	upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, product_id)
	DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $3
	WHERE user_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Carts are
// create-on-read: there is no cart row, only cart_items keyed by user.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Snapshot reads the user's cart with current catalog prices. A user with no
// rows gets an empty snapshot, indistinguishable from a never-used cart.
func (r *CartRepository) Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error) {
	rows, err := r.pool.Query(ctx, snapshotCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("reading cart for user %q: %w", userID, err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading cart for user %q: %w", userID, err)
	}

	return &cart.Snapshot{
		UserID:  userID,
		Items:   items,
		TakenAt: time.Now(),
	}, nil
}

// Clear removes every line from the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

// AddItem adds quantity of a product to the cart, summing with any existing
// line. Returns product.ErrNotFound for an unknown product.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, productID).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", productID, err)
	}
	if !exists {
		return product.ErrNotFound
	}

	if _, err := r.pool.Exec(ctx, upsertCartItemSQL, userID, productID, quantity); err != nil {
		return fmt.Errorf("adding product %q to cart: %w", productID, err)
	}
	return nil
}

// SetQuantity replaces the quantity of an existing cart line.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, setCartQuantitySQL, userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart line %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// RemoveItem deletes one line from the cart.
func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("removing cart line %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(cart.ErrItemNotFound, productID)
	}
	return nil
}
