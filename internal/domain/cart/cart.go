// Package cart exposes the user's shopping cart to the order path as a
// read-only snapshot plus a clear command, and to the storefront as a small
// set of mutation operations. The cart is create-on-read: a user with no
// cart and a user with an empty cart look the same to callers.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrItemNotFound is returned when mutating a line that is not in the cart.
var ErrItemNotFound = errors.New("item not in cart")

// Item is one cart line with the unit price captured at read time.
type Item struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Snapshot is a point-in-time copy of a user's cart, decoupled from later
// catalog price changes.
type Snapshot struct {
	UserID  string
	Items   []Item
	TakenAt time.Time
}

// Empty reports whether the snapshot holds no items to order.
func (s *Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Subtotal is the sum of unit price times quantity over all lines.
func (s *Snapshot) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Repository is the cart collaborator as seen by the rest of the system.
type Repository interface {
	// Snapshot reads the user's current cart with live unit prices.
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)
	// Clear removes every line from the user's cart.
	Clear(ctx context.Context, userID string) error

	// Storefront mutations.
	AddItem(ctx context.Context, userID, productID string, quantity int) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID, productID string) error
}
