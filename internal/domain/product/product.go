// Package product is the read-side catalog consumed by carts and orders.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item available for purchase. Price is the live
// storefront price; orders capture their own copy at placement time.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	ImageURL string
	Stock    int
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
