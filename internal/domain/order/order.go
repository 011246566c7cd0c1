// Package order holds the immutable order model and the placement service
// that turns a cart into an order while redeeming an optional discount code.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNotFound  = errors.New("order not found")
)

// Status is the order lifecycle state. Orders move
// PENDING → CONFIRMED → SHIPPING → DELIVERED, or to CANCELLED from any
// non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipping  Status = "SHIPPING"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipping, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// terminal statuses admit no further transitions.
func (s Status) terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s.terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusConfirmed
	case StatusConfirmed:
		return next == StatusShipping
	case StatusShipping:
		return next == StatusDelivered
	}
	return false
}

// InvalidTransitionError reports a disallowed status change.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Item is one order line. The unit price is the cart price captured at
// placement time, not the live catalog price.
type Item struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// ShippingAddress is the delivery address snapshot stored on the order.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	District   string `json:"district"`
	Ward       string `json:"ward"`
	PostalCode string `json:"postalCode"`
}

// Order is a placed customer order. Line items and captured prices are
// immutable after creation; only Status changes afterwards.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []Item
	Subtotal        decimal.Decimal
	DiscountCode    string
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	ShippingAddress ShippingAddress
	PaymentMethod   string
	Note            string
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
