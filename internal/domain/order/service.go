package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ministore/api/internal/domain/cart"
	"github.com/ministore/api/internal/domain/discount"
)

// PlaceRequest holds the input for placing an order from a user's cart.
type PlaceRequest struct {
	UserID          string
	DiscountCode    string
	ShippingAddress ShippingAddress
	PaymentMethod   string
	Note            string
}

// PlacementService converts a cart into an immutable order, atomically
// validating and redeeming an optional discount code.
//
// One call walks Validating → Reserving → Building → Persisting → Committed.
// Failures before persistence have no side effects, so the whole call is
// safe to retry; a persistence failure after a reservation releases the
// reservation so a failed order never consumes a scarce discount slot.
type PlacementService struct {
	carts  cart.Repository
	codes  *discount.Registry
	orders Repository
	now    func() time.Time
}

// NewPlacementService creates a PlacementService with its collaborators.
func NewPlacementService(carts cart.Repository, codes *discount.Registry, orders Repository) *PlacementService {
	return &PlacementService{
		carts:  carts,
		codes:  codes,
		orders: orders,
		now:    time.Now,
	}
}

// PlaceOrder runs the full placement sequence and returns the created order.
func (s *PlacementService) PlaceOrder(ctx context.Context, req PlaceRequest) (*Order, error) {
	// Validating: snapshot the cart first; an order is never created from an
	// empty cart, with or without a code.
	snap, err := s.carts.Snapshot(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if snap.Empty() {
		return nil, ErrEmptyCart
	}
	subtotal := snap.Subtotal()

	var code *discount.Code
	if req.DiscountCode != "" {
		code, err = s.codes.Validate(ctx, req.DiscountCode, subtotal)
		if err != nil {
			return nil, err
		}
	}

	// Reserving: consume one usage slot before anything is written. The
	// registry re-checks the limit atomically, so losing the race surfaces
	// here as ErrUsageLimitReached with no side effects yet.
	if code != nil {
		if err := s.codes.Reserve(ctx, code.ID); err != nil {
			return nil, err
		}
	}

	// Building: the discount amount is computed once against the validated
	// snapshot and copied onto the order, so later rule edits never change
	// what this order was charged.
	discountAmount := decimal.Zero
	appliedCode := ""
	if code != nil {
		discountAmount = discount.Compute(code, subtotal)
		appliedCode = code.Code
	}
	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	items := make([]Item, len(snap.Items))
	for i, it := range snap.Items {
		items[i] = Item{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}

	o := &Order{
		ID:              uuid.New().String(),
		Number:          newOrderNumber(),
		UserID:          req.UserID,
		Items:           items,
		Subtotal:        subtotal.Round(2),
		DiscountCode:    appliedCode,
		DiscountAmount:  discountAmount.Round(2),
		Total:           total.Round(2),
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
		CreatedAt:       s.now(),
	}

	// Persisting: on failure the reservation is the only side effect so far
	// and must be compensated.
	if err := s.orders.Create(ctx, o); err != nil {
		if code != nil {
			if relErr := s.codes.Release(ctx, code.ID); relErr != nil {
				zctx.From(ctx).Error("release reservation after failed persist",
					zap.String("code", code.Code),
					zap.Error(relErr),
				)
			}
		}
		return nil, errors.Wrap(err, "create order")
	}

	// Committed: the order exists. A failed cart clear is reported but does
	// not roll anything back; the stale cart is overwritten by the next
	// order anyway.
	if err := s.carts.Clear(ctx, req.UserID); err != nil {
		zctx.From(ctx).Warn("clear cart after order",
			zap.String("order", o.Number),
			zap.Error(err),
		)
	}

	return o, nil
}

// UpdateStatus applies an admin status change, enforcing the lifecycle
// transitions.
func (s *PlacementService) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}
	if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = next
	return o, nil
}

// newOrderNumber generates a human-readable order number like ORD-3FA2B1C4.
func newOrderNumber() string {
	id := uuid.New().String()
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}
