package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Registry validates discount codes against an order amount and mediates
// the reserve/release cycle around order placement.
//
// Validate is read-only and returns a snapshot of the code; the window
// between Validate and Reserve is closed by the repository's conditional
// increment, so a validation that passes may still lose the race and fail
// at Reserve with ErrUsageLimitReached.
type Registry struct {
	repo Repository
	now  func() time.Time
}

// NewRegistry creates a Registry backed by the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// Validate checks the code string against the catalog and the order amount.
// On success it returns the code entity snapshot so the caller computes the
// discount against a consistent view. Checks run in a fixed order:
// not-found, expired, not-started, inactive, usage limit, minimum order.
func (r *Registry) Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*Code, error) {
	c, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "lookup code")
	}

	now := r.now()
	switch {
	case c.Expired(now):
		return nil, ErrCodeExpired
	case c.NotStarted(now):
		return nil, ErrCodeNotStarted
	case !c.Active:
		return nil, ErrCodeInactive
	case c.UsageExhausted():
		return nil, ErrUsageLimitReached
	}

	if orderAmount.LessThan(c.MinOrderAmount) {
		return nil, &MinOrderNotMetError{
			MinOrderAmount: c.MinOrderAmount,
			Shortfall:      c.MinOrderAmount.Sub(orderAmount),
		}
	}

	return c, nil
}

// Reserve consumes one usage slot for the code. Fails with
// ErrUsageLimitReached when the limit was hit concurrently since Validate.
func (r *Registry) Reserve(ctx context.Context, id string) error {
	return r.repo.Reserve(ctx, id)
}

// Release returns a previously reserved slot. Called only as compensation
// when an order fails to persist after a successful Reserve.
func (r *Registry) Release(ctx context.Context, id string) error {
	return r.repo.Release(ctx, id)
}

// ListActive returns the codes currently inside their validity window with
// the active flag set. Usage limits are not consulted, matching the
// storefront's promotions listing.
func (r *Registry) ListActive(ctx context.Context) ([]Code, error) {
	return r.repo.ListActive(ctx, r.now())
}
