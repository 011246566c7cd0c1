// Package discount holds the promotional code catalog: rule kinds, the pure
// discount calculator, and the registry that validates and atomically
// redeems usage-capped codes.
package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount rule kinds.
type Type string

const (
	// TypePercentage discounts a percentage of the order subtotal,
	// optionally capped by MaxDiscountAmount.
	TypePercentage Type = "PERCENTAGE"
	// TypeFixedAmount discounts a fixed amount, clamped to the subtotal.
	TypeFixedAmount Type = "FIXED_AMOUNT"
)

// Validation and redemption failures. All are recoverable at the request
// boundary and map to 4xx responses.
var (
	ErrCodeNotFound      = errors.New("discount code not found")
	ErrCodeExpired       = errors.New("discount code expired")
	ErrCodeNotStarted    = errors.New("discount code not active yet")
	ErrCodeInactive      = errors.New("discount code is disabled")
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
)

// MinOrderNotMetError is returned when the order subtotal is below the
// code's minimum. It carries the shortfall for a user-facing message.
type MinOrderNotMetError struct {
	MinOrderAmount decimal.Decimal
	Shortfall      decimal.Decimal
}

func (e *MinOrderNotMetError) Error() string {
	return fmt.Sprintf("order must be at least %s to use this code (%s short)",
		e.MinOrderAmount, e.Shortfall)
}

// Code is a redeemable promotional code.
//
// UsedCount only ever increases, and only through Repository.Reserve; the
// single invariant the storage layer must uphold is
// usedCount <= usageLimit whenever usageLimit > 0. A zero UsageLimit means
// unlimited, a zero MaxDiscountAmount means uncapped.
type Code struct {
	ID                string
	Code              string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount decimal.Decimal
	StartDate         time.Time
	EndDate           time.Time
	UsageLimit        int
	UsedCount         int
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Expired reports whether the code's window has ended at time now.
// The window is half-open: end date itself is already expired.
func (c *Code) Expired(now time.Time) bool {
	return !now.Before(c.EndDate)
}

// NotStarted reports whether the code's window has not begun at time now.
func (c *Code) NotStarted(now time.Time) bool {
	return now.Before(c.StartDate)
}

// UsageExhausted reports whether the usage cap has been reached.
func (c *Code) UsageExhausted() bool {
	return c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit
}

// Repository provides lookup and atomic redemption of discount codes.
type Repository interface {
	// FindByCode returns the code matching the given string exactly
	// (case-sensitive), active or not. Returns ErrCodeNotFound when absent.
	FindByCode(ctx context.Context, code string) (*Code, error)
	// ListActive returns codes whose window contains now and whose active
	// flag is set. Usage limits are deliberately not checked here.
	ListActive(ctx context.Context, now time.Time) ([]Code, error)

	// Reserve consumes one unit of the code's usage limit. The increment is
	// a single conditional write: it must fail with ErrUsageLimitReached
	// rather than ever letting used_count pass usage_limit, no matter how
	// many callers race on the same code.
	Reserve(ctx context.Context, id string) error
	// Release undoes one reservation after a dependent step failed.
	Release(ctx context.Context, id string) error

	// Admin authoring operations.
	Create(ctx context.Context, c *Code) error
	Update(ctx context.Context, c *Code) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context) ([]Code, error)
}
