package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ministore/api/internal/domain/discount"
)

const discountColumns = `id, code, discount_type, discount_value, min_order_amount,
	max_discount_amount, start_date, end_date, usage_limit, used_count,
	is_active, created_at, updated_at`

const (
	findCodeSQL = `SELECT ` + discountColumns + ` FROM discount_codes WHERE code = $1`

	listActiveCodesSQL = `SELECT ` + discountColumns + ` FROM discount_codes
	WHERE is_active AND start_date <= $1 AND end_date > $1
	ORDER BY end_date`

	listCodesSQL = `SELECT ` + discountColumns + ` FROM discount_codes ORDER BY created_at DESC`

	// The conditional increment is the whole concurrency story: the usage
	// limit is re-checked inside the UPDATE, so two racing callers can never
	// push used_count past usage_limit. An affected-rows count of zero means
	// the race was lost (or the code vanished).
	reserveCodeSQL = `UPDATE discount_codes
	SET used_count = used_count + 1, updated_at = now()
	WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	releaseCodeSQL = `UPDATE discount_codes
	SET used_count = GREATEST(used_count - 1, 0), updated_at = now()
	WHERE id = $1`

	insertCodeSQL = `INSERT INTO discount_codes (` + discountColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateCodeSQL = `UPDATE discount_codes
	SET discount_type = $2, discount_value = $3, min_order_amount = $4,
		max_discount_amount = $5, start_date = $6, end_date = $7,
		usage_limit = $8, is_active = $9, updated_at = now()
	WHERE id = $1`

	deactivateCodeSQL = `UPDATE discount_codes SET is_active = FALSE, updated_at = now() WHERE id = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up a code by exact, case-sensitive match, active or not.
// Returns discount.ErrCodeNotFound when no row matches.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.pool.Query(ctx, findCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrCodeNotFound
		}
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	return &c, nil
}

// ListActive returns codes inside their validity window with the active flag
// set. Usage limits are not filtered here.
func (r *DiscountRepository) ListActive(ctx context.Context, now time.Time) ([]discount.Code, error) {
	rows, err := r.pool.Query(ctx, listActiveCodesSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active discount codes: %w", err)
	}
	return pgx.CollectRows(rows, scanCode)
}

// Reserve atomically consumes one usage slot. Returns
// discount.ErrUsageLimitReached when the conditional increment matched no
// row because the limit is exhausted.
func (r *DiscountRepository) Reserve(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, reserveCodeSQL, id)
	if err != nil {
		return fmt.Errorf("reserving discount code %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrUsageLimitReached
	}
	return nil
}

// Release undoes one reservation, flooring at zero.
func (r *DiscountRepository) Release(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, releaseCodeSQL, id); err != nil {
		return fmt.Errorf("releasing discount code %q: %w", id, err)
	}
	return nil
}

// Create inserts a new discount code.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	_, err := r.pool.Exec(ctx, insertCodeSQL,
		c.ID, c.Code, string(c.Type), c.Value, c.MinOrderAmount,
		c.MaxDiscountAmount, c.StartDate, c.EndDate, c.UsageLimit, c.UsedCount,
		c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating discount code %q: %w", c.Code, err)
	}
	return nil
}

// Update edits a code's rule. The code string and used_count are not
// editable: the former is identity, the latter only moves through
// Reserve/Release.
func (r *DiscountRepository) Update(ctx context.Context, c *discount.Code) error {
	tag, err := r.pool.Exec(ctx, updateCodeSQL,
		c.ID, string(c.Type), c.Value, c.MinOrderAmount, c.MaxDiscountAmount,
		c.StartDate, c.EndDate, c.UsageLimit, c.Active,
	)
	if err != nil {
		return fmt.Errorf("updating discount code %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrCodeNotFound
	}
	return nil
}

// Deactivate soft-disables a code. Codes are never destroyed.
func (r *DiscountRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deactivateCodeSQL, id)
	if err != nil {
		return fmt.Errorf("deactivating discount code %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrCodeNotFound
	}
	return nil
}

// List returns every code, newest first, for the admin surface.
func (r *DiscountRepository) List(ctx context.Context) ([]discount.Code, error) {
	rows, err := r.pool.Query(ctx, listCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return pgx.CollectRows(rows, scanCode)
}

func scanCode(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c            discount.Code
		discountType string
		usageLimit   int32
		usedCount    int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &c.MinOrderAmount,
		&c.MaxDiscountAmount, &c.StartDate, &c.EndDate, &usageLimit, &usedCount,
		&c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = discount.Type(discountType)
	c.UsageLimit = int(usageLimit)
	c.UsedCount = int(usedCount)
	return c, err
}
