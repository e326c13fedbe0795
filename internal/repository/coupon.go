package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mieledautore/shop-backend/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, type, value, maximum_discount, minimum_amount,
			valid_until, usage_limit, usage_count, description
		FROM coupons WHERE code = UPPER($1) AND is_active = TRUE`

	// The usage_count predicate prevents a burst of concurrent checkouts from
	// pushing a limited coupon past its cap.
	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE code = UPPER($1)
		AND (usage_limit IS NULL OR usage_count < usage_limit)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// IncrementUsage bumps the usage counter. Returns coupon.ErrExhausted when
// the coupon has already reached its usage limit.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule            coupon.Rule
		couponType      string
		value           decimal.Decimal
		maximumDiscount *decimal.Decimal
		minimumAmount   decimal.Decimal
		validUntil      *time.Time
		usageLimit      *int32
		usageCount      int32
	)
	err := row.Scan(
		&rule.Code, &couponType, &value, &maximumDiscount, &minimumAmount,
		&validUntil, &usageLimit, &usageCount, &rule.Description,
	)
	rule.Type = coupon.DiscountType(couponType)
	rule.Value = value
	rule.MaximumDiscount = maximumDiscount
	rule.MinimumAmount = minimumAmount
	rule.ValidUntil = validUntil
	if usageLimit != nil {
		rule.UsageLimit = int(*usageLimit)
	}
	rule.UsageCount = int(usageCount)
	return rule, err
}
