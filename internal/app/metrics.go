package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ministore/api/internal/domain/discount"
	"github.com/ministore/api/internal/domain/order"
)

// storeMetrics holds the business-level counters. Request-level metrics come
// from the otelhttp wrapper, so only domain events are counted here.
type storeMetrics struct {
	ordersPlaced  metric.Int64Counter
	codesRedeemed metric.Int64Counter
	codesReleased metric.Int64Counter
}

func newStoreMetrics(mp metric.MeterProvider) (*storeMetrics, error) {
	meter := mp.Meter("github.com/ministore/api")

	ordersPlaced, err := meter.Int64Counter("store.orders.placed",
		metric.WithDescription("Orders successfully persisted"))
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	codesRedeemed, err := meter.Int64Counter("store.discounts.redeemed",
		metric.WithDescription("Discount code usage slots reserved"))
	if err != nil {
		return nil, errors.Wrap(err, "redeemed counter")
	}
	codesReleased, err := meter.Int64Counter("store.discounts.released",
		metric.WithDescription("Reservations released by compensation"))
	if err != nil {
		return nil, errors.Wrap(err, "released counter")
	}

	return &storeMetrics{
		ordersPlaced:  ordersPlaced,
		codesRedeemed: codesRedeemed,
		codesReleased: codesReleased,
	}, nil
}

// instrumentedOrderRepo counts successful order creations.
type instrumentedOrderRepo struct {
	order.Repository
	metrics *storeMetrics
}

func (r *instrumentedOrderRepo) Create(ctx context.Context, o *order.Order) error {
	if err := r.Repository.Create(ctx, o); err != nil {
		return err
	}
	r.metrics.ordersPlaced.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("discounted", o.DiscountCode != "")))
	return nil
}

// instrumentedDiscountRepo counts the reserve/release cycle.
type instrumentedDiscountRepo struct {
	discount.Repository
	metrics *storeMetrics
}

func (r *instrumentedDiscountRepo) Reserve(ctx context.Context, id string) error {
	if err := r.Repository.Reserve(ctx, id); err != nil {
		return err
	}
	r.metrics.codesRedeemed.Add(ctx, 1)
	return nil
}

func (r *instrumentedDiscountRepo) Release(ctx context.Context, id string) error {
	if err := r.Repository.Release(ctx, id); err != nil {
		return err
	}
	r.metrics.codesReleased.Add(ctx, 1)
	return nil
}
