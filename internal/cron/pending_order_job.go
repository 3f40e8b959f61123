package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/shopledger-backend/internal/checkout"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

const (
	defaultPendingTimeout = 30 * time.Minute
	defaultPendingBatch   = 100
	pendingExpiryReason   = "payment not captured before the pending timeout"
)

type pendingOrderFinder interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, input checkout.CancelInput) (*models.Order, error)
}

// PendingOrderJobParams configure the pending order expiry.
type PendingOrderJobParams struct {
	Logger    *logger.Logger
	Orders    pendingOrderFinder
	Checkout  orderCanceller
	Timeout   time.Duration
	BatchSize int
	Clock     func() time.Time
}

// NewPendingOrderJob cancels orders left pending past the timeout, which
// releases their reservations and voids the authorization. Running it on two
// instances at once is safe because cancel re-reads the order under a row
// lock and a second cancel is a no-op.
func NewPendingOrderJob(params PendingOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order finder required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPendingTimeout
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPendingBatch
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &pendingOrderJob{
		logg:     params.Logger,
		orders:   params.Orders,
		checkout: params.Checkout,
		timeout:  timeout,
		batch:    batch,
		now:      now,
	}, nil
}

type pendingOrderJob struct {
	logg     *logger.Logger
	orders   pendingOrderFinder
	checkout orderCanceller
	timeout  time.Duration
	batch    int
	now      func() time.Time
}

func (j *pendingOrderJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.timeout)
	pending, err := j.orders.FindPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find pending orders: %w", err)
	}

	var errs error
	cancelled := 0
	for _, order := range pending {
		orderCtx := j.logg.WithFields(j.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"order_number": order.OrderNumber,
		})
		_, err := j.checkout.Cancel(orderCtx, checkout.CancelInput{
			OrderID: order.ID,
			Actor:   orders.SystemCompensation,
			Reason:  pendingExpiryReason,
		})
		if err != nil {
			j.logg.Warn(j.logg.WithField(orderCtx, "error", err.Error()), "pending order expiry failed")
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderNumber, err))
			continue
		}
		cancelled++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"found":     len(pending),
		"cancelled": cancelled,
	}), "pending order expiry complete")
	return errs
}
