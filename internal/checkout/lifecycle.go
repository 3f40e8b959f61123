package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox/payloads"
)

func orderLines(order *models.Order) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			ProductName:    item.ProductName,
			ProductSKU:     item.ProductSKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return lines
}

func (s *service) emitConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order, actor orders.Actor) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.Ref(),
		Data: payloads.OrderConfirmedEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			UserID:          order.UserID,
			Email:           order.Email,
			Status:          order.Status,
			PaymentStatus:   order.PaymentStatus,
			SubtotalCents:   order.SubtotalCents,
			TaxCents:        order.TaxCents,
			ShippingCents:   order.ShippingCents,
			DiscountCents:   order.DiscountCents,
			TotalCents:      order.TotalCents,
			Currency:        order.Currency,
			CouponCode:      order.CouponCode,
			PaymentIntentID: order.PaymentIntentID,
			Lines:           orderLines(order),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order confirmed event")
	}
	return nil
}

// ownsOrder reports whether a user actor may act on the order. Operators
// may act on any order.
func ownsOrder(actor orders.Actor, order *models.Order) bool {
	if actor.IsAdmin() {
		return true
	}
	return order.UserID != nil && order.UserID.String() == actor.ID
}

// Cancel moves a pending, confirmed or (for operators) processing order to
// cancelled, gives the stock back and refunds or voids the payment. Cancelling
// an already cancelled order returns it unchanged.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var (
		result   *models.Order
		noop     bool
		refundID *string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.GetForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if !ownsOrder(input.Actor, order) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status == enums.OrderStatusCancelled {
			result, noop = order, true
			return nil
		}
		if !orders.CanTransition(order.Status, enums.OrderStatusCancelled) {
			return orders.ErrInvalidTransition(order.Status, enums.OrderStatusCancelled)
		}
		if order.Status == enums.OrderStatusProcessing && !input.Actor.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is being processed and can only be cancelled by an operator").
				WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusCancelled})
		}

		previous := order.Status
		lines := stockLines(order)
		ref := inventory.OrderRef(order.ID)
		if previous == enums.OrderStatusPending {
			err = s.inventory.ReleaseAll(ctx, tx, lines, ref)
		} else {
			err = s.inventory.RestockAll(ctx, tx, lines, ref)
		}
		if err != nil {
			return err
		}

		// The gateway is called last; only the commit can fail after it.
		settle := enums.PaymentStatus("")
		if order.PaymentIntentID != nil && order.PaymentStatus.HoldsFunds() {
			switch order.PaymentStatus {
			case enums.PaymentStatusCaptured:
				settle = enums.PaymentStatusRefunded
			case enums.PaymentStatusAuthorized:
				settle = enums.PaymentStatusVoided
			}
		}
		if settle != "" {
			order.PaymentStatus = settle
		}

		reason := input.Reason
		if reason != "" {
			order.CancelReason = &reason
		}
		if err := s.orders.Transition(ctx, tx, order, enums.OrderStatusCancelled, input.Actor, reason); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.Ref(),
			Data: payloads.OrderCancelledEvent{
				OrderID:         order.ID,
				OrderNumber:     order.OrderNumber,
				PreviousState:   previous,
				PaymentStatus:   order.PaymentStatus,
				PaymentIntentID: order.PaymentIntentID,
				Reason:          reason,
				CancelledAt:     *order.CancelledAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order cancelled event")
		}

		switch settle {
		case enums.PaymentStatusRefunded:
			refund, err := s.gateway.CreateRefund(ctx, *order.PaymentIntentID, nil)
			if err != nil {
				return paymentFailed(err, "refund payment")
			}
			refundID = &refund.ID
		case enums.PaymentStatusVoided:
			if _, err := s.gateway.CancelIntent(ctx, *order.PaymentIntentID); err != nil {
				return paymentFailed(err, "void payment authorization")
			}
		}
		result = order
		return nil
	})
	if err != nil {
		if refundID != nil {
			s.logg.Error(s.logg.WithField(ctx, "refund_id", *refundID), "refund issued but cancellation rolled back", err)
		}
		return nil, err
	}
	if noop {
		s.logg.Info(ctx, "order already cancelled")
		return result, nil
	}

	s.metrics.IncCancellation(string(input.Actor.Kind))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"actor":          input.Actor.String(),
		"payment_status": result.PaymentStatus,
	})
	if refundID != nil {
		logCtx = s.logg.WithField(logCtx, "refund_id", *refundID)
	}
	s.logg.Info(logCtx, "order cancelled")
	return result, nil
}

// CapturePendingOrder captures an authorized payment, turns the held
// reservations into deductions and confirms the order.
func (s *service) CapturePendingOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusAuthorized {
			return orders.ErrInvalidTransition(order.Status, enums.OrderStatusConfirmed)
		}
		if order.PaymentIntentID == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "authorized order has no payment intent")
		}

		if err := s.inventory.DeductAll(ctx, tx, stockLines(order), inventory.OrderRef(order.ID)); err != nil {
			return err
		}
		if _, err := s.gateway.CaptureIntent(ctx, *order.PaymentIntentID); err != nil {
			return paymentFailed(err, "capture payment")
		}

		now := s.now()
		order.PaymentStatus = enums.PaymentStatusCaptured
		order.PaidAt = &now
		if err := s.orders.Transition(ctx, tx, order, enums.OrderStatusConfirmed, actor, "payment captured"); err != nil {
			return err
		}
		if err := s.emitConfirmed(ctx, tx, order, actor); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		s.metrics.IncOutcome(stageCapture, resultFailure)
		return nil, err
	}
	s.metrics.IncOutcome(stageCapture, resultSuccess)
	s.logg.Info(s.logg.WithField(ctx, "actor", actor.String()), "pending order captured")
	return result, nil
}

// RefundOrder refunds a delivered order in full. Stock is not restored.
func (s *service) RefundOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(order.Status, enums.OrderStatusRefunded) {
			return orders.ErrInvalidTransition(order.Status, enums.OrderStatusRefunded)
		}
		if order.PaymentIntentID == nil || !order.PaymentStatus.CanBecome(enums.PaymentStatusRefunded) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment to refund").
				WithDetails(map[string]any{"payment_status": order.PaymentStatus})
		}
		previous := order.Status
		order.PaymentStatus = enums.PaymentStatusRefunded
		if err := s.orders.Transition(ctx, tx, order, enums.OrderStatusRefunded, actor, reason); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.Ref(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				FromStatus:  previous,
				ToStatus:    order.Status,
				Notes:       reason,
				ChangedAt:   *order.RefundedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order refunded event")
		}
		if _, err := s.gateway.CreateRefund(ctx, *order.PaymentIntentID, nil); err != nil {
			return paymentFailed(err, "refund payment")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "actor", actor.String()), "order refunded")
	return result, nil
}

// SweepExpiredSessions cleans up sessions whose expiry has passed: leftover
// keys are deleted and the orphaned payment intents are cancelled at the
// gateway. Gateway failures are logged and do not keep the entry around.
func (s *service) SweepExpiredSessions(ctx context.Context, now time.Time, limit int) (int, error) {
	entries, err := s.sessions.Expired(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired checkout sessions")
	}

	var errs error
	swept := 0
	for _, entry := range entries {
		entryCtx := s.logg.WithFields(s.logg.WithOwner(ctx, entry.OwnerID), map[string]any{"payment_intent_id": entry.PaymentIntentID})

		_, err := s.orders.FindByPaymentIntent(entryCtx, entry.PaymentIntentID)
		converted := err == nil
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			errs = multierr.Append(errs, err)
			continue
		}

		if converted {
			err = s.sessions.Unindex(entryCtx, entry)
		} else {
			err = s.sessions.Discard(entryCtx, entry)
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !converted {
			if _, err := s.gateway.CancelIntent(entryCtx, entry.PaymentIntentID); err != nil {
				s.logg.Warn(s.logg.WithField(entryCtx, "error", err.Error()), "could not cancel abandoned payment intent")
			}
		}
		swept++
		s.logg.Info(entryCtx, "abandoned checkout session swept")
	}
	return swept, errs
}
