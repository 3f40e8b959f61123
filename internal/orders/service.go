package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/shopledger-backend/pkg/db"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopledger-backend/pkg/pagination"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxOrderNumberAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ItemInput is the catalog snapshot of one purchased line.
type ItemInput struct {
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	ProductName    string
	ProductSKU     string
	VariantName    *string
	UnitPriceCents int
	Quantity       int
}

// CreateInput carries everything checkout knows when it commits an order.
type CreateInput struct {
	UserID          *uuid.UUID
	Email           string
	Status          enums.OrderStatus
	PaymentStatus   enums.PaymentStatus
	SubtotalCents   int
	TaxCents        int
	ShippingCents   int
	DiscountCents   int
	TotalCents      int
	Currency        enums.Currency
	CouponCode      *string
	ShippingAddress types.Address
	BillingAddress  types.Address
	PaymentIntentID *string
	CustomerNotes   *string
	PaidAt          *time.Time
	Items           []ItemInput
	Actor           Actor
}

// UpdateStatusInput is an operator-driven fulfillment transition.
type UpdateStatusInput struct {
	OrderID        uuid.UUID
	Status         enums.OrderStatus
	Actor          Actor
	Notes          string
	TrackingNumber *string
	Carrier        *string
}

// Service owns the order aggregate and its state machine.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error)
	History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusHistory, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor Actor, notes string) error
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Outbox     outboxPublisher
	Logger     *logger.Logger
	// Numbers overrides order number generation, mainly for tests.
	Numbers func(time.Time) string
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	numbers func(time.Time) string
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewOrderNumber
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TxRunner,
		outbox:  params.Outbox,
		logg:    params.Logger,
		numbers: numbers,
		now:     now,
	}, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, what)
}

func validateCreate(input CreateInput) error {
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.Status != enums.OrderStatusPending && input.Status != enums.OrderStatusConfirmed {
		return pkgerrors.New(pkgerrors.CodeValidation, "orders start pending or confirmed").WithDetails(map[string]any{"status": input.Status})
	}
	if !input.PaymentStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	subtotal := 0
	for _, item := range input.Items {
		if item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid order item").WithDetails(map[string]any{"product_id": item.ProductID})
		}
		subtotal += item.UnitPriceCents * item.Quantity
	}
	if subtotal != input.SubtotalCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "order subtotal does not match items")
	}
	if input.TotalCents != input.SubtotalCents+input.TaxCents+input.ShippingCents-input.DiscountCents || input.TotalCents < 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "order total does not add up")
	}
	return nil
}

func isOrderNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, "uq_orders_order_number") || db.IsUniqueViolation(err, "orders.order_number")
}

// Create inserts the order, its items and the initial history row inside
// tx. An order number collision rolls back to a savepoint and retries with
// a fresh number.
func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation requires a transaction")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		productID := item.ProductID
		items = append(items, models.OrderItem{
			ProductID:      &productID,
			VariantID:      item.VariantID,
			ProductName:    item.ProductName,
			ProductSKU:     item.ProductSKU,
			VariantName:    item.VariantName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.UnitPriceCents * item.Quantity,
		})
	}
	order := &models.Order{
		UserID:          input.UserID,
		Email:           input.Email,
		Status:          input.Status,
		PaymentStatus:   input.PaymentStatus,
		SubtotalCents:   input.SubtotalCents,
		TaxCents:        input.TaxCents,
		ShippingCents:   input.ShippingCents,
		DiscountCents:   input.DiscountCents,
		TotalCents:      input.TotalCents,
		Currency:        input.Currency,
		CouponCode:      input.CouponCode,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		PaymentIntentID: input.PaymentIntentID,
		CustomerNotes:   input.CustomerNotes,
		PaidAt:          input.PaidAt,
		Items:           items,
	}

	var lastErr error
	created := false
	for attempt := 0; attempt < maxOrderNumberAttempts && !created; attempt++ {
		order.OrderNumber = s.numbers(s.now())
		savepoint := fmt.Sprintf("order_number_%d", attempt)
		if err := tx.SavePoint(savepoint).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		lastErr = repo.Create(ctx, order)
		switch {
		case lastErr == nil:
			created = true
		case isOrderNumberCollision(lastErr):
			if err := tx.RollbackTo(savepoint).Error; err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback savepoint")
			}
			s.logg.Warn(s.logg.WithField(ctx, "order_number", order.OrderNumber), "order number collision, retrying")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "create order")
		}
	}
	if !created {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "could not allocate a unique order number")
	}

	history := &models.OrderStatusHistory{
		OrderID:  order.ID,
		ToStatus: order.Status,
		Actor:    input.Actor.String(),
	}
	if err := repo.CreateHistory(ctx, history); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order history")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"total_cents":  order.TotalCents,
	})
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "load order")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	order, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, notFound(err, "load order")
	}
	return order, nil
}

// GetForUpdate loads and locks the order inside tx.
func (s *service) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, "lock order")
	}
	return order, nil
}

func (s *service) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	order, err := s.repo.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, notFound(err, "load order")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, userID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusHistory, error) {
	rows, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	return rows, nil
}

// Transition moves order to the target status inside tx, stamps the
// matching timestamp and appends a history row. Besides status it persists
// the payment, cancel and tracking fields the caller set on order.
func (s *service) Transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor Actor, notes string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order transition requires a transaction")
	}
	from := order.Status
	if !CanTransition(from, to) {
		return ErrInvalidTransition(from, to)
	}

	now := s.now()
	switch to {
	case enums.OrderStatusShipped:
		order.ShippedAt = &now
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	case enums.OrderStatusRefunded:
		order.RefundedAt = &now
	}

	repo := s.repo.WithTx(tx)
	updates := map[string]any{
		"status":          to,
		"payment_status":  order.PaymentStatus,
		"paid_at":         order.PaidAt,
		"tracking_number": order.TrackingNumber,
		"carrier":         order.Carrier,
		"cancel_reason":   order.CancelReason,
		"shipped_at":      order.ShippedAt,
		"delivered_at":    order.DeliveredAt,
		"cancelled_at":    order.CancelledAt,
		"refunded_at":     order.RefundedAt,
		"updated_at":      now,
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	history := &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: &from,
		ToStatus:   to,
		Actor:      actor.String(),
	}
	if notes != "" {
		history.Notes = &notes
	}
	if err := repo.CreateHistory(ctx, history); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order history")
	}
	order.Status = to
	order.UpdatedAt = now

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from":  from,
		"to":    to,
		"actor": actor.String(),
	})
	s.logg.Info(logCtx, "order status changed")
	return nil
}

var operatorTargets = map[enums.OrderStatus]struct{}{
	enums.OrderStatusProcessing: {},
	enums.OrderStatusShipped:    {},
	enums.OrderStatusDelivered:  {},
}

// UpdateStatus applies a fulfillment transition. Cancel, capture and
// refund move stock or money and go through checkout instead.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, ok := operatorTargets[input.Status]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status can only be set to processing, shipped or delivered here").
			WithDetails(map[string]any{"status": input.Status})
	}

	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.GetForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		from := order.Status
		if input.Status == enums.OrderStatusShipped {
			if input.TrackingNumber != nil {
				order.TrackingNumber = input.TrackingNumber
			}
			if input.Carrier != nil {
				order.Carrier = input.Carrier
			}
		}
		if err := s.Transition(ctx, tx, order, input.Status, input.Actor, input.Notes); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.Ref(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				FromStatus:  from,
				ToStatus:    order.Status,
				Notes:       input.Notes,
				ChangedAt:   order.UpdatedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}
		if order.Status == enums.OrderStatusShipped {
			shipped := outbox.DomainEvent{
				EventType:     enums.EventOrderShipped,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         input.Actor.Ref(),
				Data: payloads.OrderShippedEvent{
					OrderID:        order.ID,
					OrderNumber:    order.OrderNumber,
					Email:          order.Email,
					UserID:         order.UserID,
					TrackingNumber: order.TrackingNumber,
					Carrier:        order.Carrier,
					ShippedAt:      *order.ShippedAt,
				},
			}
			if err := s.outbox.Emit(ctx, tx, shipped); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order shipped event")
			}
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending orders")
	}
	return rows, nil
}
