package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/catalog"
	"github.com/angelmondragon/shopledger-backend/internal/coupons"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/internal/payments"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/metrics"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

const (
	stageInitiate = "initiate"
	stageConfirm  = "confirm"
	stageCapture  = "capture"

	resultSuccess = "success"
	resultFailure = "failure"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InitiateInput starts a checkout for the owner's cart.
type InitiateInput struct {
	Owner           cart.Owner
	Email           string
	ShippingAddress types.Address
	BillingAddress  *types.Address
	CouponCode      *string
	CustomerNotes   *string
}

// InitiateResult is what the client needs to collect payment.
type InitiateResult struct {
	PaymentIntentID string      `json:"payment_intent_id"`
	ClientSecret    string      `json:"client_secret"`
	Totals          cart.Totals `json:"totals"`
	Currency        string      `json:"currency"`
	ExpiresAt       time.Time   `json:"expires_at"`
}

// CancelInput identifies the order to cancel and who asked.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   orders.Actor
	Reason  string
}

// Service orchestrates checkout: session, payment, stock and order.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Confirm(ctx context.Context, owner cart.Owner, paymentIntentID string) (*models.Order, error)
	GetSession(ctx context.Context, owner cart.Owner) (*Session, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	CapturePendingOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error)
	SweepExpiredSessions(ctx context.Context, now time.Time, limit int) (int, error)
}

// ServiceParams wires the orchestrator.
type ServiceParams struct {
	TxRunner   txRunner
	Carts      cart.Service
	Catalog    catalog.Reader
	Inventory  inventory.Service
	Coupons    coupons.Service
	Orders     orders.Service
	Gateway    payments.Gateway
	Sessions   SessionStore
	Outbox     outboxPublisher
	Logger     *logger.Logger
	Metrics    *metrics.CheckoutMetrics
	SessionTTL time.Duration
	Currency   string
	// Production disables the demo handle shortcut on payment verification.
	Production bool
	Clock      func() time.Time
}

type service struct {
	tx         txRunner
	carts      cart.Service
	catalog    catalog.Reader
	inventory  inventory.Service
	coupons    coupons.Service
	orders     orders.Service
	gateway    payments.Gateway
	sessions   SessionStore
	outbox     outboxPublisher
	logg       *logger.Logger
	metrics    *metrics.CheckoutMetrics
	ttl        time.Duration
	currency   enums.Currency
	production bool
	now        func() time.Time
}

// NewService validates dependencies and builds the orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart service required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog reader required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory service required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session store required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if strings.TrimSpace(params.Currency) == "" {
		params.Currency = string(enums.CurrencyUSD)
	}
	currency, err := enums.ParseCurrency(params.Currency)
	if err != nil {
		return nil, err
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:         params.TxRunner,
		carts:      params.Carts,
		catalog:    params.Catalog,
		inventory:  params.Inventory,
		coupons:    params.Coupons,
		orders:     params.Orders,
		gateway:    params.Gateway,
		sessions:   params.Sessions,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
		ttl:        ttl,
		currency:   currency,
		production: params.Production,
		now:        now,
	}, nil
}

// loadCart returns the owner's cart after re-validating every line.
func (s *service) loadCart(ctx context.Context, owner cart.Owner) (*models.Cart, error) {
	record, err := s.carts.Find(ctx, owner)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, emptyCart()
		}
		return nil, err
	}
	if len(record.Lines) == 0 {
		return nil, emptyCart()
	}
	violations, err := s.carts.Validate(ctx, record)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, cartInvalid(violations)
	}
	return record, nil
}

func sanitizeAddresses(shipping types.Address, billing *types.Address) (types.Address, types.Address, error) {
	ship := shipping.Sanitize()
	if missing := ship.MissingFields(); len(missing) > 0 {
		return types.Address{}, types.Address{}, addressInvalid("shipping_address", missing)
	}
	if billing == nil || billing.IsZero() {
		return ship, ship, nil
	}
	bill := billing.Sanitize()
	if missing := bill.MissingFields(); len(missing) > 0 {
		return types.Address{}, types.Address{}, addressInvalid("billing_address", missing)
	}
	return ship, bill, nil
}

func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// priceCart computes totals for the cart and applies the coupon if any.
func (s *service) priceCart(ctx context.Context, owner cart.Owner, record *models.Cart, shipTo types.Address, code *string) (cart.Totals, *models.Coupon, error) {
	totals := s.carts.Totals(record, &shipTo)
	if code == nil {
		return totals, nil, nil
	}
	coupon, err := s.coupons.Validate(ctx, *code, owner.UserID, totals.SubtotalCents)
	if err != nil {
		return cart.Totals{}, nil, err
	}
	discount := coupons.ComputeDiscount(coupon, totals.SubtotalCents)
	return totals.WithDiscount(discount, coupons.WaivesShipping(coupon)), coupon, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	result, err := s.initiate(ctx, input)
	if err != nil {
		s.metrics.IncOutcome(stageInitiate, resultFailure)
		return nil, err
	}
	s.metrics.IncOutcome(stageInitiate, resultSuccess)
	return result, nil
}

func (s *service) initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if err := input.Owner.Validate(); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid email required").WithDetails(map[string]any{"field": "email"})
	}

	record, err := s.loadCart(ctx, input.Owner)
	if err != nil {
		return nil, err
	}
	shipping, billing, err := sanitizeAddresses(input.ShippingAddress, input.BillingAddress)
	if err != nil {
		return nil, err
	}
	code := normalizeOptional(input.CouponCode)
	if code != nil {
		normalized := coupons.NormalizeCode(*code)
		code = &normalized
	}
	totals, _, err := s.priceCart(ctx, input.Owner, record, shipping, code)
	if err != nil {
		return nil, err
	}

	ownerID := input.Owner.ID()
	intent, err := s.gateway.CreateIntent(ctx, totals.TotalCents, string(s.currency), map[string]string{
		"owner_id": ownerID,
		"cart_id":  record.ID.String(),
	})
	if err != nil {
		return nil, paymentFailed(err, "create payment intent")
	}

	now := s.now()
	session := &Session{
		OwnerID:         ownerID,
		CartID:          record.ID,
		Email:           email,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		CouponCode:      code,
		Totals:          totals,
		Currency:        s.currency,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		CustomerNotes:   normalizeOptional(input.CustomerNotes),
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		if _, cancelErr := s.gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intent.ID), "could not cancel intent after session save failure")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}

	logCtx := s.logg.WithFields(s.logg.WithOwner(ctx, ownerID), map[string]any{
		"payment_intent_id": intent.ID,
		"total_cents":       totals.TotalCents,
	})
	s.logg.Info(logCtx, "checkout initiated")

	return &InitiateResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Totals:          totals,
		Currency:        string(s.currency),
		ExpiresAt:       session.ExpiresAt,
	}, nil
}

func (s *service) GetSession(ctx context.Context, owner cart.Owner) (*Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	session, err := s.sessions.Get(ctx, owner.ID())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, sessionExpired()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return session, nil
}

// verifyPayment reports whether the intent is only authorized. Demo handles
// outside production pass when the gateway does not know them.
func (s *service) verifyPayment(ctx context.Context, intentID string) (bool, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		if payments.IsDemoHandle(intentID) && !s.production {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intentID), "demo payment intent accepted without verification")
			return false, nil
		}
		return false, paymentFailed(err, "verify payment intent")
	}
	switch intent.Status {
	case payments.IntentSucceeded:
		return false, nil
	case payments.IntentRequiresCapture:
		return true, nil
	default:
		return false, paymentFailed(nil, "payment not completed").WithDetails(map[string]any{"status": intent.Status})
	}
}

// paidBy reports whether owner placed the order. Guest orders carry no user
// id, so the owner recorded on the payment intent decides.
func (s *service) paidBy(ctx context.Context, owner cart.Owner, order *models.Order, intentID string) bool {
	if order.UserID != nil {
		return owner.UserID != nil && *owner.UserID == *order.UserID
	}
	if owner.UserID != nil {
		return false
	}
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment intent lookup failed on confirm retry")
		return false
	}
	return intent.Metadata["owner_id"] == owner.ID()
}

func (s *service) Confirm(ctx context.Context, owner cart.Owner, paymentIntentID string) (*models.Order, error) {
	order, err := s.confirm(ctx, owner, strings.TrimSpace(paymentIntentID))
	if err != nil {
		s.metrics.IncOutcome(stageConfirm, resultFailure)
		return nil, err
	}
	s.metrics.IncOutcome(stageConfirm, resultSuccess)
	return order, nil
}

func (s *service) confirm(ctx context.Context, owner cart.Owner, intentID string) (*models.Order, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	ctx = s.logg.WithFields(s.logg.WithOwner(ctx, owner.ID()), map[string]any{"payment_intent_id": intentID})

	// A retried confirm after a successful commit returns the same order to
	// the owner who paid for it.
	if existing, err := s.orders.FindByPaymentIntent(ctx, intentID); err == nil {
		if !s.paidBy(ctx, owner, existing, intentID) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return existing, nil
	} else if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	authorizedOnly, err := s.verifyPayment(ctx, intentID)
	if err != nil {
		return nil, err
	}

	record, err := s.loadCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	session, err := s.GetSession(ctx, owner)
	if err != nil {
		return nil, err
	}
	if session.PaymentIntentID != intentID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent does not match checkout session")
	}

	totals, coupon, err := s.priceCart(ctx, owner, record, session.ShippingAddress, session.CouponCode)
	if err != nil {
		return nil, err
	}
	if totals.SubtotalCents != session.SubtotalCents || totals.TotalCents != session.TotalCents {
		return nil, cartChanged(session.SubtotalCents, totals.SubtotalCents)
	}

	items, lines, err := s.snapshotLines(ctx, record)
	if err != nil {
		return nil, err
	}

	now := s.now()
	input := orders.CreateInput{
		UserID:          owner.UserID,
		Email:           session.Email,
		Status:          enums.OrderStatusConfirmed,
		PaymentStatus:   enums.PaymentStatusCaptured,
		SubtotalCents:   session.SubtotalCents,
		TaxCents:        session.TaxCents,
		ShippingCents:   session.ShippingCents,
		DiscountCents:   session.DiscountCents,
		TotalCents:      session.TotalCents,
		Currency:        session.Currency,
		CouponCode:      session.CouponCode,
		ShippingAddress: session.ShippingAddress,
		BillingAddress:  session.BillingAddress,
		PaymentIntentID: &intentID,
		CustomerNotes:   session.CustomerNotes,
		PaidAt:          &now,
		Items:           items,
		Actor:           ownerActor(owner),
	}
	if authorizedOnly {
		input.Status = enums.OrderStatusPending
		input.PaymentStatus = enums.PaymentStatusAuthorized
		input.PaidAt = nil
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		hold := inventory.Ref{Type: "payment_intent", ID: intentID}
		if err := s.inventory.ReserveAll(ctx, tx, lines, hold); err != nil {
			return err
		}
		created, err := s.orders.Create(ctx, tx, input)
		if err != nil {
			return err
		}
		if !authorizedOnly {
			if err := s.inventory.DeductAll(ctx, tx, lines, inventory.OrderRef(created.ID)); err != nil {
				return err
			}
		}
		if coupon != nil {
			if err := s.coupons.RecordUsage(ctx, tx, coupon, owner.UserID, created.ID, session.DiscountCents); err != nil {
				return err
			}
		}
		if err := s.carts.ClearTx(ctx, tx, record.ID); err != nil {
			return err
		}
		if !authorizedOnly {
			if err := s.emitConfirmed(ctx, tx, created, ownerActor(owner)); err != nil {
				return err
			}
		}
		order = created
		return nil
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout confirmation rolled back, session kept for retry")
		return nil, err
	}

	if err := s.sessions.Delete(ctx, owner.ID()); err != nil {
		s.logg.Error(ctx, "failed to delete checkout session after confirmation", err)
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"order_number":   order.OrderNumber,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
	})
	s.logg.Info(logCtx, "checkout confirmed")
	return order, nil
}

// snapshotLines resolves every cart line against the catalog for the order
// item snapshot and builds the stock lines to reserve.
func (s *service) snapshotLines(ctx context.Context, record *models.Cart) ([]orders.ItemInput, []inventory.Line, error) {
	items := make([]orders.ItemInput, 0, len(record.Lines))
	lines := make([]inventory.Line, 0, len(record.Lines))
	for _, line := range record.Lines {
		item, err := catalog.Resolve(ctx, s.catalog, line.ProductID, line.VariantID)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, orders.ItemInput{
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			ProductName:    item.Name,
			ProductSKU:     item.SKU,
			VariantName:    item.VariantName,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
		})
		lines = append(lines, inventory.Line{
			Key: inventory.Key{ProductID: line.ProductID, VariantID: line.VariantID},
			Qty: line.Quantity,
		})
	}
	return items, lines, nil
}

func ownerActor(owner cart.Owner) orders.Actor {
	if owner.UserID != nil {
		return orders.Actor{Kind: orders.ActorUser, ID: owner.UserID.String()}
	}
	return orders.Actor{Kind: orders.ActorUser, ID: owner.ID()}
}

func stockLines(order *models.Order) []inventory.Line {
	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		lines = append(lines, inventory.Line{
			Key: inventory.Key{ProductID: *item.ProductID, VariantID: item.VariantID},
			Qty: item.Quantity,
		})
	}
	return lines
}
