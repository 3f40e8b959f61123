package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/catalog"
	"github.com/angelmondragon/shopledger-backend/internal/checkout"
	"github.com/angelmondragon/shopledger-backend/internal/coupons"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/internal/payments"
	"github.com/angelmondragon/shopledger-backend/pkg/config"
	"github.com/angelmondragon/shopledger-backend/pkg/db"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/metrics"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/shopledger-backend/pkg/stripe"
)

// Services is the domain layer shared by the api and the cron worker.
type Services struct {
	Cart      cart.Service
	Checkout  checkout.Service
	Orders    orders.Service
	Inventory inventory.Service
	Coupons   coupons.Service
	// DeadLetters lets operators inspect and requeue parked outbox events.
	DeadLetters *outbox.DLQRepository
}

// Build wires repositories, the outbox and the payment gateway into the
// domain services. reg may be nil to skip metrics.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || dbClient == nil || redisClient == nil {
		return nil, errors.New("config, database and redis are required")
	}

	var checkoutMetrics *metrics.CheckoutMetrics
	if reg != nil {
		checkoutMetrics = metrics.NewCheckoutMetrics(reg)
	}

	gormDB := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(gormDB), logg)
	reader := catalog.NewReader(gormDB)

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repository:       inventory.NewRepository(gormDB),
		TxRunner:         dbClient,
		Outbox:           events,
		Logger:           logg,
		Metrics:          checkoutMetrics,
		DefaultThreshold: cfg.Inventory.DefaultReorderThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	calc := cart.Calculator{
		Tax:      cart.NewStaticTaxTable(cfg.Checkout.TaxRate()),
		Shipping: cart.FlatRateShipping{FreeThresholdCents: cfg.Checkout.FreeShippingThresholdCent},
	}
	cartSvc, err := cart.NewService(cart.NewRepository(gormDB), dbClient, reader, inventorySvc, calc, logg)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repository: coupons.NewRepository(gormDB),
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("coupon service: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(gormDB),
		TxRunner:   dbClient,
		Outbox:     events,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	gateway, err := newGateway(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	sessions, err := checkout.NewRedisSessionStore(redisClient)
	if err != nil {
		return nil, fmt.Errorf("checkout session store: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		TxRunner:   dbClient,
		Carts:      cartSvc,
		Catalog:    reader,
		Inventory:  inventorySvc,
		Coupons:    couponSvc,
		Orders:     orderSvc,
		Gateway:    gateway,
		Sessions:   sessions,
		Outbox:     events,
		Logger:     logg,
		Metrics:    checkoutMetrics,
		SessionTTL: cfg.Checkout.SessionTTL,
		Currency:   cfg.Checkout.Currency,
		Production: cfg.App.IsProd(),
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	return &Services{
		Cart:        cartSvc,
		Checkout:    checkoutSvc,
		Orders:      orderSvc,
		Inventory:   inventorySvc,
		Coupons:     couponSvc,
		DeadLetters: outbox.NewDLQRepository(gormDB),
	}, nil
}

// newGateway picks Stripe when a key is configured. Without one the demo
// gateway is used, which production refuses.
func newGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Gateway, error) {
	if cfg.Stripe.Enabled() {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		return payments.NewStripeGateway(client, cfg.Stripe.ManualCapture)
	}
	if cfg.App.IsProd() {
		return nil, errors.New("stripe api key is required in production")
	}
	if logg != nil {
		logg.Warn(ctx, "stripe not configured, using demo payment gateway")
	}
	return payments.NewDemoGateway(), nil
}
