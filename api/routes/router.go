package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopledger-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/shopledger-backend/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/shopledger-backend/api/controllers/checkout"
	couponcontrollers "github.com/angelmondragon/shopledger-backend/api/controllers/coupons"
	inventorycontrollers "github.com/angelmondragon/shopledger-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/shopledger-backend/api/controllers/orders"
	outboxcontrollers "github.com/angelmondragon/shopledger-backend/api/controllers/outbox"
	"github.com/angelmondragon/shopledger-backend/api/middleware"
	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/checkout"
	"github.com/angelmondragon/shopledger-backend/internal/coupons"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/pkg/config"
	"github.com/angelmondragon/shopledger-backend/pkg/db"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the router needs.
type RedisStore interface {
	redis.IdempotencyStore
	Ping(ctx context.Context) error
}

// Services bundles the domain services the handlers call.
type Services struct {
	Cart      cart.Service
	Checkout  checkout.Service
	Orders    orders.Service
	Inventory inventory.Service
	Coupons   coupons.Service
	// DeadLetters backs the outbox admin routes.
	DeadLetters outbox.DeadLetters
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	svc Services,
) http.Handler {
	r := chi.NewRouter()

	var corsOrigins []string
	idemTTL := middleware.DefaultIdempotencyTTL
	if cfg != nil {
		corsOrigins = cfg.Service.CORSOrigins
		idemTTL = cfg.Checkout.IdempotencyTTL
	}

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(corsOrigins),
	)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	r.Handle("/metrics", promhttp.Handler())

	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		idemStore = redisClient
	}
	idempotent := middleware.Idempotency(idemStore, idemTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		r.Get("/coupons/available", couponcontrollers.Available(svc.Coupons, svc.Cart, logg))
		r.Get("/inventory/{productID}", inventorycontrollers.Availability(svc.Inventory, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOwner(logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.Get(svc.Cart, logg))
				r.Delete("/", cartcontrollers.Clear(svc.Cart, logg))
				r.Post("/items", cartcontrollers.AddItem(svc.Cart, logg))
				r.Patch("/items/{lineID}", cartcontrollers.UpdateQuantity(svc.Cart, logg))
				r.Delete("/items/{lineID}", cartcontrollers.RemoveItem(svc.Cart, logg))
				r.Post("/merge", cartcontrollers.Merge(svc.Cart, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", checkoutcontrollers.Initiate(svc.Checkout, logg))
				r.Get("/session", checkoutcontrollers.Session(svc.Checkout, logg))
				r.With(idempotent).Post("/confirm", checkoutcontrollers.Confirm(svc.Checkout, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(svc.Orders, logg))
				r.Get("/{orderID}", ordercontrollers.Detail(svc.Orders, logg))
				r.With(idempotent).Post("/{orderID}/cancel", ordercontrollers.Cancel(svc.Checkout, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.ByNumber(svc.Orders, logg))
				r.Get("/{orderID}", ordercontrollers.Detail(svc.Orders, logg))
				r.With(idempotent).Post("/{orderID}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
				r.With(idempotent).Post("/{orderID}/cancel", ordercontrollers.Cancel(svc.Checkout, logg))
				r.With(idempotent).Post("/{orderID}/capture", ordercontrollers.Capture(svc.Checkout, logg))
				r.With(idempotent).Post("/{orderID}/refund", ordercontrollers.Refund(svc.Checkout, logg))
			})

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/low-stock", inventorycontrollers.LowStock(svc.Inventory, logg))
				r.Get("/alerts", inventorycontrollers.Alerts(svc.Inventory, logg))
				r.Post("/alerts/{alertID}/acknowledge", inventorycontrollers.AcknowledgeAlert(svc.Inventory, logg))
				r.Post("/alerts/{alertID}/resolve", inventorycontrollers.ResolveAlert(svc.Inventory, logg))
				r.Post("/{productID}/stock", inventorycontrollers.AddStock(svc.Inventory, logg))
				r.Post("/{productID}/adjust", inventorycontrollers.Adjust(svc.Inventory, logg))
				r.Get("/{productID}/transactions", inventorycontrollers.Transactions(svc.Inventory, logg))
			})

			r.Route("/outbox/dead-letters", func(r chi.Router) {
				r.Get("/", outboxcontrollers.List(svc.DeadLetters, logg))
				r.With(idempotent).Post("/{eventID}/requeue", outboxcontrollers.Requeue(svc.DeadLetters, logg))
			})
		})
	})

	return r
}
