package middleware

import (
	"context"

	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
)

type contextKey string

const (
	ctxOwner contextKey = "owner"
	ctxActor contextKey = "actor"
)

// OwnerFromContext returns the cart owner resolved by Identity.
func OwnerFromContext(ctx context.Context) (cart.Owner, bool) {
	if ctx == nil {
		return cart.Owner{}, false
	}
	owner, ok := ctx.Value(ctxOwner).(cart.Owner)
	return owner, ok
}

// ActorFromContext returns who is acting on orders for this request.
func ActorFromContext(ctx context.Context) (orders.Actor, bool) {
	if ctx == nil {
		return orders.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(orders.Actor)
	return actor, ok
}

// WithOwner stores the cart owner on ctx.
func WithOwner(ctx context.Context, owner cart.Owner) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOwner, owner)
}

// WithActor stores the order actor on ctx.
func WithActor(ctx context.Context, actor orders.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
