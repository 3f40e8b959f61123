package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/api/responses"
	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	HeaderUserID     = "X-User-ID"
	HeaderSessionKey = "X-Session-Key"
	HeaderAdminID    = "X-Admin-ID"

	maxSessionKeyLen = 128
)

// Identity resolves the cart owner and order actor from the gateway headers.
// A user id wins over a session key. Requests carrying neither pass through
// without an owner so public routes keep working.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fields := map[string]any{}

			if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
				userID, err := uuid.Parse(raw)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id header"))
					return
				}
				owner := cart.UserOwner(userID)
				ctx = WithOwner(ctx, owner)
				ctx = WithActor(ctx, orders.Actor{Kind: orders.ActorUser, ID: userID.String()})
				fields["user_id"] = userID.String()
			} else if key := strings.TrimSpace(r.Header.Get(HeaderSessionKey)); key != "" {
				if len(key) > maxSessionKeyLen {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session key header"))
					return
				}
				owner := cart.GuestOwner(key)
				ctx = WithOwner(ctx, owner)
				ctx = WithActor(ctx, orders.Actor{Kind: orders.ActorUser, ID: owner.ID()})
				fields["owner_id"] = owner.ID()
			}

			// operator routes are still gated by RequireAdmin
			if admin := strings.TrimSpace(r.Header.Get(HeaderAdminID)); admin != "" {
				ctx = WithActor(ctx, orders.Actor{Kind: orders.ActorAdmin, ID: admin})
				fields["admin_id"] = admin
			}

			if logg != nil && len(fields) > 0 {
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOwner rejects requests that carry no owner identity.
func RequireOwner(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := OwnerFromContext(r.Context()); !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id or session key required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin only lets operator requests through.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || actor.Kind != orders.ActorAdmin {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
