package coupons

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/api/middleware"
	"github.com/angelmondragon/shopledger-backend/api/responses"
	"github.com/angelmondragon/shopledger-backend/api/validators"
	internalcart "github.com/angelmondragon/shopledger-backend/internal/cart"
	internalcoupons "github.com/angelmondragon/shopledger-backend/internal/coupons"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

const maxSubtotalCents = 100_000_000

// Available lists coupons the caller could apply. The subtotal comes from the
// subtotal_cents query parameter, or from the caller's cart when omitted.
func Available(svc internalcoupons.Service, carts internalcart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}
		subtotal, err := validators.ParseQueryInt(r, "subtotal_cents", -1, 0, maxSubtotalCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var userID *uuid.UUID
		owner, hasOwner := middleware.OwnerFromContext(r.Context())
		if hasOwner {
			userID = owner.UserID
		}
		if subtotal < 0 {
			subtotal = 0
			if hasOwner && carts != nil {
				record, err := carts.Find(r.Context(), owner)
				if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				if record != nil {
					subtotal = carts.Totals(record, nil).SubtotalCents
				}
			}
		}

		list, err := svc.ListAvailable(r.Context(), userID, subtotal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
