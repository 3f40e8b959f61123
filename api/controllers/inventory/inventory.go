package inventory

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/api/middleware"
	"github.com/angelmondragon/shopledger-backend/api/responses"
	"github.com/angelmondragon/shopledger-backend/api/validators"
	internalinventory "github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

type availability struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Available int        `json:"available"`
	InStock   bool       `json:"in_stock"`
}

type addStockRequest struct {
	VariantID *string `json:"variant_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Notes     string  `json:"notes" validate:"max=500"`
}

type adjustStockRequest struct {
	VariantID *string `json:"variant_id,omitempty" validate:"omitempty,uuid"`
	Delta     int     `json:"delta" validate:"required,ne=0"`
	Reason    string  `json:"reason" validate:"required,max=500"`
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
}

func keyFromPath(r *http.Request) (internalinventory.Key, error) {
	productID, err := validators.ParseUUIDParam(r, "productID")
	if err != nil {
		return internalinventory.Key{}, err
	}
	variantID, err := validators.ParseOptionalUUIDQuery(r, "variant_id")
	if err != nil {
		return internalinventory.Key{}, err
	}
	return internalinventory.Key{ProductID: productID, VariantID: variantID}, nil
}

func keyFromBody(r *http.Request, variant *string) (internalinventory.Key, error) {
	productID, err := validators.ParseUUIDParam(r, "productID")
	if err != nil {
		return internalinventory.Key{}, err
	}
	key := internalinventory.Key{ProductID: productID}
	if variant != nil {
		variantID := uuid.MustParse(*variant)
		key.VariantID = &variantID
	}
	return key, nil
}

// Availability reports on hand minus reserved for a product or variant.
func Availability(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		key, err := keyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.GetAvailable(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability{
			ProductID: key.ProductID,
			VariantID: key.VariantID,
			Available: available,
			InStock:   available > 0,
		})
	}
}

// AddStock records received stock.
func AddStock(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req addStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := keyFromBody(r, req.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.AddStock(r.Context(), key, req.Quantity, validators.SanitizeString(req.Notes, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// Adjust applies a signed manual correction.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := keyFromBody(r, req.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.AdjustStock(r.Context(), key, req.Delta, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// LowStock lists items at or below their reorder threshold.
func LowStock(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		items, err := svc.LowStock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// Alerts lists stock alerts, optionally filtered by status.
func Alerts(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", func(raw string) (enums.StockAlertStatus, error) {
			return enums.ParseStockAlertStatus(strings.ToLower(raw))
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alerts, err := svc.ListAlerts(r.Context(), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alerts)
	}
}

// AcknowledgeAlert marks an alert as seen by the calling operator.
func AcknowledgeAlert(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		alertID, err := validators.ParseUUIDParam(r, "alertID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		alert, err := svc.AcknowledgeAlert(r.Context(), alertID, actor.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}

// ResolveAlert closes an alert.
func ResolveAlert(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		alertID, err := validators.ParseUUIDParam(r, "alertID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alert, err := svc.ResolveAlert(r.Context(), alertID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}

// Transactions pages through the ledger for one stock item, newest first.
func Transactions(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		key, err := keyFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListTransactions(r.Context(), key, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
