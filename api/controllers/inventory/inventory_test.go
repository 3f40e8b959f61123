package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/api/middleware"
	internalinventory "github.com/angelmondragon/shopledger-backend/internal/inventory"
	internalorders "github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

type stubInventory struct {
	internalinventory.Service
	available   int
	added       *internalinventory.Key
	addedQty    int
	adjustErr   error
	alertStatus *enums.StockAlertStatus
	ackActor    string
}

func (s *stubInventory) GetAvailable(context.Context, internalinventory.Key) (int, error) {
	return s.available, nil
}

func (s *stubInventory) AddStock(_ context.Context, key internalinventory.Key, qty int, _ string) (*models.StockItem, error) {
	s.added = &key
	s.addedQty = qty
	return &models.StockItem{ProductID: key.ProductID, VariantID: key.VariantID, OnHand: qty}, nil
}

func (s *stubInventory) AdjustStock(_ context.Context, key internalinventory.Key, _ int, _ string) (*models.StockItem, error) {
	if s.adjustErr != nil {
		return nil, s.adjustErr
	}
	return &models.StockItem{ProductID: key.ProductID}, nil
}

func (s *stubInventory) ListAlerts(_ context.Context, status *enums.StockAlertStatus) ([]models.StockAlert, error) {
	s.alertStatus = status
	return []models.StockAlert{}, nil
}

func (s *stubInventory) AcknowledgeAlert(_ context.Context, id uuid.UUID, actor string) (*models.StockAlert, error) {
	s.ackActor = actor
	return &models.StockAlert{ID: id}, nil
}

func withParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestAvailabilityReportsStockFlag(t *testing.T) {
	productID := uuid.New()
	rec := httptest.NewRecorder()
	req := withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"productID": productID.String()})
	Availability(&stubInventory{available: 0}, nil)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"in_stock":false`)

	rec = httptest.NewRecorder()
	req = withParams(httptest.NewRequest(http.MethodGet, "/?variant_id=nope", nil), map[string]string{"productID": productID.String()})
	Availability(&stubInventory{}, nil)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"productID": "x"})
	Availability(&stubInventory{}, nil)(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddStockParsesVariantAndQuantity(t *testing.T) {
	svc := &stubInventory{}
	productID, variantID := uuid.New(), uuid.New()
	params := map[string]string{"productID": productID.String()}

	rec := httptest.NewRecorder()
	body := `{"variant_id":"` + variantID.String() + `","quantity":12,"notes":"po-7"}`
	AddStock(svc, nil)(rec, withParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.added)
	assert.Equal(t, productID, svc.added.ProductID)
	assert.Equal(t, variantID, *svc.added.VariantID)
	assert.Equal(t, 12, svc.addedQty)

	svc.added = nil
	rec = httptest.NewRecorder()
	AddStock(svc, nil)(rec, withParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`)), params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.added)
}

func TestAdjustSurfacesNegativeStock(t *testing.T) {
	svc := &stubInventory{adjustErr: pkgerrors.New(pkgerrors.CodeNegativeStock, "adjustment would leave negative stock")}
	rec := httptest.NewRecorder()
	req := withParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta":-5,"reason":"shrinkage"}`)),
		map[string]string{"productID": uuid.NewString()})
	Adjust(svc, nil)(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeNegativeStock))
}

func TestAlertsFilterAndAcknowledge(t *testing.T) {
	svc := &stubInventory{}
	rec := httptest.NewRecorder()
	Alerts(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/?status=ACTIVE", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.alertStatus)
	assert.Equal(t, enums.StockAlertStatusActive, *svc.alertStatus)

	rec = httptest.NewRecorder()
	Alerts(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/?status=sleeping", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	alertID := uuid.New()
	req := withParams(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"alertID": alertID.String()})
	req = req.WithContext(middleware.WithActor(req.Context(), internalorders.Actor{Kind: internalorders.ActorAdmin, ID: "ops-1"}))
	rec = httptest.NewRecorder()
	AcknowledgeAlert(svc, nil)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin:ops-1", svc.ackActor)
}

func TestNilServiceIsInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	LowStock(nil, nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
