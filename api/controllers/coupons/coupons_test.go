package coupons

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/api/middleware"
	internalcart "github.com/angelmondragon/shopledger-backend/internal/cart"
	internalcoupons "github.com/angelmondragon/shopledger-backend/internal/coupons"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

type stubCoupons struct {
	internalcoupons.Service
	userID   *uuid.UUID
	subtotal int
	called   bool
}

func (s *stubCoupons) ListAvailable(_ context.Context, userID *uuid.UUID, subtotalCents int) ([]models.Coupon, error) {
	s.called = true
	s.userID = userID
	s.subtotal = subtotalCents
	return []models.Coupon{{Code: "SAVE10"}}, nil
}

type stubCarts struct {
	internalcart.Service
	record *models.Cart
}

func (s *stubCarts) Find(context.Context, internalcart.Owner) (*models.Cart, error) {
	return s.record, nil
}

func (s *stubCarts) Totals(*models.Cart, *types.Address) internalcart.Totals {
	return internalcart.Totals{SubtotalCents: 4200}
}

func TestAvailableUsesQuerySubtotal(t *testing.T) {
	svc := &stubCoupons{}
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/?subtotal_cents=1500", nil)
	req = req.WithContext(middleware.WithOwner(req.Context(), internalcart.UserOwner(userID)))

	rec := httptest.NewRecorder()
	Available(svc, &stubCarts{}, nil)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1500, svc.subtotal)
	require.NotNil(t, svc.userID)
	assert.Equal(t, userID, *svc.userID)
	assert.Contains(t, rec.Body.String(), `"SAVE10"`)
}

func TestAvailableFallsBackToCartSubtotal(t *testing.T) {
	svc := &stubCoupons{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithOwner(req.Context(), internalcart.GuestOwner("sess-1")))

	rec := httptest.NewRecorder()
	Available(svc, &stubCarts{record: &models.Cart{}}, nil)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4200, svc.subtotal)
	assert.Nil(t, svc.userID)
}

func TestAvailableWithoutOwnerUsesZeroSubtotal(t *testing.T) {
	svc := &stubCoupons{}
	rec := httptest.NewRecorder()
	Available(svc, &stubCarts{record: &models.Cart{}}, nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, svc.subtotal)
}

func TestAvailableRejectsBadSubtotal(t *testing.T) {
	svc := &stubCoupons{}
	for _, raw := range []string{"abc", "-5", "100000001"} {
		rec := httptest.NewRecorder()
		Available(svc, nil, nil)(rec, httptest.NewRequest(http.MethodGet, "/?subtotal_cents="+raw, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
	assert.False(t, svc.called)

	rec := httptest.NewRecorder()
	Available(nil, nil, nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
