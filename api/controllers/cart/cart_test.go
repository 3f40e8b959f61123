package cart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/api/middleware"
	internalcart "github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
)

type stubCart struct {
	internalcart.Service
	added    *internalcart.AddItemInput
	mergeKey string
}

func (s *stubCart) AddItem(_ context.Context, _ internalcart.Owner, input internalcart.AddItemInput) (*internalcart.View, error) {
	s.added = &input
	return &internalcart.View{Cart: &models.Cart{ID: uuid.New()}}, nil
}

func (s *stubCart) Merge(_ context.Context, sessionKey string, userID uuid.UUID) (*internalcart.View, error) {
	s.mergeKey = sessionKey
	return &internalcart.View{Cart: &models.Cart{ID: uuid.New(), UserID: &userID}}, nil
}

func withOwner(req *http.Request, owner internalcart.Owner) *http.Request {
	return req.WithContext(middleware.WithOwner(req.Context(), owner))
}

func TestAddItemValidatesBody(t *testing.T) {
	svc := &stubCart{}
	owner := internalcart.GuestOwner("guest-1")

	rec := httptest.NewRecorder()
	AddItem(svc, nil)(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"x","quantity":1}`)), owner))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.added)

	productID := uuid.New()
	variantID := uuid.New()
	body := `{"product_id":"` + productID.String() + `","variant_id":"` + variantID.String() + `","quantity":2}`
	rec = httptest.NewRecorder()
	AddItem(svc, nil)(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), owner))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.added)
	assert.Equal(t, productID, svc.added.ProductID)
	assert.Equal(t, variantID, *svc.added.VariantID)
	assert.Equal(t, 2, svc.added.Quantity)
}

func TestMergeRequiresSignedInUser(t *testing.T) {
	svc := &stubCart{}
	body := `{"session_key":"guest-1"}`

	rec := httptest.NewRecorder()
	Merge(svc, nil)(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), internalcart.GuestOwner("guest-2")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	Merge(svc, nil)(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), internalcart.UserOwner(uuid.New())))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest-1", svc.mergeKey)
}

func TestGetWithoutOwnerIsUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	Get(&stubCart{}, nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
