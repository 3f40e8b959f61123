package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "responses-test", Output: io.Discard})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteSuccessStatusWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"order_number": "ORD-20260301-ABCDEF"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ORD-20260301-ABCDEF", body.Data.(map[string]any)["order_number"])
}

func TestWriteErrorKeepsValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").WithDetails(map[string]any{"reason": "empty_cart"})
	WriteError(context.Background(), testLogger(), w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	assert.Equal(t, "cart is empty", body.Error.Message)
	assert.NotNil(t, body.Error.Details)
}

func TestWriteErrorMapsCheckoutCodes(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeInsufficientStock: http.StatusConflict,
		pkgerrors.CodeSessionExpired:    http.StatusGone,
		pkgerrors.CodePayment:           http.StatusPaymentRequired,
		pkgerrors.CodeStateConflict:     http.StatusUnprocessableEntity,
		pkgerrors.CodeNegativeStock:     http.StatusUnprocessableEntity,
		pkgerrors.CodeDependency:        http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, pkgerrors.New(code, "x"))
		assert.Equal(t, status, w.Code, string(code))
	}
}

func TestWriteErrorHidesPaymentCause(t *testing.T) {
	w := httptest.NewRecorder()
	cause := errors.New("card_declined: insufficient_funds for acct_123")
	WriteError(context.Background(), testLogger(), w, pkgerrors.Wrap(pkgerrors.CodePayment, cause, "capture payment").
		WithDetails(map[string]any{"status": "requires_payment_method"}))

	body := decodeError(t, w)
	assert.Equal(t, "payment failed", body.Error.Message)
	assert.Nil(t, body.Error.Details)
}

func TestWriteErrorDefaultsToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), w, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Nil(t, body.Error.Details)
}

func TestWriteErrorFlagsRetryableCodes(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis: i/o timeout"), "load checkout session"))
	assert.True(t, decodeError(t, w).Error.Retryable)

	w = httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), w, pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped"))
	body := decodeError(t, w)
	assert.False(t, body.Error.Retryable)
	assert.Equal(t, "order already shipped", body.Error.Message)
}
