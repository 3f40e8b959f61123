package checkout

import (
	"github.com/angelmondragon/shopledger-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").WithDetails(map[string]any{"reason": "empty_cart"})
}

func cartInvalid(violations []cart.Violation) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart has items that cannot be purchased").WithDetails(map[string]any{
		"reason":     "cart_invalid",
		"violations": violations,
	})
}

func cartChanged(sessionSubtotal, cartSubtotal int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart changed since checkout started").WithDetails(map[string]any{
		"reason":           "cart_changed",
		"session_subtotal": sessionSubtotal,
		"cart_subtotal":    cartSubtotal,
	})
}

func sessionExpired() error {
	return pkgerrors.New(pkgerrors.CodeSessionExpired, "checkout session expired")
}

func paymentFailed(err error, msg string) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodePayment, err, msg)
}

func addressInvalid(field string, missing []string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, field+" is incomplete").WithDetails(map[string]any{
		"field":   field,
		"missing": missing,
	})
}
