package inventory

import (
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

func keyDetails(key Key) map[string]any {
	details := map[string]any{"product_id": key.ProductID.String()}
	if key.VariantID != nil {
		details["variant_id"] = key.VariantID.String()
	}
	return details
}

func insufficientStock(key Key, requested, available int) error {
	details := keyDetails(key)
	details["requested"] = requested
	details["available"] = available
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(details)
}

func negativeStock(key Key, onHand, reserved, delta int) error {
	details := keyDetails(key)
	details["on_hand"] = onHand
	details["reserved"] = reserved
	details["delta"] = delta
	return pkgerrors.New(pkgerrors.CodeNegativeStock, "adjustment would leave stock negative").WithDetails(details)
}

func invalidQty(qty int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").WithDetails(map[string]any{"qty": qty})
}
