package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/internal/catalog"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

// Violation reasons.
const (
	ViolationProductNotFound    = "product_not_found"
	ViolationProductUnavailable = "product_unavailable"
	ViolationInsufficientStock  = "insufficient_stock"
)

// Violation is one problem found while re-checking a cart line.
type Violation struct {
	LineID    uuid.UUID  `json:"line_id"`
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Reason    string     `json:"reason"`
	Requested int        `json:"requested,omitempty"`
	Available int        `json:"available"`
}

func unavailable(productID uuid.UUID, variantID *uuid.UUID) error {
	details := map[string]any{"reason": ViolationProductUnavailable, "product_id": productID.String()}
	if variantID != nil {
		details["variant_id"] = variantID.String()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").WithDetails(details)
}

// Validate re-checks every line and returns all violations found. Only
// infrastructure failures are returned as an error.
func (s *service) Validate(ctx context.Context, cart *models.Cart) ([]Violation, error) {
	violations := []Violation{}
	if cart == nil {
		return violations, nil
	}
	for _, line := range cart.Lines {
		v := Violation{LineID: line.ID, ProductID: line.ProductID, VariantID: line.VariantID}

		item, err := catalog.Resolve(ctx, s.catalog, line.ProductID, line.VariantID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound), pkgerrors.IsCode(err, pkgerrors.CodeValidation):
			v.Reason = ViolationProductNotFound
			violations = append(violations, v)
			continue
		case err != nil:
			return nil, err
		case !item.Active:
			v.Reason = ViolationProductUnavailable
			violations = append(violations, v)
			continue
		}

		available, err := s.stock.GetAvailable(ctx, inventory.Key{ProductID: line.ProductID, VariantID: line.VariantID})
		if err != nil {
			return nil, err
		}
		if available < line.Quantity {
			v.Reason = ViolationInsufficientStock
			v.Requested = line.Quantity
			v.Available = available
			violations = append(violations, v)
		}
	}
	return violations, nil
}
