package catalog

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

// Item is a purchasable product or product variant with its effective price.
type Item struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	SKU         string
	Name        string
	VariantName *string
	PriceCents  int
	Active      bool
}

// Resolve loads the product and optional variant and folds them into one Item.
// A variant that belongs to another product is a validation error.
func Resolve(ctx context.Context, r Reader, productID uuid.UUID, variantID *uuid.UUID) (*Item, error) {
	product, err := r.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	item := &Item{
		ProductID:  product.ID,
		SKU:        product.SKU,
		Name:       product.Name,
		PriceCents: product.PriceCents,
		Active:     product.IsActive,
	}
	if variantID == nil {
		return item, nil
	}

	variant, err := r.Variant(ctx, *variantID)
	if err != nil {
		return nil, err
	}
	if variant.ProductID != product.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product").WithDetails(map[string]any{
			"product_id": product.ID,
			"variant_id": variant.ID,
		})
	}
	id := variant.ID
	name := variant.Name
	item.VariantID = &id
	item.VariantName = &name
	item.SKU = variant.SKU
	item.Active = product.IsActive && variant.IsActive
	if variant.PriceCents != nil {
		item.PriceCents = *variant.PriceCents
	}
	return item, nil
}
