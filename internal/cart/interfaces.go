package cart

import (
	"context"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByOwner(ctx context.Context, owner Owner) (*models.Cart, error)
	FindByOwnerForUpdate(ctx context.Context, owner Owner) (*models.Cart, error)
	CreateIfAbsent(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, cartID uuid.UUID) error
	Touch(ctx context.Context, cartID uuid.UUID) error

	FindLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error)
	FindLineByItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartLine, error)
	CreateLine(ctx context.Context, line *models.CartLine) error
	UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, qty int) error
	MoveLine(ctx context.Context, lineID, cartID uuid.UUID) error
	DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error
	DeleteLines(ctx context.Context, cartID uuid.UUID) error
	ListLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error)
}
