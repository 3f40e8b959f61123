package cart

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when the cart or line does not exist.
var ErrNotFound = errors.New("cart not found")

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func whereOwner(q *gorm.DB, owner Owner) *gorm.DB {
	if owner.UserID != nil {
		return q.Where("user_id = ?", *owner.UserID)
	}
	return q.Where("session_key = ?", owner.SessionKey)
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

// FindByOwner loads the owner's cart with its lines.
func (r *Repository) FindByOwner(ctx context.Context, owner Owner) (*models.Cart, error) {
	return r.findByOwner(r.db.WithContext(ctx), owner)
}

// FindByOwnerForUpdate locks the cart row so concurrent merges and
// checkouts on the same cart serialize.
func (r *Repository) FindByOwnerForUpdate(ctx context.Context, owner Owner) (*models.Cart, error) {
	return r.findByOwner(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), owner)
}

func (r *Repository) findByOwner(q *gorm.DB, owner Owner) (*models.Cart, error) {
	var cart models.Cart
	err := whereOwner(q, owner).Preload("Lines", orderedLines).First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cart, nil
}

// Create inserts a new cart.
// CreateIfAbsent inserts the cart unless the owner already has one. A
// conflict is not an error and leaves the transaction usable.
func (r *Repository) CreateIfAbsent(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(cart).Error
}

// Delete removes the cart and its lines.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.DeleteLines(ctx, cartID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// Touch bumps updated_at so abandoned carts can be told apart.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now().UTC()).Error
}

// FindLine returns a line only when it belongs to cartID.
func (r *Repository) FindLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).Where("id = ? AND cart_id = ?", lineID, cartID).First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindLineByItem returns the cart's line for a product or variant.
func (r *Repository) FindLineByItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartLine, error) {
	q := r.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variantID == nil {
		q = q.Where("variant_id IS NULL")
	} else {
		q = q.Where("variant_id = ?", *variantID)
	}
	var line models.CartLine
	if err := q.First(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// CreateLine inserts a line.
func (r *Repository) CreateLine(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

// UpdateLineQuantity overwrites a line quantity. The unit price snapshot
// is never touched.
func (r *Repository) UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{"quantity": qty, "updated_at": time.Now().UTC()}).Error
}

// MoveLine reassigns a line to another cart.
func (r *Repository) MoveLine(ctx context.Context, lineID, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{"cart_id": cartID, "updated_at": time.Now().UTC()}).Error
}

// DeleteLine removes one line of the cart.
func (r *Repository) DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", lineID, cartID).
		Delete(&models.CartLine{}).Error
}

// DeleteLines empties the cart.
func (r *Repository) DeleteLines(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartLine{}).Error
}

// ListLines returns the cart's lines in insertion order.
func (r *Repository) ListLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	var rows []models.CartLine
	err := orderedLines(r.db.WithContext(ctx)).Where("cart_id = ?", cartID).Find(&rows).Error
	return rows, err
}
