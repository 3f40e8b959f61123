package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	"github.com/angelmondragon/shopledger-backend/pkg/pagination"
)

// ErrNotFound is returned by repository lookups that match no row.
var ErrNotFound = errors.New("stock item not found")

// Repository persists stock items, their ledger and alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, key Key) (*models.StockItem, error)
	FindForUpdate(ctx context.Context, key Key) (*models.StockItem, error)
	CreateIfAbsent(ctx context.Context, item *models.StockItem) error
	UpdateCounts(ctx context.Context, item *models.StockItem) error
	AppendTransaction(ctx context.Context, txn *models.StockTransaction) error
	ListTransactions(ctx context.Context, stockItemID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.StockTransaction, error)
	ListLowStock(ctx context.Context) ([]models.StockItem, error)

	FindActiveAlert(ctx context.Context, stockItemID uuid.UUID, alertType enums.StockAlertType) (*models.StockAlert, error)
	CreateAlert(ctx context.Context, alert *models.StockAlert) error
	FindAlertForUpdate(ctx context.Context, id uuid.UUID) (*models.StockAlert, error)
	UpdateAlert(ctx context.Context, alert *models.StockAlert) error
	ResolveAlerts(ctx context.Context, stockItemID uuid.UUID, at time.Time) (int64, error)
	ListAlerts(ctx context.Context, status *enums.StockAlertStatus) ([]models.StockAlert, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func whereKey(q *gorm.DB, key Key) *gorm.DB {
	q = q.Where("product_id = ?", key.ProductID)
	if key.VariantID == nil {
		return q.Where("variant_id IS NULL")
	}
	return q.Where("variant_id = ?", *key.VariantID)
}

func (r *repository) Find(ctx context.Context, key Key) (*models.StockItem, error) {
	var item models.StockItem
	if err := whereKey(r.db.WithContext(ctx), key).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindForUpdate takes the exclusive row lock that serializes every
// read-check-write on the item until the surrounding transaction ends.
func (r *repository) FindForUpdate(ctx context.Context, key Key) (*models.StockItem, error) {
	var item models.StockItem
	q := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	if err := whereKey(q, key).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateIfAbsent inserts item unless a row for the same product and variant
// exists. A conflict is not an error and leaves the transaction usable.
func (r *repository) CreateIfAbsent(ctx context.Context, item *models.StockItem) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item).Error
}

func (r *repository) UpdateCounts(ctx context.Context, item *models.StockItem) error {
	return r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"on_hand":    item.OnHand,
			"reserved":   item.Reserved,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.StockTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, stockItemID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.StockTransaction, error) {
	var rows []models.StockTransaction
	err := r.db.WithContext(ctx).
		Where("stock_item_id = ?", stockItemID).
		Scopes(pagination.Scope("", cursor, limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListLowStock(ctx context.Context) ([]models.StockItem, error) {
	var rows []models.StockItem
	err := r.db.WithContext(ctx).
		Where("on_hand - reserved <= reorder_threshold").
		Order("on_hand - reserved ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindActiveAlert(ctx context.Context, stockItemID uuid.UUID, alertType enums.StockAlertType) (*models.StockAlert, error) {
	var alert models.StockAlert
	err := r.db.WithContext(ctx).
		Where("stock_item_id = ? AND alert_type = ? AND status = ?", stockItemID, alertType, enums.StockAlertStatusActive).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *repository) CreateAlert(ctx context.Context, alert *models.StockAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *repository) FindAlertForUpdate(ctx context.Context, id uuid.UUID) (*models.StockAlert, error) {
	var alert models.StockAlert
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (r *repository) UpdateAlert(ctx context.Context, alert *models.StockAlert) error {
	return r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ?", alert.ID).
		Updates(map[string]any{
			"status":          alert.Status,
			"acknowledged_by": alert.AcknowledgedBy,
			"acknowledged_at": alert.AcknowledgedAt,
			"resolved_at":     alert.ResolvedAt,
		}).Error
}

// ResolveAlerts closes every open (active or acknowledged) alert of the item.
func (r *repository) ResolveAlerts(ctx context.Context, stockItemID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("stock_item_id = ? AND status IN ?", stockItemID, []enums.StockAlertStatus{
			enums.StockAlertStatusActive,
			enums.StockAlertStatusAcknowledged,
		}).
		Updates(map[string]any{
			"status":      enums.StockAlertStatusResolved,
			"resolved_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListAlerts(ctx context.Context, status *enums.StockAlertStatus) ([]models.StockAlert, error) {
	q := r.db.WithContext(ctx)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var rows []models.StockAlert
	err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}
