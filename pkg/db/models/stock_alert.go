package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/enums"
)

// StockAlert flags a stock item that dropped to or below its reorder threshold.
type StockAlert struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StockItemID      uuid.UUID              `gorm:"column:stock_item_id;type:uuid;not null;index" json:"stock_item_id"`
	AlertType        enums.StockAlertType   `gorm:"column:alert_type;type:varchar(16);not null" json:"alert_type"`
	Status           enums.StockAlertStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Threshold        int                    `gorm:"column:threshold;not null" json:"threshold"`
	AvailableAtAlert int                    `gorm:"column:available_at_alert;not null" json:"available_at_alert"`
	AcknowledgedBy   *string                `gorm:"column:acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time             `gorm:"column:acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt       *time.Time             `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (a *StockAlert) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
