package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/enums"
)

// StockTransaction is an append-only ledger entry for a StockItem.
type StockTransaction struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StockItemID   uuid.UUID                  `gorm:"column:stock_item_id;type:uuid;not null;index" json:"stock_item_id"`
	Kind          enums.StockTransactionKind `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Delta         int                        `gorm:"column:delta;not null" json:"delta"`
	OnHandAfter   int                        `gorm:"column:on_hand_after;not null" json:"on_hand_after"`
	ReservedAfter int                        `gorm:"column:reserved_after;not null" json:"reserved_after"`
	ReferenceType *string                    `gorm:"column:reference_type" json:"reference_type,omitempty"`
	ReferenceID   *string                    `gorm:"column:reference_id" json:"reference_id,omitempty"`
	Notes         *string                    `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (t *StockTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
