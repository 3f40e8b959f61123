package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

const (
	maxDLQErrorLen     = 1024
	defaultDLQPageSize = 50
	maxDLQPageSize     = 200
)

// DeadLetterFilter narrows List. A nil Reason matches every reason.
type DeadLetterFilter struct {
	Reason *enums.OutboxDLQErrorReason
	Limit  int
}

// DeadLetters is the operator view over parked events.
type DeadLetters interface {
	List(ctx context.Context, filter DeadLetterFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error)
}

// DLQRepository stores outbox rows the relay gave up on.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// NewDLQEntry snapshots row for the dead-letter table.
func NewDLQEntry(row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) models.OutboxDLQ {
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if cause != nil {
		msg := clip(cause.Error(), maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return entry
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.ErrorReason.IsValid() {
		return errors.New("dlq error reason is invalid")
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = r.now()
	}
	return tx.Create(&entry).Error
}

// List returns parked events, most recent failure first.
func (r *DLQRepository) List(ctx context.Context, filter DeadLetterFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultDLQPageSize
	case limit > maxDLQPageSize:
		limit = maxDLQPageSize
	}
	query := r.db.WithContext(ctx)
	if filter.Reason != nil {
		if !filter.Reason.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dead-letter reason").
				WithDetails(map[string]any{"reason": string(*filter.Reason)})
		}
		query = query.Where("error_reason = ?", *filter.Reason)
	}
	var rows []models.OutboxDLQ
	if err := query.Order("failed_at DESC").Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters")
	}
	return rows, nil
}

// Requeue hands a parked event back to the relay: the outbox row gets a fresh
// attempt budget and the dead-letter entry is removed, in one transaction.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error) {
	var row models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parked int64
		if err := tx.Model(&models.OutboxDLQ{}).Where("event_id = ?", eventID).Count(&parked).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find dead letter")
		}
		if parked == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		}
		if err := tx.Where("id = ?", eventID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "outbox row was purged").
					WithDetails(map[string]any{"event_id": eventID.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load outbox row")
		}
		if !row.Pending() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "event already published").
				WithDetails(map[string]any{"event_id": eventID.String()})
		}
		if err := tx.Model(&models.OutboxEvent{}).Where("id = ?", eventID).Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
		}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset outbox row")
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete dead letter")
		}
		row.AttemptCount = 0
		row.LastError = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
