package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox/payloads"
)

// raiseAlertIfLow opens a stock alert and queues a low_stock_alert event when
// available stock is at or below the reorder threshold. An already active
// alert of the same type suppresses duplicates.
func (s *service) raiseAlertIfLow(ctx context.Context, tx *gorm.DB, repo Repository, item *models.StockItem) error {
	available := item.Available()
	if available > item.ReorderThreshold {
		return nil
	}
	alertType := enums.StockAlertLowStock
	if available <= 0 {
		alertType = enums.StockAlertOutOfStock
	}

	existing, err := repo.FindActiveAlert(ctx, item.ID, alertType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock alert")
	}
	if existing != nil {
		return nil
	}

	alert := &models.StockAlert{
		StockItemID:      item.ID,
		AlertType:        alertType,
		Status:           enums.StockAlertStatusActive,
		Threshold:        item.ReorderThreshold,
		AvailableAtAlert: available,
	}
	if err := repo.CreateAlert(ctx, alert); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock alert")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventLowStockAlert,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   item.ID,
		Actor:         &outbox.ActorRef{ID: "system:inventory", Kind: "system"},
		Data: payloads.LowStockAlertEvent{
			AlertID:          alert.ID,
			StockItemID:      item.ID,
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			AlertType:        alertType,
			Available:        available,
			ReorderThreshold: item.ReorderThreshold,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit low stock alert")
	}

	s.metrics.IncLowStockAlert(string(alertType))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stock_item_id": item.ID.String(),
		"alert_type":    alertType,
		"available":     available,
	})
	s.logg.Warn(logCtx, "stock alert raised")
	return nil
}

func (s *service) resolveAlertsIfRecovered(ctx context.Context, repo Repository, item *models.StockItem) error {
	if item.Available() <= item.ReorderThreshold {
		return nil
	}
	resolved, err := repo.ResolveAlerts(ctx, item.ID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve stock alerts")
	}
	if resolved > 0 {
		s.logg.Info(s.logg.WithField(ctx, "stock_item_id", item.ID.String()), "stock alerts resolved")
	}
	return nil
}

func (s *service) ListAlerts(ctx context.Context, status *enums.StockAlertStatus) ([]models.StockAlert, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid alert status")
	}
	rows, err := s.repo.ListAlerts(ctx, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock alerts")
	}
	return rows, nil
}

// AcknowledgeAlert marks an active alert as seen. Acknowledging twice is a no-op.
func (s *service) AcknowledgeAlert(ctx context.Context, id uuid.UUID, actor string) (*models.StockAlert, error) {
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	return s.updateAlert(ctx, id, func(alert *models.StockAlert) error {
		switch alert.Status {
		case enums.StockAlertStatusAcknowledged:
			return nil
		case enums.StockAlertStatusResolved:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "alert already resolved")
		}
		now := s.now()
		alert.Status = enums.StockAlertStatusAcknowledged
		alert.AcknowledgedBy = &actor
		alert.AcknowledgedAt = &now
		return nil
	})
}

// ResolveAlert closes an alert manually. Resolving twice is a no-op.
func (s *service) ResolveAlert(ctx context.Context, id uuid.UUID) (*models.StockAlert, error) {
	return s.updateAlert(ctx, id, func(alert *models.StockAlert) error {
		if alert.Status == enums.StockAlertStatusResolved {
			return nil
		}
		now := s.now()
		alert.Status = enums.StockAlertStatusResolved
		alert.ResolvedAt = &now
		return nil
	})
}

func (s *service) updateAlert(ctx context.Context, id uuid.UUID, mutate func(*models.StockAlert) error) (*models.StockAlert, error) {
	var out *models.StockAlert
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		alert, err := repo.FindAlertForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock alert not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock alert")
		}
		before := alert.Status
		if err := mutate(alert); err != nil {
			return err
		}
		if alert.Status != before {
			if err := repo.UpdateAlert(ctx, alert); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock alert")
			}
		}
		out = alert
		return nil
	})
	return out, err
}
