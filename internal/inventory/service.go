package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/metrics"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the stock ledger. Every counter change happens under the row
// lock of the stock item and appends one StockTransaction. Methods taking a
// tx run inside the caller's transaction so checkout can compose them.
type Service interface {
	GetAvailable(ctx context.Context, key Key) (int, error)
	Get(ctx context.Context, key Key) (*models.StockItem, error)

	Reserve(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error
	ReserveAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error
	Release(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error
	ReleaseAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error
	Deduct(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error
	DeductAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error
	Restock(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error
	RestockAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error

	AddStock(ctx context.Context, key Key, qty int, notes string) (*models.StockItem, error)
	AdjustStock(ctx context.Context, key Key, delta int, reason string) (*models.StockItem, error)

	ListTransactions(ctx context.Context, key Key, params pagination.Params) (*pagination.Page[models.StockTransaction], error)
	LowStock(ctx context.Context) ([]models.StockItem, error)
	ListAlerts(ctx context.Context, status *enums.StockAlertStatus) ([]models.StockAlert, error)
	AcknowledgeAlert(ctx context.Context, id uuid.UUID, actor string) (*models.StockAlert, error)
	ResolveAlert(ctx context.Context, id uuid.UUID) (*models.StockAlert, error)
}

// ServiceParams wires the ledger.
type ServiceParams struct {
	Repository       Repository
	TxRunner         txRunner
	Outbox           outboxPublisher
	Logger           *logger.Logger
	Metrics          *metrics.CheckoutMetrics
	DefaultThreshold int
}

type service struct {
	repo             Repository
	tx               txRunner
	outbox           outboxPublisher
	logg             *logger.Logger
	metrics          *metrics.CheckoutMetrics
	defaultThreshold int
	now              func() time.Time
}

// NewService builds the stock ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	threshold := params.DefaultThreshold
	if threshold < 0 {
		threshold = 0
	}
	return &service{
		repo:             params.Repository,
		tx:               params.TxRunner,
		outbox:           params.Outbox,
		logg:             params.Logger,
		metrics:          params.Metrics,
		defaultThreshold: threshold,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetAvailable(ctx context.Context, key Key) (int, error) {
	item, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
	}
	return item.Available(), nil
}

func (s *service) Get(ctx context.Context, key Key) (*models.StockItem, error) {
	item, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found").WithDetails(keyDetails(key))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
	}
	return item, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error {
	if qty <= 0 {
		return invalidQty(qty)
	}
	repo, err := s.txRepo(tx)
	if err != nil {
		return err
	}
	item, err := repo.FindForUpdate(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.IncReservationFailure()
			return insufficientStock(key, qty, 0)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock item")
	}
	if available := item.Available(); available < qty {
		s.metrics.IncReservationFailure()
		return insufficientStock(key, qty, available)
	}
	item.Reserved += qty
	return s.record(ctx, repo, item, enums.StockTransactionReserved, -qty, ref, nil)
}

func (s *service) ReserveAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error {
	return s.each(lines, func(line Line) error { return s.Reserve(ctx, tx, line.Key, line.Qty, ref) })
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error {
	if qty <= 0 {
		return invalidQty(qty)
	}
	repo, err := s.txRepo(tx)
	if err != nil {
		return err
	}
	item, err := repo.FindForUpdate(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logg.Warn(s.logFields(ctx, key, ref), "release on unknown stock item ignored")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock item")
	}
	item.Reserved = s.clampReserved(ctx, key, ref, item.Reserved, qty)
	return s.record(ctx, repo, item, enums.StockTransactionReleased, qty, ref, nil)
}

func (s *service) ReleaseAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error {
	return s.each(lines, func(line Line) error { return s.Release(ctx, tx, line.Key, line.Qty, ref) })
}

func (s *service) Deduct(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error {
	if qty <= 0 {
		return invalidQty(qty)
	}
	repo, err := s.txRepo(tx)
	if err != nil {
		return err
	}
	item, err := repo.FindForUpdate(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return insufficientStock(key, qty, 0)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock item")
	}
	item.OnHand -= qty
	item.Reserved = s.clampReserved(ctx, key, ref, item.Reserved, qty)
	if err := s.record(ctx, repo, item, enums.StockTransactionDeducted, -qty, ref, nil); err != nil {
		return err
	}
	return s.raiseAlertIfLow(ctx, tx, repo, item)
}

func (s *service) DeductAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error {
	return s.each(lines, func(line Line) error { return s.Deduct(ctx, tx, line.Key, line.Qty, ref) })
}

func (s *service) Restock(ctx context.Context, tx *gorm.DB, key Key, qty int, ref Ref) error {
	if qty <= 0 {
		return invalidQty(qty)
	}
	repo, err := s.txRepo(tx)
	if err != nil {
		return err
	}
	item, err := s.lockOrCreate(ctx, repo, key)
	if err != nil {
		return err
	}
	item.OnHand += qty
	if err := s.record(ctx, repo, item, enums.StockTransactionReceived, qty, ref, nil); err != nil {
		return err
	}
	return s.resolveAlertsIfRecovered(ctx, repo, item)
}

func (s *service) RestockAll(ctx context.Context, tx *gorm.DB, lines []Line, ref Ref) error {
	return s.each(lines, func(line Line) error { return s.Restock(ctx, tx, line.Key, line.Qty, ref) })
}

func (s *service) AddStock(ctx context.Context, key Key, qty int, notes string) (*models.StockItem, error) {
	if qty <= 0 {
		return nil, invalidQty(qty)
	}
	var out *models.StockItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.lockOrCreate(ctx, repo, key)
		if err != nil {
			return err
		}
		item.OnHand += qty
		if err := s.record(ctx, repo, item, enums.StockTransactionReceived, qty, Ref{Type: "manual"}, optional(notes)); err != nil {
			return err
		}
		if err := s.resolveAlertsIfRecovered(ctx, repo, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logFields(ctx, key, Ref{}), "stock received")
	return out, nil
}

func (s *service) AdjustStock(ctx context.Context, key Key, delta int, reason string) (*models.StockItem, error) {
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment delta must be non-zero")
	}
	var out *models.StockItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.lockOrCreate(ctx, repo, key)
		if err != nil {
			return err
		}
		next := item.OnHand + delta
		if next < 0 || next < item.Reserved {
			return negativeStock(key, item.OnHand, item.Reserved, delta)
		}
		item.OnHand = next
		if err := s.record(ctx, repo, item, enums.StockTransactionAdjusted, delta, Ref{Type: "adjustment"}, optional(reason)); err != nil {
			return err
		}
		if delta < 0 {
			if err := s.raiseAlertIfLow(ctx, tx, repo, item); err != nil {
				return err
			}
		} else if err := s.resolveAlertsIfRecovered(ctx, repo, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logFields(ctx, key, Ref{}), "delta", delta), "stock adjusted")
	return out, nil
}

func (s *service) ListTransactions(ctx context.Context, key Key, params pagination.Params) (*pagination.Page[models.StockTransaction], error) {
	item, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, item.ID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock transactions")
	}
	page := pagination.BuildPage(rows, params.Limit, func(t models.StockTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &page, nil
}

func (s *service) LowStock(ctx context.Context) ([]models.StockItem, error) {
	rows, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return rows, nil
}

func (s *service) txRepo(tx *gorm.DB) (Repository, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock mutation requires a transaction")
	}
	return s.repo.WithTx(tx), nil
}

func (s *service) each(lines []Line, fn func(Line) error) error {
	for _, line := range sortedLines(lines) {
		if err := fn(line); err != nil {
			return err
		}
	}
	return nil
}

// lockOrCreate locks the item row, creating it first when this is the
// item's first stock event. The insert skips on conflict, so a concurrent
// creator's row is the one locked.
func (s *service) lockOrCreate(ctx context.Context, repo Repository, key Key) (*models.StockItem, error) {
	item, err := repo.FindForUpdate(ctx, key)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock item")
	}
	created := &models.StockItem{
		ProductID:        key.ProductID,
		VariantID:        key.VariantID,
		ReorderThreshold: s.defaultThreshold,
	}
	if err := repo.CreateIfAbsent(ctx, created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock item")
	}
	item, err = repo.FindForUpdate(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock item")
	}
	return item, nil
}

func (s *service) clampReserved(ctx context.Context, key Key, ref Ref, reserved, qty int) int {
	if qty <= reserved {
		return reserved - qty
	}
	logCtx := s.logg.WithFields(s.logFields(ctx, key, ref), map[string]any{
		"reserved":  reserved,
		"requested": qty,
	})
	s.logg.Warn(logCtx, "reservation release exceeds reserved quantity, clamping to zero")
	return 0
}

// record persists the new counters and the ledger row. A counter outside
// 0 <= reserved <= on_hand is a bug in the caller and aborts the transaction.
func (s *service) record(ctx context.Context, repo Repository, item *models.StockItem, kind enums.StockTransactionKind, delta int, ref Ref, notes *string) error {
	if item.Reserved < 0 || item.OnHand < 0 || item.Reserved > item.OnHand {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock invariant violated").WithDetails(map[string]any{
			"stock_item_id": item.ID.String(),
			"on_hand":       item.OnHand,
			"reserved":      item.Reserved,
			"kind":          kind,
		})
	}
	if err := repo.UpdateCounts(ctx, item); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock item")
	}
	txn := &models.StockTransaction{
		StockItemID:   item.ID,
		Kind:          kind,
		Delta:         delta,
		OnHandAfter:   item.OnHand,
		ReservedAfter: item.Reserved,
		ReferenceType: ref.typePtr(),
		ReferenceID:   ref.idPtr(),
		Notes:         notes,
	}
	if err := repo.AppendTransaction(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock transaction")
	}
	return nil
}

func (s *service) logFields(ctx context.Context, key Key, ref Ref) context.Context {
	fields := keyDetails(key)
	if ref.Type != "" {
		fields["ref_type"] = ref.Type
		fields["ref_id"] = ref.ID
	}
	return s.logg.WithFields(ctx, fields)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
