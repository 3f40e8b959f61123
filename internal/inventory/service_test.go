package inventory

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/pagination"
)

// lockingStore emulates row locks: FindForUpdate blocks while another
// transaction holds the key and the lock is released when the holder's
// transaction ends.
type lockingStore struct {
	mu    sync.Mutex
	items map[string]*models.StockItem
	txns  []models.StockTransaction
	locks map[string]*sync.Mutex
	held  map[*gorm.DB][]*sync.Mutex
}

func newLockingStore(items ...models.StockItem) *lockingStore {
	s := &lockingStore{
		items: map[string]*models.StockItem{},
		locks: map[string]*sync.Mutex{},
		held:  map[*gorm.DB][]*sync.Mutex{},
	}
	for i := range items {
		item := items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		s.items[Key{ProductID: item.ProductID, VariantID: item.VariantID}.String()] = &item
	}
	return s
}

func (s *lockingStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func (s *lockingStore) releaseAll(tx *gorm.DB) {
	s.mu.Lock()
	held := s.held[tx]
	delete(s.held, tx)
	s.mu.Unlock()
	for _, m := range held {
		m.Unlock()
	}
}

func (s *lockingStore) item(key Key) models.StockItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[key.String()]
}

type fakeRunner struct {
	store *lockingStore
}

func (f fakeRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	tx := &gorm.DB{}
	defer f.store.releaseAll(tx)
	return fn(tx)
}

type fakeRepo struct {
	store *lockingStore
	tx    *gorm.DB
}

func (r *fakeRepo) WithTx(tx *gorm.DB) Repository { return &fakeRepo{store: r.store, tx: tx} }

func (r *fakeRepo) Find(_ context.Context, key Key) (*models.StockItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.items[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *fakeRepo) FindForUpdate(ctx context.Context, key Key) (*models.StockItem, error) {
	if r.tx != nil {
		m := r.store.lockFor(key.String())
		m.Lock()
		r.store.mu.Lock()
		r.store.held[r.tx] = append(r.store.held[r.tx], m)
		r.store.mu.Unlock()
	}
	return r.Find(ctx, key)
}

func (r *fakeRepo) CreateIfAbsent(_ context.Context, item *models.StockItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := Key{ProductID: item.ProductID, VariantID: item.VariantID}.String()
	if _, ok := r.store.items[key]; ok {
		return nil
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	cp := *item
	r.store.items[key] = &cp
	return nil
}

func (r *fakeRepo) UpdateCounts(_ context.Context, item *models.StockItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored := r.store.items[Key{ProductID: item.ProductID, VariantID: item.VariantID}.String()]
	stored.OnHand = item.OnHand
	stored.Reserved = item.Reserved
	return nil
}

func (r *fakeRepo) AppendTransaction(_ context.Context, txn *models.StockTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn.ID = uuid.New()
	txn.CreatedAt = time.Now()
	r.store.txns = append(r.store.txns, *txn)
	return nil
}

func (r *fakeRepo) ListTransactions(context.Context, uuid.UUID, *pagination.Cursor, int) ([]models.StockTransaction, error) {
	return nil, nil
}

func (r *fakeRepo) ListLowStock(context.Context) ([]models.StockItem, error) { return nil, nil }

func (r *fakeRepo) FindActiveAlert(context.Context, uuid.UUID, enums.StockAlertType) (*models.StockAlert, error) {
	return nil, nil
}

func (r *fakeRepo) CreateAlert(context.Context, *models.StockAlert) error { return nil }

func (r *fakeRepo) FindAlertForUpdate(context.Context, uuid.UUID) (*models.StockAlert, error) {
	return nil, ErrNotFound
}

func (r *fakeRepo) UpdateAlert(context.Context, *models.StockAlert) error { return nil }

func (r *fakeRepo) ResolveAlerts(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRepo) ListAlerts(context.Context, *enums.StockAlertStatus) ([]models.StockAlert, error) {
	return nil, nil
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (o *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newFakeService(t *testing.T, store *lockingStore) (Service, fakeRunner, *recordingOutbox) {
	t.Helper()
	runner := fakeRunner{store: store}
	events := &recordingOutbox{}
	svc, err := NewService(ServiceParams{
		Repository: &fakeRepo{store: store},
		TxRunner:   runner,
		Outbox:     events,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return svc, runner, events
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	store := newLockingStore()
	_, err = NewService(ServiceParams{Repository: &fakeRepo{store: store}, TxRunner: fakeRunner{store: store}})
	require.Error(t, err)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	key := Key{ProductID: uuid.New()}
	store := newLockingStore(models.StockItem{ProductID: key.ProductID, OnHand: 1})
	svc, runner, _ := newFakeService(t, store)

	const workers = 20
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		insufficient atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
				return svc.Reserve(context.Background(), tx, key, 1, Ref{Type: "order", ID: uuid.NewString()})
			})
			switch {
			case err == nil:
				successes.Add(1)
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				insufficient.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, workers-1, insufficient.Load())
	item := store.item(key)
	assert.Equal(t, 1, item.Reserved)
	assert.Equal(t, 0, item.Available())
	assert.Len(t, store.txns, 1)
}

func TestReserveRequiresTransaction(t *testing.T) {
	key := Key{ProductID: uuid.New()}
	svc, _, _ := newFakeService(t, newLockingStore(models.StockItem{ProductID: key.ProductID, OnHand: 3}))

	err := svc.Reserve(context.Background(), nil, key, 1, Ref{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	key := Key{ProductID: uuid.New()}
	svc, runner, _ := newFakeService(t, newLockingStore(models.StockItem{ProductID: key.ProductID, OnHand: 3}))

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, key, 0, Ref{})
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReserveUnknownItemIsInsufficient(t *testing.T) {
	svc, runner, _ := newFakeService(t, newLockingStore())
	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, Key{ProductID: uuid.New()}, 1, Ref{})
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0, details["available"])
	assert.Equal(t, 1, details["requested"])
}

func TestReleaseClampsAtZero(t *testing.T) {
	key := Key{ProductID: uuid.New()}
	store := newLockingStore(models.StockItem{ProductID: key.ProductID, OnHand: 5, Reserved: 2})
	svc, runner, _ := newFakeService(t, store)

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Release(context.Background(), tx, key, 4, Ref{})
	})
	require.NoError(t, err)
	item := store.item(key)
	assert.Equal(t, 0, item.Reserved)
	assert.Equal(t, 5, item.OnHand)
	require.Len(t, store.txns, 1)
	assert.Equal(t, enums.StockTransactionReleased, store.txns[0].Kind)
	assert.Equal(t, 4, store.txns[0].Delta)
}

func TestDeductAllLocksInKeyOrder(t *testing.T) {
	low := Key{ProductID: uuid.MustParse("00000000-0000-0000-0000-000000000001")}
	high := Key{ProductID: uuid.MustParse("ffffffff-0000-0000-0000-000000000001")}
	store := newLockingStore(
		models.StockItem{ProductID: low.ProductID, OnHand: 50, Reserved: 2, ReorderThreshold: 1},
		models.StockItem{ProductID: high.ProductID, OnHand: 50, Reserved: 3, ReorderThreshold: 1},
	)
	svc, runner, events := newFakeService(t, store)

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.DeductAll(context.Background(), tx, []Line{{Key: high, Qty: 3}, {Key: low, Qty: 2}}, Ref{Type: "order", ID: "o-1"})
	})
	require.NoError(t, err)
	require.Len(t, store.txns, 2)
	assert.Equal(t, store.item(low).ID, store.txns[0].StockItemID)
	assert.Equal(t, store.item(high).ID, store.txns[1].StockItemID)
	assert.Equal(t, 48, store.item(low).OnHand)
	assert.Equal(t, 0, store.item(high).Reserved)
	assert.Empty(t, events.events)
}

func TestSortedLinesMergesDuplicates(t *testing.T) {
	product := uuid.New()
	variant := uuid.New()
	lines := sortedLines([]Line{
		{Key: Key{ProductID: product, VariantID: &variant}, Qty: 1},
		{Key: Key{ProductID: product}, Qty: 2},
		{Key: Key{ProductID: product, VariantID: &variant}, Qty: 4},
	})
	require.Len(t, lines, 2)
	assert.Nil(t, lines[0].Key.VariantID)
	assert.Equal(t, 2, lines[0].Qty)
	assert.Equal(t, 5, lines[1].Qty)
}
