package checkout

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/catalog"
	"github.com/angelmondragon/shopledger-backend/internal/coupons"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/internal/payments"
	"github.com/angelmondragon/shopledger-backend/pkg/db"
	"github.com/angelmondragon/shopledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRedis emulates the string and sorted set commands the session store
// uses, with key expiry driven by the test clock.
type fakeRedis struct {
	mu      sync.Mutex
	now     func() time.Time
	values  map[string]string
	expires map[string]time.Time
	zsets   map[string]map[string]float64
}

func newFakeRedis(now func() time.Time) *fakeRedis {
	return &fakeRedis{
		now:     now,
		values:  map[string]string{},
		expires: map[string]time.Time{},
		zsets:   map[string]map[string]float64{},
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	str, ok := value.(string)
	if !ok {
		return errors.New("fake redis stores strings only")
	}
	f.values[key] = str
	if ttl > 0 {
		f.expires[key] = f.now().Add(ttl)
	} else {
		delete(f.expires, key)
	}
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exp, ok := f.expires[key]; ok && !f.now().Before(exp) {
		delete(f.values, key)
		delete(f.expires, key)
	}
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
		delete(f.expires, key)
	}
	return nil
}

func (f *fakeRedis) ZAdd(_ context.Context, key string, score float64, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zsets[key] == nil {
		f.zsets[key] = map[string]float64{}
	}
	f.zsets[key][member] = score
	return nil
}

func (f *fakeRedis) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for member, score := range f.zsets[key] {
		if score >= min && score <= max {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return f.zsets[key][out[i]] < f.zsets[key][out[j]] })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRedis) ZRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range members {
		delete(f.zsets[key], member)
	}
	return nil
}

func (f *fakeRedis) CheckoutSessionKey(ownerID string) string {
	return "sl:checkout_session:" + ownerID
}

func (f *fakeRedis) CheckoutSessionIndexKey() string {
	return "sl:checkout_session_index"
}

func (f *fakeRedis) indexSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.zsets[f.CheckoutSessionIndexKey()])
}

// staleStock lets a test make the cart's advisory stock view disagree with
// the ledger, as if stock moved between validation and reservation.
type staleStock struct {
	inner     inventory.Service
	overrides map[string]int
}

func (s *staleStock) GetAvailable(ctx context.Context, key inventory.Key) (int, error) {
	if v, ok := s.overrides[key.String()]; ok {
		return v, nil
	}
	return s.inner.GetAvailable(ctx, key)
}

type failingGateway struct {
	payments.Gateway
}

func (failingGateway) CreateIntent(context.Context, int, string, map[string]string) (*payments.Intent, error) {
	return nil, errors.New("card network unavailable")
}

type harness struct {
	svc       Service
	client    *db.Client
	carts     cart.Service
	inventory inventory.Service
	orders    orders.Service
	gateway   *payments.DemoGateway
	redis     *fakeRedis
	stock     *staleStock
	clock     *testClock
}

func newHarness(t *testing.T, wrap func(payments.Gateway) payments.Gateway) *harness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), logg)

	inv, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(client.DB()),
		TxRunner:   client,
		Outbox:     publisher,
		Logger:     logg,
	})
	require.NoError(t, err)

	stock := &staleStock{inner: inv, overrides: map[string]int{}}
	reader := catalog.NewReader(client.DB())
	carts, err := cart.NewService(
		cart.NewRepository(client.DB()),
		client,
		reader,
		stock,
		cart.Calculator{Tax: cart.NewStaticTaxTable(decimal.RequireFromString("0.08")), Shipping: cart.FlatRateShipping{}},
		logg,
	)
	require.NoError(t, err)

	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repository: coupons.NewRepository(client.DB()), Logger: logg})
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(client.DB()),
		TxRunner:   client,
		Outbox:     publisher,
		Logger:     logg,
	})
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC()}
	backend := newFakeRedis(clock.Now)
	store, err := NewRedisSessionStore(backend)
	require.NoError(t, err)
	store.now = clock.Now

	demo := payments.NewDemoGateway()
	var gateway payments.Gateway = demo
	if wrap != nil {
		gateway = wrap(demo)
	}

	svc, err := NewService(ServiceParams{
		TxRunner:   client,
		Carts:      carts,
		Catalog:    reader,
		Inventory:  inv,
		Coupons:    couponSvc,
		Orders:     orderSvc,
		Gateway:    gateway,
		Sessions:   store,
		Outbox:     publisher,
		Logger:     logg,
		SessionTTL: time.Hour,
		Currency:   "usd",
		Clock:      clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		svc:       svc,
		client:    client,
		carts:     carts,
		inventory: inv,
		orders:    orderSvc,
		gateway:   demo,
		redis:     backend,
		stock:     stock,
		clock:     clock,
	}
}

// product creates an active catalog product with onHand units in stock. The
// id is fixed so tests control lock order.
func (h *harness) product(t *testing.T, id string, priceCents, onHand int) models.Product {
	t.Helper()
	p := models.Product{ID: uuid.MustParse(id), SKU: "SKU-" + id[len(id)-4:], Name: "Widget " + id[len(id)-2:], PriceCents: priceCents, IsActive: true}
	require.NoError(t, h.client.DB().Create(&p).Error)
	if onHand > 0 {
		_, err := h.inventory.AddStock(context.Background(), inventory.Key{ProductID: p.ID}, onHand, "initial count")
		require.NoError(t, err)
	}
	return p
}

func (h *harness) add(t *testing.T, owner cart.Owner, productID uuid.UUID, qty int) {
	t.Helper()
	_, err := h.carts.AddItem(context.Background(), owner, cart.AddItemInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func (h *harness) stockOf(t *testing.T, productID uuid.UUID) *models.StockItem {
	t.Helper()
	item, err := h.inventory.Get(context.Background(), inventory.Key{ProductID: productID})
	require.NoError(t, err)
	return item
}

func (h *harness) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.client.DB().Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func shippingAddress() types.Address {
	return types.Address{Name: "Ada Lovelace", Line1: "1 Main St", City: "Portland", State: "or", PostalCode: "97201", Country: "us"}
}

func (h *harness) initiate(t *testing.T, owner cart.Owner) *InitiateResult {
	t.Helper()
	result, err := h.svc.Initiate(context.Background(), InitiateInput{
		Owner:           owner,
		Email:           "ada@example.com",
		ShippingAddress: shippingAddress(),
	})
	require.NoError(t, err)
	return result
}
