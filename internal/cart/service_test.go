package cart_test

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/internal/catalog"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/pkg/db"
	"github.com/angelmondragon/shopledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

type stubStock map[string]int

func (s stubStock) GetAvailable(_ context.Context, key inventory.Key) (int, error) {
	return s[key.String()], nil
}

type fixture struct {
	svc    cart.Service
	client *db.Client
	stock  stubStock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	stock := stubStock{}
	svc, err := cart.NewService(
		cart.NewRepository(client.DB()),
		client,
		catalog.NewReader(client.DB()),
		stock,
		cart.Calculator{Tax: cart.NewStaticTaxTable(decimal.RequireFromString("0.08")), Shipping: cart.FlatRateShipping{}},
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	)
	require.NoError(t, err)
	return &fixture{svc: svc, client: client, stock: stock}
}

func (f *fixture) product(t *testing.T, priceCents, available int) models.Product {
	t.Helper()
	p := models.Product{SKU: uuid.NewString()[:8], Name: "Widget", PriceCents: priceCents, IsActive: true}
	require.NoError(t, f.client.DB().Create(&p).Error)
	f.stock[inventory.Key{ProductID: p.ID}.String()] = available
	return p
}

func TestAddItemSnapshotsPriceAndIncrements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, 10000, 10)
	owner := cart.UserOwner(uuid.New())

	view, err := f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)

	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", p.ID).Update("price_cents", 12000).Error)

	view, err = f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)
	assert.Equal(t, 2, view.Cart.Lines[0].Quantity)
	assert.Equal(t, 10000, view.Cart.Lines[0].UnitPriceCents)
	assert.Equal(t, 20000, view.Totals.SubtotalCents)
	assert.Equal(t, 1600, view.Totals.TaxCents)
	assert.Equal(t, 0, view.Totals.ShippingCents)
	assert.Equal(t, 21600, view.Totals.TotalCents)
}

func TestAddItemAdvisoryStockCheckCountsExistingQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, 500, 3)
	owner := cart.GuestOwner("guest-1")

	_, err := f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: p.ID, Quantity: 2})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, 500, 3)
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)

	_, err := f.svc.AddItem(ctx, cart.GuestOwner("g"), cart.AddItemInput{ProductID: p.ID, Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, cart.GuestOwner("g"), cart.AddItemInput{ProductID: uuid.New(), Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, 300, 10)
	b := f.product(t, 700, 10)
	owner := cart.GuestOwner("guest-2")

	_, err := f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 2)
	lineA := view.Cart.Lines[0].ID

	_, err = f.svc.UpdateQuantity(ctx, owner, lineA, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.UpdateQuantity(ctx, owner, lineA, 11)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	view, err = f.svc.UpdateQuantity(ctx, owner, lineA, 4)
	require.NoError(t, err)
	assert.Equal(t, 4*300+700, view.Totals.SubtotalCents)

	_, err = f.svc.RemoveItem(ctx, cart.GuestOwner("someone-else"), lineA)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	view, err = f.svc.RemoveItem(ctx, owner, lineA)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)

	view, err = f.svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Lines)
	assert.Zero(t, view.Totals.TotalCents)
}

func TestMergeCombinesAndCapsAtAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	shared := f.product(t, 1000, 4)
	guestOnly := f.product(t, 250, 9)
	userID := uuid.New()
	guest := cart.GuestOwner("guest-3")

	_, err := f.svc.AddItem(ctx, cart.UserOwner(userID), cart.AddItemInput{ProductID: shared.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, guest, cart.AddItemInput{ProductID: shared.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, guest, cart.AddItemInput{ProductID: guestOnly.ID, Quantity: 5})
	require.NoError(t, err)

	view, err := f.svc.Merge(ctx, "guest-3", userID)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 2)
	qty := map[uuid.UUID]int{}
	for _, line := range view.Cart.Lines {
		qty[line.ProductID] = line.Quantity
	}
	assert.Equal(t, 4, qty[shared.ID])
	assert.Equal(t, 5, qty[guestOnly.ID])

	_, err = f.svc.Find(ctx, guest)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var lines int64
	require.NoError(t, f.client.DB().Model(&models.CartLine{}).Count(&lines).Error)
	assert.EqualValues(t, 2, lines)
}

func TestMergeWithoutGuestCartReturnsUserCart(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Merge(context.Background(), "nobody", uuid.New())
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Lines)
}

func TestValidateReportsEveryViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ok := f.product(t, 100, 5)
	gone := f.product(t, 100, 5)
	short := f.product(t, 100, 5)
	owner := cart.GuestOwner("guest-4")
	for _, p := range []models.Product{ok, gone, short} {
		_, err := f.svc.AddItem(ctx, owner, cart.AddItemInput{ProductID: p.ID, Quantity: 2})
		require.NoError(t, err)
	}
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", gone.ID).Update("is_active", false).Error)
	f.stock[inventory.Key{ProductID: short.ID}.String()] = 1

	c, err := f.svc.Find(ctx, owner)
	require.NoError(t, err)
	violations, err := f.svc.Validate(ctx, c)
	require.NoError(t, err)
	require.Len(t, violations, 2)

	reasons := map[uuid.UUID]string{}
	for _, v := range violations {
		reasons[v.ProductID] = v.Reason
	}
	assert.Equal(t, cart.ViolationProductUnavailable, reasons[gone.ID])
	assert.Equal(t, cart.ViolationInsufficientStock, reasons[short.ID])
}

func TestCreateIfAbsentKeepsTransactionUsable(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	owner := cart.UserOwner(uuid.New())

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := cart.NewRepository(tx)
		require.NoError(t, repo.CreateIfAbsent(ctx, &models.Cart{UserID: owner.UserID}))
		require.NoError(t, repo.CreateIfAbsent(ctx, &models.Cart{UserID: owner.UserID}))
		_, err := repo.FindByOwnerForUpdate(ctx, owner)
		return err
	})
	require.NoError(t, err)

	var rows int64
	require.NoError(t, client.DB().Model(&models.Cart{}).Where("user_id = ?", *owner.UserID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}
