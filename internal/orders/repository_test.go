package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func TestRepositoryCreateWritesItemsAndAddresses(t *testing.T) {
	client := dbtest.Open(t)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 10)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	order := &models.Order{
		TenantID:          merchant.TenantID,
		MerchantID:        merchant.ID,
		CheckoutSessionID: uuid.New(),
		OrderNo:           "SO20261016-AAAA0001",
		Source:            enums.OrderSourcePlatform,
		Status:            enums.OrderStatusPending,
		Currency:          enums.CurrencyTWD,
		SubtotalCents:     1000,
		TotalCents:        1000,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		ShippingStatus:    enums.ShippingStatusUnfulfilled,
		Items: []models.OrderItem{
			{ProductID: product.ID, Title: "Tea", Quantity: 2, UnitPriceCents: 500, SubtotalCents: 1000},
		},
		Addresses: []models.OrderAddress{
			{Kind: enums.AddressShipping, Address: types.Address{RecipientName: "Lin", Line1: "1 Main St", City: "Taipei", Country: "TW"}},
		},
	}
	require.NoError(t, repo.Create(ctx, order))

	loaded, err := repo.FindByID(ctx, merchant.TenantID, order.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 2, loaded.Items[0].Quantity)
	require.Len(t, loaded.Addresses, 1)
	assert.Equal(t, "Taipei", loaded.Addresses[0].Address.City)

	bySession, err := repo.FindBySessionID(ctx, merchant.TenantID, order.CheckoutSessionID)
	require.NoError(t, err)
	require.NotNil(t, bySession)
	assert.Equal(t, order.ID, bySession.ID)
}

func TestRepositoryFindByIDIsTenantScoped(t *testing.T) {
	client := dbtest.Open(t)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 10)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 1)
	repo := NewRepository(client.DB())

	found, err := repo.FindByID(context.Background(), uuid.New(), order.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepositoryOrderNumberUniquePerTenant(t *testing.T) {
	client := dbtest.Open(t)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 10)
	first := dbtest.MustCreateOrder(t, client, merchant, product, 1)
	repo := NewRepository(client.DB())

	dup := &models.Order{
		TenantID:          merchant.TenantID,
		MerchantID:        merchant.ID,
		CheckoutSessionID: uuid.New(),
		OrderNo:           first.OrderNo,
		Source:            enums.OrderSourceStorefront,
		Status:            enums.OrderStatusPending,
		Currency:          enums.CurrencyTWD,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		ShippingStatus:    enums.ShippingStatusUnfulfilled,
	}
	require.Error(t, repo.Create(context.Background(), dup))
}

func TestRepositoryUpdateStatusIsConditional(t *testing.T) {
	client := dbtest.Open(t)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 10)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 1)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	ok, err := repo.UpdateStatus(ctx, merchant.TenantID, order.ID, enums.OrderStatusPending, enums.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateStatus(ctx, merchant.TenantID, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.FindByID(ctx, merchant.TenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, loaded.Status)
}

func TestRepositoryCancelUnpaidHonorsPaymentStatus(t *testing.T) {
	client := dbtest.Open(t)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 10)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	paid := dbtest.MustCreateOrder(t, client, merchant, product, 1, func(o *models.Order) {
		o.PaymentStatus = enums.PaymentStatusPaid
	})
	ok, err := repo.CancelUnpaid(ctx, merchant.TenantID, paid.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	failed := dbtest.MustCreateOrder(t, client, merchant, product, 1, func(o *models.Order) {
		o.PaymentStatus = enums.PaymentStatusFailed
	})
	ok, err = repo.CancelUnpaid(ctx, merchant.TenantID, failed.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CancelUnpaid(ctx, merchant.TenantID, failed.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.FindByID(ctx, merchant.TenantID, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, loaded.Status)
	loaded, err = repo.FindByID(ctx, merchant.TenantID, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, loaded.Status)
}

func TestRepositoryListStaleUnpaid(t *testing.T) {
	client := dbtest.Open(t)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 10)
	now := time.Now().UTC().Truncate(time.Second)
	old := now.Add(-2 * time.Hour)

	stale := dbtest.MustCreateOrder(t, client, merchant, product, 1, func(o *models.Order) { o.CreatedAt = old })
	failed := dbtest.MustCreateOrder(t, client, merchant, product, 1, func(o *models.Order) {
		o.CreatedAt = old
		o.PaymentStatus = enums.PaymentStatusFailed
	})
	dbtest.MustCreateOrder(t, client, merchant, product, 1, func(o *models.Order) {
		o.CreatedAt = old
		o.PaymentStatus = enums.PaymentStatusPending
	})
	dbtest.MustCreateOrder(t, client, merchant, product, 1)

	rows, err := NewRepository(client.DB()).ListStaleUnpaid(context.Background(), now.Add(-time.Hour), 10)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, row := range rows {
		ids = append(ids, row.ID)
		assert.Len(t, row.Items, 1)
	}
	assert.ElementsMatch(t, []uuid.UUID{stale.ID, failed.ID}, ids)
}

func TestNewOrderNumber(t *testing.T) {
	id := uuid.MustParse("1a2b3c4d-0000-0000-0000-000000000000")
	got := NewOrderNumber(time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC), id)
	assert.Equal(t, "SO20261016-1A2B3C4D", got)
}
