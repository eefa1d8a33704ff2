// Package dbtest opens throwaway sqlite databases migrated with every model.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Open returns a client on a private in-memory database. The pool is pinned to a
// single connection, so concurrent transactions queue behind each other.
func Open(t *testing.T) *db.Client {
	t.Helper()
	client, err := db.New(context.Background(), config.DBConfig{
		SQLitePath: "file:test_" + uuid.NewString() + "?mode=memory&cache=shared",
	}, config.FeatureFlagsConfig{UseSQLite: true}, nil)
	require.NoError(t, err)
	require.NoError(t, client.DB().AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// MerchantOption tweaks a merchant fixture before insert.
type MerchantOption func(*models.Merchant)

// MustCreateMerchant inserts a merchant with home delivery (80) and store pickup (60) enabled.
func MustCreateMerchant(t *testing.T, client *db.Client, tenantID uuid.UUID, opts ...MerchantOption) *models.Merchant {
	t.Helper()
	merchant := &models.Merchant{
		TenantID:            tenantID,
		Name:                "Test Shop",
		Currency:            enums.CurrencyTWD,
		DefaultDeliveryType: enums.DeliveryHome,
		DeliverySettings: types.DeliverySettings{
			{Type: enums.DeliveryHome, Name: "Home delivery", Enabled: true, BaseFeeCents: 80, SurchargePer5KgCents: 40, EstimatedDaysMin: 2, EstimatedDaysMax: 4},
			{Type: enums.DeliveryStorePickup, Name: "Store pickup", Enabled: true, BaseFeeCents: 60, EstimatedDaysMin: 3, EstimatedDaysMax: 5},
		},
		PaymentMethods: types.StringList{string(enums.PaymentMethodCashOnDelivery)},
	}
	for _, opt := range opts {
		opt(merchant)
	}
	require.NoError(t, client.DB().Create(merchant).Error)
	return merchant
}

// MustCreateProduct inserts an active product owned by merchant.
func MustCreateProduct(t *testing.T, client *db.Client, merchant *models.Merchant, priceCents int64, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		TenantID:   merchant.TenantID,
		MerchantID: merchant.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Title:      "Product",
		PriceCents: priceCents,
		Currency:   merchant.Currency,
		Stock:      stock,
		IsActive:   true,
	}
	require.NoError(t, client.DB().Create(product).Error)
	return product
}

// StockOf reads the current stock of a product.
func StockOf(t *testing.T, client *db.Client, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, client.DB().Where("id = ?", productID).First(&product).Error)
	return product.Stock
}

// OrderOption tweaks an order fixture before insert.
type OrderOption func(*models.Order)

// MustCreateOrder inserts a PENDING, UNPAID order with one item of qty units of product.
// Stock is not touched.
func MustCreateOrder(t *testing.T, client *db.Client, merchant *models.Merchant, product *models.Product, qty int, opts ...OrderOption) *models.Order {
	t.Helper()
	subtotal := product.PriceCents * int64(qty)
	order := &models.Order{
		TenantID:          merchant.TenantID,
		MerchantID:        merchant.ID,
		CheckoutSessionID: uuid.New(),
		OrderNo:           "SO-" + uuid.NewString()[:8],
		Source:            enums.OrderSourceStorefront,
		Status:            enums.OrderStatusPending,
		Currency:          merchant.Currency,
		SubtotalCents:     subtotal,
		TotalCents:        subtotal,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		ShippingStatus:    enums.ShippingStatusUnfulfilled,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
	for _, opt := range opts {
		opt(order)
	}
	require.NoError(t, client.DB().Omit("Items", "Addresses").Create(order).Error)
	item := &models.OrderItem{
		OrderID:        order.ID,
		ProductID:      product.ID,
		Title:          product.Title,
		Quantity:       qty,
		UnitPriceCents: product.PriceCents,
		SubtotalCents:  subtotal,
	}
	require.NoError(t, client.DB().Create(item).Error)
	order.Items = []models.OrderItem{*item}
	return order
}
