package checkout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/merchants"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var baseTime = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

// testClock returns queued instants first, then the current instant.
type testClock struct {
	mu      sync.Mutex
	current time.Time
	queue   []time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{current: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		return next
	}
	return c.current
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

func (c *testClock) Queue(instants ...time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, instants...)
}

type notification struct {
	tenantID uuid.UUID
	orderID  uuid.UUID
	status   enums.OrderStatus
	previous *enums.OrderStatus
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (r *recordingNotifier) Notify(_ context.Context, tenantID, orderID uuid.UUID, status enums.OrderStatus, previous *enums.OrderStatus, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{tenantID: tenantID, orderID: orderID, status: status, previous: previous})
}

func (r *recordingNotifier) Calls() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.calls...)
}

type harness struct {
	t        *testing.T
	client   *db.Client
	merchant *models.Merchant
	clock    *testClock
	svc      Service
	engine   *Engine
	notifier *recordingNotifier
	tenantID uuid.UUID
}

func newHarness(t *testing.T, opts ...dbtest.MerchantOption) *harness {
	t.Helper()
	client := dbtest.Open(t)
	tenantID := uuid.New()
	merchant := dbtest.MustCreateMerchant(t, client, tenantID, opts...)
	clock := newTestClock(baseTime)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	ordersRepo := orders.NewRepository(client.DB())
	registry, err := payments.NewRegistry(payments.RegistryParams{
		Gateways: []payments.Gateway{payments.NewManualGateway(enums.PaymentMethodCashOnDelivery, "Cash on delivery")},
		Tx:       client,
		Repo:     payments.NewRepository(client.DB()),
		Orders:   ordersRepo,
		Logger:   logg,
	})
	require.NoError(t, err)

	sessions := NewRepository(client.DB())
	productsRepo := products.NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repo:      sessions,
		Merchants: merchants.NewRepository(client.DB()),
		Catalog:   productsRepo,
		Payments:  registry,
		Logger:    logg,
		Now:       clock.Now,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	engine, err := NewEngine(EngineParams{
		Tx:       client,
		Sessions: sessions,
		Orders:   ordersRepo,
		Products: productsRepo,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Payments: registry,
		Notifier: notifier,
		Logger:   logg,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		t:        t,
		client:   client,
		merchant: merchant,
		clock:    clock,
		svc:      svc,
		engine:   engine,
		notifier: notifier,
		tenantID: tenantID,
	}
}

func (h *harness) product(priceCents int64, stock int) *models.Product {
	h.t.Helper()
	return dbtest.MustCreateProduct(h.t, h.client, h.merchant, priceCents, stock)
}

func (h *harness) session(lines ...LineInput) *models.CheckoutSession {
	h.t.Helper()
	session, err := h.svc.Create(context.Background(), h.tenantID, CreateInput{
		MerchantID: h.merchant.ID,
		Lines:      lines,
	})
	require.NoError(h.t, err)
	return session
}

func (h *harness) reload(sessionID uuid.UUID) *models.CheckoutSession {
	h.t.Helper()
	session, err := NewRepository(h.client.DB()).FindByID(context.Background(), h.tenantID, sessionID)
	require.NoError(h.t, err)
	require.NotNil(h.t, session)
	return session
}

func (h *harness) countOrders() int64 {
	h.t.Helper()
	var count int64
	require.NoError(h.t, h.client.DB().Model(&models.Order{}).Count(&count).Error)
	return count
}

func (h *harness) outboxEvents() []models.OutboxEvent {
	h.t.Helper()
	var rows []models.OutboxEvent
	require.NoError(h.t, h.client.DB().Find(&rows).Error)
	return rows
}

func line(product *models.Product, qty int) LineInput {
	return LineInput{OfferID: product.ID.String(), Quantity: qty}
}

func testAddress() *types.Address {
	return &types.Address{
		RecipientName: "Mei Lin",
		Line1:         "1 Zhongshan Rd",
		City:          "Taipei",
		PostalCode:    "100",
		Country:       "tw",
	}
}

func ptr[T any](v T) *T {
	return &v
}
