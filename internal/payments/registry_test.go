package payments

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type fakeIntentCreator struct {
	intent *stripe.PaymentIntent
	err    error
	params *stripe.PaymentIntentParams
	key    string
	// transient fails this many calls with a retryable error first.
	transient int
	calls     int
}

func (f *fakeIntentCreator) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams, key string) (*stripe.PaymentIntent, error) {
	f.calls++
	f.params = params
	f.key = key
	if f.calls <= f.transient {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("502 from stripe"), "stripe unavailable")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

func newTestRegistry(t *testing.T, client *db.Client, stripeClient *fakeIntentCreator) *Registry {
	t.Helper()
	gateways := []Gateway{NewManualGateway(enums.PaymentMethodCashOnDelivery, "Cash on delivery")}
	if stripeClient != nil {
		gw, err := NewStripeGateway(stripeClient)
		require.NoError(t, err)
		gateways = append(gateways, gw)
	}
	registry, err := NewRegistry(RegistryParams{
		Gateways: gateways,
		Tx:       client,
		Repo:     NewRepository(client.DB()),
		Orders:   orders.NewRepository(client.DB()),
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),

		IntentBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return registry
}

func TestHandlersForSkipsMethodsWithoutGateway(t *testing.T) {
	client := dbtest.Open(t)
	registry := newTestRegistry(t, client, nil)
	merchant := &models.Merchant{PaymentMethods: types.StringList{"card", "cash_on_delivery", "bogus", "cash_on_delivery"}}

	handlers := registry.HandlersFor(merchant)
	require.Len(t, handlers, 1)
	assert.Equal(t, "ph_cash_on_delivery", handlers[0].ID)
	assert.Equal(t, "Cash on delivery", handlers[0].Name)

	assert.Empty(t, registry.HandlersFor(nil))
}

func TestInitiateManualRecordsPendingPayment(t *testing.T) {
	client := dbtest.Open(t)
	registry := newTestRegistry(t, client, nil)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New())
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 5)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 2)
	handler := registry.HandlersFor(merchant)[0]

	payment, err := registry.Initiate(context.Background(), order, handler, "")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, enums.PaymentRecordPending, payment.Status)
	assert.Equal(t, int64(1000), payment.AmountCents)
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, "manual_"+order.OrderNo, *payment.TransactionID)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)

	stored, err := orders.NewRepository(client.DB()).FindByID(context.Background(), order.TenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
}

func TestInitiateStripeFailureMarksOrderFailed(t *testing.T) {
	client := dbtest.Open(t)
	creator := &fakeIntentCreator{err: errors.New("card_declined")}
	registry := newTestRegistry(t, client, creator)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New(), func(m *models.Merchant) {
		m.PaymentMethods = types.StringList{"card"}
	})
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 5)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 1)
	handler := registry.HandlersFor(merchant)[0]

	payment, err := registry.Initiate(context.Background(), order, handler, "pm_card_visa")
	require.Error(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, enums.PaymentRecordFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Contains(t, *payment.FailureReason, "card_declined")
	assert.Equal(t, "order_"+order.ID.String(), creator.key)

	rows, err := NewRepository(client.DB()).ListByOrder(context.Background(), order.TenantID, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	stored, err := orders.NewRepository(client.DB()).FindByID(context.Background(), order.TenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
}

func TestInitiateStripeSuccess(t *testing.T) {
	client := dbtest.Open(t)
	creator := &fakeIntentCreator{intent: &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}}
	registry := newTestRegistry(t, client, creator)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New(), func(m *models.Merchant) {
		m.PaymentMethods = types.StringList{"card"}
	})
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 5)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 1)
	handler := registry.HandlersFor(merchant)[0]

	payment, err := registry.Initiate(context.Background(), order, handler, "pm_card_visa")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordSucceeded, payment.Status)
	assert.Equal(t, "pi_123", *payment.TransactionID)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "twd", *creator.params.Currency)
	assert.Equal(t, int64(500), *creator.params.Amount)
}

func TestInitiateSkipsWhenTokenMissing(t *testing.T) {
	client := dbtest.Open(t)
	creator := &fakeIntentCreator{}
	registry := newTestRegistry(t, client, creator)
	order := &models.Order{ID: uuid.New(), TenantID: uuid.New()}

	payment, err := registry.Initiate(context.Background(), order, types.PaymentHandler{ID: "ph_card", Method: "card"}, "")
	require.NoError(t, err)
	assert.Nil(t, payment)
	assert.Nil(t, creator.params)
}

func TestInitiateUnsupportedHandler(t *testing.T) {
	client := dbtest.Open(t)
	registry := newTestRegistry(t, client, nil)

	_, err := registry.Initiate(context.Background(), &models.Order{}, types.PaymentHandler{ID: "ph_card", Method: "card"}, "tok")
	assert.ErrorIs(t, err, ErrUnsupportedHandler)
}

func TestInitiateRetriesTransientGatewayErrors(t *testing.T) {
	client := dbtest.Open(t)
	creator := &fakeIntentCreator{
		intent:    &stripe.PaymentIntent{ID: "pi_retry", Status: stripe.PaymentIntentStatusProcessing},
		transient: 2,
	}
	registry := newTestRegistry(t, client, creator)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New(), func(m *models.Merchant) {
		m.PaymentMethods = types.StringList{"card"}
	})
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 5)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 1)

	payment, err := registry.Initiate(context.Background(), order, registry.HandlersFor(merchant)[0], "pm_card_visa")
	require.NoError(t, err)
	assert.Equal(t, 3, creator.calls)
	assert.Equal(t, "pi_retry", *payment.TransactionID)
}

func TestInitiateGivesUpAfterRetryBudget(t *testing.T) {
	client := dbtest.Open(t)
	creator := &fakeIntentCreator{transient: 10}
	registry := newTestRegistry(t, client, creator)
	merchant := dbtest.MustCreateMerchant(t, client, uuid.New(), func(m *models.Merchant) {
		m.PaymentMethods = types.StringList{"card"}
	})
	product := dbtest.MustCreateProduct(t, client, merchant, 500, 5)
	order := dbtest.MustCreateOrder(t, client, merchant, product, 1)

	payment, err := registry.Initiate(context.Background(), order, registry.HandlersFor(merchant)[0], "pm_card_visa")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 1+defaultIntentRetries, creator.calls)
	assert.Equal(t, enums.PaymentRecordFailed, payment.Status)
}
