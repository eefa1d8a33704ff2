package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryIdempotencyStore struct {
	data map[string]string
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.Nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("%s:%s", scope, id)
}

type stubCheckout struct {
	creates int
}

func (s *stubCheckout) session() *models.CheckoutSession {
	return &models.CheckoutSession{
		ID:        uuid.New(),
		Status:    enums.CheckoutSessionPending,
		Currency:  enums.CurrencyTWD,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func (s *stubCheckout) Create(context.Context, uuid.UUID, checkoutsvc.CreateInput) (*models.CheckoutSession, error) {
	s.creates++
	return s.session(), nil
}

func (s *stubCheckout) Update(context.Context, uuid.UUID, uuid.UUID, checkoutsvc.UpdateInput) (*models.CheckoutSession, error) {
	return s.session(), nil
}

func (s *stubCheckout) Get(context.Context, uuid.UUID, uuid.UUID) (*models.CheckoutSession, error) {
	return s.session(), nil
}

func (s *stubCheckout) DeliveryOptions(context.Context, uuid.UUID, uuid.UUID) ([]shipping.Option, error) {
	return nil, nil
}

type stubCompleter struct {
	calls int
}

func (s *stubCompleter) Complete(context.Context, uuid.UUID, uuid.UUID, *checkoutsvc.PaymentInput) (*checkoutsvc.CompletionResult, error) {
	s.calls++
	return &checkoutsvc.CompletionResult{
		Order:    &models.Order{ID: uuid.New(), Currency: enums.CurrencyTWD},
		Replayed: s.calls > 1,
	}, nil
}

type fixture struct {
	handler   http.Handler
	checkout  *stubCheckout
	completer *stubCompleter
}

func newFixture() fixture {
	reg := metrics.NewRegistry()
	metrics.NewCheckoutMetrics(reg).IncCompletion("created")

	checkout := &stubCheckout{}
	completer := &stubCompleter{}
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	handler := NewRouter(cfg, nil, RouterParams{
		DB:          stubPinger{},
		Redis:       stubPinger{},
		Idempotency: &memoryIdempotencyStore{data: map[string]string{}},
		Checkout:    checkout,
		Completion:  completer,
		Metrics:     metrics.Handler(reg),
	})
	return fixture{handler: handler, checkout: checkout, completer: completer}
}

func (f fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/live", "", nil).Code)
	ready := f.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Contains(t, ready.Body.String(), `"redis":"up"`)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture()

	resp := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "storefront_checkout_completions_total")
}

func TestAPIRequiresTenant(t *testing.T) {
	f := newFixture()

	resp := f.do(http.MethodGet, "/api/v1/checkout-sessions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestCreateSessionIdempotency(t *testing.T) {
	f := newFixture()
	tenant := uuid.NewString()
	body := `{"merchant_id":"` + uuid.NewString() + `","line_items":[{"offer_id":"sku-1","quantity":1}]}`

	resp := f.do(http.MethodPost, "/api/v1/checkout-sessions", body, map[string]string{middleware.TenantHeader: tenant})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, f.checkout.creates)

	headers := map[string]string{middleware.TenantHeader: tenant, middleware.IdempotencyHeader: "create-1"}
	first := f.do(http.MethodPost, "/api/v1/checkout-sessions", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(http.MethodPost, "/api/v1/checkout-sessions", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, 1, f.checkout.creates)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestCreateSessionIdempotencyIgnoresTrailingSlash(t *testing.T) {
	f := newFixture()
	tenant := uuid.NewString()
	body := `{"merchant_id":"` + uuid.NewString() + `","line_items":[{"offer_id":"sku-1","quantity":1}]}`

	resp := f.do(http.MethodPost, "/api/v1/checkout-sessions/", body, map[string]string{middleware.TenantHeader: tenant})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, f.checkout.creates)

	headers := map[string]string{middleware.TenantHeader: tenant, middleware.IdempotencyHeader: "create-slash"}
	first := f.do(http.MethodPost, "/api/v1/checkout-sessions", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(http.MethodPost, "/api/v1/checkout-sessions/", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.ReplayedHeader))

	assert.Equal(t, 1, f.checkout.creates)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestCompleteRouteWithoutIdempotencyKey(t *testing.T) {
	f := newFixture()
	headers := map[string]string{middleware.TenantHeader: uuid.NewString()}
	path := "/api/v1/checkout-sessions/" + uuid.NewString() + "/complete"

	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, path, "", headers).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, path, "", headers).Code)
	assert.Equal(t, 2, f.completer.calls)
}

func TestSessionRoutes(t *testing.T) {
	f := newFixture()
	headers := map[string]string{middleware.TenantHeader: uuid.NewString()}
	base := "/api/v1/checkout-sessions/" + uuid.NewString()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, base, "", headers).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPatch, base, `{"buyer_email":"a@b.co"}`, headers).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, base+"/delivery-options", "", headers).Code)
}

func TestOrderRoutesWithoutServiceReportInternal(t *testing.T) {
	f := newFixture()
	headers := map[string]string{middleware.TenantHeader: uuid.NewString()}

	resp := f.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", headers)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
