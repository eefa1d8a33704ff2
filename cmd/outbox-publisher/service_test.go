package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

// fakePublisher fails the messages whose event_id is listed in failing.
type fakePublisher struct {
	mu       sync.Mutex
	failing  map[string]bool
	messages []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	if p.failing[msg.Attributes["event_id"]] {
		return fakeResult{err: errors.New("transient")}
	}
	return fakeResult{}
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func emit(t *testing.T, client *db.Client, tenantID uuid.UUID) models.OutboxEvent {
	t.Helper()
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	aggregateID := uuid.New()
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			TenantID:      tenantID,
			Data:          map[string]any{"orderNo": "SO1"},
		})
	}))
	var row models.OutboxEvent
	require.NoError(t, client.DB().Where("aggregate_id = ?", aggregateID).First(&row).Error)
	return row
}

func newTestRelay(t *testing.T, client *db.Client, pub *fakePublisher, m *metrics.OutboxMetrics) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Logger:      logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:          client,
		PubSub:      okPinger{},
		Store:       outbox.NewRepository(client.DB()),
		Topic:       pub,
		Metrics:     m,
		BatchSize:   10,
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	return relay
}

func reload(t *testing.T, client *db.Client, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, client.DB().Where("id = ?", id).First(&row).Error)
	return row
}

func TestDrainPublishesWithAttributes(t *testing.T) {
	client := dbtest.Open(t)
	tenantID := uuid.New()
	row := emit(t, client, tenantID)
	pub := &fakePublisher{}
	relay := newTestRelay(t, client, pub, nil)

	handled, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, handled)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, "order.created", msg.Attributes["event_type"])
	require.Equal(t, row.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Equal(t, tenantID.String(), msg.Attributes["tenant_id"])
	require.NotEmpty(t, msg.Attributes["event_id"])
	require.JSONEq(t, string(row.Payload), string(msg.Data))

	require.NotNil(t, reload(t, client, row.ID).PublishedAt)

	handled, err = relay.drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, handled)
}

func TestDrainContinuesAfterFailure(t *testing.T) {
	client := dbtest.Open(t)
	first := emit(t, client, uuid.New())
	second := emit(t, client, uuid.New())

	env, err := outbox.DecodeEnvelope(first.Payload)
	require.NoError(t, err)
	pub := &fakePublisher{failing: map[string]bool{env.EventID: true}}
	relay := newTestRelay(t, client, pub, nil)

	_, err = relay.drain(context.Background())
	require.NoError(t, err)

	failed := reload(t, client, first.ID)
	require.Nil(t, failed.PublishedAt)
	require.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	require.NotNil(t, reload(t, client, second.ID).PublishedAt)
}

func TestDrainStopsAfterMaxAttempts(t *testing.T) {
	client := dbtest.Open(t)
	row := emit(t, client, uuid.New())
	env, err := outbox.DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	pub := &fakePublisher{failing: map[string]bool{env.EventID: true}}
	relay := newTestRelay(t, client, pub, nil)

	for i := 0; i < 5; i++ {
		_, err := relay.drain(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, pub.messages, 3)
	require.Equal(t, 3, reload(t, client, row.ID).AttemptCount)
}

func TestDrainGivesUpOnUndecodablePayload(t *testing.T) {
	client := dbtest.Open(t)
	row := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`"not an envelope"`),
	}
	require.NoError(t, client.DB().Create(&row).Error)
	pub := &fakePublisher{}
	relay := newTestRelay(t, client, pub, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Empty(t, pub.messages)

	stored := reload(t, client, row.ID)
	require.Equal(t, 3, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
}

func TestRunStopsOnCancel(t *testing.T) {
	client := dbtest.Open(t)
	relay := newTestRelay(t, client, &fakePublisher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, relay.Run(ctx), context.Canceled)
}

func TestDrainRecordsMetrics(t *testing.T) {
	client := dbtest.Open(t)
	first := emit(t, client, uuid.New())
	emit(t, client, uuid.New())
	env, err := outbox.DecodeEnvelope(first.Payload)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewOutboxMetrics(reg)
	relay := newTestRelay(t, client, &fakePublisher{failing: map[string]bool{env.EventID: true}}, m)

	_, err = relay.drain(context.Background())
	require.NoError(t, err)

	require.Equal(t, float64(1), outboxCount(t, reg, metrics.OutboxPublished))
	require.Equal(t, float64(1), outboxCount(t, reg, metrics.OutboxFailed))
}

func outboxCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "storefront_outbox_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewRelayValidatesAndDefaults(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)

	client := dbtest.Open(t)
	relay, err := NewRelay(RelayParams{
		Logger: logger.Nop(),
		DB:     client,
		PubSub: okPinger{},
		Store:  outbox.NewRepository(client.DB()),
		Topic:  &fakePublisher{},
	})
	require.NoError(t, err)
	require.Equal(t, defaultBatchSize, relay.batchSize)
	require.Equal(t, defaultPollInterval, relay.interval)
	require.Equal(t, defaultMaxAttempts, relay.maxAttempts)
}
