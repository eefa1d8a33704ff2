package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	defaultAckTimeout   = 15 * time.Second
	maxIdleBackoff      = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, attempts int) error
}

// topic is the slice of *pubsub.Publisher the relay needs.
type topic interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Logger  *logger.Logger
	DB      txRunner
	PubSub  pinger
	Store   outboxStore
	Topic   topic
	Metrics *metrics.OutboxMetrics

	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	AckTimeout   time.Duration
}

// Relay moves order events from outbox_events to the orders topic. A batch is
// claimed under row locks, published without waiting between messages, and
// each row is marked only after its own acknowledgement arrives, so delivery
// is at-least-once and one bad row never blocks the rest.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pinger
	store       outboxStore
	topic       topic
	metrics     *metrics.OutboxMetrics
	batchSize   int
	interval    time.Duration
	maxAttempts int
	ackTimeout  time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Store == nil:
		return nil, errors.New("outbox store is required")
	case params.Topic == nil:
		return nil, errors.New("orders topic is required")
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		store:       params.Store,
		topic:       params.Topic,
		metrics:     params.Metrics,
		batchSize:   params.BatchSize,
		interval:    params.PollInterval,
		maxAttempts: params.MaxAttempts,
		ackTimeout:  params.AckTimeout,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.interval <= 0 {
		r.interval = defaultPollInterval
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.ackTimeout <= 0 {
		r.ackTimeout = defaultAckTimeout
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by the next one; an empty batch or an error waits, with errors
// backing off up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub not ready: %w", err)
	}

	backoff := r.newBackoff()
	for {
		handled, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.drain_failed", err)
			wait, _ = backoff.Next()
		case handled >= r.batchSize:
			backoff = r.newBackoff()
			wait = 0
		default:
			backoff = r.newBackoff()
			wait = r.interval
		}
		if err := pause(ctx, wait); err != nil {
			r.logg.Info(ctx, "outbox.relay_stopping")
			return err
		}
	}
}

func (r *Relay) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.interval)
	b = retry.WithCappedDuration(maxIdleBackoff, b)
	return retry.WithJitterPercent(20, b)
}

type inflight struct {
	row    models.OutboxEvent
	env    outbox.PayloadEnvelope
	result publishResult
}

// drain claims one batch and settles every row in it. It returns the number
// of rows claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}
		r.metrics.ObserveBatch(claimed)

		ackCtx, cancel := context.WithTimeout(ctx, r.ackTimeout)
		defer cancel()

		pending := make([]inflight, 0, len(rows))
		for _, row := range rows {
			env, err := outbox.DecodeEnvelope(row.Payload)
			if err != nil {
				if err := r.abandon(ctx, tx, row, err); err != nil {
					return err
				}
				continue
			}
			pending = append(pending, inflight{
				row:    row,
				env:    env,
				result: r.topic.Publish(ackCtx, messageFor(row, env)),
			})
		}

		for _, p := range pending {
			if err := r.settle(ackCtx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, p inflight) error {
	logCtx := r.logg.WithFields(ctx, rowFields(p.row, p.env))

	var pubErr error
	if p.result == nil {
		pubErr = errors.New("publisher returned no result")
	} else {
		_, pubErr = p.result.Get(ctx)
	}

	if pubErr != nil {
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"attempt": p.row.AttemptCount + 1,
			"error":   pubErr.Error(),
		}), "outbox.publish_failed")
		r.metrics.IncEvent(string(p.row.EventType), metrics.OutboxFailed)
		if err := r.store.MarkFailedTx(tx, p.row.ID, pubErr); err != nil {
			return fmt.Errorf("mark outbox row %s failed: %w", p.row.ID, err)
		}
		return nil
	}

	if err := r.store.MarkPublishedTx(tx, p.row.ID); err != nil {
		return fmt.Errorf("mark outbox row %s published: %w", p.row.ID, err)
	}
	r.metrics.IncEvent(string(p.row.EventType), metrics.OutboxPublished)
	r.logg.Info(logCtx, "outbox.published")
	return nil
}

// abandon parks a row that can never be published by exhausting its attempts.
func (r *Relay) abandon(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, rowFields(row, outbox.PayloadEnvelope{})), "outbox.payload_undecodable")
	r.metrics.IncEvent(string(row.EventType), metrics.OutboxAbandoned)
	if err := r.store.MarkTerminalTx(tx, row.ID, fmt.Errorf("decode envelope: %w", cause), r.maxAttempts); err != nil {
		return fmt.Errorf("abandon outbox row %s: %w", row.ID, err)
	}
	return nil
}

// messageFor copies the routing facts into attributes so subscribers can
// filter without decoding the body.
func messageFor(row models.OutboxEvent, env outbox.PayloadEnvelope) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if env.TenantID != "" {
		attrs["tenant_id"] = env.TenantID
	}
	return &gcppubsub.Message{Data: row.Payload, Attributes: attrs}
}

func rowFields(row models.OutboxEvent, env outbox.PayloadEnvelope) map[string]any {
	fields := map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
	}
	if env.EventID != "" {
		fields["event_id"] = env.EventID
	}
	if env.TenantID != "" {
		fields["tenant_id"] = env.TenantID
	}
	return fields
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pubsubTopic adapts *pubsub.Publisher, whose Publish returns a concrete
// *PublishResult, to the topic interface.
type pubsubTopic struct {
	publisher *gcppubsub.Publisher
}

func (t pubsubTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.publisher.Publish(ctx, msg)
}
