package callbacks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultBaseBackoff = time.Second
	defaultMaxRetries  = 3
	defaultWorkers     = 4
	defaultQueueSize   = 256
)

type orderReader interface {
	FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
}

type merchantReader interface {
	FindByID(ctx context.Context, tenantID, merchantID uuid.UUID) (*models.Merchant, error)
}

// Notification is one order state change waiting to be delivered.
type Notification struct {
	TenantID   uuid.UUID
	OrderID    uuid.UUID
	Status     enums.OrderStatus
	Previous   *enums.OrderStatus
	Details    map[string]any
	OccurredAt time.Time
}

type job struct {
	ctx context.Context
	n   Notification
}

// Dispatcher delivers signed order callbacks to buyer platforms. Notify only
// enqueues; a pool of workers started by Run performs the HTTP attempts.
type Dispatcher struct {
	orders     orderReader
	merchants  merchantReader
	client     *http.Client
	timeout    time.Duration
	backoff    time.Duration
	maxRetries uint64
	workers    int
	logg       *logger.Logger
	metrics    *metrics.CallbackMetrics
	now        func() time.Time

	queue     chan job
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type DispatcherParams struct {
	Orders     orderReader
	Merchants  merchantReader
	HTTPClient *http.Client
	Config     config.CallbacksConfig
	Logger     *logger.Logger
	Metrics    *metrics.CallbackMetrics
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Merchants == nil {
		return nil, fmt.Errorf("merchant reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Dispatcher{
		orders:     params.Orders,
		merchants:  params.Merchants,
		client:     client,
		timeout:    cfg.Timeout,
		backoff:    cfg.BaseBackoff,
		maxRetries: cfg.MaxRetries,
		workers:    cfg.Workers,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        time.Now,
		queue:      make(chan job, cfg.QueueSize),
	}, nil
}

// Notify hands a state change to the worker pool and returns immediately. It
// never fails the caller: a full or closed queue drops the callback with a log.
func (d *Dispatcher) Notify(ctx context.Context, tenantID, orderID uuid.UUID, status enums.OrderStatus, previous *enums.OrderStatus, details map[string]any) {
	n := Notification{
		TenantID:   tenantID,
		OrderID:    orderID,
		Status:     status,
		Previous:   previous,
		Details:    details,
		OccurredAt: d.now().UTC(),
	}
	logCtx := d.logg.WithOrderID(ctx, orderID.String())

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.IncDelivery(metrics.DeliveryDropped)
		d.logg.Warn(logCtx, "callback dropped: dispatcher closed")
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		d.metrics.IncDelivery(metrics.DeliveryDropped)
		d.logg.Warn(logCtx, "callback dropped: queue full")
	}
}

// Run starts the workers and blocks until ctx is cancelled or Close has been
// called and the queue is drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case j, ok := <-d.queue:
					if !ok {
						return nil
					}
					_ = d.Deliver(j.ctx, j.n)
				}
			}
		})
	}
	return group.Wait()
}

// Close stops accepting notifications. Queued ones are still delivered by Run.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
}

// ErrRejected marks a 4xx answer from the platform. It is never retried.
var ErrRejected = errors.New("callback rejected by platform")

// Deliver resolves the callback target for the order and POSTs the payload,
// retrying network errors and 5xx answers with exponential backoff. Orders that
// did not come from a platform, or merchants without a callback URL, are a no-op.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) error {
	ctx = d.logg.WithOrderID(ctx, n.OrderID.String())

	order, err := d.orders.FindByID(ctx, n.TenantID, n.OrderID)
	if err != nil {
		d.logg.Error(ctx, "callback: load order", err)
		return err
	}
	if order == nil {
		d.logg.Warn(ctx, "callback skipped: order not found")
		return nil
	}
	if order.Source != enums.OrderSourcePlatform {
		return nil
	}
	merchant, err := d.merchants.FindByID(ctx, order.TenantID, order.MerchantID)
	if err != nil {
		d.logg.Error(ctx, "callback: load merchant", err)
		return err
	}
	if merchant == nil || merchant.CallbackURL == nil || strings.TrimSpace(*merchant.CallbackURL) == "" {
		d.logg.Info(ctx, "callback skipped: no callback url configured")
		return nil
	}
	var secret string
	if merchant.CallbackSecret != nil {
		secret = *merchant.CallbackSecret
	}

	payload := buildPayload(order, n)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	target := strings.TrimSpace(*merchant.CallbackURL)
	attempts := 0
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		d.metrics.IncAttempt()
		status, err := d.post(ctx, target, secret, payload, body)
		if err != nil {
			return retry.RetryableError(err)
		}
		switch {
		case status >= 200 && status < 300:
			return nil
		case status >= 500:
			return retry.RetryableError(fmt.Errorf("platform answered %d", status))
		default:
			return fmt.Errorf("%w: status %d", ErrRejected, status)
		}
	})

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"attempts":  attempts,
		"new_state": payload.NewState,
	})
	switch {
	case err == nil:
		d.metrics.IncDelivery(metrics.DeliveryDelivered)
		d.logg.Info(logCtx, "callback delivered")
	case errors.Is(err, ErrRejected):
		d.metrics.IncDelivery(metrics.DeliveryRejected)
		d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), "callback rejected by platform")
	default:
		d.metrics.IncDelivery(metrics.DeliveryExhausted)
		d.logg.Error(logCtx, "callback delivery failed after retries", err)
	}
	return err
}

func (d *Dispatcher) post(ctx context.Context, target, secret string, payload Payload, body []byte) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, payload.EventType)
	req.Header.Set(HeaderTimestamp, payload.Timestamp.Format(time.RFC3339))
	if secret != "" {
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

func buildPayload(order *models.Order, n Notification) Payload {
	payload := Payload{
		EventType:       EventTypeOrderStateChanged,
		Timestamp:       n.OccurredAt,
		OrderID:         order.ID.String(),
		MerchantOrderID: order.OrderNo,
		MerchantID:      order.MerchantID.String(),
		NewState:        ExternalState(n.Status),
		Details:         n.Details,
	}
	if n.Previous != nil {
		previous := ExternalState(*n.Previous)
		payload.PreviousState = &previous
	}
	return payload
}
