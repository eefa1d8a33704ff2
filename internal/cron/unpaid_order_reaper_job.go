package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	defaultUnpaidOrderTimeout = time.Hour
	defaultReaperBatchSize    = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type UnpaidOrderReaperParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Products  products.Repository
	Outbox    outbox.Emitter
	Notifier  orders.Notifier
	Timeout   time.Duration
	BatchSize int
}

// NewUnpaidOrderReaper builds the job that cancels pending orders whose payment
// never started or failed within Timeout, and puts their stock back.
func NewUnpaidOrderReaper(params UnpaidOrderReaperParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultUnpaidOrderTimeout
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReaperBatchSize
	}
	return &unpaidOrderReaper{
		logg:     params.Logger,
		db:       params.DB,
		orders:   params.Orders,
		products: params.Products,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		timeout:  timeout,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type unpaidOrderReaper struct {
	logg     *logger.Logger
	db       txRunner
	orders   orders.Repository
	products products.Repository
	outbox   outbox.Emitter
	notifier orders.Notifier
	timeout  time.Duration
	batch    int
	now      func() time.Time
}

func (j *unpaidOrderReaper) Name() string { return "unpaid-order-reaper" }

func (j *unpaidOrderReaper) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.timeout)
	stale, err := j.orders.ListStaleUnpaid(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale unpaid orders: %w", err)
	}

	var errs error
	cancelled := 0
	for _, order := range stale {
		ok, err := j.cancel(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		if !ok {
			continue
		}
		cancelled++
		previous := enums.OrderStatusPending
		if j.notifier != nil {
			j.notifier.Notify(ctx, order.TenantID, order.ID, enums.OrderStatusCancelled, &previous, map[string]any{
				"reason": CancelReasonPaymentTimeout,
			})
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"cancelled":  cancelled,
	})
	j.logg.Info(logCtx, "unpaid order sweep complete")
	return errs
}

// CancelReasonPaymentTimeout is the reason recorded on reaped orders.
const CancelReasonPaymentTimeout = "payment_timeout"

// OrderCancelledEvent is the outbox payload for order.cancelled.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNo       string              `json:"orderNo"`
	MerchantID    uuid.UUID           `json:"merchantId"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	Reason        string              `json:"reason"`
	CancelledAt   time.Time           `json:"cancelledAt"`
}

// cancel reports false when the order moved on (paid or changed status) since
// it was listed.
func (j *unpaidOrderReaper) cancel(ctx context.Context, candidate models.Order) (bool, error) {
	cancelled := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := j.orders.WithTx(tx)
		current, err := orderRepo.FindByID(ctx, candidate.TenantID, candidate.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		ok, err := orderRepo.CancelUnpaid(ctx, current.TenantID, current.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := orders.RestoreStock(ctx, j.products.WithTx(tx), current); err != nil {
			return err
		}

		now := j.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			TenantID:      current.TenantID,
			OccurredAt:    now,
			Data: OrderCancelledEvent{
				OrderID:       current.ID,
				OrderNo:       current.OrderNo,
				MerchantID:    current.MerchantID,
				PaymentStatus: current.PaymentStatus,
				Reason:        CancelReasonPaymentTimeout,
				CancelledAt:   now,
			},
		}
		if err := j.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}
