package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier receives order state changes once they are committed.
type Notifier interface {
	Notify(ctx context.Context, tenantID, orderID uuid.UUID, status enums.OrderStatus, previous *enums.OrderStatus, details map[string]any)
}

// Service exposes merchant-side order reads and status transitions.
type Service interface {
	Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, tenantID, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
}

type ServiceParams struct {
	Repo     Repository
	Products products.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Notifier Notifier
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	products products.Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		products: params.Products,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// StatusChangedEvent is the outbox payload for order.status_changed.
type StatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"orderId"`
	OrderNo        string            `json:"orderNo"`
	MerchantID     uuid.UUID         `json:"merchantId"`
	PreviousStatus enums.OrderStatus `json:"previousStatus"`
	Status         enums.OrderStatus `json:"status"`
	ChangedAt      time.Time         `json:"changedAt"`
}

func (s *service) UpdateStatus(ctx context.Context, tenantID, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", next))
	}

	var (
		updated  *models.Order
		previous enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, tenantID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !order.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", order.Status, next))
		}

		var extra map[string]any
		if next == enums.OrderStatusShipped {
			extra = map[string]any{"shipping_status": enums.ShippingStatusShipped}
		}
		ok, err := repo.UpdateStatus(ctx, tenantID, orderID, order.Status, next, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		}
		if next == enums.OrderStatusCancelled {
			if err := RestoreStock(ctx, s.products.WithTx(tx), order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
			}
		}

		now := s.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			TenantID:      tenantID,
			OccurredAt:    now,
			Data: StatusChangedEvent{
				OrderID:        order.ID,
				OrderNo:        order.OrderNo,
				MerchantID:     order.MerchantID,
				PreviousStatus: order.Status,
				Status:         next,
				ChangedAt:      now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status change")
		}

		previous = order.Status
		order.Status = next
		if next == enums.OrderStatusShipped {
			order.ShippingStatus = enums.ShippingStatusShipped
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, tenantID, orderID, next, &previous, nil)
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        orderID.String(),
		"previous_status": previous,
		"status":          next,
	})
	s.logg.Info(logCtx, "order status updated")
	return updated, nil
}
