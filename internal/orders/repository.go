package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their immutable children.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, tenantID, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error)
	UpdatePaymentStatus(ctx context.Context, tenantID, orderID uuid.UUID, status enums.PaymentStatus) error
	CancelUnpaid(ctx context.Context, tenantID, orderID uuid.UUID) (bool, error)
	ListStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

var unpaidPaymentStatuses = []enums.PaymentStatus{enums.PaymentStatusUnpaid, enums.PaymentStatusFailed}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order row, then its items and addresses.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if len(order.Items) > 0 {
		if err := r.db.WithContext(ctx).Create(&order.Items).Error; err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
	}
	for i := range order.Addresses {
		order.Addresses[i].OrderID = order.ID
	}
	if len(order.Addresses) > 0 {
		if err := r.db.WithContext(ctx).Create(&order.Addresses).Error; err != nil {
			return fmt.Errorf("create order addresses: %w", err)
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ? AND tenant_id = ?", orderID, tenantID)
}

func (r *repository) FindBySessionID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "checkout_session_id = ? AND tenant_id = ?", sessionID, tenantID)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Addresses").
		Where(query, args...).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &order, nil
}

// UpdateStatus moves the order from one status to another only if it is still
// in from. It reports false when another writer got there first.
func (r *repository) UpdateStatus(ctx context.Context, tenantID, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND tenant_id = ? AND status = ?", orderID, tenantID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update order status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, tenantID, orderID uuid.UUID, status enums.PaymentStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND tenant_id = ?", orderID, tenantID).
		Update("payment_status", status)
	if res.Error != nil {
		return fmt.Errorf("update payment status: %w", res.Error)
	}
	return nil
}

// CancelUnpaid cancels a pending order only while its payment is still unpaid
// or failed, so a payment recorded after the order was read wins.
func (r *repository) CancelUnpaid(ctx context.Context, tenantID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND payment_status IN ?",
			orderID, tenantID, enums.OrderStatusPending, unpaidPaymentStatuses).
		Update("status", enums.OrderStatusCancelled)
	if res.Error != nil {
		return false, fmt.Errorf("cancel unpaid order: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListStaleUnpaid returns pending orders created before cutoff whose payment
// never started or failed, oldest first.
func (r *repository) ListStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND payment_status IN ? AND created_at < ?",
			enums.OrderStatusPending,
			unpaidPaymentStatuses,
			cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list stale unpaid orders: %w", err)
	}
	return orders, nil
}
