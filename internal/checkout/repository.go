package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists checkout sessions. Every mutation after creation is a
// single guarded UPDATE whose affected-row count is the decision.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.CheckoutSession, error)
	Save(ctx context.Context, session *models.CheckoutSession, now time.Time) (bool, error)
	Claim(ctx context.Context, tenantID, sessionID, orderID uuid.UUID, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the session store to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	if session == nil {
		return errors.New("session required")
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create checkout session: %w", err)
	}
	return nil
}

// FindByID returns nil, nil when no session matches (id, tenant).
func (r *repository) FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", sessionID, tenantID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	return &session, nil
}

// Save writes the mutable pricing and address fields, but only while the
// session is still pending, unclaimed and unexpired at now.
func (r *repository) Save(ctx context.Context, session *models.CheckoutSession, now time.Time) (bool, error) {
	if session == nil {
		return false, errors.New("session required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND order_id IS NULL AND expires_at > ?",
			session.ID, session.TenantID, enums.CheckoutSessionPending, now).
		Updates(map[string]any{
			"cart":               session.Cart,
			"subtotal_cents":     session.SubtotalCents,
			"shipping_fee_cents": session.ShippingFeeCents,
			"tax_cents":          session.TaxCents,
			"total_cents":        session.TotalCents,
			"delivery_type":      session.DeliveryType,
			"shipping_address":   session.ShippingAddress,
			"billing_address":    session.BillingAddress,
			"buyer_email":        session.BuyerEmail,
		})
	if res.Error != nil {
		return false, fmt.Errorf("save checkout session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Claim is the compare-and-swap that moves a session to COMPLETED and links
// orderID. It reports false when the session is already terminal, already
// linked, or expired at now; the caller re-reads to tell those apart.
func (r *repository) Claim(ctx context.Context, tenantID, sessionID, orderID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND tenant_id = ? AND status NOT IN ? AND order_id IS NULL AND expires_at > ?",
			sessionID, tenantID,
			[]enums.CheckoutSessionStatus{enums.CheckoutSessionCompleted, enums.CheckoutSessionCancelled},
			now).
		Updates(map[string]any{
			"status":   enums.CheckoutSessionCompleted,
			"order_id": orderID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim checkout session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
