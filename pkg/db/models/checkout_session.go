package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CheckoutSession is a time-boxed, priced cart awaiting completion into an order.
// OrderID is set exactly once, by the claim, and only together with COMPLETED.
type CheckoutSession struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	TenantID         uuid.UUID                   `gorm:"column:tenant_id;type:uuid;not null;index"`
	MerchantID       uuid.UUID                   `gorm:"column:merchant_id;type:uuid;not null"`
	Status           enums.CheckoutSessionStatus `gorm:"column:status;not null"`
	Currency         enums.Currency              `gorm:"column:currency;not null"`
	Cart             types.Cart                  `gorm:"column:cart;type:jsonb;not null"`
	SubtotalCents    int64                       `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents *int64                      `gorm:"column:shipping_fee_cents"`
	TaxCents         *int64                      `gorm:"column:tax_cents"`
	TotalCents       int64                       `gorm:"column:total_cents;not null"`
	DeliveryType     *enums.DeliveryType         `gorm:"column:delivery_type"`
	ShippingAddress  *types.Address              `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress   *types.Address              `gorm:"column:billing_address;type:jsonb"`
	BuyerEmail       *string                     `gorm:"column:buyer_email"`
	Platform         *string                     `gorm:"column:platform"`
	PaymentHandlers  types.PaymentHandlers       `gorm:"column:payment_handlers;type:jsonb;not null"`
	OrderID          *uuid.UUID                  `gorm:"column:order_id;type:uuid;uniqueIndex"`
	ExpiresAt        time.Time                   `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *CheckoutSession) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// EffectiveStatus derives EXPIRED for pending sessions past their deadline.
func (s *CheckoutSession) EffectiveStatus(now time.Time) enums.CheckoutSessionStatus {
	if s.Status == enums.CheckoutSessionPending && s.IsExpired(now) {
		return enums.CheckoutSessionExpired
	}
	return s.Status
}

// IsExpired reports whether the deadline has passed.
func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// RecomputeTotal sets total = subtotal + shipping + tax.
func (s *CheckoutSession) RecomputeTotal() {
	total := s.SubtotalCents
	if s.ShippingFeeCents != nil {
		total += *s.ShippingFeeCents
	}
	if s.TaxCents != nil {
		total += *s.TaxCents
	}
	s.TotalCents = total
}
