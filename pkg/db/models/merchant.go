package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Merchant is the shop-level configuration the checkout flow reads: delivery
// methods, free shipping threshold, payment methods and platform callback settings.
type Merchant struct {
	ID                         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TenantID                   uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name                       string                 `gorm:"column:name;not null"`
	Currency                   enums.Currency         `gorm:"column:currency;not null"`
	FreeShippingThresholdCents *int64                 `gorm:"column:free_shipping_threshold_cents"`
	DefaultDeliveryType        enums.DeliveryType     `gorm:"column:default_delivery_type"`
	DeliverySettings           types.DeliverySettings `gorm:"column:delivery_settings;type:jsonb;not null"`
	PaymentMethods             types.StringList       `gorm:"column:payment_methods;type:jsonb;not null"`
	TaxRateBPS                 int                    `gorm:"column:tax_rate_bps;not null;default:0"`
	CallbackURL                *string                `gorm:"column:callback_url"`
	CallbackSecret             *string                `gorm:"column:callback_secret"`
	CreatedAt                  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Merchant) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}
