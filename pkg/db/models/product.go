package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Product is the catalog entry checkout prices from and decrements stock on.
type Product struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index"`
	MerchantID  uuid.UUID      `gorm:"column:merchant_id;type:uuid;not null;index"`
	SKU         string         `gorm:"column:sku;not null"`
	Title       string         `gorm:"column:title;not null"`
	PriceCents  int64          `gorm:"column:price_cents;not null"`
	Currency    enums.Currency `gorm:"column:currency;not null"`
	WeightGrams int            `gorm:"column:weight_grams;not null;default:0"`
	Stock       int            `gorm:"column:stock;not null;default:0;check:stock >= 0"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
