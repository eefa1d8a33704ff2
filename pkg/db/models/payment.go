package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment is one gateway attempt started after an order commits.
type Payment struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID      uuid.UUID                 `gorm:"column:tenant_id;type:uuid;not null"`
	HandlerID     string                    `gorm:"column:handler_id;not null"`
	Method        enums.PaymentMethod       `gorm:"column:method;not null"`
	Status        enums.PaymentRecordStatus `gorm:"column:status;not null"`
	AmountCents   int64                     `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency            `gorm:"column:currency;not null"`
	TransactionID *string                   `gorm:"column:transaction_id"`
	FailureReason *string                   `gorm:"column:failure_reason"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
