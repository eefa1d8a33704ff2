package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is materialized once per completed checkout session.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_orders_tenant_order_no,priority:1"`
	MerchantID        uuid.UUID            `gorm:"column:merchant_id;type:uuid;not null"`
	CheckoutSessionID uuid.UUID            `gorm:"column:checkout_session_id;type:uuid;not null;uniqueIndex"`
	OrderNo           string               `gorm:"column:order_no;not null;uniqueIndex:idx_orders_tenant_order_no,priority:2"`
	Source            enums.OrderSource    `gorm:"column:source;not null"`
	Status            enums.OrderStatus    `gorm:"column:status;not null"`
	Currency          enums.Currency       `gorm:"column:currency;not null"`
	SubtotalCents     int64                `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents  int64                `gorm:"column:shipping_fee_cents;not null;default:0"`
	TaxCents          int64                `gorm:"column:tax_cents;not null;default:0"`
	TotalCents        int64                `gorm:"column:total_cents;not null"`
	PaymentStatus     enums.PaymentStatus  `gorm:"column:payment_status;not null"`
	ShippingStatus    enums.ShippingStatus `gorm:"column:shipping_status;not null"`
	DeliveryType      *enums.DeliveryType  `gorm:"column:delivery_type"`
	BuyerEmail        *string              `gorm:"column:buyer_email"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Items     []OrderItem    `gorm:"foreignKey:OrderID;references:ID"`
	Addresses []OrderAddress `gorm:"foreignKey:OrderID;references:ID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is immutable once created.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Title          string    `gorm:"column:title;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	SubtotalCents  int64     `gorm:"column:subtotal_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// OrderAddress records a shipping or billing address at completion time.
type OrderAddress struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Kind      enums.AddressKind `gorm:"column:kind;not null"`
	Address   types.Address     `gorm:"column:address;type:jsonb;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (a *OrderAddress) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
