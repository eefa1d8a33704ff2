package types

import (
	"database/sql/driver"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DeliverySetting is a merchant's configuration for one delivery type.
type DeliverySetting struct {
	Type                 enums.DeliveryType `json:"type"`
	Name                 string             `json:"name"`
	Enabled              bool               `json:"enabled"`
	BaseFeeCents         int64              `json:"base_fee_cents"`
	SurchargePer5KgCents int64              `json:"surcharge_per_5kg_cents"`
	EstimatedDaysMin     int                `json:"estimated_days_min"`
	EstimatedDaysMax     int                `json:"estimated_days_max"`
}

type DeliverySettings []DeliverySetting

// Value serializes the settings to JSON.
func (d DeliverySettings) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	return jsonValue([]DeliverySetting(d))
}

// Scan decodes a JSON column into the settings.
func (d *DeliverySettings) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	var settings []DeliverySetting
	if err := scanJSON(value, &settings); err != nil {
		return err
	}
	*d = settings
	return nil
}
