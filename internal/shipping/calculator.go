package shipping

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	refPrefix = "dlv_"

	surchargeStepGrams = 5000
)

// Option is one delivery method offered to the buyer with its computed fee.
type Option struct {
	Ref              string             `json:"ref"`
	Type             enums.DeliveryType `json:"type"`
	Name             string             `json:"name"`
	EstimatedDaysMin int                `json:"estimated_days_min"`
	EstimatedDaysMax int                `json:"estimated_days_max"`
	FeeCents         int64              `json:"fee_cents"`
}

// Quote is the fee resolved for a single delivery type.
type Quote struct {
	Type     enums.DeliveryType
	FeeCents int64
}

// Calculator derives delivery fees from a merchant's configuration. It holds no
// state and never mutates the merchant.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// ListDeliveryOptions returns one option per enabled delivery type, in the order
// the merchant configured them.
func (c *Calculator) ListDeliveryOptions(merchant *models.Merchant, subtotalCents int64, weightGrams int) []Option {
	if merchant == nil {
		return nil
	}
	options := make([]Option, 0, len(merchant.DeliverySettings))
	for _, setting := range merchant.DeliverySettings {
		if !setting.Enabled {
			continue
		}
		options = append(options, Option{
			Ref:              RefFor(setting.Type),
			Type:             setting.Type,
			Name:             setting.Name,
			EstimatedDaysMin: setting.EstimatedDaysMin,
			EstimatedDaysMax: setting.EstimatedDaysMax,
			FeeCents:         fee(merchant, setting, subtotalCents, weightGrams),
		})
	}
	return options
}

// QuoteByRef resolves an option ref chosen by the client. It returns nil for
// refs that do not name an enabled delivery type; nil never means a zero fee.
func (c *Calculator) QuoteByRef(merchant *models.Merchant, ref string, subtotalCents int64, weightGrams int) *Quote {
	deliveryType, ok := ParseRef(ref)
	if !ok {
		return nil
	}
	return c.quoteFor(merchant, deliveryType, subtotalCents, weightGrams)
}

// DefaultQuote quotes the merchant's default delivery type, falling back to the
// first enabled type. Nil when nothing is enabled.
func (c *Calculator) DefaultQuote(merchant *models.Merchant, subtotalCents int64, weightGrams int) *Quote {
	if merchant == nil {
		return nil
	}
	if merchant.DefaultDeliveryType != "" {
		if q := c.quoteFor(merchant, merchant.DefaultDeliveryType, subtotalCents, weightGrams); q != nil {
			return q
		}
	}
	for _, setting := range merchant.DeliverySettings {
		if setting.Enabled {
			return &Quote{Type: setting.Type, FeeCents: fee(merchant, setting, subtotalCents, weightGrams)}
		}
	}
	return nil
}

func (c *Calculator) quoteFor(merchant *models.Merchant, deliveryType enums.DeliveryType, subtotalCents int64, weightGrams int) *Quote {
	if merchant == nil {
		return nil
	}
	for _, setting := range merchant.DeliverySettings {
		if setting.Type == deliveryType && setting.Enabled {
			return &Quote{Type: setting.Type, FeeCents: fee(merchant, setting, subtotalCents, weightGrams)}
		}
	}
	return nil
}

func fee(merchant *models.Merchant, setting types.DeliverySetting, subtotalCents int64, weightGrams int) int64 {
	if merchant.FreeShippingThresholdCents != nil && subtotalCents >= *merchant.FreeShippingThresholdCents {
		return 0
	}
	return setting.BaseFeeCents + int64(surchargeSteps(weightGrams))*setting.SurchargePer5KgCents
}

// surchargeSteps counts started 5kg blocks beyond the first 5kg.
func surchargeSteps(weightGrams int) int {
	over := weightGrams - surchargeStepGrams
	if over <= 0 {
		return 0
	}
	return (over + surchargeStepGrams - 1) / surchargeStepGrams
}

// RefFor builds the client-facing reference for a delivery type.
func RefFor(deliveryType enums.DeliveryType) string {
	return refPrefix + strings.ToLower(string(deliveryType))
}

// ParseRef maps a client-facing reference back to its delivery type.
func ParseRef(ref string) (enums.DeliveryType, bool) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, refPrefix) {
		return "", false
	}
	deliveryType, err := enums.ParseDeliveryType(strings.ToUpper(strings.TrimPrefix(trimmed, refPrefix)))
	if err != nil {
		return "", false
	}
	return deliveryType, true
}
