package enums

import "fmt"

// DeliveryType names a delivery method a merchant can enable.
type DeliveryType string

const (
	DeliveryHome        DeliveryType = "HOME"
	DeliveryStorePickup DeliveryType = "STORE_PICKUP"
	DeliveryExpress     DeliveryType = "EXPRESS"
)

var validDeliveryTypes = []DeliveryType{
	DeliveryHome,
	DeliveryStorePickup,
	DeliveryExpress,
}

// String implements fmt.Stringer.
func (d DeliveryType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryType.
func (d DeliveryType) IsValid() bool {
	for _, candidate := range validDeliveryTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryType converts raw input into a DeliveryType.
func ParseDeliveryType(value string) (DeliveryType, error) {
	for _, candidate := range validDeliveryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery type %q", value)
}
