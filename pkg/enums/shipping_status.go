package enums

import "fmt"

// ShippingStatus tracks physical fulfillment of an order.
type ShippingStatus string

const (
	ShippingStatusUnfulfilled ShippingStatus = "UNFULFILLED"
	ShippingStatusShipped     ShippingStatus = "SHIPPED"
	ShippingStatusDelivered   ShippingStatus = "DELIVERED"
)

var validShippingStatuses = []ShippingStatus{
	ShippingStatusUnfulfilled,
	ShippingStatusShipped,
	ShippingStatusDelivered,
}

// String implements fmt.Stringer.
func (s ShippingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShippingStatus.
func (s ShippingStatus) IsValid() bool {
	for _, candidate := range validShippingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShippingStatus converts raw input into a ShippingStatus.
func ParseShippingStatus(value string) (ShippingStatus, error) {
	for _, candidate := range validShippingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping status %q", value)
}
