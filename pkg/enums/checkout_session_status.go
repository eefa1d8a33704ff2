package enums

import "fmt"

// CheckoutSessionStatus is the stored lifecycle of a checkout session.
// EXPIRED is never persisted; it is derived from expires_at at read time.
type CheckoutSessionStatus string

const (
	CheckoutSessionPending   CheckoutSessionStatus = "PENDING"
	CheckoutSessionCompleted CheckoutSessionStatus = "COMPLETED"
	CheckoutSessionCancelled CheckoutSessionStatus = "CANCELLED"
	CheckoutSessionExpired   CheckoutSessionStatus = "EXPIRED"
)

var storedCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionPending,
	CheckoutSessionCompleted,
	CheckoutSessionCancelled,
}

// String implements fmt.Stringer.
func (c CheckoutSessionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value may be stored on a session row.
func (c CheckoutSessionStatus) IsValid() bool {
	for _, candidate := range storedCheckoutSessionStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from c.
func (c CheckoutSessionStatus) IsTerminal() bool {
	return c == CheckoutSessionCompleted || c == CheckoutSessionCancelled
}

// ParseCheckoutSessionStatus converts raw input into a stored CheckoutSessionStatus.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	for _, candidate := range storedCheckoutSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout session status %q", value)
}
