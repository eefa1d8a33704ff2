package enums

import "fmt"

// PaymentRecordStatus is the state of a single gateway payment attempt.
type PaymentRecordStatus string

const (
	PaymentRecordInitiated PaymentRecordStatus = "INITIATED"
	PaymentRecordPending   PaymentRecordStatus = "PENDING"
	PaymentRecordSucceeded PaymentRecordStatus = "SUCCEEDED"
	PaymentRecordFailed    PaymentRecordStatus = "FAILED"
)

var validPaymentRecordStatuses = []PaymentRecordStatus{
	PaymentRecordInitiated,
	PaymentRecordPending,
	PaymentRecordSucceeded,
	PaymentRecordFailed,
}

// String implements fmt.Stringer.
func (p PaymentRecordStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentRecordStatus.
func (p PaymentRecordStatus) IsValid() bool {
	for _, candidate := range validPaymentRecordStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentRecordStatus converts raw input into a PaymentRecordStatus.
func ParsePaymentRecordStatus(value string) (PaymentRecordStatus, error) {
	for _, candidate := range validPaymentRecordStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment record status %q", value)
}
