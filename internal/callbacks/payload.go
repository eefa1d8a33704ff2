package callbacks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// EventTypeOrderStateChanged marks every order callback.
const EventTypeOrderStateChanged = "order.state_changed"

const (
	HeaderEventType = "X-Event-Type"
	HeaderTimestamp = "X-Event-Timestamp"
	HeaderSignature = "X-Signature"

	signaturePrefix = "sha256="
)

// External states understood by buyer platforms.
const (
	StatePending    = "pending"
	StateInProgress = "in progress"
	StateCompleted  = "completed"
	StateCancelled  = "cancelled"
)

// Payload is the JSON body POSTed to a platform callback URL.
type Payload struct {
	EventType       string         `json:"eventType"`
	Timestamp       time.Time      `json:"timestamp"`
	OrderID         string         `json:"orderId"`
	MerchantOrderID string         `json:"merchantOrderId"`
	MerchantID      string         `json:"merchantId"`
	NewState        string         `json:"newState"`
	PreviousState   *string        `json:"previousState,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
}

// ExternalState maps an internal order status to the platform vocabulary.
func ExternalState(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusProcessing, enums.OrderStatusShipped:
		return StateInProgress
	case enums.OrderStatusCompleted:
		return StateCompleted
	case enums.OrderStatusCancelled, enums.OrderStatusRefunding:
		return StateCancelled
	default:
		return StatePending
	}
}

// Sign returns the X-Signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header produced by Sign.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}
