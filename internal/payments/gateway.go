package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// IntentRequest is what a gateway needs to start collecting payment for an order.
type IntentRequest struct {
	OrderID        uuid.UUID
	OrderNo        string
	TenantID       uuid.UUID
	AmountCents    int64
	Currency       enums.Currency
	Token          string
	IdempotencyKey string
}

// IntentResult is the gateway's answer to an intent request.
type IntentResult struct {
	TransactionID string
	Status        enums.PaymentRecordStatus
}

// Gateway adapts one payment method to an external (or offline) processor.
type Gateway interface {
	Method() enums.PaymentMethod
	DisplayName() string
	RequiresToken() bool
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResult, error)
}
