package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v80"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type intentCreator interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams, idempotencyKey string) (*stripe.PaymentIntent, error)
}

// StripeGateway charges cards through Stripe PaymentIntents. The token is a
// Stripe PaymentMethod id collected client-side.
type StripeGateway struct {
	client intentCreator
}

func NewStripeGateway(client intentCreator) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{client: client}, nil
}

func (g *StripeGateway) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (g *StripeGateway) DisplayName() string { return "Credit card" }

func (g *StripeGateway) RequiresToken() bool { return true }

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (IntentResult, error) {
	if strings.TrimSpace(req.Token) == "" {
		return IntentResult{}, errors.New("payment token required")
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(strings.ToLower(req.Currency.String())),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("order_no", req.OrderNo)
	params.AddMetadata("tenant_id", req.TenantID.String())

	intent, err := g.client.CreatePaymentIntent(ctx, params, req.IdempotencyKey)
	if err != nil {
		return IntentResult{}, fmt.Errorf("create stripe payment intent: %w", err)
	}
	return IntentResult{TransactionID: intent.ID, Status: recordStatusFor(intent.Status)}, nil
}

func recordStatusFor(status stripe.PaymentIntentStatus) enums.PaymentRecordStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentRecordSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return enums.PaymentRecordFailed
	default:
		return enums.PaymentRecordPending
	}
}
