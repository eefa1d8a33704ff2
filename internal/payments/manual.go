package payments

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ManualGateway covers offline methods such as cash on delivery, where payment
// is collected outside the system and the intent is just a pending record.
type ManualGateway struct {
	method enums.PaymentMethod
	name   string
}

func NewManualGateway(method enums.PaymentMethod, name string) *ManualGateway {
	return &ManualGateway{method: method, name: name}
}

func (g *ManualGateway) Method() enums.PaymentMethod { return g.method }

func (g *ManualGateway) DisplayName() string { return g.name }

func (g *ManualGateway) RequiresToken() bool { return false }

func (g *ManualGateway) CreateIntent(_ context.Context, req IntentRequest) (IntentResult, error) {
	return IntentResult{
		TransactionID: "manual_" + req.OrderNo,
		Status:        enums.PaymentRecordPending,
	}, nil
}
