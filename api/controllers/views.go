package controllers

import (
	"time"

	"github.com/google/uuid"

	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type sessionLineResponse struct {
	OfferID     string      `json:"offer_id"`
	Title       string      `json:"title"`
	Quantity    int         `json:"quantity"`
	UnitPrice   money.Money `json:"unit_price"`
	Subtotal    money.Money `json:"subtotal"`
	WeightGrams int         `json:"weight_grams"`
}

type sessionResponse struct {
	ID              uuid.UUID                   `json:"id"`
	MerchantID      uuid.UUID                   `json:"merchant_id"`
	Status          enums.CheckoutSessionStatus `json:"status"`
	Currency        enums.Currency              `json:"currency"`
	LineItems       []sessionLineResponse       `json:"line_items"`
	Subtotal        money.Money                 `json:"subtotal"`
	ShippingFee     *money.Money                `json:"shipping_fee,omitempty"`
	Tax             *money.Money                `json:"tax,omitempty"`
	Total           money.Money                 `json:"total"`
	DeliveryType    *enums.DeliveryType         `json:"delivery_type,omitempty"`
	ShippingAddress *types.Address              `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address              `json:"billing_address,omitempty"`
	BuyerEmail      *string                     `json:"buyer_email,omitempty"`
	Platform        *string                     `json:"platform,omitempty"`
	PaymentHandlers types.PaymentHandlers       `json:"payment_handlers"`
	OrderID         *uuid.UUID                  `json:"order_id,omitempty"`
	ExpiresAt       time.Time                   `json:"expires_at"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// newSessionResponse renders the derived status, so a lapsed pending session
// reads as EXPIRED.
func newSessionResponse(session *models.CheckoutSession) sessionResponse {
	if session == nil {
		return sessionResponse{}
	}
	currency := session.Currency
	lines := make([]sessionLineResponse, 0, len(session.Cart))
	for _, line := range session.Cart {
		lines = append(lines, sessionLineResponse{
			OfferID:     line.OfferID,
			Title:       line.Title,
			Quantity:    line.Quantity,
			UnitPrice:   money.New(line.UnitPriceCents, currency),
			Subtotal:    money.New(line.SubtotalCents(), currency),
			WeightGrams: line.WeightGrams,
		})
	}
	handlers := session.PaymentHandlers
	if handlers == nil {
		handlers = types.PaymentHandlers{}
	}
	return sessionResponse{
		ID:              session.ID,
		MerchantID:      session.MerchantID,
		Status:          session.EffectiveStatus(time.Now().UTC()),
		Currency:        currency,
		LineItems:       lines,
		Subtotal:        money.New(session.SubtotalCents, currency),
		ShippingFee:     money.NewOptional(session.ShippingFeeCents, currency),
		Tax:             money.NewOptional(session.TaxCents, currency),
		Total:           money.New(session.TotalCents, currency),
		DeliveryType:    session.DeliveryType,
		ShippingAddress: session.ShippingAddress,
		BillingAddress:  session.BillingAddress,
		BuyerEmail:      session.BuyerEmail,
		Platform:        session.Platform,
		PaymentHandlers: handlers,
		OrderID:         session.OrderID,
		ExpiresAt:       session.ExpiresAt,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
}

type deliveryOptionResponse struct {
	Ref              string             `json:"ref"`
	Type             enums.DeliveryType `json:"type"`
	Name             string             `json:"name"`
	EstimatedDaysMin int                `json:"estimated_days_min"`
	EstimatedDaysMax int                `json:"estimated_days_max"`
	Fee              money.Money        `json:"fee"`
}

func newDeliveryOptionsResponse(options []shipping.Option, currency enums.Currency) []deliveryOptionResponse {
	out := make([]deliveryOptionResponse, 0, len(options))
	for _, opt := range options {
		out = append(out, deliveryOptionResponse{
			Ref:              opt.Ref,
			Type:             opt.Type,
			Name:             opt.Name,
			EstimatedDaysMin: opt.EstimatedDaysMin,
			EstimatedDaysMax: opt.EstimatedDaysMax,
			Fee:              money.New(opt.FeeCents, currency),
		})
	}
	return out
}

type orderItemResponse struct {
	ID        uuid.UUID   `json:"id"`
	ProductID uuid.UUID   `json:"product_id"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
	Subtotal  money.Money `json:"subtotal"`
}

type orderAddressResponse struct {
	Kind    enums.AddressKind `json:"kind"`
	Address types.Address     `json:"address"`
}

type orderResponse struct {
	ID                uuid.UUID              `json:"id"`
	OrderNo           string                 `json:"order_no"`
	MerchantID        uuid.UUID              `json:"merchant_id"`
	CheckoutSessionID uuid.UUID              `json:"checkout_session_id"`
	Source            enums.OrderSource      `json:"source"`
	Status            enums.OrderStatus      `json:"status"`
	PaymentStatus     enums.PaymentStatus    `json:"payment_status"`
	ShippingStatus    enums.ShippingStatus   `json:"shipping_status"`
	Currency          enums.Currency         `json:"currency"`
	Subtotal          money.Money            `json:"subtotal"`
	ShippingFee       money.Money            `json:"shipping_fee"`
	Tax               money.Money            `json:"tax"`
	Total             money.Money            `json:"total"`
	DeliveryType      *enums.DeliveryType    `json:"delivery_type,omitempty"`
	BuyerEmail        *string                `json:"buyer_email,omitempty"`
	Items             []orderItemResponse    `json:"items"`
	Addresses         []orderAddressResponse `json:"addresses"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	currency := order.Currency
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: money.New(item.UnitPriceCents, currency),
			Subtotal:  money.New(item.SubtotalCents, currency),
		})
	}
	addresses := make([]orderAddressResponse, 0, len(order.Addresses))
	for _, addr := range order.Addresses {
		addresses = append(addresses, orderAddressResponse{Kind: addr.Kind, Address: addr.Address})
	}
	return orderResponse{
		ID:                order.ID,
		OrderNo:           order.OrderNo,
		MerchantID:        order.MerchantID,
		CheckoutSessionID: order.CheckoutSessionID,
		Source:            order.Source,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		ShippingStatus:    order.ShippingStatus,
		Currency:          currency,
		Subtotal:          money.New(order.SubtotalCents, currency),
		ShippingFee:       money.New(order.ShippingFeeCents, currency),
		Tax:               money.New(order.TaxCents, currency),
		Total:             money.New(order.TotalCents, currency),
		DeliveryType:      order.DeliveryType,
		BuyerEmail:        order.BuyerEmail,
		Items:             items,
		Addresses:         addresses,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

type paymentResponse struct {
	ID            uuid.UUID                 `json:"id"`
	HandlerID     string                    `json:"handler_id"`
	Method        enums.PaymentMethod       `json:"method"`
	Status        enums.PaymentRecordStatus `json:"status"`
	Amount        money.Money               `json:"amount"`
	TransactionID *string                   `json:"transaction_id,omitempty"`
}

type completionResponse struct {
	Order    orderResponse    `json:"order"`
	Payment  *paymentResponse `json:"payment,omitempty"`
	Replayed bool             `json:"replayed"`
}

// Failure reasons stay server-side; the buyer platform only sees the status.
func newCompletionResponse(result *checkoutsvc.CompletionResult) completionResponse {
	if result == nil {
		return completionResponse{}
	}
	resp := completionResponse{
		Order:    newOrderResponse(result.Order),
		Replayed: result.Replayed,
	}
	if p := result.Payment; p != nil {
		resp.Payment = &paymentResponse{
			ID:            p.ID,
			HandlerID:     p.HandlerID,
			Method:        p.Method,
			Status:        p.Status,
			Amount:        money.New(p.AmountCents, p.Currency),
			TransactionID: p.TransactionID,
		}
	}
	return resp
}
