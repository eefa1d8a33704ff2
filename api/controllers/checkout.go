package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// SessionCompleter turns a checkout session into an order.
type SessionCompleter interface {
	Complete(ctx context.Context, tenantID, sessionID uuid.UUID, payment *checkoutsvc.PaymentInput) (*checkoutsvc.CompletionResult, error)
}

type lineRequest struct {
	OfferID  string `json:"offer_id" validate:"required,max=128"`
	Quantity int    `json:"quantity" validate:"min=1,max=1000"`
}

type createSessionRequest struct {
	MerchantID      uuid.UUID      `json:"merchant_id" validate:"required"`
	LineItems       []lineRequest  `json:"line_items" validate:"required,min=1,dive"`
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address `json:"billing_address,omitempty"`
	BuyerEmail      *string        `json:"buyer_email,omitempty" validate:"omitempty,email"`
	Platform        *string        `json:"platform,omitempty" validate:"omitempty,max=64"`
}

type updateSessionRequest struct {
	ShippingAddress     *types.Address `json:"shipping_address,omitempty"`
	BillingAddress      *types.Address `json:"billing_address,omitempty"`
	SelectedDeliveryRef *string        `json:"selected_delivery_ref,omitempty" validate:"omitempty,max=64"`
	BuyerEmail          *string        `json:"buyer_email,omitempty" validate:"omitempty,email"`
}

type paymentRequest struct {
	HandlerID string `json:"handler_id" validate:"required,max=64"`
	Token     string `json:"token,omitempty" validate:"omitempty,max=512"`
}

type completeSessionRequest struct {
	Payment *paymentRequest `json:"payment,omitempty"`
}

// CreateCheckoutSession prices a cart from the catalog and opens a session.
func CreateCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		tenantID, err := tenantIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.MerchantID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "merchant_id is required"))
			return
		}

		lines := make([]checkoutsvc.LineInput, 0, len(payload.LineItems))
		for _, line := range payload.LineItems {
			lines = append(lines, checkoutsvc.LineInput{OfferID: line.OfferID, Quantity: line.Quantity})
		}

		session, err := svc.Create(r.Context(), tenantID, checkoutsvc.CreateInput{
			MerchantID:      payload.MerchantID,
			Lines:           lines,
			ShippingAddress: payload.ShippingAddress,
			BillingAddress:  payload.BillingAddress,
			BuyerEmail:      validators.TrimOptional(payload.BuyerEmail),
			Platform:        validators.TrimOptional(payload.Platform),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(session))
	}
}

func GetCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		tenantID, err := tenantIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Get(r.Context(), tenantID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// UpdateCheckoutSession applies address, email and delivery selections to a
// pending session and returns the repriced result.
func UpdateCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		tenantID, err := tenantIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Update(r.Context(), tenantID, sessionID, checkoutsvc.UpdateInput{
			ShippingAddress:     payload.ShippingAddress,
			BillingAddress:      payload.BillingAddress,
			SelectedDeliveryRef: validators.TrimOptional(payload.SelectedDeliveryRef),
			BuyerEmail:          validators.TrimOptional(payload.BuyerEmail),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

func ListDeliveryOptions(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		tenantID, err := tenantIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Get(r.Context(), tenantID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		options, err := svc.DeliveryOptions(r.Context(), tenantID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryOptionsResponse(options, session.Currency))
	}
}

// CompleteCheckoutSession materializes the order. A first completion answers
// 201; a replay of an already completed session answers 200 with the same order.
func CompleteCheckoutSession(engine SessionCompleter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "completion engine unavailable"))
			return
		}
		tenantID, err := tenantIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload completeSessionRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payment *checkoutsvc.PaymentInput
		if payload.Payment != nil {
			payment = &checkoutsvc.PaymentInput{
				HandlerID: payload.Payment.HandlerID,
				Token:     payload.Payment.Token,
			}
		}

		result, err := engine.Complete(r.Context(), tenantID, sessionID, payment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, newCompletionResponse(result))
	}
}
