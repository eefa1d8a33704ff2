package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	handlerIDPrefix = "ph_"

	defaultIntentRetries = 2
	defaultIntentBackoff = 200 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Registry maps a merchant's payment methods to gateway adapters.
type Registry struct {
	gateways map[enums.PaymentMethod]Gateway
	order    []enums.PaymentMethod
	tx       txRunner
	repo     Repository
	orders   orders.Repository
	logg     *logger.Logger

	intentRetries uint64
	intentBackoff time.Duration
}

type RegistryParams struct {
	Gateways []Gateway
	Tx       txRunner
	Repo     Repository
	Orders   orders.Repository
	Logger   *logger.Logger
	// IntentRetries is how many times a retryable gateway error is retried.
	IntentRetries uint64
	IntentBackoff time.Duration
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	r := &Registry{
		gateways: make(map[enums.PaymentMethod]Gateway, len(params.Gateways)),
		tx:       params.Tx,
		repo:     params.Repo,
		orders:   params.Orders,
		logg:     params.Logger,

		intentRetries: params.IntentRetries,
		intentBackoff: params.IntentBackoff,
	}
	if r.intentRetries == 0 {
		r.intentRetries = defaultIntentRetries
	}
	if r.intentBackoff <= 0 {
		r.intentBackoff = defaultIntentBackoff
	}
	for _, gw := range params.Gateways {
		if gw == nil {
			continue
		}
		if _, dup := r.gateways[gw.Method()]; !dup {
			r.order = append(r.order, gw.Method())
		}
		r.gateways[gw.Method()] = gw
	}
	return r, nil
}

// HandlerID is the stable id offered to buyers for a payment method.
func HandlerID(method enums.PaymentMethod) string {
	return handlerIDPrefix + method.String()
}

// HandlersFor snapshots the handlers a merchant offers: its configured methods
// that have a registered gateway, in the merchant's order.
func (r *Registry) HandlersFor(merchant *models.Merchant) types.PaymentHandlers {
	handlers := types.PaymentHandlers{}
	if merchant == nil {
		return handlers
	}
	seen := make(map[enums.PaymentMethod]bool, len(merchant.PaymentMethods))
	for _, raw := range merchant.PaymentMethods {
		method, err := enums.ParsePaymentMethod(raw)
		if err != nil || seen[method] {
			continue
		}
		gw, ok := r.gateways[method]
		if !ok {
			continue
		}
		seen[method] = true
		handlers = append(handlers, types.PaymentHandler{
			ID:     HandlerID(method),
			Name:   gw.DisplayName(),
			Method: method.String(),
		})
	}
	return handlers
}

// ErrUnsupportedHandler is returned for a handler with no registered gateway.
var ErrUnsupportedHandler = errors.New("unsupported payment handler")

// Initiate starts payment for a committed order and records the attempt. A
// gateway failure is persisted as a FAILED payment and the order's payment
// status becomes FAILED; the error is still returned for logging. It returns
// nil, nil when the handler needs a token and none was supplied.
func (r *Registry) Initiate(ctx context.Context, order *models.Order, handler types.PaymentHandler, token string) (*models.Payment, error) {
	if order == nil {
		return nil, errors.New("order required")
	}
	method, err := enums.ParsePaymentMethod(handler.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHandler, handler.ID)
	}
	gw, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHandler, handler.ID)
	}
	if gw.RequiresToken() && token == "" {
		logCtx := r.logg.WithOrderID(ctx, order.ID.String())
		r.logg.Info(logCtx, "payment intent skipped: no token supplied")
		return nil, nil
	}

	result, gwErr := r.createIntent(ctx, gw, IntentRequest{
		OrderID:        order.ID,
		OrderNo:        order.OrderNo,
		TenantID:       order.TenantID,
		AmountCents:    order.TotalCents,
		Currency:       order.Currency,
		Token:          token,
		IdempotencyKey: "order_" + order.ID.String(),
	})

	payment := &models.Payment{
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		HandlerID:   handler.ID,
		Method:      method,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
	}
	if gwErr != nil {
		reason := gwErr.Error()
		payment.Status = enums.PaymentRecordFailed
		payment.FailureReason = &reason
	} else {
		payment.Status = result.Status
		if result.TransactionID != "" {
			txID := result.TransactionID
			payment.TransactionID = &txID
		}
	}
	orderStatus := paymentStatusFor(payment.Status)

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		return r.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.TenantID, order.ID, orderStatus)
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	order.PaymentStatus = orderStatus

	if gwErr != nil {
		return payment, gwErr
	}
	return payment, nil
}

// createIntent retries gateway errors marked retryable. The request carries
// an idempotency key, so a retry never double-charges.
func (r *Registry) createIntent(ctx context.Context, gw Gateway, req IntentRequest) (IntentResult, error) {
	var result IntentResult
	backoff := retry.WithMaxRetries(r.intentRetries, retry.NewExponential(r.intentBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		result, err = gw.CreateIntent(ctx, req)
		if err != nil && pkgerrors.IsRetryable(err) {
			r.logg.Warn(r.logg.WithOrderID(ctx, req.OrderID.String()), "payment intent retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	return result, err
}

func paymentStatusFor(status enums.PaymentRecordStatus) enums.PaymentStatus {
	switch status {
	case enums.PaymentRecordSucceeded:
		return enums.PaymentStatusPaid
	case enums.PaymentRecordFailed:
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
