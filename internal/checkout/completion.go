package checkout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentInitiator interface {
	Initiate(ctx context.Context, order *models.Order, handler types.PaymentHandler, token string) (*models.Payment, error)
}

type orderNotifier interface {
	Notify(ctx context.Context, tenantID, orderID uuid.UUID, status enums.OrderStatus, previous *enums.OrderStatus, details map[string]any)
}

// Engine turns a pending session into exactly one order.
type Engine struct {
	tx       txRunner
	sessions Repository
	orders   orders.Repository
	products products.Repository
	outbox   outboxPublisher
	payments paymentInitiator
	notifier orderNotifier
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

type EngineParams struct {
	Tx       txRunner
	Sessions Repository
	Orders   orders.Repository
	Products products.Repository
	Outbox   outboxPublisher
	Payments paymentInitiator
	Notifier orderNotifier
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
	Now      func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		tx:       params.Tx,
		sessions: params.Sessions,
		orders:   params.Orders,
		products: params.Products,
		outbox:   params.Outbox,
		payments: params.Payments,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// PaymentInput selects one of the session's payment handlers. Token is the
// gateway credential collected by the buyer platform, if any.
type PaymentInput struct {
	HandlerID string
	Token     string
}

// CompletionResult is the order a completion produced or replayed.
type CompletionResult struct {
	Order    *models.Order
	Payment  *models.Payment
	Replayed bool
}

// OrderCreatedEvent is the outbox payload for order.created.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID         `json:"orderId"`
	OrderNo           string            `json:"orderNo"`
	CheckoutSessionID uuid.UUID         `json:"checkoutSessionId"`
	MerchantID        uuid.UUID         `json:"merchantId"`
	Source            enums.OrderSource `json:"source"`
	Total             money.Money       `json:"total"`
	Items             []OrderItemEvent  `json:"items"`
}

type OrderItemEvent struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// Complete claims the session and materializes its order, stock decrements and
// outbox event in one transaction. Payment initiation and the platform callback
// run after commit and never change the outcome.
func (e *Engine) Complete(ctx context.Context, tenantID, sessionID uuid.UUID, payment *PaymentInput) (*CompletionResult, error) {
	ctx = e.logg.WithSessionID(ctx, sessionID.String())

	session, err := e.sessions.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		e.metrics.IncCompletion(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if session == nil {
		e.metrics.IncCompletion(metrics.OutcomeNotFound)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}

	if session.Status == enums.CheckoutSessionCompleted && session.OrderID != nil {
		return e.replay(ctx, tenantID, session)
	}
	switch session.EffectiveStatus(e.now().UTC()) {
	case enums.CheckoutSessionExpired:
		e.metrics.IncCompletion(metrics.OutcomeExpired)
		return nil, errSessionExpired()
	case enums.CheckoutSessionPending:
	default:
		e.metrics.IncCompletion(metrics.OutcomeConflict)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("checkout session is %s", session.Status))
	}

	var handler *types.PaymentHandler
	if payment != nil && payment.HandlerID != "" {
		found, ok := session.PaymentHandlers.Find(payment.HandlerID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment handler").
				WithDetails(map[string]any{"handler_id": payment.HandlerID})
		}
		handler = &found
	}

	order, err := e.materialize(ctx, tenantID, sessionID)
	if err != nil {
		e.metrics.IncCompletion(outcomeFor(err))
		return nil, err
	}
	e.metrics.IncCompletion(metrics.OutcomeCreated)

	ctx = e.logg.WithOrderID(ctx, order.ID.String())
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"order_no":    order.OrderNo,
		"total_cents": order.TotalCents,
	})
	e.logg.Info(logCtx, "checkout session completed")

	result := &CompletionResult{Order: order}
	if handler != nil && e.payments != nil {
		paid, err := e.payments.Initiate(ctx, order, *handler, payment.Token)
		if err != nil {
			e.logg.Error(ctx, "payment initiation failed", err)
		}
		result.Payment = paid
	}
	if e.notifier != nil {
		e.notifier.Notify(ctx, tenantID, order.ID, order.Status, nil, map[string]any{
			"orderNo": order.OrderNo,
			"total":   money.New(order.TotalCents, order.Currency),
		})
	}
	return result, nil
}

func (e *Engine) replay(ctx context.Context, tenantID uuid.UUID, session *models.CheckoutSession) (*CompletionResult, error) {
	order, err := e.orders.FindByID(ctx, tenantID, *session.OrderID)
	if err != nil {
		e.metrics.IncCompletion(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load completed order")
	}
	if order == nil {
		e.metrics.IncCompletion(metrics.OutcomeError)
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "completed session references a missing order")
	}
	e.metrics.IncCompletion(metrics.OutcomeReplayed)
	e.logg.Info(e.logg.WithOrderID(ctx, order.ID.String()), "checkout completion replayed")
	return &CompletionResult{Order: order, Replayed: true}, nil
}

func (e *Engine) materialize(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Order, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveTx(time.Since(started)) }()

	var created *models.Order
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := e.sessions.WithTx(tx)
		claimNow := e.now().UTC()
		orderID := uuid.New()

		claimed, err := sessions.Claim(ctx, tenantID, sessionID, orderID, claimNow)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim checkout session")
		}
		if !claimed {
			current, err := sessions.FindByID(ctx, tenantID, sessionID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout session")
			}
			return claimRejected(current, claimNow)
		}

		session, err := sessions.FindByID(ctx, tenantID, sessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload claimed session")
		}
		if session == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "claimed session disappeared")
		}

		order, err := buildOrder(session, orderID, claimNow)
		if err != nil {
			return err
		}
		if err := e.orders.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already exists for session")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		if err := e.decrementStock(ctx, tx, tenantID, order.Items); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			TenantID:      tenantID,
			OccurredAt:    claimNow,
			Data:          orderCreatedEvent(order),
		}
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// claimRejected explains a claim that matched no row, using the session as
// re-read inside the same transaction.
func claimRejected(current *models.CheckoutSession, claimNow time.Time) error {
	if current == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if current.Status == enums.CheckoutSessionPending && current.OrderID == nil && !current.ExpiresAt.After(claimNow) {
		return errSessionExpired()
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "checkout session already completed or cancelled")
}

// decrementStock aggregates quantities per product and walks products in id
// order so concurrent completions lock rows in the same sequence.
func (e *Engine) decrementStock(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, items []models.OrderItem) error {
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	writer := e.products.WithTx(tx)
	for _, id := range ids {
		ok, err := writer.DecrementStock(ctx, tenantID, id, quantities[id])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{"items": []StockShortage{{ProductID: id, Requested: quantities[id]}}})
		}
	}
	return nil
}

func buildOrder(session *models.CheckoutSession, orderID uuid.UUID, now time.Time) (*models.Order, error) {
	source := enums.OrderSourceStorefront
	if session.Platform != nil && *session.Platform != "" {
		source = enums.OrderSourcePlatform
	}
	order := &models.Order{
		ID:                orderID,
		TenantID:          session.TenantID,
		MerchantID:        session.MerchantID,
		CheckoutSessionID: session.ID,
		OrderNo:           orders.NewOrderNumber(now, orderID),
		Source:            source,
		Status:            enums.OrderStatusPending,
		Currency:          session.Currency,
		SubtotalCents:     session.SubtotalCents,
		TotalCents:        session.TotalCents,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		ShippingStatus:    enums.ShippingStatusUnfulfilled,
		DeliveryType:      session.DeliveryType,
		BuyerEmail:        session.BuyerEmail,
	}
	if session.ShippingFeeCents != nil {
		order.ShippingFeeCents = *session.ShippingFeeCents
	}
	if session.TaxCents != nil {
		order.TaxCents = *session.TaxCents
	}

	for _, line := range session.Cart {
		productID, err := uuid.Parse(line.OfferID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidCart, err, "cart line references an invalid product")
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      productID,
			Title:          line.Title,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents(),
		})
	}
	if len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCart, "checkout session cart is empty")
	}

	if session.ShippingAddress != nil {
		order.Addresses = append(order.Addresses, models.OrderAddress{Kind: enums.AddressShipping, Address: *session.ShippingAddress})
	}
	if session.BillingAddress != nil {
		order.Addresses = append(order.Addresses, models.OrderAddress{Kind: enums.AddressBilling, Address: *session.BillingAddress})
	}
	return order, nil
}

func orderCreatedEvent(order *models.Order) OrderCreatedEvent {
	items := make([]OrderItemEvent, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemEvent{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return OrderCreatedEvent{
		OrderID:           order.ID,
		OrderNo:           order.OrderNo,
		CheckoutSessionID: order.CheckoutSessionID,
		MerchantID:        order.MerchantID,
		Source:            order.Source,
		Total:             money.New(order.TotalCents, order.Currency),
		Items:             items,
	}
}

func outcomeFor(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeError
	}
	switch typed.Code() {
	case pkgerrors.CodeConflict:
		return metrics.OutcomeConflict
	case pkgerrors.CodeSessionExpired:
		return metrics.OutcomeExpired
	case pkgerrors.CodeInsufficientStock:
		return metrics.OutcomeInsufficientStock
	case pkgerrors.CodeNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
