package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// DefaultSessionTTL bounds how long a session stays completable.
const DefaultSessionTTL = 30 * time.Minute

type merchantReader interface {
	FindByID(ctx context.Context, tenantID, merchantID uuid.UUID) (*models.Merchant, error)
}

type catalogReader interface {
	FindForTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type handlerCatalog interface {
	HandlersFor(merchant *models.Merchant) types.PaymentHandlers
}

// Service manages the session lifecycle up to, but not including, completion.
type Service interface {
	Create(ctx context.Context, tenantID uuid.UUID, input CreateInput) (*models.CheckoutSession, error)
	Update(ctx context.Context, tenantID, sessionID uuid.UUID, input UpdateInput) (*models.CheckoutSession, error)
	Get(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.CheckoutSession, error)
	DeliveryOptions(ctx context.Context, tenantID, sessionID uuid.UUID) ([]shipping.Option, error)
}

// LineInput is a client cart line. Prices are never accepted from the client.
type LineInput struct {
	OfferID  string
	Quantity int
}

type CreateInput struct {
	MerchantID      uuid.UUID
	Lines           []LineInput
	ShippingAddress *types.Address
	BillingAddress  *types.Address
	BuyerEmail      *string
	Platform        *string
}

// UpdateInput carries the optional fields an update may change. Nil fields are
// left untouched.
type UpdateInput struct {
	ShippingAddress     *types.Address
	BillingAddress      *types.Address
	SelectedDeliveryRef *string
	BuyerEmail          *string
}

type ServiceParams struct {
	Repo       Repository
	Merchants  merchantReader
	Catalog    catalogReader
	Calculator *shipping.Calculator
	Payments   handlerCatalog
	Logger     *logger.Logger
	Metrics    *metrics.CheckoutMetrics
	SessionTTL time.Duration
	Now        func() time.Time
}

type service struct {
	repo       Repository
	merchants  merchantReader
	catalog    catalogReader
	calculator *shipping.Calculator
	payments   handlerCatalog
	logg       *logger.Logger
	metrics    *metrics.CheckoutMetrics
	ttl        time.Duration
	now        func() time.Time
}

// NewService builds the session lifecycle manager.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Merchants == nil {
		return nil, fmt.Errorf("merchant reader required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment handler catalog required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	calculator := params.Calculator
	if calculator == nil {
		calculator = shipping.NewCalculator()
	}
	ttl := params.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		merchants:  params.Merchants,
		catalog:    params.Catalog,
		calculator: calculator,
		payments:   params.Payments,
		logg:       params.Logger,
		metrics:    params.Metrics,
		ttl:        ttl,
		now:        now,
	}, nil
}

func (s *service) Create(ctx context.Context, tenantID uuid.UUID, input CreateInput) (*models.CheckoutSession, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if input.MerchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart must contain at least one line")
	}

	merchant, err := s.merchants.FindByID(ctx, tenantID, input.MerchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load merchant")
	}
	if merchant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
	}

	cart, err := s.priceCart(ctx, merchant, input.Lines)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.CheckoutSession{
		ID:              uuid.New(),
		TenantID:        tenantID,
		MerchantID:      merchant.ID,
		Status:          enums.CheckoutSessionPending,
		Currency:        merchant.Currency,
		Cart:            cart,
		SubtotalCents:   cart.SubtotalCents(),
		ShippingAddress: normalizeAddress(input.ShippingAddress),
		BillingAddress:  normalizeAddress(input.BillingAddress),
		BuyerEmail:      trimOptional(input.BuyerEmail),
		Platform:        trimOptional(input.Platform),
		PaymentHandlers: s.payments.HandlersFor(merchant),
		ExpiresAt:       now.Add(s.ttl),
	}
	if tax := money.ApplyBasisPoints(session.SubtotalCents, merchant.TaxRateBPS); tax > 0 {
		session.TaxCents = &tax
	}
	if session.ShippingAddress != nil {
		s.applyQuote(session, s.calculator.DefaultQuote(merchant, session.SubtotalCents, cart.WeightGrams()))
	} else {
		zero := int64(0)
		session.ShippingFeeCents = &zero
	}
	session.RecomputeTotal()

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout session")
	}
	s.metrics.IncSessionCreated()

	logCtx := s.logg.WithSessionID(ctx, session.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"merchant_id":    merchant.ID.String(),
		"subtotal_cents": session.SubtotalCents,
		"total_cents":    session.TotalCents,
	})
	s.logg.Info(logCtx, "checkout session created")
	return session, nil
}

// priceCart resolves every line against the catalog. Stock is checked per
// product over the aggregated quantity; the check is advisory, completion
// re-checks atomically.
func (s *service) priceCart(ctx context.Context, merchant *models.Merchant, lines []LineInput) (types.Cart, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	parsed := make([]uuid.UUID, len(lines))
	var missing []string
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for %q must be positive", line.OfferID))
		}
		id, err := uuid.Parse(strings.TrimSpace(line.OfferID))
		if err != nil {
			missing = append(missing, line.OfferID)
			continue
		}
		parsed[i] = id
		ids = append(ids, id)
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"offer_ids": missing})
	}

	products, err := s.catalog.FindForTenant(ctx, merchant.TenantID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}

	cart := make(types.Cart, 0, len(lines))
	requested := make(map[uuid.UUID]int, len(lines))
	for i, line := range lines {
		product, ok := products[parsed[i]]
		if !ok || product.MerchantID != merchant.ID || !product.IsActive {
			missing = append(missing, line.OfferID)
			continue
		}
		if product.Currency != merchant.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidCart, "product currency does not match merchant currency").
				WithDetails(map[string]any{"offer_id": line.OfferID, "currency": product.Currency})
		}
		requested[product.ID] += line.Quantity
		cart = append(cart, types.CartLine{
			OfferID:        product.ID.String(),
			Title:          product.Title,
			Quantity:       line.Quantity,
			UnitPriceCents: product.PriceCents,
			WeightGrams:    product.WeightGrams,
		})
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"offer_ids": missing})
	}

	var short []StockShortage
	for id, qty := range requested {
		if available := products[id].Stock; available < qty {
			short = append(short, StockShortage{ProductID: id, Requested: qty, Available: available})
		}
	}
	if len(short) > 0 {
		sort.Slice(short, func(i, j int) bool { return short[i].ProductID.String() < short[j].ProductID.String() })
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"items": short})
	}
	return cart, nil
}

func (s *service) Update(ctx context.Context, tenantID, sessionID uuid.UUID, input UpdateInput) (*models.CheckoutSession, error) {
	session, err := s.repo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	now := s.now().UTC()
	if session.IsExpired(now) {
		return nil, errSessionExpired()
	}
	if session.Status != enums.CheckoutSessionPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("checkout session is %s", session.Status))
	}

	if input.BillingAddress != nil {
		session.BillingAddress = normalizeAddress(input.BillingAddress)
	}
	if input.BuyerEmail != nil {
		session.BuyerEmail = trimOptional(input.BuyerEmail)
	}
	if input.ShippingAddress != nil {
		session.ShippingAddress = normalizeAddress(input.ShippingAddress)
	}

	if input.ShippingAddress != nil || input.SelectedDeliveryRef != nil {
		merchant, err := s.merchants.FindByID(ctx, tenantID, session.MerchantID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load merchant")
		}
		if merchant == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		weight := session.Cart.WeightGrams()
		var quote *shipping.Quote
		if input.SelectedDeliveryRef != nil {
			quote = s.calculator.QuoteByRef(merchant, *input.SelectedDeliveryRef, session.SubtotalCents, weight)
			if quote == nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery option").
					WithDetails(map[string]any{"ref": *input.SelectedDeliveryRef})
			}
		} else {
			quote = s.calculator.DefaultQuote(merchant, session.SubtotalCents, weight)
		}
		s.applyQuote(session, quote)
		session.RecomputeTotal()
	}

	ok, err := s.repo.Save(ctx, session, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save checkout session")
	}
	if !ok {
		return nil, s.saveRejected(ctx, tenantID, sessionID, now)
	}

	logCtx := s.logg.WithSessionID(ctx, session.ID.String())
	logCtx = s.logg.WithField(logCtx, "total_cents", session.TotalCents)
	s.logg.Info(logCtx, "checkout session updated")
	return session, nil
}

// saveRejected explains why a guarded save touched no row.
func (s *service) saveRejected(ctx context.Context, tenantID, sessionID uuid.UUID, now time.Time) error {
	current, err := s.repo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout session")
	}
	if current == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if current.Status == enums.CheckoutSessionPending && current.OrderID == nil && !current.ExpiresAt.After(now) {
		return errSessionExpired()
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed concurrently")
}

func (s *service) Get(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.repo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return session, nil
}

func (s *service) DeliveryOptions(ctx context.Context, tenantID, sessionID uuid.UUID) ([]shipping.Option, error) {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	merchant, err := s.merchants.FindByID(ctx, tenantID, session.MerchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load merchant")
	}
	if merchant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
	}
	return s.calculator.ListDeliveryOptions(merchant, session.SubtotalCents, session.Cart.WeightGrams()), nil
}

func (s *service) applyQuote(session *models.CheckoutSession, quote *shipping.Quote) {
	if quote == nil {
		session.ShippingFeeCents = nil
		session.DeliveryType = nil
		return
	}
	fee := quote.FeeCents
	deliveryType := quote.Type
	session.ShippingFeeCents = &fee
	session.DeliveryType = &deliveryType
}

// StockShortage describes one product that cannot cover the requested quantity.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available,omitempty"`
}

func errSessionExpired() error {
	return pkgerrors.New(pkgerrors.CodeSessionExpired, "checkout session expired")
}

func normalizeAddress(addr *types.Address) *types.Address {
	if addr == nil {
		return nil
	}
	normalized := addr.Normalize()
	return &normalized
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
