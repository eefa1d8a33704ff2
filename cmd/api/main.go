package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/callbacks"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/merchants"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	reg := metrics.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)
	callbackMetrics := metrics.NewCallbackMetrics(reg)

	gormDB := dbClient.DB()
	ordersRepo := orders.NewRepository(gormDB)
	merchantsRepo := merchants.NewRepository(gormDB)
	productsRepo := products.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	gateways := []payments.Gateway{
		payments.NewManualGateway(enums.PaymentMethodCashOnDelivery, "Cash on delivery"),
		payments.NewManualGateway(enums.PaymentMethodBankTransfer, "Bank transfer"),
	}
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			return err
		}
		stripeGateway, err := payments.NewStripeGateway(stripeClient)
		if err != nil {
			return err
		}
		gateways = append(gateways, stripeGateway)
	} else {
		logg.Warn(context.Background(), "stripe api key not set, card payments disabled")
	}

	paymentRegistry, err := payments.NewRegistry(payments.RegistryParams{
		Gateways: gateways,
		Tx:       dbClient,
		Repo:     payments.NewRepository(gormDB),
		Orders:   ordersRepo,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	dispatcher, err := callbacks.NewDispatcher(callbacks.DispatcherParams{
		Orders:     ordersRepo,
		Merchants:  merchantsRepo,
		HTTPClient: &http.Client{},
		Config:     cfg.Callbacks,
		Logger:     logg,
		Metrics:    callbackMetrics,
	})
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:       checkout.NewRepository(gormDB),
		Merchants:  merchantsRepo,
		Catalog:    productsRepo,
		Calculator: shipping.NewCalculator(),
		Payments:   paymentRegistry,
		Logger:     logg,
		Metrics:    checkoutMetrics,
		SessionTTL: cfg.Checkout.SessionTTL,
	})
	if err != nil {
		return err
	}

	engine, err := checkout.NewEngine(checkout.EngineParams{
		Tx:       dbClient,
		Sessions: checkout.NewRepository(gormDB),
		Orders:   ordersRepo,
		Products: productsRepo,
		Outbox:   outboxService,
		Payments: paymentRegistry,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  checkoutMetrics,
	})
	if err != nil {
		return err
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Products: productsRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Notifier: dispatcher,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.RouterParams{
			DB:          dbClient,
			Redis:       redisClient,
			Idempotency: redisClient,
			Checkout:    checkoutService,
			Completion:  engine,
			Orders:      ordersService,
			Metrics:     metrics.Handler(reg),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// callbacks keep draining after the listener stops, so Run gets its own context
	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- dispatcher.Run(context.Background())
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	runErr = multierr.Append(runErr, server.Shutdown(shutdownCtx))

	dispatcher.Close()
	select {
	case err := <-dispatcherDone:
		runErr = multierr.Append(runErr, err)
	case <-shutdownCtx.Done():
		logg.Warn(ctx, "callback queue not drained before shutdown deadline")
	}

	logg.Info(ctx, "api server stopped")
	return runErr
}
