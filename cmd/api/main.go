package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/multivendhq/multivend-backend/api/routes"
	"github.com/multivendhq/multivend-backend/internal/cart"
	"github.com/multivendhq/multivend-backend/internal/catalog"
	checkoutsvc "github.com/multivendhq/multivend-backend/internal/checkout"
	"github.com/multivendhq/multivend-backend/internal/gateways"
	"github.com/multivendhq/multivend-backend/internal/ledger"
	ordersvc "github.com/multivendhq/multivend-backend/internal/orders"
	paymentsvc "github.com/multivendhq/multivend-backend/internal/payments"
	webhooksvc "github.com/multivendhq/multivend-backend/internal/webhooks"
	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/db"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/migrate"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
	"github.com/multivendhq/multivend-backend/pkg/redis"
)

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

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := gateways.NewRegistry()
	if err := registry.Register(gateways.NewRazorpayAdapter(cfg.Gateways)); err != nil {
		logg.Error(context.Background(), "failed to register razorpay adapter", err)
		os.Exit(1)
	}
	if err := registry.Register(gateways.NewPaystackAdapter(cfg.Gateways)); err != nil {
		logg.Error(context.Background(), "failed to register paystack adapter", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	checkoutRepo := checkoutsvc.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	catalogRepo := catalog.NewRepository(gormDB)
	ordersRepo := ordersvc.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	paymentsRepo := paymentsvc.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	taxOracle := checkoutsvc.NewFlatRateTaxCalculator(cfg.Oracles)
	shippingOracle := checkoutsvc.NewFlatRateShippingCalculator(cfg.Oracles)

	// Coupon issuance lives outside this service; the validator prices a
	// fixed table until a campaign system exists.
	coupons := checkoutsvc.NewStaticCouponValidator(map[string]checkoutsvc.StaticCoupon{
		"WELCOME10": {Type: enums.CouponTypePercentage, Value: 10},
		"SHIP500":   {Type: enums.CouponTypeFixed, Value: 500},
	})

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Repo:       checkoutRepo,
		Carts:      cartRepo,
		Catalog:    catalogRepo,
		Tx:         dbClient,
		Tax:        taxOracle,
		Shipping:   shippingOracle,
		Coupons:    coupons,
		Gateways:   registry,
		SessionTTL: cfg.Checkout.SessionTTL,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledgerRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	paymentService, err := paymentsvc.NewService(paymentsvc.ServiceParams{
		Repo:     paymentsRepo,
		Orders:   ordersRepo,
		Ledger:   ledgerService,
		Registry: registry,
		Tx:       dbClient,
		Outbox:   outboxService,
		Logger:   logg,
		Currency: cfg.App.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	orderService, err := ordersvc.NewService(ordersvc.ServiceParams{
		Repo:     ordersRepo,
		Checkout: checkoutRepo,
		Carts:    cartRepo,
		Catalog:  catalogRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Numbers:  ordersvc.NewNumberGenerator(redisClient),
		Tax:      taxOracle,
		Shipping: shippingOracle,
		COD:      paymentService,
		Logger:   logg,
		Currency: cfg.App.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	webhookService, err := webhooksvc.NewService(webhooksvc.ServiceParams{
		Registry: registry,
		Payments: paymentService,
		Dedup:    redisClient,
		Config:   cfg.Webhooks,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
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
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			orderService,
			paymentService,
			webhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}
