// Package app wires configuration, storage, domain services, and the HTTP
// server into a running process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/mieledautore/shop-backend/internal/checkout"
	"github.com/mieledautore/shop-backend/internal/domain/coupon"
	"github.com/mieledautore/shop-backend/internal/handler"
	"github.com/mieledautore/shop-backend/internal/ledger"
	"github.com/mieledautore/shop-backend/internal/notify"
	"github.com/mieledautore/shop-backend/internal/payment"
	"github.com/mieledautore/shop-backend/internal/repository"
	"github.com/mieledautore/shop-backend/internal/webhook"
	"github.com/mieledautore/shop-backend/pkg/health"
	"github.com/mieledautore/shop-backend/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	checkoutCfg, err := parseCheckoutConfig(cfg.Checkout)
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Idempotency/rate-limit ledger: shared Redis when configured, otherwise
	// an in-process sliding window.
	var sharedLedger ledger.Ledger
	var redisLedger *ledger.Redis
	if cfg.RedisAddr != "" {
		redisLedger = ledger.NewRedis(cfg.RedisAddr, "shop")
		if err := redisLedger.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		defer redisLedger.Close()
		sharedLedger = redisLedger
		lg.Info("Using Redis ledger", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := ledger.NewMemory()
		mem.StartJanitor(ctx, 10*time.Minute)
		sharedLedger = mem
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisLedger != nil {
		healthSvc.AddReadinessCheck("redis", 5*time.Second, redisLedger.Ping)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(10*time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	eventRepo := repository.NewWebhookEventRepository(pool)
	loyaltyRepo := repository.NewLoyaltyRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)

	// Payment processor client and webhook verification.
	stripeOpts := []payment.StripeOption{}
	if cfg.Stripe.BaseURL != "" {
		stripeOpts = append(stripeOpts, payment.WithBaseURL(cfg.Stripe.BaseURL))
	}
	stripeClient := payment.NewStripeClient(cfg.Stripe.SecretKey, stripeOpts...)
	verifier := payment.NewSignatureVerifier(cfg.Stripe.WebhookSecret, cfg.Webhook.SignatureTolerance)

	// Email sender.
	var sender notify.Sender = notify.NopSender{}
	if cfg.Email.ResendAPIKey != "" {
		sender = notify.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
	} else {
		lg.Info("No email provider configured, confirmations disabled")
	}

	// Domain services.
	checkoutSvc := checkout.NewService(
		checkoutCfg,
		productRepo,
		coupon.NewRepoValidator(couponRepo),
		couponRepo,
		orderRepo,
		stripeClient,
		sharedLedger,
	)

	reconciler, err := webhook.New(
		webhook.Config{
			LowStockThreshold: cfg.Webhook.LowStockThreshold,
			EventRetention:    cfg.Webhook.EventRetention,
		},
		verifier,
		sharedLedger,
		eventRepo,
		orderRepo,
		productRepo,
		loyaltyRepo,
		sender,
		m.MeterProvider().Meter("shop-backend"),
	)
	if err != nil {
		return errors.Wrap(err, "create reconciler")
	}
	reconciler.StartPruner(ctx, cfg.Webhook.PruneInterval)

	// HTTP routes.
	h := handler.New(checkoutSvc, reconciler, handler.NewAuthenticator(tokenRepo, []byte(cfg.TokenPepper)))

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(router)

	wrapped := httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{"Content-Type", "Authorization", "Stripe-Signature"},
			MaxAge:       86400,
		}),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    100,
			Window: time.Minute,
		}, sharedLedger),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(wrapped, "shop-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// parseCheckoutConfig converts the string monetary settings into decimals.
func parseCheckoutConfig(c CheckoutConfig) (checkout.Config, error) {
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return checkout.Config{}, errors.Wrap(err, "parse free shipping threshold")
	}
	fee, err := decimal.NewFromString(c.FlatShippingFee)
	if err != nil {
		return checkout.Config{}, errors.Wrap(err, "parse flat shipping fee")
	}
	maxTotal, err := decimal.NewFromString(c.MaxTotal)
	if err != nil {
		return checkout.Config{}, errors.Wrap(err, "parse max total")
	}

	return checkout.Config{
		FreeShippingThreshold: threshold,
		FlatShippingFee:       fee,
		MaxTotal:              maxTotal,
		Currency:              c.Currency,
		SuccessURL:            c.SuccessURL,
		CancelURL:             c.CancelURL,
		RateLimit:             c.RateLimit,
		RateWindow:            c.RateWindow,
	}, nil
}
