package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/multivendhq/multivend-backend/api/controllers"
	"github.com/multivendhq/multivend-backend/api/middleware"
	checkoutsvc "github.com/multivendhq/multivend-backend/internal/checkout"
	ordersvc "github.com/multivendhq/multivend-backend/internal/orders"
	paymentsvc "github.com/multivendhq/multivend-backend/internal/payments"
	webhooksvc "github.com/multivendhq/multivend-backend/internal/webhooks"
	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/db"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	orderService ordersvc.Service,
	paymentService paymentsvc.Service,
	webhookService webhooksvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// Gateways sign their own callbacks; no buyer identity or replay window
	// applies here, the webhook pipeline dedupes on its own.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/{gateway}", controllers.GatewayWebhook(webhookService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BuyerKey(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.BuyerPing())

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.StartCheckout(checkoutService, logg))
			r.Get("/{session_id}", controllers.GetCheckoutSession(checkoutService, logg))
			r.Put("/{session_id}/address", controllers.SetCheckoutAddress(checkoutService, logg))
			r.Put("/{session_id}/shipping-method", controllers.SetCheckoutShipping(checkoutService, logg))
			r.Put("/{session_id}/payment-method", controllers.SetCheckoutPaymentMethod(checkoutService, logg))
			r.Post("/{session_id}/coupon", controllers.ApplyCheckoutCoupon(checkoutService, logg))
			r.Post("/{session_id}/order", controllers.CreateOrder(orderService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{order_id}", controllers.GetOrder(orderService, logg))
			r.Post("/{order_id}/cancel", controllers.CancelOrder(orderService, logg))
		})

		r.Route("/vendor-orders", func(r chi.Router) {
			r.Get("/{vendor_order_id}", controllers.GetVendorOrder(orderService, logg))
			r.Post("/{vendor_order_id}/transition", controllers.TransitionVendorOrder(orderService, logg))
			r.Post("/{vendor_order_id}/cod-confirm", controllers.ConfirmCashCollected(orderService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", controllers.InitiatePayment(paymentService, logg))
			r.Get("/{payment_id}", controllers.GetPayment(paymentService, logg))
			r.Post("/{payment_id}/verify", controllers.VerifyPayment(paymentService, logg))
			r.Post("/{payment_id}/refund", controllers.RefundPayment(paymentService, logg))
		})
	})

	return r
}
