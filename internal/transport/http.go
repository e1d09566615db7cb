package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mekongcart/checkout-service/internal/checkout"
	"github.com/mekongcart/checkout-service/internal/config"
	"github.com/mekongcart/checkout-service/internal/handler"
	"github.com/mekongcart/checkout-service/internal/order"
	"github.com/mekongcart/checkout-service/internal/payment/stripe"
	"github.com/mekongcart/checkout-service/internal/payment/vnpay"
	"github.com/mekongcart/checkout-service/internal/user"
)

func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	orderRepo := order.NewRepository(pool)
	userRepo := user.NewRepository(pool)

	stripeClient := stripe.NewClient(cfg.Stripe)
	eventVerifier := stripe.NewWebhookVerifier(cfg.Stripe.EndpointSecret)
	vnpayClient := vnpay.NewClient(cfg.VNPay)

	checkoutSvc := checkout.NewService(orderRepo, userRepo, stripeClient, eventVerifier, vnpayClient)
	orderSvc := order.NewService(orderRepo)

	checkoutHandler := handler.NewCheckoutHandler(checkoutSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Raw-body webhook stays outside the API group: the signature covers the
	// unparsed payload.
	r.Post("/webhook", checkoutHandler.HandleStripeWebhook)

	r.Route("/api/v1", func(api chi.Router) {
		checkoutHandler.RegisterRoutes(api)
		orderHandler.RegisterRoutes(api)
	})

	return r
}
