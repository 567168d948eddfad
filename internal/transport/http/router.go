package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderAPI bundles the handlers' service dependencies; *app.OrderService
// satisfies it.
type OrderAPI interface {
	OrderCreator
	OrderGetter
	OrderCanceler
	PaymentConfirmer
}

// NewRouter wires the order API surface.
func NewRouter(svc OrderAPI, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))

	r.Get("/healthz", HealthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/orders", HandleCreateOrder(svc))
	r.Get("/orders/{id}", HandleGetOrder(svc))
	r.Post("/orders/{id}/cancel", HandleCancelOrder(svc))
	r.Post("/webhooks/payment", HandlePaymentWebhook(svc))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	return r
}

// HealthHandler reports basic liveness for the service.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
