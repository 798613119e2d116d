package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
	"github.com/frahmantamala/payment-reconciliation/internal/refund"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/swagger"
	"github.com/frahmantamala/payment-reconciliation/internal/webhook"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	webhookHandler *webhook.Handler,
	reconciliationHandler *reconciliation.Handler,
	refundHandler *refund.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payments/webhook", webhookHandler.HandleWebhook)
		}

		if reconciliationHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/verify", reconciliationHandler.VerifyPayment)
				pr.Post("/reconcile", reconciliationHandler.Reconcile)
				pr.Post("/sweep", reconciliationHandler.Sweep)
				pr.Get("/transactions/{reference}", reconciliationHandler.GetTransaction)
			})
		}

		if refundHandler != nil {
			r.Route("/refunds", func(rr chi.Router) {
				rr.Post("/", refundHandler.CreateRefund)
				rr.Get("/", refundHandler.ListRefunds)
				rr.Get("/{id}", refundHandler.GetRefund)
			})
		}
	})
}
