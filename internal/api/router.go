package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(apiHandler *APIHandler, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/chat", apiHandler.ChatHandler)
			r.Get("/insights", apiHandler.InsightsHandler)
			r.Get("/assistant/status", apiHandler.AssistantStatusHandler)
			r.Get("/sessions/{sessionID}/messages", apiHandler.SessionHistoryHandler)

			r.Get("/overview", apiHandler.OverviewHandler)

			r.Post("/subscriptions", apiHandler.CreateSubscriptionHandler)
			r.Get("/subscriptions", apiHandler.ListSubscriptionsHandler)
			r.Put("/subscriptions/{subscriptionID}", apiHandler.UpdateSubscriptionHandler)
			r.Delete("/subscriptions/{subscriptionID}", apiHandler.DeleteSubscriptionHandler)
		})
	})

	return r
}
