package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/recurpay/internal/billing"
	"github.com/frahmantamala/recurpay/internal/revenue"
	"github.com/frahmantamala/recurpay/internal/session"
	"github.com/frahmantamala/recurpay/internal/subscription"
	"github.com/frahmantamala/recurpay/internal/transport/middleware"
	"github.com/frahmantamala/recurpay/internal/transport/swagger"
	"github.com/frahmantamala/recurpay/internal/webhook"
)

type Middleware = func(http.Handler) http.Handler

// RouteDependencies carries everything the router mounts. Nil handlers are skipped.
type RouteDependencies struct {
	Health       *HealthHandler
	OpenAPIPath  string
	OpenAPI      Middleware
	MerchantAuth Middleware
	TriggerAuth  Middleware

	Subscriptions *subscription.Handler
	Sessions      *session.Handler
	Webhooks      *webhook.Handler
	Billing       *billing.Handler
	Revenue       *revenue.Handler

	Logger *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, deps RouteDependencies) {
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.RecoveryMiddleware(deps.Logger))

	if deps.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, deps.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if deps.Health != nil {
			r.Get("/health", deps.Health.healthCheckHandler)
			r.Get("/ping", deps.Health.pingHandler)
		}

		if deps.TriggerAuth != nil {
			r.Route("/cron", func(cr chi.Router) {
				cr.Use(deps.TriggerAuth)
				if deps.Billing != nil {
					cr.Post("/billing", deps.Billing.RunDueCycle)
				}
				if deps.Webhooks != nil {
					cr.Post("/webhooks", deps.Webhooks.Sweep)
				}
				if deps.Sessions != nil {
					cr.Post("/sessions/expire", deps.Sessions.ExpireSessions)
				}
			})
		}

		if deps.MerchantAuth == nil {
			return
		}

		r.Group(func(mr chi.Router) {
			mr.Use(deps.MerchantAuth)
			if deps.OpenAPI != nil {
				mr.Use(deps.OpenAPI)
			}

			if deps.Subscriptions != nil {
				mr.Route("/subscriptions", func(sr chi.Router) {
					sr.Post("/", deps.Subscriptions.CreateSubscription)
					sr.Get("/{id}", deps.Subscriptions.GetSubscription)
					sr.Get("/{id}/approval", deps.Subscriptions.GetApproval)
					sr.Post("/{id}/activate", deps.Subscriptions.ActivateSubscription)
					sr.Post("/{id}/cancel", deps.Subscriptions.CancelSubscription)
				})
			}

			if deps.Sessions != nil {
				mr.Route("/sessions", func(sr chi.Router) {
					sr.Post("/", deps.Sessions.CreateSession)
					sr.Get("/{id}", deps.Sessions.GetSession)
					sr.Post("/{id}/confirm", deps.Sessions.ConfirmSession)
				})
			}

			if deps.Webhooks != nil {
				mr.Post("/webhooks/test", deps.Webhooks.SendTest)
			}

			if deps.Revenue != nil {
				mr.Get("/revenue/summary", deps.Revenue.GetSummary)
			}
		})
	})
}
