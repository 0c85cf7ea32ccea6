// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vigilhq/vigil/internal/auth"
)

// Router assembles the HTTP surface.
type Router struct {
	handler    *Handler
	jwt        *auth.JWTManager
	middleware *Middleware
}

// NewRouter creates the router from its collaborators.
func NewRouter(handler *Handler, jwt *auth.JWTManager, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, jwt: jwt, middleware: mw}
}

// authError writes auth-layer rejections in the standard envelope.
func authError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	NewResponseWriter(w, r).Error(status, code, message)
}

// Setup builds the complete route table.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Unauthenticated operational endpoints.
	r.Get("/healthz", router.handler.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Device ingestion authenticates by token in the body, not JWT.
	r.Route("/api/v1/signals", func(r chi.Router) {
		r.Use(router.middleware.RateLimitIngest())
		r.Use(SecurityHeaders())
		r.Use(RequestMetrics())
		r.Post("/", router.handler.Ingest)
	})

	// Interactive API: JWT required on everything below.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(RequestMetrics())
		r.Use(router.jwt.Middleware(authError))

		r.Get("/alerts", router.handler.ListAlerts)
		r.Post("/alerts/{id}/acknowledge", router.handler.Acknowledge)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireStaff(authError))
			r.Post("/alerts/acknowledge-bulk", router.handler.AcknowledgeBulk)
			r.Get("/alerts/stats", router.handler.Stats)
			r.Get("/devices/active", router.handler.ActiveDevices)
		})

		r.Get("/devices/{id}/settings", router.handler.GetSettings)
		r.Patch("/devices/{id}/settings", router.handler.UpdateSettings)
	})

	// Websocket upgrades. Session role checks happen per handler; the
	// token may arrive as a query parameter for browser clients.
	r.Route("/ws", func(r chi.Router) {
		r.Use(router.jwt.Middleware(authError))
		r.Get("/alerts", router.handler.WSAlerts)
		r.Get("/monitor", router.handler.WSMonitor)
		r.Get("/device/{id}", router.handler.WSDevice)
	})

	return r
}
