// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

/* router.go - HTTP Router Assembly
 *
 * Builds the Chi router for the operational surface: health, sync control,
 * job history, connection management and KPI reads. Production-hardened
 * middleware comes from the Chi ecosystem (go-chi/cors, go-chi/httprate)
 * rather than hand-rolled equivalents.
 */
//nolint:staticcheck

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/metrics"
)

// NewRouter assembles the HTTP router. All business endpoints live under
// /api/v1; /healthz and /metrics sit outside the rate limiter so probes
// and scrapers are never throttled.
func NewRouter(handler *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.Timeout))

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.API.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         86400,
		}))
		r.Use(httprate.LimitByIP(cfg.API.RateLimitReqs, cfg.API.RateLimitWindow))
		r.Use(metricsMiddleware)

		r.Post("/sync", handler.TriggerSync)
		r.Get("/sync/status", handler.SyncStatus)
		r.Get("/jobs", handler.ListJobs)
		r.Get("/connections", handler.ListConnections)
		r.Get("/connection", handler.GetConnection)
		r.Post("/connections", handler.UpsertConnection)
		r.Get("/kpi", handler.ListKpi)
	})

	return r
}

// metricsMiddleware records request counts and latency per route pattern.
// The Chi route pattern keeps label cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(
			r.Method, endpoint, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(
			r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
