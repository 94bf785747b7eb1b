package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/FACorreiaa/budget-ledger/internal/httpx"
)

// NewRouter mounts every handler behind the shared middleware chain
func NewRouter(d *Dependencies) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(httpx.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(httpx.MethodNotAllowed)

	limiter := httpx.NewRateLimiter(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst)
	router.Use(
		httpx.Recover(d.Logger),
		httpx.Metrics(d.Metrics),
		httpx.Logging(d.Logger),
		limiter.Middleware,
	)

	router.HandleFunc("/healthz", httpx.Health).Methods(http.MethodGet)
	d.ImportHandler.Register(router)
	d.AnalyticsHandler.Register(router)
	d.CleanupHandler.Register(router)
	d.ExportHandler.Register(router)

	return cors.New(cors.Options{
		AllowedOrigins:   d.Config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler(router)
}
