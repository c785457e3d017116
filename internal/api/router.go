// Package api assembles the admin HTTP surface for the remoteconfig
// provider daemon: health, Prometheus metrics, a read-only snapshot of the
// materialized configuration, a push-notification webhook, and a WebSocket
// endpoint subscribed to the realtime event bus.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vitaliisemenov/remoteconfig/internal/realtime"
	"github.com/vitaliisemenov/remoteconfig/internal/remoteconfig"
	"github.com/vitaliisemenov/remoteconfig/pkg/middleware"
)

// RouterConfig holds the dependencies and feature toggles for NewRouter.
type RouterConfig struct {
	Provider *remoteconfig.Provider
	EventBus realtime.EventBus

	EnableMetrics         bool
	EnableCORS            bool
	EnableCompression     bool
	EnableDocs            bool
	EnableSecurityHeaders bool
	CORSConfig            middleware.CORSConfig
	SecurityHeadersConfig middleware.SecurityHeadersConfig

	Logger *slog.Logger
}

// DefaultRouterConfig returns sensible defaults for provider/bus-bearing
// callers; EnableDocs defaults off since swagger annotations are generated
// separately via `swag init`.
func DefaultRouterConfig(provider *remoteconfig.Provider, bus realtime.EventBus, logger *slog.Logger) RouterConfig {
	return RouterConfig{
		Provider:              provider,
		EventBus:              bus,
		EnableMetrics:         true,
		EnableCORS:            true,
		EnableCompression:     true,
		EnableSecurityHeaders: true,
		CORSConfig:            middleware.DefaultCORSConfig(),
		SecurityHeadersConfig: middleware.DefaultSecurityHeadersConfig(),
		Logger:                logger,
	}
}

// NewRouter builds the admin router. The middleware stack is applied in a
// fixed order:
//  1. RequestID (always)
//  2. Logging (always)
//  3. SecurityHeaders (if enabled)
//  4. CORS (if enabled)
//  5. Compression (if enabled)
//
// @title remoteconfig admin API
// @version 1.0
// @description Read-only snapshot, push-notification intake, and live event stream for the remoteconfig provider.
// @BasePath /v1
// @schemes http https
func NewRouter(config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(config.Logger))

	if config.EnableSecurityHeaders {
		router.Use(middleware.SecurityHeaders(config.SecurityHeadersConfig))
	}
	if config.EnableCORS {
		router.Use(middleware.CORS(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.Compression)
	}

	router.HandleFunc("/healthz", HealthHandler(config.Provider)).Methods(http.MethodGet)

	if config.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/config", ConfigSnapshotHandler(config.Provider)).Methods(http.MethodGet)
	v1.HandleFunc("/push", PushNotificationHandler(config.Provider)).Methods(http.MethodPost)

	if config.EventBus != nil {
		router.HandleFunc("/ws", realtime.ServeWebSocket(config.EventBus, config.Logger)).Methods(http.MethodGet)
	}

	if config.EnableDocs {
		router.PathPrefix("/docs").Handler(httpSwagger.WrapHandler)
	}

	return router
}
