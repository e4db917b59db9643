package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns the CORS configuration for the API routes
// (health, metrics and ports). The edge never goes through it: it serves the
// application itself, so its requests are same-origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"}, // Narrowed by ForOrigin when PUBLIC_ORIGIN is set
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			RequestIDHeader,
		},
		// Dashboards read the request ID to correlate with server logs.
		ExposeHeaders: []string{RequestIDHeader},
		// The ports cookie is same-origin only; cross-origin callers get no credentials.
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// ForOrigin restricts cfg to a single public origin. An empty origin leaves
// cfg unchanged.
func (cfg CORSConfig) ForOrigin(origin string) CORSConfig {
	origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	if origin == "" {
		return cfg
	}
	cfg.AllowOrigins = []string{origin}
	return cfg
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
