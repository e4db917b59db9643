// Package config provides 12-factor configuration management for poolkeeper.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Storage: Preference store driver and path
//   - Cache: Cache bucket registry driver and path
//   - Offline: Upstream origin, precache manifest, bypass globs
//   - Breaker: Circuit breaker guarding the upstream
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Edge running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - STORAGE_DRIVER, STORAGE_PATH, CACHE_DRIVER, CACHE_PATH
//   - UPSTREAM_URL, PUBLIC_ORIGIN, OFFLINE_MANIFEST, OFFLINE_BYPASS, OFFLINE_FETCH_TIMEOUT
//   - BREAKER_ENABLED, BREAKER_FAILURES, BREAKER_TIMEOUT
package config
