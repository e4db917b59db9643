/*
Package monitoring provides metrics collection for poolkeeper.

# Overview

Prometheus metrics covering HTTP requests, the interop bridge (startup
sequences and commands), the offline worker (fetch outcomes, background
cache stores, lifecycle events, deleted buckets), the upstream (latency,
breaker state) and port connections.

Every Metrics value owns a private registry. All recording methods are safe
to call on a nil *Metrics, which is how components run without metrics.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordFetch(monitoring.FetchCache)
*/
package monitoring
