package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/offline"
)

// Version is reported by the health endpoint.
const Version = "0.8.16"

// Workers reports the active worker for a script.
type Workers interface {
	Active(scriptURL string) *offline.Worker
}

// Handlers contains the API handlers.
type Handlers struct {
	workers   Workers
	scriptURL string
	metrics   *monitoring.Metrics
	started   time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(workers Workers, scriptURL string, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		workers:   workers,
		scriptURL: scriptURL,
		metrics:   metrics,
		started:   time.Now(),
	}
}

// Health reports liveness and the state of the offline worker.
func (h *Handlers) Health(c *gin.Context) {
	worker := gin.H{"registered": false}
	if w := h.workers.Active(h.scriptURL); w != nil {
		worker = gin.H{
			"registered": true,
			"id":         w.ID().String(),
			"bucket":     w.Bucket(),
			"state":      w.State().String(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "poolkeeper",
		"version": Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"worker":  worker,
	})
}

// Metrics serves Prometheus metrics.
func (h *Handlers) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
