package edge

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/offline"
)

// MissHeader marks a response the worker could answer neither from the
// network nor from the cache.
const MissHeader = "X-Offline-Miss"

// Controllers picks the worker controlling a request.
type Controllers interface {
	Controller(req *http.Request) *offline.Worker
}

// Handler routes every request that is not part of the API through the
// controlling worker, or straight to the upstream when there is none.
type Handler struct {
	controllers Controllers
	scriptURL   string
	proxy       *httputil.ReverseProxy
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// New creates an edge handler in front of upstream. scriptURL is served
// with the headers a worker script needs.
func New(controllers Controllers, upstream *url.URL, scriptURL string, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	h := &Handler{
		controllers: controllers,
		scriptURL:   scriptURL,
		logger:      logging.OrNop(logger).Named("edge"),
		metrics:     metrics,
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(upstream)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
		},
		ModifyResponse: h.modifyResponse,
		ErrorHandler:   h.proxyError,
	}
	return h
}

// Handle serves one request.
func (h *Handler) Handle(c *gin.Context) {
	req := c.Request

	if w := h.controllers.Controller(req); w != nil {
		resp, handled := w.OnFetch(req.Context(), req)
		if handled {
			h.respond(c, resp)
			return
		}
	}

	h.metrics.RecordFetch(monitoring.FetchPassthrough)
	h.proxy.ServeHTTP(c.Writer, req)
}

func (h *Handler) respond(c *gin.Context, resp *offline.Response) {
	if resp == nil {
		c.Header(MissHeader, "1")
		c.Status(http.StatusGatewayTimeout)
		c.Writer.WriteHeaderNow()
		return
	}
	if err := resp.Write(c.Writer); err != nil {
		h.logger.Debug("Failed to write response", zap.String("url", resp.URL), zap.Error(err))
	}
}

func (h *Handler) modifyResponse(resp *http.Response) error {
	if resp.Request != nil && strings.HasSuffix(resp.Request.URL.Path, h.scriptURL) {
		resp.Header.Set("Service-Worker-Allowed", "/")
		resp.Header.Set("Cache-Control", "no-cache")
	}
	return nil
}

func (h *Handler) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("Upstream unavailable", zap.String("path", r.URL.Path), zap.Error(err))
	w.WriteHeader(http.StatusBadGateway)
}
