package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/interop"
	"github.com/GriffinCanCode/poolkeeper/internal/shared/id"
	"github.com/GriffinCanCode/poolkeeper/internal/storage"
)

const (
	// ClientCookie carries the client ID between loads.
	ClientCookie = "poolkeeper_client"
	// clientCookieMaxAge keeps the cookie about as long as browser storage.
	clientCookieMaxAge = 400 * 24 * time.Hour

	maxMessageSize = 64 << 10
	closeGrace     = time.Second
)

// Handler serves the application ports over WebSocket. Every connection is
// one application load with its own bridge.
type Handler struct {
	store     storage.Store
	registrar interop.Registrar
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closed   bool
	sessions sync.WaitGroup
}

// NewHandler creates a port handler. registrar may be nil, in which case no
// worker is registered.
func NewHandler(store storage.Store, registrar interop.Registrar, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		store:     store,
		registrar: registrar,
		logger:    logging.OrNop(logger).Named("ws"),
		metrics:   metrics,
		conns:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// WithCheckOrigin replaces the same-origin check applied to upgrades.
func (h *Handler) WithCheckOrigin(check func(r *http.Request) bool) *Handler {
	h.upgrader.CheckOrigin = check
	return h
}

// HandleConnection upgrades the request and runs one session until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	clientID, minted := h.clientID(c.Request)

	header := http.Header{}
	if minted {
		cookie := &http.Cookie{
			Name:     ClientCookie,
			Value:    clientID.String(),
			Path:     "/",
			MaxAge:   int(clientCookieMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   c.Request.TLS != nil,
		}
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if !h.track(conn) {
		return
	}
	defer h.untrack(conn)
	conn.SetReadLimit(maxMessageSize)

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	logger := h.logger.With(zap.String("client_id", clientID.String()))
	logger.Debug("Port session started", zap.Bool("new_client", minted))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sess := newSession(conn, h.metrics)
	bridge := interop.New(interop.Options{
		Storage:   storage.NewScoped(h.store, clientID.String()),
		Inbound:   sess,
		Outbound:  sess,
		Registrar: h.registrarFor(),
		Page:      sess,
		Logger:    logger,
		Metrics:   h.metrics,
	})
	bridge.Init(ctx)
	sess.load()

	h.readLoop(ctx, conn, sess, logger)

	cancel()
	sess.wait()
	logger.Debug("Port session ended")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session, logger *zap.Logger) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			logger.Debug("Ignoring non-text frame", zap.Int("type", messageType))
			continue
		}
		if !sess.deliver(ctx, payload) {
			logger.Debug("Dropping message with no subscriber")
		}
	}
}

// Close ends every live session and waits until their handlers have
// returned. Later upgrades are closed straight away.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		_ = conn.Close()
	}
	h.sessions.Wait()
	return nil
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.sessions.Add(1)
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.sessions.Done()
}

// clientID returns the client ID from the cookie, minting a new one when the
// cookie is missing or malformed.
func (h *Handler) clientID(r *http.Request) (id.ClientID, bool) {
	if cookie, err := r.Cookie(ClientCookie); err == nil {
		if clientID, err := id.ParseClientID(cookie.Value); err == nil {
			return clientID, false
		}
		h.logger.Debug("Ignoring malformed client cookie")
	}
	return id.NewClientID(), true
}

func (h *Handler) registrarFor() interop.Registrar {
	if h.registrar == nil {
		return nil
	}
	return detachedRegistrar{h.registrar}
}

// detachedRegistrar keeps a registration going after the session that asked
// for it has disconnected; the worker is shared by every client.
type detachedRegistrar struct {
	next interop.Registrar
}

func (r detachedRegistrar) Register(ctx context.Context, scriptURL string) error {
	return r.next.Register(context.WithoutCancel(ctx), scriptURL)
}
