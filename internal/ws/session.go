package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
)

const writeWait = 10 * time.Second

// session is one application load on one connection. It implements the
// interop Inbound, Outbound and Page capabilities.
type session struct {
	conn    *websocket.Conn
	metrics *monitoring.Metrics

	writeMu sync.Mutex

	mu      sync.Mutex
	handler func(ctx context.Context, payload []byte)
	onLoad  []func()
	loaded  bool

	loads sync.WaitGroup
}

func newSession(conn *websocket.Conn, metrics *monitoring.Metrics) *session {
	return &session{conn: conn, metrics: metrics}
}

// Send writes text as one text frame.
func (s *session) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write inbound message: %w", err)
	}
	s.metrics.RecordWSMessage("inbound")
	return nil
}

// Subscribe sets the handler that receives outbound messages.
func (s *session) Subscribe(handler func(ctx context.Context, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// OnLoad runs fn once the page has loaded. Callbacks added after the load
// event run straight away.
func (s *session) OnLoad(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		s.run(fn)
		return
	}
	s.onLoad = append(s.onLoad, fn)
}

// load fires the page load event. Callbacks run on their own goroutines so
// a slow one never holds up message delivery.
func (s *session) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	for _, fn := range s.onLoad {
		s.run(fn)
	}
	s.onLoad = nil
}

func (s *session) run(fn func()) {
	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		fn()
	}()
}

// deliver hands one outbound message to the subscriber on the caller's
// goroutine, which keeps messages in arrival order.
func (s *session) deliver(ctx context.Context, payload []byte) bool {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return false
	}
	s.metrics.RecordWSMessage("outbound")
	handler(ctx, payload)
	return true
}

// wait blocks until every load callback has returned.
func (s *session) wait() {
	s.loads.Wait()
}
