package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
)

var (
	// ErrUnknownScript is returned when registering a script with no factory.
	ErrUnknownScript = errors.New("offline: unknown worker script")
	// ErrContainerClosed is returned by a container after Close.
	ErrContainerClosed = errors.New("offline: container is closed")
)

// State is the lifecycle state of a worker inside a container.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Factory builds a fresh worker instantiation.
type Factory func() (*Worker, error)

type registration struct {
	script  string
	scope   string
	active  *Worker
	waiting *Worker
	claimed bool
}

// Container plays the part of the browser's worker registration machinery:
// it instantiates workers from their scripts, drives install and activate,
// and picks the worker controlling a request.
type Container struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// installMu serializes Register and Update.
	installMu sync.Mutex

	mu            sync.RWMutex
	factories     map[string]Factory
	registrations map[string]*registration
	started       []*Worker
	closed        bool
}

// NewContainer creates an empty container.
func NewContainer(logger *zap.Logger, metrics *monitoring.Metrics) *Container {
	return &Container{
		logger:        logging.OrNop(logger).Named("container"),
		metrics:       metrics,
		factories:     make(map[string]Factory),
		registrations: make(map[string]*registration),
	}
}

// Define binds scriptURL to factory.
func (c *Container) Define(scriptURL string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[scriptURL] = factory
}

// Register installs and activates the worker for scriptURL unless one is
// already active.
func (c *Container) Register(ctx context.Context, scriptURL string) error {
	c.installMu.Lock()
	defer c.installMu.Unlock()

	c.mu.RLock()
	reg := c.registrations[scriptURL]
	c.mu.RUnlock()
	if reg != nil && reg.active != nil {
		return nil
	}
	return c.install(ctx, scriptURL)
}

// Update instantiates a fresh worker for scriptURL and, once installed,
// lets it replace the active one.
func (c *Container) Update(ctx context.Context, scriptURL string) error {
	c.installMu.Lock()
	defer c.installMu.Unlock()
	return c.install(ctx, scriptURL)
}

// Active returns the active worker for scriptURL, if any.
func (c *Container) Active(scriptURL string) *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if reg := c.registrations[scriptURL]; reg != nil {
		return reg.active
	}
	return nil
}

// Controller returns the worker controlling req, or nil. A worker that has
// claimed its clients controls every request in its scope; one that has not
// only picks up navigations.
func (c *Container) Controller(req *http.Request) *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *registration
	for _, reg := range c.registrations {
		if reg.active == nil || !strings.HasPrefix(req.URL.Path, reg.scope) {
			continue
		}
		if best == nil || len(reg.scope) > len(best.scope) {
			best = reg
		}
	}
	if best == nil {
		return nil
	}
	if best.claimed || IsNavigation(req) {
		return best.active
	}
	return nil
}

// Close stops accepting registrations and waits for every worker's pending
// background stores.
func (c *Container) Close() error {
	c.installMu.Lock()
	defer c.installMu.Unlock()

	c.mu.Lock()
	c.closed = true
	started := c.started
	c.mu.Unlock()

	for _, w := range started {
		w.Wait()
	}
	return nil
}

func (c *Container) install(ctx context.Context, scriptURL string) error {
	c.mu.RLock()
	factory, ok := c.factories[scriptURL]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrContainerClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScript, scriptURL)
	}

	w, err := factory()
	if err != nil {
		return fmt.Errorf("instantiate %s: %w", scriptURL, err)
	}
	c.track(w)

	logger := c.logger.With(zap.String("script", scriptURL), zap.String("worker_id", w.ID().String()))
	lc := &lifecycle{}

	w.setState(StateInstalling)
	if err := w.OnInstall(ctx, lc); err != nil {
		w.setState(StateRedundant)
		logger.Error("Worker install failed", zap.Error(err))
		return fmt.Errorf("install %s: %w", scriptURL, err)
	}
	w.setState(StateInstalled)
	logger.Info("Worker installed")

	c.mu.Lock()
	reg := c.registrations[scriptURL]
	if reg == nil {
		reg = &registration{script: scriptURL, scope: scopeOf(scriptURL)}
		c.registrations[scriptURL] = reg
	}
	if reg.waiting != nil {
		reg.waiting.setState(StateRedundant)
		reg.waiting = nil
	}
	if reg.active != nil && !lc.skipWaiting {
		reg.waiting = w
		c.mu.Unlock()
		logger.Info("Worker waiting for active worker to be released")
		return nil
	}
	previous := reg.active
	reg.active = w
	c.mu.Unlock()

	// The previous worker's pending stores land before activation deletes
	// its bucket.
	if previous != nil {
		previous.retire()
	}

	w.setState(StateActivating)
	if err := w.OnActivate(ctx, lc); err != nil {
		logger.Error("Worker activation failed", zap.Error(err))
	}

	c.mu.Lock()
	reg.claimed = reg.claimed || lc.claimed
	c.mu.Unlock()

	w.setState(StateActivated)
	logger.Info("Worker activated", zap.Bool("claimed", lc.claimed))
	return nil
}

func (c *Container) track(w *Worker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, w)
}

// lifecycle records what a worker asked for during install and activate.
type lifecycle struct {
	mu          sync.Mutex
	skipWaiting bool
	claimed     bool
}

func (l *lifecycle) SkipWaiting() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipWaiting = true
}

func (l *lifecycle) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claimed = true
	return nil
}

// IsNavigation reports whether req loads a page rather than a subresource.
func IsNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}

// scopeOf is the default registration scope: the directory of the script.
func scopeOf(scriptURL string) string {
	dir := path.Dir(scriptURL)
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir
}
