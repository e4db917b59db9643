package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/shared/id"
)

// Lifecycle is the container side of install and activate.
type Lifecycle interface {
	// SkipWaiting asks for activation right after install.
	SkipWaiting()
	// Claim takes control of every client in scope.
	Claim(ctx context.Context) error
}

// Config describes one worker version.
type Config struct {
	// Bucket is the current cache bucket. Every other bucket is stale.
	Bucket string
	// Precache lists origin-relative URLs fetched and stored on install.
	Precache []string
	// Scope decides which requests are intercepted.
	Scope *Scope
	// FetchTimeout bounds each network fetch. Zero means no bound.
	FetchTimeout time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *monitoring.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = metrics }
}

// Worker is one instantiation of the offline cache worker. It serves
// intercepted requests network first and falls back to the cache registry.
type Worker struct {
	id      id.WorkerID
	cfg     Config
	caches  CacheStorage
	fetcher Fetcher
	logger  *zap.Logger
	metrics *monitoring.Metrics
	state   atomic.Int32

	// storeMu orders retirement against new background stores.
	storeMu sync.Mutex
	retired bool
	pending sync.WaitGroup
}

// NewWorker creates a worker for cfg.
func NewWorker(cfg Config, caches CacheStorage, fetcher Fetcher, opts ...WorkerOption) *Worker {
	w := &Worker{
		id:      id.NewWorkerID(),
		cfg:     cfg,
		caches:  caches,
		fetcher: fetcher,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("worker").With(
		zap.String("worker_id", w.id.String()),
		zap.String("bucket", cfg.Bucket),
	)
	return w
}

// ID returns the worker identifier.
func (w *Worker) ID() id.WorkerID { return w.id }

// Bucket returns the current bucket name.
func (w *Worker) Bucket() string { return w.cfg.Bucket }

// State returns the lifecycle state assigned by the container.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// OnInstall precaches every configured URL into the current bucket and then
// asks to skip waiting. All URLs must be fetched with an OK status before
// anything is stored.
func (w *Worker) OnInstall(ctx context.Context, lc Lifecycle) error {
	bucket, err := w.caches.Open(ctx, w.cfg.Bucket)
	if err != nil {
		w.metrics.RecordLifecycle("install", "failed")
		return fmt.Errorf("open bucket %s: %w", w.cfg.Bucket, err)
	}

	requests := make([]*http.Request, len(w.cfg.Precache))
	responses := make([]*Response, len(w.cfg.Precache))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range w.cfg.Precache {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, target, nil)
			if err != nil {
				return fmt.Errorf("precache %s: %w", target, err)
			}
			resp, err := w.fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", target, err)
			}
			if !resp.OK() {
				return fmt.Errorf("precache %s: unexpected status %d", target, resp.Status)
			}
			requests[i], responses[i] = req, resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.metrics.RecordLifecycle("install", "failed")
		return err
	}

	for i, req := range requests {
		if err := bucket.Put(ctx, req, responses[i]); err != nil {
			w.metrics.RecordLifecycle("install", "failed")
			return fmt.Errorf("store %s: %w", CacheKey(req), err)
		}
	}

	w.logger.Info("Precache complete", zap.Int("entries", len(requests)))
	w.metrics.RecordLifecycle("install", "ok")
	lc.SkipWaiting()
	return nil
}

// OnActivate deletes every bucket other than the current one and claims
// all clients. Deletion failures are collected; the claim still happens.
func (w *Worker) OnActivate(ctx context.Context, lc Lifecycle) error {
	names, err := w.caches.Keys(ctx)
	if err != nil {
		w.metrics.RecordLifecycle("activate", "failed")
		return fmt.Errorf("list buckets: %w", err)
	}

	var errs []error
	deleted := 0
	for _, name := range names {
		if name == w.cfg.Bucket {
			continue
		}
		if _, err := w.caches.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete bucket %s: %w", name, err))
			continue
		}
		deleted++
		w.logger.Info("Deleted stale bucket", zap.String("stale", name))
	}
	w.metrics.AddBucketsDeleted(deleted)

	if err := lc.Claim(ctx); err != nil {
		errs = append(errs, fmt.Errorf("claim clients: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		w.metrics.RecordLifecycle("activate", "failed")
		return err
	}
	w.metrics.RecordLifecycle("activate", "ok")
	return nil
}

// OnFetch answers req. The boolean reports whether the worker handled the
// request at all; when it is false the caller must fall back to default
// handling. A handled request with a nil response means neither the network
// nor the cache had an answer.
func (w *Worker) OnFetch(ctx context.Context, req *http.Request) (*Response, bool) {
	if w.cfg.Scope == nil || !w.cfg.Scope.Intercepts(req) {
		return nil, false
	}

	resp, err := w.fetch(ctx, req)
	if err == nil && resp.OK() {
		w.store(ctx, req, resp.Clone())
		w.metrics.RecordFetch(monitoring.FetchNetwork)
		return resp, true
	}

	if err != nil {
		w.logger.Debug("Network fetch failed", zap.String("url", CacheKey(req)), zap.Error(err))
	} else {
		w.logger.Debug("Network response not OK", zap.String("url", CacheKey(req)), zap.Int("status", resp.Status))
	}

	if cached, ok := w.match(ctx, req); ok {
		w.metrics.RecordFetch(monitoring.FetchCache)
		return cached, true
	}
	w.metrics.RecordFetch(monitoring.FetchMiss)
	return nil, true
}

// Wait blocks until every background cache store has finished.
func (w *Worker) Wait() {
	w.pending.Wait()
}

// retire marks the worker redundant, refuses further background stores and
// waits for the pending ones. After it returns the worker never writes to
// its bucket again.
func (w *Worker) retire() {
	w.storeMu.Lock()
	w.retired = true
	w.storeMu.Unlock()

	w.setState(StateRedundant)
	w.pending.Wait()
}

func (w *Worker) fetch(ctx context.Context, req *http.Request) (*Response, error) {
	if w.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.FetchTimeout)
		defer cancel()
	}
	return w.fetcher.Fetch(ctx, req)
}

func (w *Worker) match(ctx context.Context, req *http.Request) (*Response, bool) {
	if !Cacheable(req) {
		return nil, false
	}
	cached, ok, err := w.caches.Match(ctx, req)
	if err != nil {
		w.logger.Error("Cache match failed", zap.String("url", CacheKey(req)), zap.Error(err))
		return nil, false
	}
	return cached, ok
}

// store writes resp into the current bucket in the background. The caller
// is never told about the outcome.
func (w *Worker) store(ctx context.Context, req *http.Request, resp *Response) {
	key := CacheKey(req)
	if !Cacheable(req) {
		w.logger.Error("Cache store failed", zap.String("url", key), zap.Error(ErrNotCacheable))
		w.metrics.RecordCacheStore("failed")
		return
	}

	w.storeMu.Lock()
	if w.retired {
		w.storeMu.Unlock()
		w.logger.Debug("Cache store skipped, worker is redundant", zap.String("url", key))
		w.metrics.RecordCacheStore("skipped")
		return
	}
	w.pending.Add(1)
	w.storeMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	detached := req.Clone(ctx)

	go func() {
		defer w.pending.Done()

		bucket, err := w.caches.Open(ctx, w.cfg.Bucket)
		if err == nil {
			err = bucket.Put(ctx, detached, resp)
		}
		if err != nil {
			w.logger.Error("Cache store failed", zap.String("url", key), zap.Error(err))
			w.metrics.RecordCacheStore("failed")
			return
		}
		w.metrics.RecordCacheStore("ok")
	}()
}
