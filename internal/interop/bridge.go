package interop

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
)

const (
	// Version is reported to the application in InitData.
	Version = "v1"
	// SessionPoolNameKey is the storage key of the remembered pool name.
	SessionPoolNameKey = "sessionPoolName"
	// WorkerScriptURL is the script registered as the offline cache worker.
	WorkerScriptURL = "/serviceWorker.js"
)

// Storage is persisted key-value storage.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
}

// Inbound delivers text to the application.
type Inbound interface {
	Send(ctx context.Context, text string) error
}

// Outbound delivers application messages, in order, to a single handler.
type Outbound interface {
	Subscribe(handler func(ctx context.Context, payload []byte))
}

// Registrar registers the offline cache worker script.
type Registrar interface {
	Register(ctx context.Context, scriptURL string) error
}

// Page exposes the page load event.
type Page interface {
	OnLoad(fn func())
}

// Options holds the capabilities a Bridge is built from. Registrar and Page
// are optional; without a Registrar no worker is registered.
type Options struct {
	Storage   Storage
	Inbound   Inbound
	Outbound  Outbound
	Registrar Registrar
	Page      Page
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}

// Bridge relays the remembered pool name and one command channel between
// storage and the application's ports.
type Bridge struct {
	storage   Storage
	inbound   Inbound
	outbound  Outbound
	registrar Registrar
	page      Page
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	subscribeOnce sync.Once
	subscribed    atomic.Bool
}

// New creates a bridge.
func New(opts Options) *Bridge {
	return &Bridge{
		storage:   opts.Storage,
		inbound:   opts.Inbound,
		outbound:  opts.Outbound,
		registrar: opts.Registrar,
		page:      opts.Page,
		logger:    logging.OrNop(opts.Logger).Named("interop"),
		metrics:   opts.Metrics,
	}
}

// Init runs the startup sequence: it sends InitData, subscribes to the
// outbound port and schedules worker registration for the page load event.
// It never fails; every problem is logged.
func (b *Bridge) Init(ctx context.Context) {
	b.sendInit(ctx)
	b.subscribe()
	b.setupWorker(ctx)
}

// Subscribed reports whether the command listener is attached.
func (b *Bridge) Subscribed() bool {
	return b.subscribed.Load()
}

func (b *Bridge) sendInit(ctx context.Context) {
	if err := b.loadAndSend(ctx); err != nil {
		b.logger.Error("Error loading initial data", zap.Error(err))
		b.metrics.RecordInit("failed")
		return
	}
	b.metrics.RecordInit("sent")
}

func (b *Bridge) loadAndSend(ctx context.Context) error {
	stored, ok, err := b.storage.GetItem(ctx, SessionPoolNameKey)
	if err != nil {
		return err
	}
	poolName, err := parseStored(stored, ok)
	if err != nil {
		return err
	}

	text, err := encodeInit(poolName, Version)
	if err != nil {
		return err
	}

	b.logger.Debug("Sending init data", zap.String("message", text))
	return b.inbound.Send(ctx, text)
}

func (b *Bridge) subscribe() {
	b.subscribeOnce.Do(func() {
		b.outbound.Subscribe(b.HandleMessage)
		b.subscribed.Store(true)
	})
}

// HandleMessage dispatches one outbound message.
func (b *Bridge) HandleMessage(ctx context.Context, payload []byte) {
	b.logger.Debug("Received command", zap.ByteString("payload", payload))

	env, err := DecodeEnvelope(payload)
	if err != nil {
		b.logger.Error("Command could not be decoded", zap.Error(err))
		b.metrics.RecordCommand("", "invalid")
		return
	}
	if !env.HasTag() {
		b.logger.Error("Command is missing a tag", zap.ByteString("payload", payload))
		b.metrics.RecordCommand("", "invalid")
		return
	}

	switch tag := env.TagName(); tag {
	case TagStoreSessionPoolName:
		b.storeSessionPoolName(ctx, env)
	default:
		b.logger.Info("Command not handled", zap.String("tag", tag))
		b.metrics.RecordCommand("other", "ignored")
	}
}

func (b *Bridge) storeSessionPoolName(ctx context.Context, env Envelope) {
	value, err := serializeValue(env.Data)
	if err == nil {
		err = b.storage.SetItem(ctx, SessionPoolNameKey, value)
	}
	if err != nil {
		b.logger.Error("Failed to store session pool name", zap.Error(err))
		b.metrics.RecordCommand(TagStoreSessionPoolName, "failed")
		return
	}
	b.metrics.RecordCommand(TagStoreSessionPoolName, "stored")
}

func (b *Bridge) setupWorker(ctx context.Context) {
	if b.registrar == nil {
		b.logger.Debug("Worker registration unavailable")
		return
	}

	register := func() {
		if err := b.registrar.Register(ctx, WorkerScriptURL); err != nil {
			b.logger.Error("Worker registration failed", zap.String("script", WorkerScriptURL), zap.Error(err))
			return
		}
		b.logger.Info("Worker registration successful", zap.String("script", WorkerScriptURL))
	}

	// Without a page there is no load event to wait for.
	if b.page == nil {
		register()
		return
	}
	b.page.OnLoad(register)
}
