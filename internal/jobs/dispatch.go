package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
)

var errPoolStopped = errors.New("dispatch pool not running")

// Dispatcher delivers one notification to its chat target. Implementations
// wrap whatever messenger transport the deployment uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.PendingNotification) error
}

// LogDispatcher is the transport used when no messenger is configured: it
// logs the would-be delivery and succeeds, which keeps the outbox draining.
type LogDispatcher struct {
	Logger *zap.Logger
}

// Dispatch logs the notification.
func (d LogDispatcher) Dispatch(_ context.Context, n models.PendingNotification) error {
	d.Logger.Info("notification dispatched",
		zap.String("id", n.ID),
		zap.Int64("chat_target", n.ChatTarget),
		zap.String("kind", string(n.Kind)),
		zap.Bool("has_image", len(n.ImageBytes) > 0))
	return nil
}

type sentMarker interface {
	MarkSent(ctx context.Context, id string, at time.Time) error
}

// DispatchPoolConfig configures worker pool behaviour.
type DispatchPoolConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// DispatchPool fans due notifications out to a fixed set of delivery
// workers. A notification is marked sent only after its transport call
// succeeded, so a crash mid-batch re-delivers instead of losing messages.
type DispatchPool struct {
	dispatcher Dispatcher
	store      sentMarker

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	queue   chan queuedNotification
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

type queuedNotification struct {
	notification models.PendingNotification
	attempt      int
}

// NewDispatchPool builds the pool around a transport and the outbox store.
func NewDispatchPool(dispatcher Dispatcher, store sentMarker, cfg DispatchPoolConfig) *DispatchPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &DispatchPool{
		dispatcher: dispatcher,
		store:      store,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		queue:      make(chan queuedNotification, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (p *DispatchPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true
	p.logger.Info("dispatch pool started", zap.Int("workers", p.workers))
}

// Stop cancels workers and waits for them to exit.
func (p *DispatchPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("dispatch pool stopped")
}

// Enqueue hands a due notification to the workers. It blocks when the
// buffer is full, which throttles the dispatch tick instead of dropping.
func (p *DispatchPool) Enqueue(n models.PendingNotification) error {
	p.mu.Lock()
	ctx := p.ctx
	started := p.started
	p.mu.Unlock()

	if !started {
		return errPoolStopped
	}

	select {
	case <-ctx.Done():
		return errPoolStopped
	case p.queue <- queuedNotification{notification: n}:
		return nil
	}
}

func (p *DispatchPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case item := <-p.queue:
			p.deliver(item)
		}
	}
}

func (p *DispatchPool) deliver(item queuedNotification) {
	n := item.notification
	if err := p.dispatcher.Dispatch(p.ctx, n); err != nil {
		p.handleFailure(item, err)
		return
	}
	if err := p.store.MarkSent(p.ctx, n.ID, time.Now().UTC()); err != nil {
		// The message went out; a failed mark at worst re-sends once on
		// the next tick.
		p.logger.Warn("failed to mark notification sent", zap.String("id", n.ID), zap.Error(err))
	}
}

func (p *DispatchPool) handleFailure(item queuedNotification, err error) {
	item.attempt++
	if item.attempt > p.maxRetries {
		p.logger.Error("notification exceeded delivery retries",
			zap.String("id", item.notification.ID),
			zap.String("kind", string(item.notification.Kind)),
			zap.Error(err))
		return
	}
	p.logger.Warn("notification delivery failed, retrying",
		zap.String("id", item.notification.ID),
		zap.Int("attempt", item.attempt),
		zap.Error(err))

	go func(item queuedNotification) {
		timer := time.NewTimer(p.retryDelay)
		defer timer.Stop()
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			select {
			case <-p.ctx.Done():
			case p.queue <- item:
			}
		}
	}(item)
}
