package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/victornm/squadquiz/internal/telemetry"
)

const (
	defaultPoolSize = 1024
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus carries domain events from game sessions to the read models (leaderboard, archive,
// spectator feed). Handlers run on their own goroutines, bounded by the pool size, so delivery
// order between events is not guaranteed. Every delivery is counted by outcome.
type Bus struct {
	pool     chan struct{}
	timeout  time.Duration
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]Handler
}

type Option func(b *Bus)

// WithPoolSize bounds the number of handlers running at the same time.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.pool = make(chan struct{}, n)
		}
	}
}

// WithTimeout bounds the time a single handler may take.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		timeout:  defaultTimeout,
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]Handler),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish an event
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		outcome := telemetry.HandlerPanic
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}
			telemetry.EventsHandled.WithLabelValues(e.Name(), outcome).Inc()

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			outcome = telemetry.HandlerError
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
			return
		}
		outcome = telemetry.HandlerOK
	}()
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
