// Package dispatch funnels work from background listener goroutines onto the
// host application's single serialized execution context.
//
// The host owns exactly one thread that may touch its APIs. Listeners never
// call into the host directly; they enqueue items here and the host's control
// loop consumes them one at a time via Run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Kind classifies a work item. Items of the same kind run in FIFO order;
// ordering across kinds is incidental (a single queue happens to provide it,
// but callers must not rely on that).
type Kind string

const (
	// KindRunCommand executes a verified inner command.
	KindRunCommand Kind = "run_command"

	// KindVerifyCommand asks the operator to confirm a first-contact key.
	KindVerifyCommand Kind = "verify_command"

	// KindShowError presents an error message to the operator.
	KindShowError Kind = "show_error"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity. Enqueue
// never blocks the caller; a stalled consumer (for example an abandoned
// confirmation prompt) eventually surfaces here.
var ErrQueueFull = errors.New("dispatch queue is full")

// Handler processes one dequeued item. It runs on the consumer's goroutine
// and may block it; a handler error is logged but never stops the loop.
type Handler func(ctx context.Context, payload any) error

type item struct {
	kind    Kind
	payload any
}

// Dispatcher is an asynchronous task queue with exactly one consumer.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler

	queue  chan item
	logger zerolog.Logger
}

// New creates a dispatcher with the given queue capacity.
func New(capacity int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Kind]Handler),
		queue:    make(chan item, capacity),
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// Handle registers the handler for a kind, replacing any previous one.
// Registration must finish before Run starts consuming.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[kind] = h
}

// Enqueue queues a work item from any goroutine without blocking.
func (d *Dispatcher) Enqueue(kind Kind, payload any) error {
	select {
	case d.queue <- item{kind: kind, payload: payload}:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s item", ErrQueueFull, kind)
	}
}

// Run consumes the queue on the calling goroutine until ctx is cancelled.
// The embedding host dedicates its main-thread-equivalent goroutine to this.
// Each item runs to completion before the next starts, so a blocking item
// (such as a confirmation prompt) delays everything queued behind it. That is
// the host's own execution model, not a defect.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Debug().Int("capacity", cap(d.queue)).Msg("Dispatcher consuming")

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug().Msg("Dispatcher stopped")
			return
		case it := <-d.queue:
			d.dispatch(ctx, it)
		}
	}
}

// dispatch runs a single item, containing panics and handler errors.
func (d *Dispatcher) dispatch(ctx context.Context, it item) {
	d.mu.RLock()
	h, ok := d.handlers[it.kind]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn().Str("kind", string(it.kind)).Msg("No handler registered for item")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			// Fatal severity so the dialog hook surfaces it to the operator.
			d.logger.WithLevel(zerolog.FatalLevel).
				Str("kind", string(it.kind)).
				Interface("panic", r).
				Msgf("Panic while executing %s item: %v", it.kind, r)
		}
	}()

	if err := h(ctx, it.payload); err != nil {
		d.logger.Error().Err(err).Str("kind", string(it.kind)).Msg("Item execution failed")
	}
}

// Pending returns the number of queued items. Used by tests and diagnostics.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
