package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/errors"
)

// EventKind identifies an independently-tracked inbound event stream
type EventKind string

const (
	// KindRatingUpdate carries recalculated restaurant ratings
	KindRatingUpdate EventKind = "rating_update"

	// KindNotification carries user-scoped notifications
	KindNotification EventKind = "notification"
)

// Callback handles a single inbound event payload
type Callback func(payload json.RawMessage)

// registry routes inbound events to at most one callback per kind.
// Events arriving before a callback is registered are held in a bounded
// per-kind buffer and replayed in arrival order on registration.
// Registration is last-writer-wins: a later callback replaces the
// previous one for that kind.
//
// Callbacks run without the registry lock held, so a callback may call
// back into the client (including Disconnect). A per-kind delivery
// mutex keeps replayed events ordered before any later live event of
// the same kind.
type registry struct {
	mu         sync.Mutex
	logger     *logging.Logger
	errHandler errors.Handler
	capacity   int
	slots      map[EventKind]Callback
	buffers    map[EventKind]*ringBuffer
	delivery   map[EventKind]*sync.Mutex
}

func newRegistry(logger *logging.Logger, errHandler errors.Handler, capacity int) *registry {
	return &registry{
		logger:     logger,
		errHandler: errHandler,
		capacity:   capacity,
		slots:      make(map[EventKind]Callback),
		buffers:    make(map[EventKind]*ringBuffer),
		delivery:   make(map[EventKind]*sync.Mutex),
	}
}

// deliveryLock returns the mutex serializing callback invocation for a
// kind. It is always acquired before r.mu, never while holding it.
func (r *registry) deliveryLock(kind EventKind) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	dl, ok := r.delivery[kind]
	if !ok {
		dl = &sync.Mutex{}
		r.delivery[kind] = dl
	}
	return dl
}

// Register stores cb as the sole callback for kind, then replays any
// buffered events of that kind in arrival order.
func (r *registry) Register(kind EventKind, cb Callback) {
	dl := r.deliveryLock(kind)
	dl.Lock()
	defer dl.Unlock()

	r.mu.Lock()
	r.slots[kind] = cb

	var drained []json.RawMessage
	if buffer, ok := r.buffers[kind]; ok {
		drained = buffer.Drain()
	}
	r.mu.Unlock()

	if len(drained) == 0 {
		return
	}

	r.logger.Debug("replaying buffered events", "kind", kind, "count", len(drained))

	for _, payload := range drained {
		r.invoke(kind, cb, payload)
	}
}

// Dispatch routes an inbound event to the registered callback for its
// kind, or buffers it if no callback is registered yet.
func (r *registry) Dispatch(kind EventKind, payload json.RawMessage) {
	dl := r.deliveryLock(kind)
	dl.Lock()
	defer dl.Unlock()

	r.mu.Lock()
	cb, ok := r.slots[kind]
	if !ok {
		buffer, ok := r.buffers[kind]
		if !ok {
			buffer = newRingBuffer(r.capacity)
			r.buffers[kind] = buffer
		}
		buffer.Push(payload)
		buffered := buffer.Len()
		r.mu.Unlock()
		r.logger.Debug("buffered event without callback", "kind", kind, "buffered", buffered)
		return
	}
	r.mu.Unlock()

	r.invoke(kind, cb, payload)
}

// Clear removes all registrations and empties the buffers. The delivery
// mutexes are kept so an in-flight invocation stays serialized.
func (r *registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots = make(map[EventKind]Callback)
	r.buffers = make(map[EventKind]*ringBuffer)
}

// invoke runs a consumer callback, isolating panics so one bad handler
// cannot break delivery of subsequent events.
func (r *registry) invoke(kind EventKind, cb Callback, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			err := errors.New(errors.ErrorTypeCallback, "CALLBACK_PANIC", "consumer callback panicked").
				WithDetails(fmt.Sprintf("kind=%s: %v", kind, rec))
			r.errHandler.Handle(context.Background(), err)
		}
	}()

	cb(payload)
}
