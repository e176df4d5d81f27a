package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(capacity int) *registry {
	logger := logging.New(logging.Config{Level: "error", Format: "text"})
	return newRegistry(logger, errors.NewDefaultHandler(logger.Logger), capacity)
}

func TestRegistryBufferedReplayOrder(t *testing.T) {
	r := newTestRegistry(100)

	r.Dispatch(KindRatingUpdate, payload(1))
	r.Dispatch(KindRatingUpdate, payload(2))
	r.Dispatch(KindRatingUpdate, payload(3))

	var received []json.RawMessage
	r.Register(KindRatingUpdate, func(p json.RawMessage) {
		received = append(received, p)
	})

	require.Len(t, received, 3, "buffered events replayed on registration")
	for i, p := range received {
		assert.JSONEq(t, string(payload(i+1)), string(p))
	}

	r.Dispatch(KindRatingUpdate, payload(4))
	require.Len(t, received, 4)
	assert.JSONEq(t, string(payload(4)), string(received[3]))
}

func TestRegistryReplayHappensOnce(t *testing.T) {
	r := newTestRegistry(100)

	r.Dispatch(KindNotification, payload(1))

	calls := 0
	r.Register(KindNotification, func(json.RawMessage) { calls++ })
	require.Equal(t, 1, calls)

	// a later registration must not see the already-replayed event
	r.Register(KindNotification, func(json.RawMessage) { calls += 100 })
	assert.Equal(t, 1, calls)
}

func TestRegistryBufferBound(t *testing.T) {
	r := newTestRegistry(100)

	for i := 1; i <= 101; i++ {
		r.Dispatch(KindRatingUpdate, payload(i))
	}

	var received []json.RawMessage
	r.Register(KindRatingUpdate, func(p json.RawMessage) {
		received = append(received, p)
	})

	require.Len(t, received, 100, "oldest event evicted at capacity")
	assert.JSONEq(t, string(payload(2)), string(received[0]))
	assert.JSONEq(t, string(payload(101)), string(received[99]))
}

func TestRegistryLastWriterWins(t *testing.T) {
	r := newTestRegistry(100)

	f1Calls := 0
	f2Calls := 0

	r.Register(KindNotification, func(json.RawMessage) { f1Calls++ })
	r.Register(KindNotification, func(json.RawMessage) { f2Calls++ })

	r.Dispatch(KindNotification, payload(1))
	r.Dispatch(KindNotification, payload(2))

	assert.Equal(t, 0, f1Calls, "replaced callback must never fire again")
	assert.Equal(t, 2, f2Calls)
}

func TestRegistryKindsAreIndependent(t *testing.T) {
	r := newTestRegistry(2)

	r.Dispatch(KindRatingUpdate, payload(1))
	r.Dispatch(KindRatingUpdate, payload(2))
	r.Dispatch(KindNotification, payload(10))

	var ratings, notifications int
	r.Register(KindRatingUpdate, func(json.RawMessage) { ratings++ })
	r.Register(KindNotification, func(json.RawMessage) { notifications++ })

	assert.Equal(t, 2, ratings, "per-kind buffers do not share capacity")
	assert.Equal(t, 1, notifications)
}

func TestRegistryCallbackPanicIsolated(t *testing.T) {
	r := newTestRegistry(100)

	r.Register(KindRatingUpdate, func(json.RawMessage) {
		panic("bad handler")
	})

	notified := 0
	r.Register(KindNotification, func(json.RawMessage) { notified++ })

	require.NotPanics(t, func() {
		r.Dispatch(KindRatingUpdate, payload(1))
	})

	r.Dispatch(KindNotification, payload(2))
	assert.Equal(t, 1, notified, "other kinds keep delivering after a panic")
}

func TestRegistryPanicDuringReplayDeliversRest(t *testing.T) {
	r := newTestRegistry(100)

	r.Dispatch(KindNotification, payload(1))
	r.Dispatch(KindNotification, payload(2))
	r.Dispatch(KindNotification, payload(3))

	attempts := 0
	require.NotPanics(t, func() {
		r.Register(KindNotification, func(json.RawMessage) {
			attempts++
			if attempts == 1 {
				panic("first replay fails")
			}
		})
	})

	assert.Equal(t, 3, attempts, "panic in one replay does not stop the rest")
}

func TestRegistryCallbackMayClear(t *testing.T) {
	r := newTestRegistry(100)

	calls := 0
	r.Register(KindNotification, func(json.RawMessage) {
		calls++
		r.Clear()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Dispatch(KindNotification, payload(1))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked by a callback clearing the registry")
	}
	require.Equal(t, 1, calls)

	// the callback wiped its own registration, so later events buffer
	r.Dispatch(KindNotification, payload(2))
	assert.Equal(t, 1, calls)
}

func TestRegistryClearDropsEverything(t *testing.T) {
	r := newTestRegistry(100)

	r.Dispatch(KindRatingUpdate, payload(1))
	r.Register(KindNotification, func(json.RawMessage) {
		t.Fatal("cleared callback must not fire")
	})

	r.Clear()

	r.Dispatch(KindNotification, payload(2))

	replayed := 0
	r.Register(KindRatingUpdate, func(json.RawMessage) { replayed++ })
	assert.Equal(t, 0, replayed, "no stale replay after clear")
}
