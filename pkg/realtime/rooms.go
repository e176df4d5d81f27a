package realtime

import (
	"sync"
	"time"
)

// roomTracker records the most recently joined room so membership can be
// re-asserted after a reconnect. Hub-side membership is tied to the
// physical connection and does not survive a reconnect.
type roomTracker struct {
	mu       sync.RWMutex
	roomID   string
	joinedAt time.Time
}

func newRoomTracker() *roomTracker {
	return &roomTracker{}
}

func (t *roomTracker) Record(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roomID = roomID
	t.joinedAt = time.Now()
}

func (t *roomTracker) Current() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roomID, t.roomID != ""
}

func (t *roomTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roomID = ""
	t.joinedAt = time.Time{}
}
