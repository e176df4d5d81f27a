package realtime

import (
	"encoding/json"
)

// ringBuffer is a fixed-capacity FIFO of event payloads. Pushing into a
// full buffer evicts the oldest entry.
type ringBuffer struct {
	entries []json.RawMessage
	head    int
	size    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		entries: make([]json.RawMessage, capacity),
	}
}

func (b *ringBuffer) Len() int {
	return b.size
}

func (b *ringBuffer) Push(payload json.RawMessage) {
	capacity := len(b.entries)

	if b.size == capacity {
		// full: overwrite the oldest entry
		b.entries[b.head] = payload
		b.head = (b.head + 1) % capacity
		return
	}

	b.entries[(b.head+b.size)%capacity] = payload
	b.size++
}

// Drain returns all buffered payloads in arrival order and empties the buffer
func (b *ringBuffer) Drain() []json.RawMessage {
	if b.size == 0 {
		return nil
	}

	capacity := len(b.entries)
	drained := make([]json.RawMessage, b.size)
	for i := range drained {
		drained[i] = b.entries[(b.head+i)%capacity]
	}

	b.entries = make([]json.RawMessage, capacity)
	b.head = 0
	b.size = 0

	return drained
}
