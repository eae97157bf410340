package meter

import (
	"sync"
)

// Buffer accumulates readings between flushes so the measurement store sees
// batched writes instead of one round trip per reading.
type Buffer struct {
	mu       sync.Mutex
	readings []Reading
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Add(r Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings = append(b.readings, r)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readings)
}

// Drain returns the buffered readings and resets the buffer. The caller owns
// the returned slice.
func (b *Buffer) Drain() []Reading {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.readings
	b.readings = nil
	return out
}
