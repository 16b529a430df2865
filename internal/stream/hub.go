// Package stream fans the engine's master mix out to listeners over HTTP
// (MP3) and WebRTC (Opus).
package stream

import (
	"context"
	"sync"
)

// DefaultBuffer is each subscriber's frame buffer: ~3 seconds at 20ms/frame.
const DefaultBuffer = 150

// Hub fans out PCM frames from the engine to N subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// Subscriber receives master-mix frames from the hub.
type Subscriber struct {
	Frames chan []int16
	done   chan struct{}
}

// Done is closed when the subscriber is removed from the hub.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber with the given frame buffer; buffer <= 0
// uses DefaultBuffer.
func (h *Hub) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscriber{
		Frames: make(chan []int16, buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and signals it to stop. Idempotent, so
// the reader and a disconnect handler can both call it.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, present := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if present {
		close(s.done)
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Run reads frames from source and fans out until ctx is cancelled or the
// source closes. Slow subscribers get frames dropped rather than stalling
// the broadcast.
func (h *Hub) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			h.mu.RLock()
			for s := range h.subs {
				select {
				case s.Frames <- frame:
				default:
					// subscriber too slow, drop the frame
				}
			}
			h.mu.RUnlock()
		}
	}
}
