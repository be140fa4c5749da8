package tui

import (
	"sync"
	"sync/atomic"

	"github.com/sermux/sermux"
)

// Relay buffers tap events between the bridge's goroutines and the UI
// loop. Tap callbacks must never block, so a full buffer drops the event
// and counts it instead.
type Relay struct {
	ch      chan sermux.TapEvent
	dropped atomic.Uint64
	once    sync.Once
}

func NewRelay(capacity int) *Relay {
	if capacity < 1 {
		capacity = 64
	}
	return &Relay{ch: make(chan sermux.TapEvent, capacity)}
}

// Tap returns the callback to register with the bridge.
func (r *Relay) Tap() sermux.TapFunc {
	return func(ev sermux.TapEvent) {
		select {
		case r.ch <- ev:
		default:
			r.dropped.Add(1)
		}
	}
}

// Events is the UI side of the relay. The channel closes with the relay.
func (r *Relay) Events() <-chan sermux.TapEvent { return r.ch }

// Dropped reports how many events the UI was too slow to take.
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }

// Close ends the event stream. The bridge must be stopped first so no
// tap callback can race the close.
func (r *Relay) Close() {
	r.once.Do(func() { close(r.ch) })
}
