package bridge

import (
	"sync"
	"sync/atomic"
)

// Registry aggregates counters across all bridges for metrics scraping.
// All methods are safe for concurrent use and safe on a nil receiver,
// so bridges can run without one.
type Registry struct {
	active         atomic.Int64
	framesInbound  atomic.Int64
	framesOutbound atomic.Int64
	framesDropped  atomic.Int64

	mu           sync.Mutex
	terminations map[Cause]int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{terminations: make(map[Cause]int64)}
}

func (r *Registry) bridgeStarted() {
	if r == nil {
		return
	}
	r.active.Add(1)
}

func (r *Registry) bridgeStopped() {
	if r == nil {
		return
	}
	r.active.Add(-1)
}

func (r *Registry) recordInbound() {
	if r == nil {
		return
	}
	r.framesInbound.Add(1)
}

func (r *Registry) recordOutbound() {
	if r == nil {
		return
	}
	r.framesOutbound.Add(1)
}

func (r *Registry) recordDropped() {
	if r == nil {
		return
	}
	r.framesDropped.Add(1)
}

func (r *Registry) recordTermination(cause Cause) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.terminations[cause]++
	r.mu.Unlock()
}

// ActiveBridges returns the number of bridges currently streaming.
func (r *Registry) ActiveBridges() int64 {
	return r.active.Load()
}

// FrameTotals returns cumulative relayed frame counts: caller to
// engine, engine to caller, and engine frames dropped for want of a
// stream identifier.
func (r *Registry) FrameTotals() (inbound, outbound, dropped int64) {
	return r.framesInbound.Load(), r.framesOutbound.Load(), r.framesDropped.Load()
}

// TerminationCounts returns cumulative bridge terminations by cause.
func (r *Registry) TerminationCounts() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64, len(r.terminations))
	for cause, n := range r.terminations {
		counts[string(cause)] = n
	}
	return counts
}
