// Package counter provides saturating counters shared between edge-handler
// and application goroutines.
package counter

import (
	"math"

	"go.uber.org/atomic"
)

// Saturating is a uint32 counter that sticks at math.MaxUint32 instead of
// wrapping. The zero value is ready to use.
type Saturating struct {
	v atomic.Uint32
}

// Inc adds one unless the counter is saturated and returns the new value.
func (c *Saturating) Inc() uint32 {
	for {
		old := c.v.Load()
		if old == math.MaxUint32 {
			return old
		}
		if c.v.CompareAndSwap(old, old+1) {
			return old + 1
		}
	}
}

// Load returns the current value.
func (c *Saturating) Load() uint32 { return c.v.Load() }

// Reset sets the counter back to zero.
func (c *Saturating) Reset() { c.v.Store(0) }

// Inc32 adds one to v unless it is already math.MaxUint32.
// For counters owned by a single goroutine.
func Inc32(v uint32) uint32 {
	if v == math.MaxUint32 {
		return v
	}
	return v + 1
}
