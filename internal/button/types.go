// Package button debounces push-button lines with an integrating sampler and
// classifies how long the debounced press lasted into gesture events.
//
// Edge notifications only wake the sampler; every debounce decision is made
// on a periodic tick that reads the line, so a burst of contact bounce costs
// one timer start and nothing else.
package button

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyRegistered is returned when a line is registered twice.
	ErrAlreadyRegistered = errors.New("button: line already registered")
	// ErrInvalidConfiguration is returned for unusable sampling parameters.
	ErrInvalidConfiguration = errors.New("button: invalid configuration")
	// ErrHardwareUnavailable is returned when the edge notifier or the
	// sampling timer cannot be obtained.
	ErrHardwareUnavailable = errors.New("button: hardware unavailable")
)

// Config sets the sampling rate and debounce window shared by all buttons of
// a Controller.
type Config struct {
	// SampleRate is the tick frequency in Hz while a sampler is running.
	SampleRate int
	// DebounceWindow is how long a level must hold before it is accepted.
	DebounceWindow time.Duration
}

// DefaultConfig samples at 100 Hz with a 100 ms window (integrator bound 10).
func DefaultConfig() Config {
	return Config{
		SampleRate:     100,
		DebounceWindow: 100 * time.Millisecond,
	}
}

// IntegratorMax returns round(SampleRate × DebounceWindow), the number of
// consistent samples needed to flip the debounced state.
func (c Config) IntegratorMax() int {
	n := int64(c.SampleRate)*int64(c.DebounceWindow) + int64(time.Second)/2
	return int(n / int64(time.Second))
}

// TickPeriod returns the sampling period. Validate only accepts rates that
// divide 1 kHz, so the period is a whole number of milliseconds and rate
// ticks span exactly one second.
func (c Config) TickPeriod() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(1000/c.SampleRate) * time.Millisecond
}

// Validate reports ErrInvalidConfiguration for a rate outside 1..1000 Hz or
// one that does not divide 1 kHz, a non-positive window, or a window shorter
// than one sample.
func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.SampleRate > 1000 {
		return fmt.Errorf("%w: sample rate %d Hz out of range (1..1000)", ErrInvalidConfiguration, c.SampleRate)
	}
	if 1000%c.SampleRate != 0 {
		return fmt.Errorf("%w: sample rate %d Hz does not divide 1000 Hz", ErrInvalidConfiguration, c.SampleRate)
	}
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("%w: debounce window %v must be positive", ErrInvalidConfiguration, c.DebounceWindow)
	}
	if c.IntegratorMax() < 1 {
		return fmt.Errorf("%w: debounce window %v shorter than one sample at %d Hz",
			ErrInvalidConfiguration, c.DebounceWindow, c.SampleRate)
	}
	return nil
}

// Kind classifies a gesture event.
type Kind uint8

const (
	// KindPressed is emitted on the tick the debounced state becomes pressed.
	KindPressed Kind = iota + 1
	// KindHeld is emitted once per second of continuous hold.
	KindHeld
	// KindReleased is emitted on the tick the debounced state becomes released.
	KindReleased
)

func (k Kind) String() string {
	switch k {
	case KindPressed:
		return "PRESSED"
	case KindHeld:
		return "HELD"
	case KindReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// Event is a debounced gesture on one line.
type Event struct {
	Line int
	Kind Kind
	// Pressed is the debounced state after this tick.
	Pressed bool
	// Held is how long the button has been held: zero for KindPressed,
	// the total hold for KindReleased.
	Held time.Duration
}

// Handler receives gesture events. It runs on the sampling tick and should
// return promptly.
type Handler func(Event)

// Stats is a point-in-time view of one registered button.
type Stats struct {
	Line     int
	Edges    uint32
	Sampling bool
}
