// Package dimmer drives a triac from a mains zero-cross detector.
//
// The detector on common dimmer modules has a slow rising flank, so each
// physical crossing arrives as a burst of edges. Only the first edge of a
// burst (and the hundredth, to resynchronise after a missed release) is
// treated as the crossing. On an accepted crossing the triac is driven
// conducting at once and a one-shot timer releases it after a delay that
// shrinks as brightness grows.
package dimmer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/sweeney/triac-dimmer/internal/counter"
	"github.com/sweeney/triac-dimmer/internal/gpio"
	"github.com/sweeney/triac-dimmer/internal/timer"
)

var (
	// ErrInvalidBrightness is returned for brightness outside 0..100.
	ErrInvalidBrightness = errors.New("dimmer: brightness out of range")
	// ErrInvalidConfiguration is returned for unusable line or timing settings.
	ErrInvalidConfiguration = errors.New("dimmer: invalid configuration")
	// ErrHardwareUnavailable is returned when the zero-cross notifier or the
	// phase timer cannot be obtained.
	ErrHardwareUnavailable = errors.New("dimmer: hardware unavailable")
)

// ResyncEdge is the burst position accepted as a crossing when the phase
// timer has not reset the burst since the first accepted edge.
const ResyncEdge = 100

// Config describes one triac channel.
type Config struct {
	TriacLine     int
	ZeroCrossLine int
	// HalfCycle is the mains half-cycle period: 10ms at 50 Hz.
	HalfCycle time.Duration
	// ConductLevel is the raw triac line level that makes the triac conduct.
	ConductLevel bool
	// IndicatorLines mirror the triac drive; they are active-low and lit
	// while the triac conducts.
	IndicatorLines []int
}

// DefaultConfig returns the default lines for 50 Hz mains.
func DefaultConfig() Config {
	return Config{
		TriacLine:     gpio.DefaultTriacLine,
		ZeroCrossLine: gpio.DefaultZeroCrossLine,
		HalfCycle:     10 * time.Millisecond,
		ConductLevel:  true,
	}
}

func (c Config) validate() error {
	if c.HalfCycle < 100*time.Microsecond || c.HalfCycle > time.Second {
		return fmt.Errorf("%w: half-cycle %v out of range", ErrInvalidConfiguration, c.HalfCycle)
	}
	if c.TriacLine == c.ZeroCrossLine {
		return fmt.Errorf("%w: triac and zero-cross share line %d", ErrInvalidConfiguration, c.TriacLine)
	}
	for _, l := range c.IndicatorLines {
		if l == c.TriacLine || l == c.ZeroCrossLine {
			return fmt.Errorf("%w: indicator line %d already in use", ErrInvalidConfiguration, l)
		}
	}
	return nil
}

// PhaseDelay returns how long the triac stays driven after an accepted
// crossing: halfCycle − round(brightness × halfCycle / 100), in whole
// microseconds with add-half rounding.
func PhaseDelay(brightness int, halfCycle time.Duration) time.Duration {
	hc := halfCycle.Microseconds()
	on := (int64(brightness)*hc + 50) / 100
	return time.Duration(hc-on) * time.Microsecond
}

// Stats is a point-in-time view of the channel diagnostics.
type Stats struct {
	On          bool
	Brightness  int
	Conducting  bool
	Scheduled   bool
	Burst       uint32
	Edges       uint32
	Accepted    uint32
	Bypassed    uint32
	TimerFires  uint32
	WriteErrors uint32
}

// Channel is one triac output synchronised to a zero-cross input.
type Channel struct {
	cfg     Config
	lines   gpio.Lines
	oneshot timer.OneShot
	log     zerolog.Logger

	on         atomic.Bool
	brightness atomic.Int32

	// mu serialises the zero-cross and phase-timer handlers, which own
	// burst and conducting.
	mu         sync.Mutex
	burst      uint32
	conducting bool

	edges       counter.Saturating
	accepted    counter.Saturating
	bypassed    counter.Saturating
	fires       counter.Saturating
	writeErrors counter.Saturating
}

// New drives the triac off, then starts following the zero-cross line with
// the given initial power and brightness.
func New(lines gpio.Lines, timers timer.Source, cfg Config, on bool, brightness int, log zerolog.Logger) (*Channel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if brightness < 0 || brightness > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBrightness, brightness)
	}

	c := &Channel{
		cfg:   cfg,
		lines: lines,
		log: log.With().Str("component", "dimmer").
			Int("triac", cfg.TriacLine).Int("zero_cross", cfg.ZeroCrossLine).Logger(),
	}
	c.on.Store(on)
	c.brightness.Store(int32(brightness))

	ps, err := timers.NewOneShot(c.onPhaseTimer)
	if err != nil {
		c.log.Err(err).Msg("phase timer unavailable")
		return nil, fmt.Errorf("%w: phase timer: %w", ErrHardwareUnavailable, err)
	}
	c.oneshot = ps

	c.mu.Lock()
	c.drive(false)
	c.mu.Unlock()

	if err := lines.SetEdgeHandler(cfg.ZeroCrossLine, gpio.EdgeRising, c.onZeroCross); err != nil {
		c.log.Err(err).Msg("zero-cross notifier unavailable")
		return nil, fmt.Errorf("%w: zero-cross line %d: %w", ErrHardwareUnavailable, cfg.ZeroCrossLine, err)
	}

	c.log.Info().Bool("on", on).Int("brightness", brightness).
		Dur("half_cycle", cfg.HalfCycle).Msg("dimmer started")
	return c, nil
}

// SetPower sets the requested power state. It applies from the next
// zero-cross edge.
func (c *Channel) SetPower(on bool) {
	c.on.Store(on)
	c.log.Debug().Bool("on", on).Msg("power set")
}

// SetBrightness sets brightness in percent. It applies from the next
// zero-cross edge. Out-of-range values are rejected and leave the current
// brightness in place.
func (c *Channel) SetBrightness(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidBrightness, pct)
	}
	c.brightness.Store(int32(pct))
	c.log.Debug().Int("brightness", pct).Msg("brightness set")
	return nil
}

// Power returns the requested power state.
func (c *Channel) Power() bool { return c.on.Load() }

// Brightness returns the requested brightness in percent.
func (c *Channel) Brightness() int { return int(c.brightness.Load()) }

// Stats returns the current diagnostics.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	burst, conducting := c.burst, c.conducting
	c.mu.Unlock()
	return Stats{
		On:          c.on.Load(),
		Brightness:  int(c.brightness.Load()),
		Conducting:  conducting,
		Scheduled:   c.oneshot.Armed(),
		Burst:       burst,
		Edges:       c.edges.Load(),
		Accepted:    c.accepted.Load(),
		Bypassed:    c.bypassed.Load(),
		TimerFires:  c.fires.Load(),
		WriteErrors: c.writeErrors.Load(),
	}
}

// Close detaches the zero-cross handler and leaves the triac off.
func (c *Channel) Close() error {
	err := c.lines.SetEdgeHandler(c.cfg.ZeroCrossLine, gpio.EdgeRising, nil)
	c.mu.Lock()
	c.drive(false)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("detach zero-cross line %d: %w", c.cfg.ZeroCrossLine, err)
	}
	return nil
}

// onZeroCross runs on every rising edge of the detector, spurious or not.
func (c *Channel) onZeroCross() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.edges.Inc()
	on, b := c.on.Load(), c.brightness.Load()

	// The extremes need no phase timing.
	if on && b >= 100 {
		c.bypassed.Inc()
		c.drive(true)
		return
	}
	if !on || b <= 0 {
		c.bypassed.Inc()
		c.drive(false)
		return
	}

	c.burst = counter.Inc32(c.burst)
	if c.burst != 1 && c.burst != ResyncEdge {
		return
	}
	c.accepted.Inc()
	c.drive(true)
	c.oneshot.Arm(PhaseDelay(int(b), c.cfg.HalfCycle))
}

// onPhaseTimer releases the triac and re-opens the gate for the next burst.
func (c *Channel) onPhaseTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fires.Inc()
	c.drive(false)
	c.burst = 0
}

// drive sets the triac and indicator lines. Caller holds c.mu.
func (c *Channel) drive(conducting bool) {
	c.conducting = conducting
	raw := conducting == c.cfg.ConductLevel
	if err := c.lines.SetLevel(c.cfg.TriacLine, raw); err != nil {
		c.writeErrors.Inc()
		c.log.Debug().Err(err).Msg("triac write failed")
	}
	for _, l := range c.cfg.IndicatorLines {
		if err := c.lines.SetLevel(l, !conducting); err != nil {
			c.writeErrors.Inc()
		}
	}
}
