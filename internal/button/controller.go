package button

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sweeney/triac-dimmer/internal/gpio"
	"github.com/sweeney/triac-dimmer/internal/timer"
)

// Controller owns the registry of monitored buttons, keyed by line.
type Controller struct {
	lines  gpio.Lines
	timers timer.Source
	cfg    Config
	log    zerolog.Logger

	mu      sync.Mutex
	buttons map[int]*entry
}

type entry struct {
	gate    *edgeGate
	sampler *sampler
}

// NewController validates cfg and returns an empty registry.
func NewController(lines gpio.Lines, timers timer.Source, cfg Config, log zerolog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		lines:   lines,
		timers:  timers,
		cfg:     cfg,
		log:     log.With().Str("component", "button").Logger(),
		buttons: map[int]*entry{},
	}, nil
}

// Handle refers to one registered button.
type Handle struct {
	c    *Controller
	line int
}

// Line returns the monitored line.
func (h *Handle) Line() int { return h.line }

// Close unregisters the button.
func (h *Handle) Close() { h.c.Unregister(h.line) }

// Register starts monitoring line. activeLevel is the raw level that means
// pressed (false for a button wired to ground with a pull-up).
// A line already at its active level starts the sampler immediately.
func (c *Controller) Register(line int, activeLevel bool, h Handler) (*Handle, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler for line %d", ErrInvalidConfiguration, line)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.buttons[line]; ok {
		return nil, fmt.Errorf("%w: line %d", ErrAlreadyRegistered, line)
	}

	log := c.log.With().Int("line", line).Logger()
	s := &sampler{
		line:        line,
		activeLevel: activeLevel,
		max:         c.cfg.IntegratorMax(),
		rate:        uint32(c.cfg.SampleRate),
		period:      c.cfg.TickPeriod(),
		lines:       c.lines,
		emit:        h,
		log:         log,
	}
	p, err := c.timers.NewPeriodic(s.period, s.tick)
	if err != nil {
		log.Err(err).Msg("sampling timer unavailable")
		return nil, fmt.Errorf("%w: sampling timer for line %d: %w", ErrHardwareUnavailable, line, err)
	}
	g := &edgeGate{periodic: p}
	s.gate = g

	if err := c.lines.SetEdgeHandler(line, gpio.EdgeBoth, g.onEdge); err != nil {
		log.Err(err).Msg("edge notifier unavailable")
		return nil, fmt.Errorf("%w: edge notifier for line %d: %w", ErrHardwareUnavailable, line, err)
	}
	c.buttons[line] = &entry{gate: g, sampler: s}

	log.Info().Bool("active_level", activeLevel).Int("integrator_max", s.max).
		Dur("period", s.period).Msg("button registered")

	if level, err := c.lines.Level(line); err == nil && level == activeLevel {
		g.wake()
	}
	return &Handle{c: c, line: line}, nil
}

// Unregister stops monitoring line and detaches its edge handler.
// Unknown lines are ignored.
func (c *Controller) Unregister(line int) {
	c.mu.Lock()
	e, ok := c.buttons[line]
	if ok {
		delete(c.buttons, line)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := c.lines.SetEdgeHandler(line, gpio.EdgeBoth, nil); err != nil {
		c.log.Warn().Err(err).Int("line", line).Msg("detach edge handler")
	}
	e.gate.closed.Store(true)
	e.gate.periodic.Stop()
	e.gate.active.Store(false)
	c.log.Info().Int("line", line).Msg("button unregistered")
}

// Len returns the number of registered buttons.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buttons)
}

// Lines returns the registered lines in ascending order.
func (c *Controller) Lines() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.buttons))
	for l := range c.buttons {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Stats returns edge and sampler state for line.
func (c *Controller) Stats(line int) (Stats, bool) {
	c.mu.Lock()
	e, ok := c.buttons[line]
	c.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Line:     line,
		Edges:    e.gate.edges.Load(),
		Sampling: e.gate.active.Load(),
	}, true
}

// Close unregisters every button.
func (c *Controller) Close() {
	for _, l := range c.Lines() {
		c.Unregister(l)
	}
}
