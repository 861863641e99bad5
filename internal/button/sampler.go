package button

import (
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/sweeney/triac-dimmer/internal/counter"
	"github.com/sweeney/triac-dimmer/internal/gpio"
	"github.com/sweeney/triac-dimmer/internal/timer"
)

// edgeGate is the only part of a button the edge handler can reach. It owns
// the sampler-active flag and the periodic handle, never the debounce state.
type edgeGate struct {
	active   atomic.Bool
	closed   atomic.Bool
	periodic timer.Periodic
	edges    counter.Saturating
}

// onEdge runs in edge-notification context on every raw transition.
func (g *edgeGate) onEdge() {
	g.edges.Inc()
	g.wake()
}

// wake starts the sampler unless it is already running.
func (g *edgeGate) wake() {
	if g.closed.Load() {
		return
	}
	if g.active.CompareAndSwap(false, true) {
		g.periodic.Start()
	}
}

// sampler holds the integrating debounce and hold-duration state of one
// button. Its fields are touched only from tick.
type sampler struct {
	line        int
	activeLevel bool
	max         int
	rate        uint32
	period      time.Duration

	lines gpio.Lines
	gate  *edgeGate
	emit  Handler
	log   zerolog.Logger

	integrator int
	pressed    bool
	held       uint32
	readErrors uint32
}

// tick advances the integrator by one sample and emits at most one event.
func (s *sampler) tick() {
	if s.gate.closed.Load() {
		return
	}
	level, err := s.lines.Level(s.line)
	if err != nil {
		s.readErrors = counter.Inc32(s.readErrors)
		s.log.Debug().Err(err).Uint32("read_errors", s.readErrors).Msg("sample skipped")
		return
	}
	samplePressed := level == s.activeLevel

	// Integrating debounce (Kuhn): the state only flips at a bound.
	changed := false
	if !samplePressed {
		if s.integrator > 0 {
			s.integrator--
			if s.integrator == 0 && s.pressed {
				s.pressed = false
				changed = true
			}
		}
	} else if s.integrator < s.max {
		s.integrator++
		if s.integrator == s.max && !s.pressed {
			s.pressed = true
			changed = true
		}
	}

	switch {
	case changed && s.pressed:
		s.held = 0
		s.send(KindPressed)
	case changed:
		s.send(KindReleased)
		s.held = 0
	case s.pressed:
		s.held = counter.Inc32(s.held)
		if s.held%s.rate == 0 {
			s.send(KindHeld)
		}
	}

	if !s.pressed && s.integrator == 0 {
		s.park()
	}
}

func (s *sampler) send(k Kind) {
	ev := Event{
		Line:    s.line,
		Kind:    k,
		Pressed: s.pressed,
		Held:    time.Duration(s.held) * s.period,
	}
	s.log.Debug().Str("kind", k.String()).Dur("held", ev.Held).Msg("button event")
	s.emit(ev)
}

// park stops the tick once the button has settled released.
func (s *sampler) park() {
	s.gate.periodic.Stop()
	s.gate.active.Store(false)

	// An edge landing between Stop and Store saw the flag still set and did
	// nothing. Re-read the line so a press starting in that window is kept.
	if level, err := s.lines.Level(s.line); err == nil && level == s.activeLevel {
		s.gate.wake()
	}
}
