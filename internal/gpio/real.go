//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// RealConfig selects the GPIO chip and input biasing.
type RealConfig struct {
	Chip string
	// PullUp lists input lines requested with the internal pull-up enabled.
	PullUp []int
}

// Real drives lines on actual hardware using the Linux GPIO character device.
// Lines are requested lazily on first use and re-requested when their
// direction or edge detection changes.
type Real struct {
	chip   *gpiocdev.Chip
	pullUp map[int]bool
	log    zerolog.Logger

	mu    sync.Mutex
	lines map[int]*realLine
}

type realLine struct {
	line    *gpiocdev.Line
	output  bool
	watched bool
}

// NewReal opens the configured GPIO chip.
func NewReal(cfg RealConfig, log zerolog.Logger) (*Real, error) {
	name := cfg.Chip
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer("triac-dimmer"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	pu := make(map[int]bool, len(cfg.PullUp))
	for _, l := range cfg.PullUp {
		pu[l] = true
	}
	return &Real{
		chip:   chip,
		pullUp: pu,
		log:    log.With().Str("component", "gpio").Logger(),
		lines:  map[int]*realLine{},
	}, nil
}

func (r *Real) inputOptions() []gpiocdev.LineReqOption {
	return []gpiocdev.LineReqOption{gpiocdev.AsInput}
}

func (r *Real) bias(line int) gpiocdev.LineReqOption {
	if r.pullUp[line] {
		return gpiocdev.WithPullUp
	}
	return gpiocdev.WithBiasDisabled
}

// detach removes line from the request table and returns it for closing.
// Caller holds r.mu and must close the result only after unlocking: closing a
// watched line waits for its event goroutine, whose handler may itself be
// blocked on r.mu.
func (r *Real) detach(line int) *realLine {
	rl, ok := r.lines[line]
	if !ok {
		return nil
	}
	delete(r.lines, line)
	return rl
}

func (r *Real) closeLine(line int, rl *realLine) {
	if rl == nil {
		return
	}
	if err := rl.line.Close(); err != nil {
		r.log.Warn().Err(err).Int("line", line).Msg("close line")
	}
}

// Level returns the raw level of line, requesting it as an input if needed.
func (r *Real) Level(line int) (bool, error) {
	r.mu.Lock()
	rl, ok := r.lines[line]
	if !ok {
		opts := append(r.inputOptions(), r.bias(line))
		l, err := r.chip.RequestLine(line, opts...)
		if err != nil {
			r.mu.Unlock()
			return false, fmt.Errorf("request input line %d: %w", line, err)
		}
		rl = &realLine{line: l}
		r.lines[line] = rl
	}
	r.mu.Unlock()

	v, err := rl.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", line, err)
	}
	return v != 0, nil
}

// SetLevel drives line, requesting it as an output if needed.
func (r *Real) SetLevel(line int, level bool) error {
	v := 0
	if level {
		v = 1
	}

	r.mu.Lock()
	rl, ok := r.lines[line]
	if ok && !rl.output {
		old := r.detach(line)
		r.mu.Unlock()
		r.closeLine(line, old)
		r.mu.Lock()
		rl, ok = r.lines[line]
	}
	if !ok {
		l, err := r.chip.RequestLine(line, gpiocdev.AsOutput(v))
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("request output line %d: %w", line, err)
		}
		r.lines[line] = &realLine{line: l, output: true}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := rl.line.SetValue(v); err != nil {
		return fmt.Errorf("write line %d: %w", line, err)
	}
	return nil
}

// SetEdgeHandler re-requests line with edge detection and dispatches every
// matching event to handler. A nil handler releases the line.
func (r *Real) SetEdgeHandler(line int, edge Edge, handler func()) error {
	r.mu.Lock()
	old := r.detach(line)
	r.mu.Unlock()
	r.closeLine(line, old)
	if handler == nil {
		return nil
	}

	var eo gpiocdev.LineReqOption
	switch edge {
	case EdgeRising:
		eo = gpiocdev.WithRisingEdge
	case EdgeFalling:
		eo = gpiocdev.WithFallingEdge
	case EdgeBoth:
		eo = gpiocdev.WithBothEdges
	default:
		return fmt.Errorf("watch line %d: unsupported edge %s", line, edge)
	}

	opts := append(r.inputOptions(), r.bias(line), eo,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }))
	l, err := r.chip.RequestLine(line, opts...)
	if err != nil {
		return fmt.Errorf("watch line %d (%s): %w", line, edge, err)
	}
	r.mu.Lock()
	prev := r.lines[line]
	r.lines[line] = &realLine{line: l, watched: true}
	r.mu.Unlock()
	r.closeLine(line, prev)
	r.log.Debug().Int("line", line).Str("edge", edge.String()).Msg("edge handler installed")
	return nil
}

// Close releases GPIO resources.
// Output lines are reconfigured to inputs with pull-down before closing so the
// triac and relay drivers are left undriven, matching Pi boot defaults.
func (r *Real) Close() error {
	r.mu.Lock()
	lines := r.lines
	r.lines = map[int]*realLine{}
	r.mu.Unlock()

	var errs []error
	for n, rl := range lines {
		if rl.output {
			if err := rl.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure line %d: %w", n, err))
			}
		}
		if err := rl.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", n, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
