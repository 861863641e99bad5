// Package indicator drives the relay and status LED that accompany the
// dimmer: the relay follows the power state and the LED flashes on power
// changes and blinks on identify requests.
package indicator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/triac-dimmer/internal/gpio"
)

// Disabled marks an unused line in Config.
const Disabled = -1

const (
	flashOn    = 250 * time.Millisecond
	blinkOn    = 100 * time.Millisecond
	blinkOff   = 100 * time.Millisecond
	blinkPause = 250 * time.Millisecond
)

// Config selects the relay and LED lines. The relay is active-high and the
// LED active-low.
type Config struct {
	RelayLine int
	LEDLine   int
}

// DefaultConfig returns the default relay and LED lines.
func DefaultConfig() Config {
	return Config{RelayLine: gpio.DefaultRelayLine, LEDLine: gpio.DefaultLEDLine}
}

type step struct {
	lit bool
	d   time.Duration
}

// Indicator owns the relay and LED lines. LED patterns run on their own
// goroutine, one at a time, and stop early when their context is cancelled.
type Indicator struct {
	lines gpio.Lines
	cfg   Config
	log   zerolog.Logger
	sleep func(context.Context, time.Duration) error

	mu sync.Mutex // held while a pattern plays
	wg sync.WaitGroup
}

// New creates an Indicator and turns the LED off.
func New(lines gpio.Lines, cfg Config, log zerolog.Logger) *Indicator {
	in := &Indicator{
		lines: lines,
		cfg:   cfg,
		log:   log.With().Str("component", "indicator").Logger(),
		sleep: sleepCtx,
	}
	in.setLED(false)
	return in
}

// SetRelay drives the relay to follow the power state and flashes the LED.
func (in *Indicator) SetRelay(ctx context.Context, on bool) error {
	if in.cfg.RelayLine != Disabled {
		if err := in.lines.SetLevel(in.cfg.RelayLine, on); err != nil {
			return fmt.Errorf("relay line %d: %w", in.cfg.RelayLine, err)
		}
	}
	in.log.Info().Bool("on", on).Msg("relay set")
	in.play(ctx, "flash", []step{{true, flashOn}})
	return nil
}

// Identify blinks the LED in groups of two, blinks times.
func (in *Indicator) Identify(ctx context.Context, blinks int) {
	steps := make([]step, 0, blinks*4)
	for i := 0; i < blinks; i++ {
		steps = append(steps,
			step{true, blinkOn}, step{false, blinkOff},
			step{true, blinkOn}, step{false, blinkOff + blinkPause})
	}
	in.log.Info().Int("blinks", blinks).Msg("identify")
	in.play(ctx, "identify", steps)
}

// Wait blocks until every started pattern has finished.
func (in *Indicator) Wait() {
	in.wg.Wait()
}

func (in *Indicator) play(ctx context.Context, name string, steps []step) {
	if in.cfg.LEDLine == Disabled || len(steps) == 0 {
		return
	}
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.mu.Lock()
		defer in.mu.Unlock()
		defer in.setLED(false)
		for _, s := range steps {
			in.setLED(s.lit)
			if err := in.sleep(ctx, s.d); err != nil {
				in.log.Debug().Str("pattern", name).Err(err).Msg("pattern cancelled")
				return
			}
		}
	}()
}

func (in *Indicator) setLED(lit bool) {
	if in.cfg.LEDLine == Disabled {
		return
	}
	if err := in.lines.SetLevel(in.cfg.LEDLine, !lit); err != nil {
		in.log.Debug().Err(err).Msg("led write failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
