package timer

import (
	"sync"
	"time"
)

// FakeSource records every timer it creates so tests can drive them by hand.
type FakeSource struct {
	// PeriodicError, if set, is returned by NewPeriodic.
	PeriodicError error

	// OneShotError, if set, is returned by NewOneShot.
	OneShotError error

	mu        sync.Mutex
	periodics []*FakePeriodic
	oneShots  []*FakeOneShot
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

func (s *FakeSource) NewPeriodic(period time.Duration, fn func()) (Periodic, error) {
	if s.PeriodicError != nil {
		return nil, s.PeriodicError
	}
	p := &FakePeriodic{Period: period, fn: fn}
	s.mu.Lock()
	s.periodics = append(s.periodics, p)
	s.mu.Unlock()
	return p, nil
}

func (s *FakeSource) NewOneShot(fn func()) (OneShot, error) {
	if s.OneShotError != nil {
		return nil, s.OneShotError
	}
	o := &FakeOneShot{fn: fn}
	s.mu.Lock()
	s.oneShots = append(s.oneShots, o)
	s.mu.Unlock()
	return o, nil
}

// Periodics returns the periodic timers created so far, oldest first.
func (s *FakeSource) Periodics() []*FakePeriodic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakePeriodic(nil), s.periodics...)
}

// OneShots returns the one-shot timers created so far, oldest first.
func (s *FakeSource) OneShots() []*FakeOneShot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeOneShot(nil), s.oneShots...)
}

// FakePeriodic is a periodic timer advanced explicitly with Tick.
type FakePeriodic struct {
	Period time.Duration

	fn      func()
	running bool
	starts  int
	stops   int
}

func (p *FakePeriodic) Start() {
	if p.running {
		return
	}
	p.running = true
	p.starts++
}

func (p *FakePeriodic) Stop() {
	if !p.running {
		return
	}
	p.running = false
	p.stops++
}

// Running reports whether the timer is started.
func (p *FakePeriodic) Running() bool { return p.running }

// Starts returns how many times the timer went from stopped to started.
func (p *FakePeriodic) Starts() int { return p.starts }

// Stops returns how many times the timer went from started to stopped.
func (p *FakePeriodic) Stops() int { return p.stops }

// Tick runs the handler once if the timer is started and reports whether it ran.
func (p *FakePeriodic) Tick() bool {
	if !p.running {
		return false
	}
	p.fn()
	return true
}

// TickN calls Tick n times and returns how many ticks ran.
func (p *FakePeriodic) TickN(n int) int {
	ran := 0
	for i := 0; i < n; i++ {
		if p.Tick() {
			ran++
		}
	}
	return ran
}

// FakeOneShot is a one-shot timer expired explicitly with Fire.
type FakeOneShot struct {
	fn    func()
	armed bool
	arms  []time.Duration
}

func (o *FakeOneShot) Arm(delay time.Duration) {
	o.armed = true
	o.arms = append(o.arms, delay)
}

func (o *FakeOneShot) Armed() bool { return o.armed }

// Arms returns every delay the timer was armed with, in order.
func (o *FakeOneShot) Arms() []time.Duration {
	return append([]time.Duration(nil), o.arms...)
}

// Fire expires the timer if armed and reports whether the handler ran.
func (o *FakeOneShot) Fire() bool {
	if !o.armed {
		return false
	}
	o.armed = false
	o.fn()
	return true
}
