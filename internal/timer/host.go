package timer

import (
	"errors"
	"sync"
	"time"
)

// Host implements Source with the Go runtime timers.
type Host struct{}

// NewHost returns a Source backed by time.Ticker and time.AfterFunc.
func NewHost() *Host {
	return &Host{}
}

// NewPeriodic returns a stopped periodic timer.
func (Host) NewPeriodic(period time.Duration, fn func()) (Periodic, error) {
	if period <= 0 {
		return nil, errors.New("timer: period must be positive")
	}
	if fn == nil {
		return nil, errors.New("timer: nil handler")
	}
	return &hostPeriodic{period: period, fn: fn}, nil
}

// NewOneShot returns an idle one-shot timer.
func (Host) NewOneShot(fn func()) (OneShot, error) {
	if fn == nil {
		return nil, errors.New("timer: nil handler")
	}
	return &hostOneShot{fn: fn}, nil
}

type hostPeriodic struct {
	period time.Duration
	fn     func()

	mu   sync.Mutex
	stop chan struct{}

	// run keeps handler invocations from overlapping across a Stop/Start
	// issued from inside the handler.
	run sync.Mutex
}

func (p *hostPeriodic) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	go p.loop(p.stop)
}

// Stop does not wait for the loop to exit so it is safe from inside fn.
func (p *hostPeriodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
}

func (p *hostPeriodic) loop(stop <-chan struct{}) {
	t := time.NewTicker(p.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			select {
			case <-stop:
				return
			default:
			}
			p.run.Lock()
			p.fn()
			p.run.Unlock()
		}
	}
}

type hostOneShot struct {
	fn func()

	mu    sync.Mutex
	t     *time.Timer
	gen   uint64
	armed bool
}

func (o *hostOneShot) Arm(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.t != nil {
		o.t.Stop()
	}
	o.gen++
	gen := o.gen
	o.armed = true
	o.t = time.AfterFunc(delay, func() { o.fire(gen) })
}

// fire drops expiries superseded by a later Arm.
func (o *hostOneShot) fire(gen uint64) {
	o.mu.Lock()
	if gen != o.gen || !o.armed {
		o.mu.Unlock()
		return
	}
	o.armed = false
	o.mu.Unlock()
	o.fn()
}

func (o *hostOneShot) Armed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.armed
}
