// Package timer provides the periodic tick and one-shot timer primitives the
// sampling and phase-control code is driven by.
package timer

import "time"

// Periodic invokes its handler once per period while started.
// Start and Stop are idempotent and may be called from the handler itself.
type Periodic interface {
	Start()
	Stop()
}

// OneShot invokes its handler once after an armed delay, then idles until
// re-armed. Arming while armed replaces the pending expiry.
type OneShot interface {
	Arm(delay time.Duration)
	Armed() bool
}

// Source creates timers. Creation fails when the underlying timer resource
// cannot be obtained.
type Source interface {
	NewPeriodic(period time.Duration, fn func()) (Periodic, error)
	NewOneShot(fn func()) (OneShot, error)
}
