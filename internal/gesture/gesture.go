// Package gesture maps debounced button events to device actions.
package gesture

import (
	"time"

	"github.com/sweeney/triac-dimmer/internal/button"
)

// Kind identifies what the device should do in response to a gesture.
type Kind uint8

const (
	None Kind = iota
	Toggle
	RequestUpdate
	ResetAccessory
	ResetAll
	Identify
)

func (k Kind) String() string {
	switch k {
	case None:
		return "NONE"
	case Toggle:
		return "TOGGLE"
	case RequestUpdate:
		return "REQUEST_UPDATE"
	case ResetAccessory:
		return "RESET_ACCESSORY"
	case ResetAll:
		return "RESET_ALL"
	case Identify:
		return "IDENTIFY"
	default:
		return "UNKNOWN"
	}
}

// Action is the result of classifying one button event.
type Action struct {
	Kind Kind
	// Blinks is the number of identify blinks, set only for Identify.
	Blinks int
	// Held is the press duration that produced the action.
	Held time.Duration
}

// Policy holds the release windows. A release shorter than ToggleBelow
// toggles power; releases in (UpdateAfter, AccessoryAfter] request an
// update, in (AccessoryAfter, AllAfter] reset the accessory pairing, and
// beyond AllAfter reset everything. Reaching each window boundary while
// still held blinks 2, 3 or 4 times.
type Policy struct {
	ToggleBelow    time.Duration
	UpdateAfter    time.Duration
	AccessoryAfter time.Duration
	AllAfter       time.Duration
}

// DefaultPolicy returns the 1s / 2s / 5s / 10s windows.
func DefaultPolicy() Policy {
	return Policy{
		ToggleBelow:    time.Second,
		UpdateAfter:    2 * time.Second,
		AccessoryAfter: 5 * time.Second,
		AllAfter:       10 * time.Second,
	}
}

// Classify returns the action for e. Pressed events and releases between
// the toggle and update windows produce None.
func (p Policy) Classify(e button.Event) Action {
	switch e.Kind {
	case button.KindHeld:
		switch e.Held {
		case p.UpdateAfter:
			return Action{Kind: Identify, Blinks: 2, Held: e.Held}
		case p.AccessoryAfter:
			return Action{Kind: Identify, Blinks: 3, Held: e.Held}
		case p.AllAfter:
			return Action{Kind: Identify, Blinks: 4, Held: e.Held}
		}
	case button.KindReleased:
		d := e.Held
		switch {
		case d < p.ToggleBelow:
			return Action{Kind: Toggle, Held: d}
		case d > p.AllAfter:
			return Action{Kind: ResetAll, Held: d}
		case d > p.AccessoryAfter:
			return Action{Kind: ResetAccessory, Held: d}
		case d > p.UpdateAfter:
			return Action{Kind: RequestUpdate, Held: d}
		}
	}
	return Action{Kind: None, Held: e.Held}
}
