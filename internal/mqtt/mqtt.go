// Package mqtt publishes dimmer events to MQTT and receives remote
// commands, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TopicEvents is the MQTT topic for button gestures and dimmer state changes.
const TopicEvents = "home/dimmer/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/dimmer/system"

// TopicCommand is the MQTT topic the daemon subscribes to for remote control.
const TopicCommand = "home/dimmer/set"

// ErrEmptyCommand is returned for a command that sets neither field.
var ErrEmptyCommand = errors.New("mqtt: command sets neither on nor brightness")

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishButton sends a debounced button event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishButton(event ButtonEvent) error

	// PublishState sends a dimmer power or brightness change.
	PublishState(event StateEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandSource delivers parsed remote commands.
type CommandSource interface {
	Commands() <-chan Command
}

// ButtonEvent is a debounced button event and the action it triggered.
type ButtonEvent struct {
	Timestamp time.Time
	Line      int
	Kind      string // "PRESSED", "HELD", "RELEASED"
	Held      time.Duration
	Action    string // empty when the event maps to no action
}

// StateEvent reports the requested dimmer state after a change.
type StateEvent struct {
	Timestamp  time.Time
	On         bool
	Brightness int
	Source     string // "button", "mqtt", "startup"
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "UPDATE_REQUESTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ButtonPayload is the MQTT message payload for button events.
type ButtonPayload struct {
	Button ButtonPayloadInner `json:"button"`
}

// ButtonPayloadInner contains the button event details.
type ButtonPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Line      int    `json:"line"`
	Event     string `json:"event"`
	HeldMs    int64  `json:"held_ms"`
	Action    string `json:"action,omitempty"`
}

// FormatButtonPayload creates the JSON payload for a button event.
func FormatButtonPayload(event ButtonEvent) ([]byte, error) {
	return json.Marshal(ButtonPayload{
		Button: ButtonPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Line:      event.Line,
			Event:     event.Kind,
			HeldMs:    event.Held.Milliseconds(),
			Action:    event.Action,
		},
	})
}

// StatePayload is the MQTT message payload for dimmer state changes.
type StatePayload struct {
	Dimmer StatePayloadInner `json:"dimmer"`
}

// StatePayloadInner contains the dimmer state.
type StatePayloadInner struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"`
	Source     string `json:"source,omitempty"`
}

// FormatStatePayload creates the JSON payload for a dimmer state change.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	return json.Marshal(StatePayload{
		Dimmer: StatePayloadInner{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      "STATE",
			On:         event.On,
			Brightness: event.Brightness,
			Source:     event.Source,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Command is a remote request to change the dimmer. Either field may be
// omitted to leave that setting alone.
type Command struct {
	On         *bool `json:"on,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
}

// ParseCommand decodes a command payload. Brightness range is checked by
// the dimmer, not here.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	if cmd.On == nil && cmd.Brightness == nil {
		return Command{}, ErrEmptyCommand
	}
	return cmd, nil
}
