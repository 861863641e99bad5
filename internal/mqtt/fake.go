package mqtt

import "sync"

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// ButtonEvents contains all button events that were published.
	ButtonEvents []ButtonEvent

	// StateEvents contains all dimmer state changes that were published.
	StateEvents []StateEvent

	// Payloads contains the JSON payloads published to TopicEvents, in order.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishButton and PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	commands chan Command
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{commands: make(chan Command, commandQueueLen)}
}

// PublishButton records the button event.
func (f *FakePublisher) PublishButton(event ButtonEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatButtonPayload(event)
	if err != nil {
		return err
	}
	f.ButtonEvents = append(f.ButtonEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishState records the state event.
func (f *FakePublisher) PublishState(event StateEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.StateEvents = append(f.StateEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Commands returns the channel fed by Send.
func (f *FakePublisher) Commands() <-chan Command {
	return f.commands
}

// Send queues a command as if it had arrived from the broker.
func (f *FakePublisher) Send(cmd Command) {
	f.commands <- cmd
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Snapshot returns copies of the recorded button and state events.
func (f *FakePublisher) Snapshot() ([]ButtonEvent, []StateEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ButtonEvent(nil), f.ButtonEvents...), append([]StateEvent(nil), f.StateEvents...)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ButtonEvents = nil
	f.StateEvents = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
