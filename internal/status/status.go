// Package status provides a thread-safe status tracker for the dimmer daemon.
// It is read by the HTTP handlers and by the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/triac-dimmer/internal/button"
	"github.com/sweeney/triac-dimmer/internal/dimmer"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ButtonLine    int
	ZeroCrossLine int
	TriacLine     int
	SampleRateHz  int
	DebounceMs    int64
	HalfCycleUs   int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
}

// Counts are application-level event totals since startup.
type Counts struct {
	Pressed  int
	Held     int
	Released int
	Toggles  int
	Commands int
	Rejected int // commands refused, e.g. brightness out of range
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Dimmer        dimmer.Stats
	Buttons       []button.Stats
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets dimmer diagnostics, per-button stats and event counts.
// Called from runLoop after every event and on each refresh tick.
func (t *Tracker) Update(d dimmer.Stats, buttons []button.Stats, counts Counts) {
	b := append([]button.Stats(nil), buttons...)
	t.mu.Lock()
	t.snap.Dimmer = d
	t.snap.Buttons = b
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Buttons = append([]button.Stats(nil), t.snap.Buttons...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
