package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Dimmer        DimmerJSON   `json:"dimmer"`
	Buttons       []ButtonJSON `json:"buttons"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DimmerJSON is the JSON representation of the triac channel.
type DimmerJSON struct {
	On          bool          `json:"on"`
	Brightness  int           `json:"brightness"`
	Conducting  bool          `json:"conducting"`
	ZeroCross   ZeroCrossJSON `json:"zero_cross"`
	TimerFires  uint32        `json:"timer_fires"`
	WriteErrors uint32        `json:"write_errors"`
}

// ZeroCrossJSON reports accepted against raw zero-cross edges.
type ZeroCrossJSON struct {
	Edges    uint32 `json:"edges"`
	Accepted uint32 `json:"accepted"`
	Bypassed uint32 `json:"bypassed"`
}

// ButtonJSON is the JSON representation of one monitored button.
type ButtonJSON struct {
	Line     int    `json:"line"`
	Edges    uint32 `json:"edges"`
	Sampling bool   `json:"sampling"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Pressed  int `json:"pressed"`
	Held     int `json:"held"`
	Released int `json:"released"`
	Toggles  int `json:"toggles"`
	Commands int `json:"commands"`
	Rejected int `json:"rejected"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ButtonLine    int    `json:"button_line"`
	ZeroCrossLine int    `json:"zero_cross_line"`
	TriacLine     int    `json:"triac_line"`
	SampleRateHz  int    `json:"sample_rate_hz"`
	DebounceMs    int64  `json:"debounce_ms"`
	HalfCycleUs   int64  `json:"half_cycle_us"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	d := snap.Dimmer
	buttons := make([]ButtonJSON, len(snap.Buttons))
	for i, b := range snap.Buttons {
		buttons[i] = ButtonJSON{Line: b.Line, Edges: b.Edges, Sampling: b.Sampling}
	}

	inner := StatusInner{
		Dimmer: DimmerJSON{
			On:          d.On,
			Brightness:  d.Brightness,
			Conducting:  d.Conducting,
			ZeroCross:   ZeroCrossJSON{Edges: d.Edges, Accepted: d.Accepted, Bypassed: d.Bypassed},
			TimerFires:  d.TimerFires,
			WriteErrors: d.WriteErrors,
		},
		Buttons:       buttons,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Pressed:  snap.Counts.Pressed,
			Held:     snap.Counts.Held,
			Released: snap.Counts.Released,
			Toggles:  snap.Counts.Toggles,
			Commands: snap.Counts.Commands,
			Rejected: snap.Counts.Rejected,
		},
		Config: ConfigJSON{
			ButtonLine:    snap.Config.ButtonLine,
			ZeroCrossLine: snap.Config.ZeroCrossLine,
			TriacLine:     snap.Config.TriacLine,
			SampleRateHz:  snap.Config.SampleRateHz,
			DebounceMs:    snap.Config.DebounceMs,
			HalfCycleUs:   snap.Config.HalfCycleUs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatDimmerJSON returns only the dimmer section, for pollers that drive a
// brightness slider and have no use for the rest of the snapshot.
func FormatDimmerJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(buildInner(snap).Dimmer, "", "  ")
	return data
}
