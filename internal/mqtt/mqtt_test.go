package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

var ts = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func TestFormatButtonPayloadExactJSON(t *testing.T) {
	payload, err := FormatButtonPayload(ButtonEvent{
		Timestamp: ts,
		Line:      17,
		Kind:      "RELEASED",
		Held:      90 * time.Millisecond,
		Action:    "TOGGLE",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"button":{"timestamp":"2026-02-02T22:18:12Z","line":17,"event":"RELEASED","held_ms":90,"action":"TOGGLE"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatButtonPayloadOmitsEmptyAction(t *testing.T) {
	payload, err := FormatButtonPayload(ButtonEvent{Timestamp: ts, Line: 17, Kind: "PRESSED"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := parsed["button"]["action"]; ok {
		t.Error("action should be omitted when empty")
	}
	if parsed["button"]["held_ms"].(float64) != 0 {
		t.Error("held_ms should be 0 at press start")
	}
}

func TestFormatStatePayloadExactJSON(t *testing.T) {
	payload, err := FormatStatePayload(StateEvent{Timestamp: ts, On: true, Brightness: 42, Source: "mqtt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"dimmer":{"timestamp":"2026-02-02T22:18:12Z","event":"STATE","on":true,"brightness":42,"source":"mqtt"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2026, 2, 3, 0, 18, 12, 0, loc)

	payload, _ := FormatStatePayload(StateEvent{Timestamp: local})
	var parsed StatePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Dimmer.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp = %s, want UTC", parsed.Dimmer.Timestamp)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		event SystemEvent
		want  string
	}{
		{
			SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"},
			`{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`,
		},
		{
			SystemEvent{Timestamp: ts, Event: "RECONNECTED"},
			`{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"RECONNECTED"}}`,
		},
		{
			SystemEvent{Timestamp: ts, Event: "HEARTBEAT", RawPayload: []byte(`{"status":{}}`)},
			`{"status":{}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.event.Event, func(t *testing.T) {
			got, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload    string
		wantOn     *bool
		wantBright *int
		wantErr    error
	}{
		{`{"on":true}`, boolPtr(true), nil, nil},
		{`{"on":false,"brightness":30}`, boolPtr(false), intPtr(30), nil},
		{`{"brightness":0}`, nil, intPtr(0), nil},
		{`{"brightness":250}`, nil, intPtr(250), nil},
		{`{}`, nil, nil, ErrEmptyCommand},
		{`{"colour":"red"}`, nil, nil, ErrEmptyCommand},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !equalBool(cmd.On, tt.wantOn) {
				t.Errorf("On = %v, want %v", cmd.On, tt.wantOn)
			}
			if !equalInt(cmd.Brightness, tt.wantBright) {
				t.Errorf("Brightness = %v, want %v", cmd.Brightness, tt.wantBright)
			}
		})
	}

	if _, err := ParseCommand([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	f.PublishButton(ButtonEvent{Timestamp: ts, Kind: "PRESSED"})
	f.PublishState(StateEvent{Timestamp: ts, On: true, Brightness: 10})
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true})

	if len(f.ButtonEvents) != 1 || len(f.StateEvents) != 1 || len(f.Payloads) != 2 {
		t.Errorf("recorded %d button, %d state, %d payloads",
			len(f.ButtonEvents), len(f.StateEvents), len(f.Payloads))
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Errorf("system events = %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("retained flag not recorded")
	}

	f.Reset()
	if len(f.ButtonEvents)+len(f.StateEvents)+len(f.SystemEvents) != 0 {
		t.Error("Reset should clear events")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishButton(ButtonEvent{}); err == nil {
		t.Error("expected PublishButton error")
	}
	if err := f.PublishState(StateEvent{}); err == nil {
		t.Error("expected PublishState error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if len(f.Payloads)+len(f.SystemPayloads) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherCommands(t *testing.T) {
	f := NewFakePublisher()
	f.Send(Command{On: boolPtr(true)})
	select {
	case cmd := <-f.Commands():
		if cmd.On == nil || !*cmd.On {
			t.Errorf("cmd = %+v", cmd)
		}
	default:
		t.Fatal("command not delivered")
	}
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{} { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error { return t.err }

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu         sync.Mutex
	open       bool
	sent       []sent
	subscribed []string
	handler    paho.MessageHandler
	publishErr error
	timeout    bool
	disconnect bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.publishErr, timeout: c.timeout}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handler = cb
	return &fakeToken{}
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect = true
	c.open = false
}

func newTestPublisher(open bool, bufferSize int) (*RealPublisher, *fakeClient) {
	c := &fakeClient{open: open}
	p := newRealPublisher(Config{Broker: "tcp://test:1883", BufferSize: bufferSize}, zerolog.Nop())
	p.client = c
	p.now = func() time.Time { return ts }
	return p, c
}

func TestRealPublisherTopicsAndQoS(t *testing.T) {
	p, c := newTestPublisher(true, 10)
	p.onConnect()

	if err := p.PublishButton(ButtonEvent{Timestamp: ts, Kind: "PRESSED"}); err != nil {
		t.Fatalf("PublishButton: %v", err)
	}
	if err := p.PublishState(StateEvent{Timestamp: ts}); err != nil {
		t.Fatalf("PublishState: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	want := []sent{
		{topic: TopicEvents, qos: 0},
		{topic: TopicEvents, qos: 0},
		{topic: TopicSystem, qos: 1, retained: true},
	}
	if len(c.sent) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(c.sent), len(want))
	}
	for i, w := range want {
		got := c.sent[i]
		if got.topic != w.topic || got.qos != w.qos || got.retained != w.retained {
			t.Errorf("message %d = %s qos=%d retained=%v, want %s qos=%d retained=%v",
				i, got.topic, got.qos, got.retained, w.topic, w.qos, w.retained)
		}
	}
}

func TestRealPublisherErrors(t *testing.T) {
	p, c := newTestPublisher(true, 10)
	p.onConnect()
	c.publishErr = errors.New("not authorised")
	if err := p.PublishState(StateEvent{}); err == nil || !errors.Is(err, c.publishErr) {
		t.Errorf("err = %v, want wrapped publish error", err)
	}

	c.publishErr = nil
	c.timeout = true
	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	p, c := newTestPublisher(false, 10)

	for i := 0; i < 3; i++ {
		if err := p.PublishButton(ButtonEvent{Timestamp: ts, Line: i, Kind: "RELEASED"}); err != nil {
			t.Fatalf("PublishButton while offline: %v", err)
		}
	}
	if len(c.sent) != 0 {
		t.Fatalf("sent %d messages while offline", len(c.sent))
	}
	if p.Buffered() != 3 {
		t.Fatalf("buffered = %d, want 3", p.Buffered())
	}

	c.open = true
	p.onConnect()

	if p.Buffered() != 0 {
		t.Errorf("buffered after connect = %d", p.Buffered())
	}
	if len(c.sent) != 3 {
		t.Fatalf("replayed %d messages, want 3 and no RECONNECTED on first connect", len(c.sent))
	}
	for i, m := range c.sent {
		var parsed ButtonPayload
		if err := json.Unmarshal(m.payload, &parsed); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if parsed.Button.Line != i {
			t.Errorf("replay %d has line %d", i, parsed.Button.Line)
		}
	}
	if len(c.subscribed) != 1 || c.subscribed[0] != TopicCommand {
		t.Errorf("subscribed = %v, want [%s]", c.subscribed, TopicCommand)
	}
}

func TestRealPublisherKeepsOrderUntilReplayed(t *testing.T) {
	p, c := newTestPublisher(false, 10)
	p.PublishButton(ButtonEvent{Timestamp: ts, Line: 0, Kind: "PRESSED"})

	// The socket is up but the connect handler has not run yet.
	c.open = true
	p.PublishButton(ButtonEvent{Timestamp: ts, Line: 1, Kind: "RELEASED"})
	if len(c.sent) != 0 {
		t.Fatalf("sent %d messages before the buffer was replayed", len(c.sent))
	}

	p.onConnect()
	p.PublishButton(ButtonEvent{Timestamp: ts, Line: 2, Kind: "PRESSED"})

	p.onConnectionLost(errors.New("EOF"))
	p.PublishButton(ButtonEvent{Timestamp: ts, Line: 3, Kind: "RELEASED"})
	if p.Buffered() != 1 {
		t.Errorf("buffered after connection loss = %d, want 1", p.Buffered())
	}
	p.onConnect()

	var lines []int
	for _, m := range c.sent {
		if m.topic != TopicEvents {
			continue
		}
		var parsed ButtonPayload
		if err := json.Unmarshal(m.payload, &parsed); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		lines = append(lines, parsed.Button.Line)
	}
	if len(lines) != 4 {
		t.Fatalf("sent lines %v, want [0 1 2 3]", lines)
	}
	for i, l := range lines {
		if l != i {
			t.Errorf("sent lines %v, want [0 1 2 3]", lines)
			break
		}
	}
}

func TestRealPublisherAnnouncesReconnect(t *testing.T) {
	p, c := newTestPublisher(true, 10)
	p.onConnect()
	p.onConnect()

	if len(c.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(c.sent))
	}
	expected := `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"RECONNECTED"}}`
	if c.sent[0].topic != TopicSystem || string(c.sent[0].payload) != expected {
		t.Errorf("sent %s %s", c.sent[0].topic, c.sent[0].payload)
	}
	if len(c.subscribed) != 2 {
		t.Errorf("should resubscribe on every connect, got %d", len(c.subscribed))
	}
}

func TestRealPublisherCommands(t *testing.T) {
	p, _ := newTestPublisher(true, 10)

	p.handleCommand([]byte(`{"brightness":55}`))
	p.handleCommand([]byte(`garbage`))
	p.handleCommand([]byte(`{}`))

	select {
	case cmd := <-p.Commands():
		if cmd.Brightness == nil || *cmd.Brightness != 55 {
			t.Errorf("cmd = %+v", cmd)
		}
	default:
		t.Fatal("valid command not queued")
	}
	select {
	case cmd := <-p.Commands():
		t.Errorf("invalid command queued: %+v", cmd)
	default:
	}
}

func TestRealPublisherCommandQueueFull(t *testing.T) {
	p, _ := newTestPublisher(true, 10)
	for i := 0; i < commandQueueLen+5; i++ {
		p.handleCommand([]byte(`{"on":true}`))
	}
	if got := len(p.commands); got != commandQueueLen {
		t.Errorf("queued %d, want %d", got, commandQueueLen)
	}
}

func TestRealPublisherClose(t *testing.T) {
	p, c := newTestPublisher(true, 10)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.disconnect {
		t.Error("Close should disconnect")
	}
	if p.IsConnected() {
		t.Error("IsConnected after Close")
	}
}

func TestNewRealPublisherRequiresBroker(t *testing.T) {
	if _, err := NewRealPublisher(Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for empty broker")
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int { return &i }

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
