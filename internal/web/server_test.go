package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/triac-dimmer/internal/button"
	"github.com/sweeney/triac-dimmer/internal/dimmer"
	"github.com/sweeney/triac-dimmer/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		ButtonLine:    17,
		ZeroCrossLine: 27,
		TriacLine:     22,
		SampleRateHz:  100,
		DebounceMs:    100,
		HalfCycleUs:   10000,
		HeartbeatMs:   900000,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, zerolog.Nop())
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(
		dimmer.Stats{On: true, Brightness: 75, Edges: 300, Accepted: 60},
		[]button.Stats{{Line: 17, Edges: 4}},
		status.Counts{Pressed: 2, Released: 2, Toggles: 2},
	)
	tr.SetMQTTConnected(true)

	sj := getJSON(t, ts.URL+"/index.json")

	if !sj.Status.Dimmer.On || sj.Status.Dimmer.Brightness != 75 {
		t.Errorf("Dimmer: got %+v", sj.Status.Dimmer)
	}
	if sj.Status.Dimmer.ZeroCross.Accepted != 60 || sj.Status.Dimmer.ZeroCross.Edges != 300 {
		t.Errorf("ZeroCross: got %+v", sj.Status.Dimmer.ZeroCross)
	}
	if len(sj.Status.Buttons) != 1 || sj.Status.Buttons[0].Line != 17 {
		t.Errorf("Buttons: got %+v", sj.Status.Buttons)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Toggles != 2 {
		t.Errorf("Counts.Toggles: got %d, want 2", sj.Status.Counts.Toggles)
	}
	if sj.Status.Config.SampleRateHz != 100 || sj.Status.Config.HalfCycleUs != 10000 {
		t.Errorf("Config: got %+v", sj.Status.Config)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(
		dimmer.Stats{On: true, Brightness: 35, Edges: 1234, Accepted: 200},
		[]button.Stats{{Line: 17, Edges: 9, Sampling: true}},
		status.Counts{Commands: 3, Rejected: 1},
	)
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	for _, path := range []string{"/", "/index.html"} {
		body := getBody(t, ts.URL+path)
		for _, want := range []string{
			`<td id="power" class="on">ON</td>`,
			`<td id="brightness">35%</td>`,
			`<td id="zero-cross">200/1234</td>`,
			`GPIO 17`,
			`9 edges, sampling`,
			`3 (1 rejected)`,
			`connected (wifi, MyNet)`,
			`10000us`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("%s: body missing %q", path, want)
			}
		}
	}
}

func TestHTMLNoButtons(t *testing.T) {
	ts, _ := newTestServer(t)
	body := getBody(t, ts.URL+"/")
	if !strings.Contains(body, "<td>none</td>") {
		t.Error("expected placeholder row without buttons")
	}
	if !strings.Contains(body, `class="off">OFF`) {
		t.Error("expected power OFF initially")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Dimmer.On {
		t.Error("expected dimmer off initially")
	}

	tr.Update(dimmer.Stats{On: true, Brightness: 100}, nil, status.Counts{Toggles: 1})
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if !sj2.Status.Dimmer.On || sj2.Status.Dimmer.Brightness != 100 {
		t.Errorf("Dimmer after update: got %+v", sj2.Status.Dimmer)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestDimmerEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(dimmer.Stats{On: true, Brightness: 40, Conducting: true, Edges: 12, Accepted: 6}, nil, status.Counts{})

	resp, err := http.Get(ts.URL + "/dimmer.json")
	if err != nil {
		t.Fatalf("GET /dimmer.json: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control: got %q, want no-store", cc)
	}

	var d status.DimmerJSON
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !d.On || d.Brightness != 40 || !d.Conducting || d.ZeroCross.Accepted != 6 {
		t.Errorf("dimmer: got %+v", d)
	}
}

func TestWritesRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/", "/index.json", "/dimmer.json"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(`{"on":true}`))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
		if allow := resp.Header.Get("Allow"); allow != "GET, HEAD" {
			t.Errorf("POST %s: Allow = %q", path, allow)
		}
	}
}
