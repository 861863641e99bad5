package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/triac-dimmer/internal/button"
	"github.com/sweeney/triac-dimmer/internal/dimmer"
	"github.com/sweeney/triac-dimmer/internal/gesture"
	"github.com/sweeney/triac-dimmer/internal/indicator"
	"github.com/sweeney/triac-dimmer/internal/mqtt"
	"github.com/sweeney/triac-dimmer/internal/status"
)

// eventQueueLen bounds button events waiting for the run loop.
const eventQueueLen = 64

// daemon ties the button, dimmer and indicators to MQTT and the status
// tracker. Everything except onButton runs on the run loop goroutine.
type daemon struct {
	log     zerolog.Logger
	now     func() time.Time
	dim     *dimmer.Channel
	buttons *button.Controller
	ind     *indicator.Indicator
	pub     mqtt.Publisher
	conn    mqtt.ConnectionStatus // may be nil
	tracker *status.Tracker
	policy  gesture.Policy

	counts status.Counts
	events chan button.Event
}

func newDaemon(log zerolog.Logger, dim *dimmer.Channel, buttons *button.Controller, ind *indicator.Indicator,
	pub mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, policy gesture.Policy) *daemon {
	return &daemon{
		log:     log,
		now:     time.Now,
		dim:     dim,
		buttons: buttons,
		ind:     ind,
		pub:     pub,
		conn:    conn,
		tracker: tracker,
		policy:  policy,
		events:  make(chan button.Event, eventQueueLen),
	}
}

// onButton is the button handler. It runs on the sampler tick and must not
// block, so events are queued for the run loop.
func (d *daemon) onButton(e button.Event) {
	select {
	case d.events <- e:
	default:
		d.log.Warn().Stringer("kind", e.Kind).Msg("event queue full, dropping button event")
	}
}

func (d *daemon) handleButton(ctx context.Context, e button.Event) {
	switch e.Kind {
	case button.KindPressed:
		d.counts.Pressed++
	case button.KindHeld:
		d.counts.Held++
	case button.KindReleased:
		d.counts.Released++
	}

	action := d.policy.Classify(e)
	d.log.Info().Int("line", e.Line).Stringer("event", e.Kind).Dur("held", e.Held).
		Stringer("action", action.Kind).Msg("button")

	be := mqtt.ButtonEvent{Timestamp: d.now(), Line: e.Line, Kind: e.Kind.String(), Held: e.Held}
	if action.Kind != gesture.None {
		be.Action = action.Kind.String()
	}
	if err := d.pub.PublishButton(be); err != nil {
		d.log.Warn().Err(err).Msg("publish button event")
	}

	switch action.Kind {
	case gesture.Toggle:
		d.counts.Toggles++
		d.setPower(ctx, !d.dim.Power(), "button")
	case gesture.Identify:
		d.ind.Identify(ctx, action.Blinks)
	case gesture.RequestUpdate:
		d.request("UPDATE_REQUESTED")
	case gesture.ResetAccessory:
		d.request("RESET_ACCESSORY_REQUESTED")
	case gesture.ResetAll:
		d.request("RESET_ALL_REQUESTED")
	}
}

// handleCommand applies a remote command. A command with an out-of-range
// brightness is rejected as a whole.
func (d *daemon) handleCommand(ctx context.Context, cmd mqtt.Command) {
	d.counts.Commands++
	changed := false
	if cmd.Brightness != nil {
		if err := d.dim.SetBrightness(*cmd.Brightness); err != nil {
			d.counts.Rejected++
			d.log.Warn().Err(err).Msg("command rejected")
			return
		}
		changed = true
	}
	if cmd.On != nil && *cmd.On != d.dim.Power() {
		d.setPower(ctx, *cmd.On, "mqtt")
		return
	}
	if changed {
		d.publishState("mqtt")
	}
}

func (d *daemon) setPower(ctx context.Context, on bool, source string) {
	d.dim.SetPower(on)
	if err := d.ind.SetRelay(ctx, on); err != nil {
		d.log.Warn().Err(err).Msg("relay")
	}
	d.publishState(source)
}

func (d *daemon) publishState(source string) {
	ev := mqtt.StateEvent{
		Timestamp:  d.now(),
		On:         d.dim.Power(),
		Brightness: d.dim.Brightness(),
		Source:     source,
	}
	d.log.Info().Bool("on", ev.On).Int("brightness", ev.Brightness).Str("source", source).Msg("state")
	if err := d.pub.PublishState(ev); err != nil {
		d.log.Warn().Err(err).Msg("publish state")
	}
}

// request publishes an update or reset request. The daemon never performs
// them itself.
func (d *daemon) request(event string) {
	d.log.Warn().Str("event", event).Msg("requested from button")
	ev := mqtt.SystemEvent{Timestamp: d.now(), Event: event, Reason: "BUTTON"}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.log.Warn().Err(err).Str("event", event).Msg("publish request")
	}
}

// refresh copies current diagnostics into the tracker.
func (d *daemon) refresh() {
	lines := d.buttons.Lines()
	stats := make([]button.Stats, 0, len(lines))
	for _, l := range lines {
		if s, ok := d.buttons.Stats(l); ok {
			stats = append(stats, s)
		}
	}
	d.tracker.Update(d.dim.Stats(), stats, d.counts)
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
}

// system publishes a retained-or-not system event carrying a full status
// snapshot.
func (d *daemon) system(event, reason string, retained bool) error {
	d.refresh()
	snap := d.tracker.Snapshot()
	return d.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
}

func (d *daemon) startup() {
	if err := d.system("STARTUP", "", true); err != nil {
		d.log.Warn().Err(err).Msg("failed to publish startup event")
	} else {
		d.log.Info().Msg("published startup event")
	}
	d.publishState("startup")
}

func (d *daemon) heartbeat() {
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	if err := d.system("HEARTBEAT", "", false); err != nil {
		d.log.Warn().Err(err).Msg("heartbeat publish error")
		return
	}
	st := d.dim.Stats()
	d.log.Debug().Uint32("accepted", st.Accepted).Uint32("edges", st.Edges).
		Uint32("timer_fires", st.TimerFires).Msg("heartbeat")
}

func (d *daemon) shutdown(reason string) {
	if err := d.system("SHUTDOWN", reason, true); err != nil {
		d.log.Warn().Err(err).Msg("failed to publish shutdown event")
	} else {
		d.log.Info().Str("reason", reason).Msg("published shutdown event")
	}
}

// drain handles button events and commands that were already queued.
func (d *daemon) drain(ctx context.Context, commands <-chan mqtt.Command) {
	for {
		select {
		case e := <-d.events:
			d.handleButton(ctx, e)
		case cmd := <-commands:
			d.handleCommand(ctx, cmd)
		default:
			return
		}
	}
}
