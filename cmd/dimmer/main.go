// Command dimmer drives a triac dimmer from a zero-cross detector, debounces
// a push button into gestures, and publishes state to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanity-io/litter"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/triac-dimmer/internal/button"
	"github.com/sweeney/triac-dimmer/internal/dimmer"
	"github.com/sweeney/triac-dimmer/internal/gesture"
	"github.com/sweeney/triac-dimmer/internal/gpio"
	"github.com/sweeney/triac-dimmer/internal/indicator"
	"github.com/sweeney/triac-dimmer/internal/mqtt"
	"github.com/sweeney/triac-dimmer/internal/status"
	"github.com/sweeney/triac-dimmer/internal/timer"
	"github.com/sweeney/triac-dimmer/internal/web"
)

type config struct {
	Chip          string
	ButtonLine    int
	ZeroCrossLine int
	TriacLine     int
	TriacActive   bool
	RelayLine     int
	LEDLine       int
	MirrorLines   []int

	SampleRate int
	Debounce   time.Duration
	HalfCycle  time.Duration
	On         bool
	Brightness int
	Policy     gesture.Policy

	Broker    string
	ClientID  string
	Buffer    int
	Heartbeat time.Duration
	Refresh   time.Duration
	HTTPAddr  string
	LogLevel  string
}

func main() {
	cfg, printConfig, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if printConfig {
		litter.Dump(cfg)
		return
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func parseFlags(args []string) (config, bool, error) {
	cfg := config{Policy: gesture.DefaultPolicy()}
	bcfg := button.DefaultConfig()
	dcfg := dimmer.DefaultConfig()

	fs := flag.NewFlagSet("dimmer", flag.ContinueOnError)
	fs.StringVar(&cfg.Chip, "chip", gpio.DefaultChip, "GPIO chip name")
	fs.IntVar(&cfg.ButtonLine, "pin-button", gpio.DefaultButtonLine, "BCM pin for the push button (active-low)")
	fs.IntVar(&cfg.ZeroCrossLine, "pin-zero-cross", dcfg.ZeroCrossLine, "BCM pin for the zero-cross detector")
	fs.IntVar(&cfg.TriacLine, "pin-triac", dcfg.TriacLine, "BCM pin for the triac gate")
	fs.BoolVar(&cfg.TriacActive, "triac-active-high", dcfg.ConductLevel, "drive the triac gate high to conduct")
	fs.IntVar(&cfg.RelayLine, "pin-relay", gpio.DefaultRelayLine, "BCM pin for the relay (-1 to disable)")
	fs.IntVar(&cfg.LEDLine, "pin-led", gpio.DefaultLEDLine, "BCM pin for the status LED (-1 to disable)")
	mirror := fs.Int("pin-mirror", -1, "BCM pin that mirrors the triac drive, active-low (-1 to disable)")

	fs.IntVar(&cfg.SampleRate, "sample-rate", bcfg.SampleRate, "Button sampling rate in Hz")
	fs.DurationVar(&cfg.Debounce, "debounce", bcfg.DebounceWindow, "Button debounce window")
	fs.DurationVar(&cfg.HalfCycle, "half-cycle", dcfg.HalfCycle, "Mains half-cycle period (10ms at 50Hz)")
	fs.BoolVar(&cfg.On, "on", false, "Initial power state")
	fs.IntVar(&cfg.Brightness, "brightness", 100, "Initial brightness in percent")
	fs.DurationVar(&cfg.Policy.ToggleBelow, "toggle-below", cfg.Policy.ToggleBelow, "Releases shorter than this toggle power")
	fs.DurationVar(&cfg.Policy.UpdateAfter, "update-after", cfg.Policy.UpdateAfter, "Releases longer than this request a firmware update")
	fs.DurationVar(&cfg.Policy.AccessoryAfter, "reset-accessory-after", cfg.Policy.AccessoryAfter, "Releases longer than this request an accessory reset")
	fs.DurationVar(&cfg.Policy.AllAfter, "reset-all-after", cfg.Policy.AllAfter, "Releases longer than this request a full reset")

	fs.StringVar(&cfg.Broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	fs.StringVar(&cfg.ClientID, "client-id", "triac-dimmer", "MQTT client ID")
	fs.IntVar(&cfg.Buffer, "buffer", 100, "Messages kept for replay while the broker is unreachable")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.DurationVar(&cfg.Refresh, "refresh", time.Second, "Status refresh interval")
	fs.StringVar(&cfg.HTTPAddr, "http", ":80", "HTTP status address (empty to disable)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	printConfig := fs.Bool("print-config", false, "Print the resolved configuration and exit")

	if err := fs.Parse(args); err != nil {
		return config{}, false, err
	}
	if *mirror >= 0 {
		cfg.MirrorLines = []int{*mirror}
	}
	if cfg.Brightness < 0 || cfg.Brightness > 100 {
		return config{}, false, fmt.Errorf("--brightness %d out of range 0..100", cfg.Brightness)
	}
	p := cfg.Policy
	if !(p.ToggleBelow <= p.UpdateAfter && p.UpdateAfter < p.AccessoryAfter && p.AccessoryAfter < p.AllAfter) {
		return config{}, false, errors.New("gesture windows must increase: toggle-below <= update-after < reset-accessory-after < reset-all-after")
	}
	if cfg.Refresh <= 0 {
		return config{}, false, errors.New("--refresh must be positive")
	}
	return cfg, *printConfig, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("--log-level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger(), nil
}

func run(cfg config, log zerolog.Logger) error {
	lines, err := gpio.NewReal(gpio.RealConfig{Chip: cfg.Chip, PullUp: []int{cfg.ButtonLine}}, log)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()
	timers := timer.NewHost()

	publisher, err := mqtt.NewRealPublisher(mqtt.Config{Broker: cfg.Broker, ClientID: cfg.ClientID, BufferSize: cfg.Buffer}, log)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	dim, err := dimmer.New(lines, timers, dimmer.Config{
		TriacLine:      cfg.TriacLine,
		ZeroCrossLine:  cfg.ZeroCrossLine,
		HalfCycle:      cfg.HalfCycle,
		ConductLevel:   cfg.TriacActive,
		IndicatorLines: cfg.MirrorLines,
	}, cfg.On, cfg.Brightness, log)
	if err != nil {
		return fmt.Errorf("init dimmer: %w", err)
	}
	defer dim.Close()

	buttons, err := button.NewController(lines, timers, button.Config{SampleRate: cfg.SampleRate, DebounceWindow: cfg.Debounce}, log)
	if err != nil {
		return fmt.Errorf("init buttons: %w", err)
	}
	defer buttons.Close()

	ind := indicator.New(lines, indicator.Config{RelayLine: cfg.RelayLine, LEDLine: cfg.LEDLine}, log)
	defer ind.Wait()

	tracker := status.NewTracker(time.Now(), status.Config{
		ButtonLine:    cfg.ButtonLine,
		ZeroCrossLine: cfg.ZeroCrossLine,
		TriacLine:     cfg.TriacLine,
		SampleRateHz:  cfg.SampleRate,
		DebounceMs:    cfg.Debounce.Milliseconds(),
		HalfCycleUs:   cfg.HalfCycle.Microseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	d := newDaemon(log, dim, buttons, ind, publisher, publisher, tracker, cfg.Policy)
	if _, err := buttons.Register(cfg.ButtonLine, false, d.onButton); err != nil {
		return fmt.Errorf("register button: %w", err)
	}
	if err := ind.SetRelay(context.Background(), cfg.On); err != nil {
		log.Warn().Err(err).Msg("initial relay state")
	}

	d.startup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, log)
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	refresh := time.NewTicker(cfg.Refresh)
	defer refresh.Stop()
	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info().Int("sample_rate", cfg.SampleRate).Dur("debounce", cfg.Debounce).
		Dur("half_cycle", cfg.HalfCycle).Str("broker", cfg.Broker).Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	g.Go(func() error {
		defer cancel()
		return runLoop(gctx, d, publisher.Commands(), refresh.C, heartbeat, sigCh)
	})
	return g.Wait()
}

// runLoop owns the daemon state until a signal arrives or ctx is cancelled.
// Work already queued when it stops is handled before SHUTDOWN is published.
func runLoop(ctx context.Context, d *daemon, commands <-chan mqtt.Command, refresh, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("context cancelled, shutting down")
			d.drain(ctx, commands)
			d.shutdown("CANCELLED")
			return nil

		case s := <-sig:
			d.log.Info().Stringer("signal", s).Msg("shutting down")
			d.drain(ctx, commands)
			d.shutdown(signalName(s))
			return nil

		case e := <-d.events:
			d.handleButton(ctx, e)
			d.refresh()

		case cmd := <-commands:
			d.handleCommand(ctx, cmd)
			d.refresh()

		case <-refresh:
			d.refresh()

		case <-heartbeat:
			d.heartbeat()
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
