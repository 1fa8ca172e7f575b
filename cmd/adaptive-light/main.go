// Command adaptive-light drives a presence-aware light fixture: it reads ambient
// light and distance from the sensor co-processor, takes user input from a rotary
// encoder, sets the LED duty cycle and publishes state changes to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/sweeney/adaptive-light/internal/board"
	"github.com/sweeney/adaptive-light/internal/config"
	"github.com/sweeney/adaptive-light/internal/gpio"
	"github.com/sweeney/adaptive-light/internal/logic"
	"github.com/sweeney/adaptive-light/internal/metrics"
	"github.com/sweeney/adaptive-light/internal/mqtt"
	"github.com/sweeney/adaptive-light/internal/status"
	"github.com/sweeney/adaptive-light/internal/web"
)

// options are the flags that select a mode rather than configure the daemon.
type options struct {
	configPath  string
	writeConfig bool
	printState  bool
	listPorts   bool
}

func main() {
	cfg, opts, reload, err := parseArgs(os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, opts, reload); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseArgs builds the effective config and returns a function that rebuilds
// it with the same precedence, for SIGHUP.
func parseArgs(args []string, getenv func(string) string) (*config.Config, options, func() (*config.Config, error), error) {
	var opts options
	fs := config.NewFlagSet("adaptive-light", config.Default())
	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "Config file path")
	fs.BoolVar(&opts.writeConfig, "write-config", false, "Write the effective config to --config and exit")
	fs.BoolVar(&opts.printState, "print-state", false, "Print one sensor sample and exit")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "List serial ports and exit")

	if err := fs.Parse(args); err != nil {
		return nil, opts, nil, err
	}

	load := func() (*config.Config, error) {
		return loadConfig(opts.configPath, getenv, fs)
	}
	cfg, err := load()
	if err != nil {
		return nil, opts, nil, err
	}
	return cfg, opts, load, nil
}

func loadConfig(path string, getenv func(string) string, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.LoadFromEnv(getenv)
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	cfg.Policy = cfg.Policy.Clamp()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config, opts options, reload func() (*config.Config, error)) error {
	if opts.listPorts {
		ports, err := board.Ports()
		if err != nil {
			return fmt.Errorf("list serial ports: %w", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	if opts.writeConfig {
		if err := cfg.Save(opts.configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", opts.configPath)
		return nil
	}

	// The serial link is the only collaborator the daemon cannot run without.
	link, err := board.Open(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return fmt.Errorf("init board: %w", err)
	}
	defer link.Close()

	if err := link.SetEchoTimeout(cfg.Policy.EchoTimeoutUs); err != nil {
		log.Printf("board: set echo timeout: %v", err)
	}

	if opts.printState {
		fmt.Println(readState(link, 2*time.Second, 10*time.Millisecond))
		return nil
	}

	session := uuid.NewString()
	start := time.Now()
	engine := logic.NewEngine(cfg.Policy, start)

	var startupEvents []logic.Event
	var encoder gpio.Encoder
	if cfg.GPIO.Enabled {
		pins := gpio.Pins{Chip: cfg.GPIO.Chip, CLK: cfg.GPIO.CLK, DT: cfg.GPIO.DT, SW: cfg.GPIO.SW}
		enc, err := gpio.NewRealEncoder(pins)
		if err != nil {
			log.Printf("gpio: init encoder: %v", err)
			startupEvents = append(startupEvents, engine.SetFault(start, true)...)
		} else {
			encoder = enc
			defer enc.Close()
		}
	}

	publisher := mqtt.Discard
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.BufferSize)
		if err != nil {
			log.Printf("mqtt: %v (publishing disabled)", err)
		} else {
			publisher = pub
			mqttStatus = pub
		}
	}
	defer publisher.Close()

	tracker := status.NewTracker(start, session, statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("mqtt: publish startup event: %v", err)
	} else {
		log.Printf("mqtt: published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http: server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http: status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: session=%s serial=%s encoder=%t broker=%q heartbeat=%v step=%v",
		session, cfg.Serial.Port, encoder != nil, cfg.MQTT.Broker, cfg.MQTT.Heartbeat, cfg.StepInterval)

	d := &daemon{
		engine:     engine,
		link:       link,
		linkDone:   link.Done(),
		lastSample: link.LastReceived,
		parseErrs:  link.ParseErrors,
		encoder:    encoder,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    m,
		heartbeat:  cfg.MQTT.Heartbeat,
		reload:     reload,
	}
	d.handle(startupEvents)

	ticker := time.NewTicker(cfg.StepInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	return runLoop(d, time.Now, ticker.C, sigCh)
}

// readState waits up to timeout for one light and one distance sample.
func readState(s logic.Sensors, timeout, poll time.Duration) string {
	light, lightSt := uint16(0), logic.SensorNotReady
	dist, distSt := uint32(0), logic.SensorNotReady
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if lightSt != logic.SensorOK {
			light, lightSt = s.ReadLight()
		}
		if distSt != logic.SensorOK {
			dist, distSt = s.ReadDistance()
		}
		if lightSt == logic.SensorOK && distSt == logic.SensorOK {
			break
		}
		time.Sleep(poll)
	}
	return fmt.Sprintf("light=%d (%s) auto=%d%% distance=%dcm (%s)",
		light, lightSt, logic.AutoPercent(light), dist, distSt)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		SerialPort:  cfg.Serial.Port,
		Encoder:     cfg.GPIO.Enabled,
		StepMs:      cfg.StepInterval.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		Policy:      cfg.Policy,
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
