// Package config loads the daemon configuration.
// Precedence, lowest first: Default, YAML file, ADAPTIVE_LIGHT_* environment, command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/adaptive-light.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ADAPTIVE_LIGHT_"

// Config represents the daemon configuration.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	GPIO   GPIOConfig   `yaml:"gpio"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http"`

	// StepInterval is how often the control loop wakes. It must not exceed
	// the control tick.
	StepInterval time.Duration `yaml:"step_interval"`

	Policy logic.Policy `yaml:"policy"`
}

// SerialConfig selects the co-processor port.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// GPIOConfig contains the encoder wiring.
type GPIOConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
	CLK     int    `yaml:"clk"`
	DT      int    `yaml:"dt"`
	SW      int    `yaml:"sw"`
}

// MQTTConfig contains broker settings. An empty Broker disables publishing.
type MQTTConfig struct {
	Broker     string        `yaml:"broker"`
	ClientID   string        `yaml:"client_id"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	BufferSize int           `yaml:"buffer_size"`
}

// HTTPConfig contains the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with the built-in values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyAMA0",
			Baud: 115200,
		},
		GPIO: GPIOConfig{
			Enabled: true,
			Chip:    "gpiochip0",
			CLK:     17,
			DT:      27,
			SW:      22,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			ClientID:   "adaptive-light",
			Heartbeat:  15 * time.Minute,
			BufferSize: 100,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		StepInterval: 10 * time.Millisecond,
		Policy:       logic.DefaultPolicy(),
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
// Policy values are clamped into range rather than rejected.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()
	cfg.Policy = cfg.Policy.Clamp()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies ADAPTIVE_LIGHT_* overrides. getenv is usually os.Getenv.
// Unparseable numeric values are ignored.
func (c *Config) LoadFromEnv(getenv func(string) string) {
	if v := getenv(EnvPrefix + "SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := getenv(EnvPrefix + "SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			c.Serial.Baud = baud
		}
	}
	if v := getenv(EnvPrefix + "GPIO_CHIP"); v != "" {
		c.GPIO.Chip = v
	}
	if v := getenv(EnvPrefix + "GPIO_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.GPIO.Enabled = enabled
		}
	}
	if v, ok := lookup(getenv, "MQTT_BROKER"); ok {
		c.MQTT.Broker = v
	}
	if v := getenv(EnvPrefix + "MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := getenv(EnvPrefix + "HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MQTT.Heartbeat = d
		}
	}
	if v, ok := lookup(getenv, "HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v := getenv(EnvPrefix + "LOG_MS"); v != "" {
		if ms, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Policy.LogMs = uint32(ms)
		}
	}
}

// lookup treats the literal value "off" as an explicit empty string so the
// broker and HTTP server can be disabled from the environment.
func lookup(getenv func(string) string, key string) (string, bool) {
	v := getenv(EnvPrefix + key)
	switch v {
	case "":
		return "", false
	case "off":
		return "", true
	default:
		return v, true
	}
}

// NewFlagSet returns a flag set whose flags are bound to c's fields, with
// c's current values as defaults.
func NewFlagSet(name string, c *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	BindFlags(fs, c)
	return fs
}

// BindFlags registers the config flags on fs.
func BindFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVar(&c.Serial.Port, "serial-port", c.Serial.Port, "Sensor co-processor serial port")
	fs.IntVar(&c.Serial.Baud, "baud", c.Serial.Baud, "Serial baud rate")

	fs.BoolVar(&c.GPIO.Enabled, "encoder", c.GPIO.Enabled, "Read the rotary encoder from GPIO")
	fs.StringVar(&c.GPIO.Chip, "gpio-chip", c.GPIO.Chip, "GPIO chip name")
	fs.IntVar(&c.GPIO.CLK, "pin-clk", c.GPIO.CLK, "BCM pin number for encoder CLK")
	fs.IntVar(&c.GPIO.DT, "pin-dt", c.GPIO.DT, "BCM pin number for encoder DT")
	fs.IntVar(&c.GPIO.SW, "pin-sw", c.GPIO.SW, "BCM pin number for encoder switch")

	fs.StringVar(&c.MQTT.Broker, "broker", c.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&c.MQTT.ClientID, "client-id", c.MQTT.ClientID, "MQTT client ID")
	fs.DurationVar(&c.MQTT.Heartbeat, "heartbeat", c.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")

	fs.StringVar(&c.HTTP.Addr, "http", c.HTTP.Addr, "HTTP status address (empty to disable)")
	fs.DurationVar(&c.StepInterval, "step", c.StepInterval, "Control loop wake interval")
	fs.Uint32Var(&c.Policy.LogMs, "log-ms", c.Policy.LogMs, "Summary log interval in ms (0 to disable)")
}

// ApplyFlags copies every config flag explicitly set on parsed onto c.
// Flags parsed is allowed to carry that are not config flags are skipped.
func (c *Config) ApplyFlags(parsed *pflag.FlagSet) error {
	bound := NewFlagSet("apply", c)

	var err error
	parsed.Visit(func(f *pflag.Flag) {
		if err != nil || bound.Lookup(f.Name) == nil {
			return
		}
		if e := bound.Set(f.Name, f.Value.String()); e != nil {
			err = fmt.Errorf("apply flag --%s: %w", f.Name, e)
		}
	})
	return err
}

// Validate checks the settings that cannot be clamped.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return errors.New("serial port is required")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.Serial.Baud)
	}

	if c.GPIO.Enabled {
		if c.GPIO.Chip == "" {
			return errors.New("gpio chip is required when the encoder is enabled")
		}
		pins := map[int]string{}
		for name, pin := range map[string]int{"clk": c.GPIO.CLK, "dt": c.GPIO.DT, "sw": c.GPIO.SW} {
			if pin < 0 {
				return fmt.Errorf("invalid %s pin: %d", name, pin)
			}
			if other, dup := pins[pin]; dup {
				return fmt.Errorf("%s and %s share pin %d", other, name, pin)
			}
			pins[pin] = name
		}
	}

	if c.MQTT.Broker != "" {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("invalid broker address: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid broker address %q: expected scheme://host:port", c.MQTT.Broker)
		}
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative: %v", c.MQTT.Heartbeat)
	}
	if c.MQTT.BufferSize <= 0 {
		return fmt.Errorf("mqtt buffer size must be positive: %d", c.MQTT.BufferSize)
	}

	tick := time.Duration(c.Policy.ControlTickMs) * time.Millisecond
	if c.StepInterval <= 0 || c.StepInterval > tick {
		return fmt.Errorf("step interval %v must be in (0, %v]", c.StepInterval, tick)
	}
	return nil
}

// ensureDefaults fills fields a partial file may have zeroed.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = def.MQTT.BufferSize
	}
	if c.StepInterval == 0 {
		c.StepInterval = def.StepInterval
	}
}
