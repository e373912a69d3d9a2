// Package cli gathers configuration for the command-line tool from a YAML
// file, environment variables, and command-line flags, in that order of
// increasing precedence.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
	"github.com/jan21493/tesla-ble-state/pkg/connector/ble/goble"
	"github.com/jan21493/tesla-ble-state/pkg/connector/ble/tinygo"
	"github.com/jan21493/tesla-ble-state/pkg/vehicle"
)

const (
	AdapterGoBLE  = "goble"  // raw HCI socket on Linux, CoreBluetooth on macOS
	AdapterTinyGo = "tinygo" // BlueZ over D-Bus on Linux, CoreBluetooth on macOS

	defaultConnectTimeout = 20 * time.Second
	defaultCommandTimeout = 5 * time.Second
)

// Duration wraps time.Duration so YAML values can be written as "20s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds everything the CLI needs to reach a vehicle.
type Config struct {
	VIN            string   `yaml:"vin"`
	Debug          bool     `yaml:"debug"`
	Adapter        string   `yaml:"adapter"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	CommandTimeout Duration `yaml:"command_timeout"`

	bleAdapter ble.Adapter
}

// NewConfig returns a Config with default timeouts and adapter.
func NewConfig() *Config {
	return &Config{
		Adapter:        AdapterGoBLE,
		ConnectTimeout: Duration{defaultConnectTimeout},
		CommandTimeout: Duration{defaultCommandTimeout},
	}
}

// Load merges settings from a YAML file. A missing file is not an error so
// the default config path can be probed unconditionally.
func (c *Config) Load(filename string) error {
	contents, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(contents, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}

// ReadFromEnvironment merges settings from TESLA_VIN, TESLA_VERBOSE, and
// TESLA_BLE_ADAPTER. Values already set by flags win.
func (c *Config) ReadFromEnvironment() {
	if c.VIN == "" {
		c.VIN = os.Getenv("TESLA_VIN")
	}
	if !c.Debug {
		if verbose, ok := os.LookupEnv("TESLA_VERBOSE"); ok {
			c.Debug = verbose != "false" && verbose != "0"
		}
	}
	if adapter, ok := os.LookupEnv("TESLA_BLE_ADAPTER"); ok && adapter != "" {
		c.Adapter = adapter
	}
}

// RegisterCommandLineFlags installs the Config's flags into the default
// FlagSet. Call before flag.Parse.
func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.VIN, "vin", c.VIN, "Vehicle Identification Number. Defaults to $TESLA_VIN.")
	flag.BoolVar(&c.Debug, "debug", c.Debug, "Enable verbose debugging messages")
	flag.StringVar(&c.Adapter, "ble-adapter", c.Adapter, "BLE host stack: 'goble' or 'tinygo'")
	flag.DurationVar(&c.ConnectTimeout.Duration, "connect-timeout", c.ConnectTimeout.Duration, "Set timeout for establishing initial connection.")
	flag.DurationVar(&c.CommandTimeout.Duration, "command-timeout", c.CommandTimeout.Duration, "Set timeout for commands sent to the vehicle.")
}

// Validate checks that the configuration can produce a usable session.
func (c *Config) Validate() error {
	if c.VIN == "" {
		return fmt.Errorf("no VIN configured (use -vin or $TESLA_VIN)")
	}
	if c.Adapter != AdapterGoBLE && c.Adapter != AdapterTinyGo {
		return fmt.Errorf("unknown BLE adapter %q", c.Adapter)
	}
	if c.ConnectTimeout.Duration <= 0 || c.CommandTimeout.Duration <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Connect opens the configured BLE adapter and establishes a session with
// the configured vehicle. Call Close when done with the returned session.
func (c *Config) Connect(ctx context.Context) (*vehicle.Vehicle, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	adapter, err := c.newAdapter()
	if err != nil {
		return nil, err
	}
	car, err := vehicle.Connect(ctx, c.VIN, adapter)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	c.bleAdapter = adapter
	return car, nil
}

// Close releases the BLE adapter opened by Connect.
func (c *Config) Close() error {
	if c.bleAdapter == nil {
		return nil
	}
	adapter := c.bleAdapter
	c.bleAdapter = nil
	return adapter.Close()
}

func (c *Config) newAdapter() (ble.Adapter, error) {
	switch c.Adapter {
	case AdapterTinyGo:
		return tinygo.NewAdapter()
	default:
		return goble.NewAdapter()
	}
}
