package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	contents := `
vin: 5YJ30000000000000
debug: true
adapter: tinygo
connect_timeout: 30s
command_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	config := NewConfig()
	require.NoError(t, config.Load(path))

	assert.Equal(t, "5YJ30000000000000", config.VIN)
	assert.True(t, config.Debug)
	assert.Equal(t, AdapterTinyGo, config.Adapter)
	assert.Equal(t, 30*time.Second, config.ConnectTimeout.Duration)
	assert.Equal(t, 2*time.Second, config.CommandTimeout.Duration)
	assert.NoError(t, config.Validate())
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	config := NewConfig()
	require.NoError(t, config.Load(filepath.Join(t.TempDir(), "absent.yml")))

	assert.Equal(t, AdapterGoBLE, config.Adapter)
	assert.Equal(t, 20*time.Second, config.ConnectTimeout.Duration)
	assert.Equal(t, 5*time.Second, config.CommandTimeout.Duration)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("connect_timeout: soon\n"), 0600))

	config := NewConfig()
	assert.Error(t, config.Load(path))
}

func TestReadFromEnvironment(t *testing.T) {
	t.Setenv("TESLA_VIN", "5YJ30000000000000")
	t.Setenv("TESLA_VERBOSE", "1")
	t.Setenv("TESLA_BLE_ADAPTER", AdapterTinyGo)

	config := NewConfig()
	config.ReadFromEnvironment()

	assert.Equal(t, "5YJ30000000000000", config.VIN)
	assert.True(t, config.Debug)
	assert.Equal(t, AdapterTinyGo, config.Adapter)
}

func TestReadFromEnvironmentDoesNotOverrideExplicitValues(t *testing.T) {
	t.Setenv("TESLA_VIN", "XP7YGCEL9RB000001")
	t.Setenv("TESLA_VERBOSE", "false")

	config := NewConfig()
	config.VIN = "5YJ30000000000000"
	config.Debug = true
	config.ReadFromEnvironment()

	assert.Equal(t, "5YJ30000000000000", config.VIN)
	assert.True(t, config.Debug)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with VIN", func(c *Config) { c.VIN = "5YJ30000000000000" }, false},
		{"missing VIN", func(c *Config) {}, true},
		{"unknown adapter", func(c *Config) { c.VIN = "5YJ30000000000000"; c.Adapter = "bluez" }, true},
		{"zero timeout", func(c *Config) { c.VIN = "5YJ30000000000000"; c.CommandTimeout.Duration = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
