package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port       int    `env:"TEST_CFG_PORT" envDefault:"8003"`
	BackendURL string `env:"TEST_CFG_BACKEND_URL" envDefault:"http://localhost:3001"`
	Debug      bool   `env:"TEST_CFG_DEBUG" envDefault:"false"`
}

type checkedConfig struct {
	TTLHours int `env:"TEST_CFG_TTL_HOURS" envDefault:"168"`
}

func (c *checkedConfig) Validate() error {
	if c.TTLHours <= 0 {
		return errors.New("ttl must be positive")
	}
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8003, cfg.Port)
	assert.Equal(t, "http://localhost:3001", cfg.BackendURL)
	assert.False(t, cfg.Debug)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_BACKEND_URL", "http://backend:3000")
	t.Setenv("TEST_CFG_DEBUG", "true")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "http://backend:3000", cfg.BackendURL)
	assert.True(t, cfg.Debug)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RunsValidator(t *testing.T) {
	t.Setenv("TEST_CFG_TTL_HOURS", "0")

	var cfg checkedConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "ttl must be positive")
}

func TestLoad_ValidatorPasses(t *testing.T) {
	var cfg checkedConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 168, cfg.TTLHours)
}
