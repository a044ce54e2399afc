package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/config"
)

type gatewayConfig struct {
	Timeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	Burst   int           `env:"GATEWAY_BURST" envDefault:"5"`
}

type appConfig struct {
	Gateway gatewayConfig
	Name    string `env:"APP_NAME" envDefault:"linebilling"`
}

type requiredConfig struct {
	Token string `env:"CONFIG_TEST_REQUIRED_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg appConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
		assert.Equal(t, 5, cfg.Gateway.Burst)
		assert.Equal(t, "linebilling", cfg.Name)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("GATEWAY_TIMEOUT", "3s")
		t.Setenv("APP_NAME", "bot")

		var cfg appConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
		assert.Equal(t, "bot", cfg.Name)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Setenv("TEST_GATEWAY_BURST", "9")

		var cfg gatewayConfig
		require.NoError(t, config.Load(&cfg, config.WithPrefix("TEST_")))
		assert.Equal(t, 9, cfg.Burst)
	})

	t.Run("missing required value", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *appConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CONFIG_TEST_REQUIRED_TOKEN=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CONFIG_TEST_REQUIRED_TOKEN") })

	var cfg requiredConfig
	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path)))
	assert.Equal(t, "from-file", cfg.Token)

	err := config.Load(&cfg, config.WithEnvFiles(filepath.Join(dir, "missing.env")))
	assert.ErrorIs(t, err, config.ErrEnvFileNotFound)
}

func TestMustLoadPanics(t *testing.T) {
	t.Setenv("CONFIG_TEST_REQUIRED_TOKEN", "")
	_ = os.Unsetenv("CONFIG_TEST_REQUIRED_TOKEN")

	var cfg requiredConfig
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
