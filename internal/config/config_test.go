package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8120, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, []string{"./templates"}, cfg.Templates.ScanPaths)
	assert.Equal(t, []string{"./drafts"}, cfg.Drafts.ScanPaths)
	assert.True(t, cfg.Render.Autoescape)
	assert.False(t, cfg.Render.Strict)
	assert.Equal(t, 32, cfg.Render.MaxIncludeDepth)
	assert.True(t, cfg.Development.HotReload)
	assert.True(t, cfg.Development.ErrorOverlay)
	assert.Equal(t, 300, cfg.Development.DebounceMs)
}

func TestLoad_Overrides(t *testing.T) {
	resetViper(t)
	viper.Set("server.port", 9000)
	viper.Set("templates.scan_paths", []string{"./views"})
	viper.Set("render.autoescape", false)
	viper.Set("render.strict", true)
	viper.Set("development.hot_reload", false)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"./views"}, cfg.Templates.ScanPaths)
	assert.False(t, cfg.Render.Autoescape)
	assert.True(t, cfg.Render.Strict)
	assert.False(t, cfg.Development.HotReload)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
		{"no scan paths", func(c *Config) { c.Templates.ScanPaths = nil }, "no template scan paths"},
		{"traversal", func(c *Config) { c.Templates.ScanPaths = []string{"../outside"} }, "directory traversal"},
		{"bad depth", func(c *Config) { c.Render.MaxIncludeDepth = -1 }, "must be positive"},
		{"bad debounce", func(c *Config) { c.Development.DebounceMs = -5 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
