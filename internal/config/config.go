// Package config provides configuration management for osier using Viper,
// loading from .osier.yml, OSIER_-prefixed environment variables, and
// command-line flags in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Templates   TemplatesConfig   `yaml:"templates"`
	Drafts      DraftsConfig      `yaml:"drafts"`
	Render      RenderConfig      `yaml:"render"`
	Development DevelopmentConfig `yaml:"development"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TemplatesConfig struct {
	ScanPaths       []string `yaml:"scan_paths"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type DraftsConfig struct {
	ScanPaths []string `yaml:"scan_paths"`
}

type RenderConfig struct {
	Strict          bool `yaml:"strict"`
	Autoescape      bool `yaml:"autoescape"`
	MaxIncludeDepth int  `yaml:"max_include_depth"`
}

type DevelopmentConfig struct {
	HotReload    bool `yaml:"hot_reload"`
	ErrorOverlay bool `yaml:"error_overlay"`
	DebounceMs   int  `yaml:"debounce_ms"`
}

// Load builds the configuration from viper's merged sources and applies
// defaults and validation.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply defaults for scan paths only if not explicitly set
	if !viper.IsSet("templates.scan_paths") && len(config.Templates.ScanPaths) == 0 {
		config.Templates.ScanPaths = []string{"./templates"}
	}
	if !viper.IsSet("drafts.scan_paths") && len(config.Drafts.ScanPaths) == 0 {
		config.Drafts.ScanPaths = []string{"./drafts"}
	}

	// Handle slices set via viper (workaround for viper slice handling)
	if viper.IsSet("templates.scan_paths") && len(config.Templates.ScanPaths) == 0 {
		config.Templates.ScanPaths = viper.GetStringSlice("templates.scan_paths")
	}
	if viper.IsSet("drafts.scan_paths") && len(config.Drafts.ScanPaths) == 0 {
		config.Drafts.ScanPaths = viper.GetStringSlice("drafts.scan_paths")
	}
	if viper.IsSet("templates.exclude_patterns") && len(config.Templates.ExcludePatterns) == 0 {
		config.Templates.ExcludePatterns = viper.GetStringSlice("templates.exclude_patterns")
	}

	// Handle booleans set via viper (workaround for viper bool handling)
	if viper.IsSet("render.strict") {
		config.Render.Strict = viper.GetBool("render.strict")
	}
	if viper.IsSet("render.autoescape") {
		config.Render.Autoescape = viper.GetBool("render.autoescape")
	} else {
		config.Render.Autoescape = true
	}
	if viper.IsSet("development.hot_reload") {
		config.Development.HotReload = viper.GetBool("development.hot_reload")
	} else {
		config.Development.HotReload = true
	}
	if viper.IsSet("development.error_overlay") {
		config.Development.ErrorOverlay = viper.GetBool("development.error_overlay")
	} else {
		config.Development.ErrorOverlay = true
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8120
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Render.MaxIncludeDepth == 0 {
		config.Render.MaxIncludeDepth = 32
	}
	if config.Development.DebounceMs == 0 {
		config.Development.DebounceMs = 300
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if len(c.Templates.ScanPaths) == 0 {
		return fmt.Errorf("no template scan paths configured")
	}
	for _, path := range append(append([]string{}, c.Templates.ScanPaths...), c.Drafts.ScanPaths...) {
		if strings.Contains(path, "..") {
			return fmt.Errorf("scan path %q contains directory traversal", path)
		}
	}
	if c.Render.MaxIncludeDepth < 1 {
		return fmt.Errorf("max include depth must be positive")
	}
	if c.Development.DebounceMs < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	return nil
}
