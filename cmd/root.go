// Package cmd provides the command-line interface for Osier.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. OSIER_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (OSIER_SERVER_PORT, etc.)
//	4. Configuration files (.osier.yml) - lowest priority
//
// Environment Variables:
//
//	OSIER_CONFIG_FILE: Path to custom configuration file
//	OSIER_SERVER_PORT: Override server port
//	OSIER_SERVER_HOST: Override server host
//	OSIER_DEVELOPMENT_HOT_RELOAD: Enable/disable hot reload
//	And more following the OSIER_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/osierhq/osier/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "osier",
	Short: "A live-reload preview tool for Twig templates and Markdown drafts",
	Long: `Osier renders Twig templates against Markdown drafts and previews the
result in the browser with hot reload.

Key Features:
  • Template and draft discovery
  • Hot reload development server
  • Draft-aware template preview
  • Template linting with positioned diagnostics
  • WebSocket-based live updates

Quick Start:
  osier serve                     Start the preview server
  osier list                      List all templates
  osier render page.twig          Render a template to stdout
  osier lint                      Check templates for errors

Command Aliases (for faster typing):
  serve (s), render (r), list (l), lint (check)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .osier.yml, can also use OSIER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. OSIER_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .osier.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("OSIER_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".osier")
	}

	// Enable automatic environment variable binding with OSIER_ prefix
	// Examples: OSIER_SERVER_PORT, OSIER_SERVER_HOST, OSIER_DEVELOPMENT_HOT_RELOAD
	viper.SetEnvPrefix("OSIER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file falls back to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the persistent log-level flag.
func newLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Output: os.Stderr,
	})
}
