package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osierhq/osier/internal/config"
	"github.com/osierhq/osier/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the preview server",
	Long: `Start the development preview server. Templates and drafts under the
configured scan paths are discovered, watched for changes, and served with
live reload at http://<host>:<port>/.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "server port (overrides config)")
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Bool("no-reload", false, "disable hot reload")
	addFlagValidation(serveCmd, "port", validatePort)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.HotReload = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger()
	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Serving on http://%s:%d/\n", cfg.Server.Host, cfg.Server.Port)
	return srv.Start(ctx)
}
