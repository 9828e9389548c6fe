package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridflex/flexcore/app"
	"github.com/gridflex/flexcore/config"
	"github.com/gridflex/flexcore/infra/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduling service",
	Long: `Starts the belief store, the MQTT belief ingestor, the scheduling worker
pool and, when configured, the Prometheus scrape endpoint. Runs until
interrupted.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("serve-command").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
