package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background job workers only",
	Long: `Worker executes background bulk runs, scheduled sends and the
attachment purge without serving HTTP.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}
	if err := a.start(ctx); err != nil {
		_ = a.close(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info("shutting down workers")

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer done()

	stopErr := a.stop(shutdownCtx)
	if err := a.close(shutdownCtx); err != nil && stopErr == nil {
		return err
	}
	return stopErr
}
