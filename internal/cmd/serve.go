package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

var serveWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve runs the HTTP API. Job workers run in the same process unless
--workers=false is given, in which case jobs are only enqueued and a
separate "quickmailer worker" process executes them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", true, "run job workers in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, log, serveWorkers)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}

	srv, err := a.server()
	if err != nil {
		_ = a.close(context.Background())
		return err
	}

	return httpapi.Run(ctx, srv, httpapi.RunConfig{
		Addr:            cfg.Addr(),
		ShutdownTimeout: cfg.ShutdownTimeout,
		StartupHooks:    []func(context.Context) error{a.start},
		ShutdownHooks:   []func(context.Context) error{a.stop, a.close},
	}, log)
}
