package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/priyanshudevsingh/quickmailer/internal/config"
	"github.com/priyanshudevsingh/quickmailer/internal/db/migrations"
	"github.com/priyanshudevsingh/quickmailer/pkg/db"
	"github.com/priyanshudevsingh/quickmailer/pkg/job"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
)

const migrationsTable = "goose_db_version"

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Migrate applies the application schema and the job queue schema.`,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load[config.Migrate](envFiles...)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	defer logger.Flush(cfg.Log)
	ctx := cmd.Context()

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, migrations.FS, migrationsTable, log)
	if err != nil {
		return err
	}
	if err := job.Migrate(ctx, pool, log); err != nil {
		return err
	}
	log.Info("migrations applied", slog.Int64("schema_version", applied))
	return nil
}
