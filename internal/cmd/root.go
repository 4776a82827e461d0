/*
Package cmd provides the quickmailer CLI commands.
*/
package cmd

import (
	"github.com/spf13/cobra"
)

var envFiles []string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quickmailer",
	Short: "Personalized mass email through the sender's own Gmail account",
	Long: `QuickMailer renders saved templates per recipient from a spreadsheet and
delivers them through the signed-in user's Gmail mailbox, either as sent
messages or as drafts.

Example:
  quickmailer migrate           # Apply database migrations
  quickmailer serve             # Run the HTTP API and job workers
  quickmailer serve --workers=false
  quickmailer worker            # Run job workers only`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}
