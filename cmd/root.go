package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the rejectfewer application
var rootCmd = &cobra.Command{
	Use:   "rejectfewer",
	Short: "Moves job application rejection emails to Trash",
	Long: `rejectfewer reads the unread messages in your primary inbox, asks a language
model whether each one rejects a job application you submitted, and lets the
model move the rejections to Trash. Nothing is deleted permanently; trashed
messages can be restored.

It can run as:
  - A terminal UI with a live run log (default)
  - A headless command for cron jobs
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// Persistent flags shared by every command.
var (
	cfgFile     string
	accountName string
	dryRun      bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rejectfewer version %s\n" .Version}}`)

	// If no subcommand is provided, open the terminal UI
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "ui")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/rejectfewer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&accountName, "account", "default", "Google account name to use")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Classify messages but never move them to Trash")

	rootCmd.AddCommand(newUICmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newTrashCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
