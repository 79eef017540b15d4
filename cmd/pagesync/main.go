package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/am"
	"github.com/teranos/pagesync/cmd/pagesync/commands"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pagesync",
	Short: "pagesync - keep a Markdown tree and a wiki space in step",
	Long: `pagesync - keep a local Markdown tree and a remote wiki space in step.

Each tracked document carries a local, remote and base hash. Comparing them
tells whether a document is synced, has local edits to push, remote edits to
pull, or conflicting edits on both sides.

Available commands:
  status   - Show the sync state of local documents
  pull     - Fetch remote changes into the local tree
  push     - Publish local changes to the remote store
  resolve  - Settle a conflict by accepting one side
  validate - Check documents for broken links and malformed macros
  links    - Show how a document's links changed since the last sync
  watch    - Poll the remote store and follow local edits
  am       - Show and check configuration

Examples:
  pagesync status              # State of every document
  pagesync pull --all          # Pull every page in the configured scope
  pagesync push guide/setup.md # Publish one document
  pagesync watch               # Poll until interrupted`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to load .env")
		}
		configPath, _ := cmd.Flags().GetString("config")
		am.SetConfigFile(configPath)

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json")
		if cfg, err := am.Load(); err == nil && cfg.Log.JSON {
			jsonLogs = true
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search pagesync.toml upward)")

	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.PullCmd)
	rootCmd.AddCommand(commands.PushCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.LinksCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		if !errors.Is(err, commands.ErrValidationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			for _, hint := range errors.GetAllHints(err) {
				fmt.Fprintln(os.Stderr, "Hint:", hint)
			}
		}
		os.Exit(1)
	}
}
