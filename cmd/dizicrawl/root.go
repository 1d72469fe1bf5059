package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gunestv/dizicrawl/internal/config"
	"github.com/gunestv/dizicrawl/internal/log"
)

// NewRootCmd creates the root command for dizicrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dizicrawl",
		Short: "Incremental catalog crawler for challenge-protected streaming sites",
		Long: `dizicrawl keeps a local JSON catalog of a streaming site's movies or series.

Each run walks the listing pages in order, fetches the detail page of every
item that is new or incomplete, and writes the catalog after every item.
The walk stops at the end of the catalog or as soon as it reaches a run of
items the catalog already holds, so repeated runs are cheap.

The site's bot challenge is solved once in a headless browser; the cookies
are then reused by a lightweight HTTP client.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write log lines as JSON")
	cmd.PersistentFlags().String("data-dir", config.XDGDataDir(), "Directory holding the run ledger and default catalogs")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCatalogCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the logger selected by the global flags. Logs go to
// stderr so that reports on stdout stay clean.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")  //nolint:errcheck // persistent flag always defined
	asJSON, _ := cmd.Flags().GetBool("log-json") //nolint:errcheck // persistent flag always defined
	return log.New(cmd.ErrOrStderr(), log.Options{Verbose: verbose, JSON: asJSON})
}

// dataDir returns the --data-dir value.
func dataDir(cmd *cobra.Command) string {
	f := cmd.Flag("data-dir")
	if f == nil || f.Value.String() == "" {
		return config.XDGDataDir()
	}
	return f.Value.String()
}
