package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/config"
	"github.com/gunestv/dizicrawl/internal/model"
)

// NewCatalogCmd creates the catalog command.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog <site-or-file>",
		Short: "Inspect or repair a catalog file",
		Long: `Catalog lists the entries of a catalog, or checks and repairs it.

The argument is a site name from the configuration file, whose catalog
path and kind are used, or the path of a catalog file.

Examples:
  # List entries with their completeness
  dizicrawl catalog films

  # Counts only
  dizicrawl catalog films --stats

  # Report duplicate entries or children without changing the file
  dizicrawl catalog ./series.json --kind series --verify

  # Merge duplicates and rewrite the file
  dizicrawl catalog ./series.json --kind series --compact`,
		Args: cobra.ExactArgs(1),
		RunE: runCatalogCmd,
	}

	cmd.Flags().StringP("kind", "k", string(model.KindMovies),
		"Catalog kind when the argument is a file")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .dizicrawl in current or home directory)")
	cmd.Flags().Bool("stats", false, "Print counts instead of entries")
	cmd.Flags().Bool("verify", false, "Check the file for duplicate entries and children")
	cmd.Flags().Bool("compact", false, "Merge duplicate entries and rewrite the file")
	cmd.Flags().IntP("limit", "n", 0, "Maximum entries to list (0 lists all)")

	cmd.MarkFlagsMutuallyExclusive("stats", "verify", "compact")
	return cmd
}

func runCatalogCmd(cmd *cobra.Command, args []string) error {
	cfg, err := catalogConfig(cmd, args[0])
	if err != nil {
		return err
	}
	store := catalog.NewStore(cfg.CatalogFile, catalog.WithLogger(newLogger(cmd)))
	policy := catalog.Policy{
		Kind:           cfg.Kind,
		RequiredFields: cfg.RequiredFields,
		RefreshAfter:   cfg.RefreshAfter,
	}
	out := cmd.OutOrStdout()
	flags := cmd.Flags()

	if verify, _ := flags.GetBool("verify"); verify { //nolint:errcheck // flag defined above
		problems, err := store.Verify()
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			fmt.Fprintf(out, "%s: no problems found\n", store.Path())
			return nil
		}
		t := newTable(out, table.Row{"Index", "URL", "Problem"})
		for _, p := range problems {
			t.AppendRow(table.Row{p.Index, p.URL, p.Reason})
		}
		t.Render()
		return fmt.Errorf("%s: %d problem(s) found; run with --compact to repair", store.Path(), len(problems))
	}

	cat, err := store.Load(policy)
	if err != nil {
		return err
	}

	if compact, _ := flags.GetBool("compact"); compact { //nolint:errcheck // flag defined above
		if err := store.Persist(cat); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d entries written, %d duplicate(s) merged\n",
			store.Path(), cat.Len(), cat.MergedOnLoad())
		return nil
	}

	if stats, _ := flags.GetBool("stats"); stats { //nolint:errcheck // flag defined above
		writeStatsTable(out, store.Path(), cat)
		return nil
	}

	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	writeEntriesTable(out, cat, limit)
	return nil
}

// catalogConfig resolves the catalog path and policy of a site name or a
// file path.
func catalogConfig(cmd *cobra.Command, arg string) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	kindFlag, err := cmd.Flags().GetString("kind")
	if err != nil {
		return nil, err
	}
	kind, err := model.ParseKind(kindFlag)
	if err != nil {
		return nil, err
	}

	cf, err := loadConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	site := cf.FindSite(arg)
	sc, err := config.Resolve(kind, cf, site)
	if err != nil {
		return nil, err
	}
	cfg.ApplySite(sc)
	if site == "" {
		cfg.CatalogFile = arg
		return cfg, nil
	}
	cfg.Site = site
	if cfg.CatalogFile == "" {
		cfg.CatalogFile = config.CatalogFileIn(dataDir(cmd), site, cfg.Kind)
	}
	return cfg, nil
}

func writeStatsTable(w io.Writer, path string, cat *catalog.Catalog) {
	s := cat.Stats()
	t := newTable(w, table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Catalog", path},
		{"Entries", s.Entries},
		{"Complete", s.Complete},
		{"Incomplete", s.Incomplete},
		{"Episodes", s.Children},
		{"Duplicates merged on load", cat.MergedOnLoad()},
	})
	t.Render()
}

func writeEntriesTable(w io.Writer, cat *catalog.Catalog, limit int) {
	t := newTable(w, table.Row{"#", "Title", "URL", "Status", "Episodes", "Crawled"})
	entries := cat.Entries()
	for i, e := range entries {
		if limit > 0 && i >= limit {
			break
		}
		t.AppendRow(table.Row{
			i + 1,
			truncate(e.Title, 40),
			e.URL,
			cat.Status(e.URL),
			len(e.Children),
			formatTime(e.CrawledAt),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(entries)})
	t.Render()
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
