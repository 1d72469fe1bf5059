package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/config"
	"github.com/gunestv/dizicrawl/internal/crawler"
	"github.com/gunestv/dizicrawl/internal/database"
	"github.com/gunestv/dizicrawl/internal/egress"
	"github.com/gunestv/dizicrawl/internal/fetcher"
	"github.com/gunestv/dizicrawl/internal/model"
	"github.com/gunestv/dizicrawl/internal/pipeline"
	"github.com/gunestv/dizicrawl/internal/report"
	"github.com/gunestv/dizicrawl/internal/schedule"
	"github.com/gunestv/dizicrawl/internal/session"
	"github.com/gunestv/dizicrawl/internal/transport"
)

// ErrNoTargets is returned when crawl has nothing to crawl.
var ErrNoTargets = errors.New("no site to crawl: pass a site name or URL, use --base-url, or declare sites in the configuration file")

// ErrMixedSchedules is returned when the selected sites disagree on the
// cron schedule.
var ErrMixedSchedules = errors.New("selected sites use different schedules; crawl them separately")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [site-or-url...]",
		Short: "Bring one or more catalogs up to date",
		Long: `Crawl walks a site's listing pages and adds every item the catalog does
not have yet. Items the catalog holds only partially are fetched again.

Arguments are site names from the configuration file or site URLs. With no
arguments, --base-url selects a single site; otherwise every site declared
in the configuration file is crawled.

The walk ends when:
- a listing page answers 404 (end of catalog)
- --empty-pages consecutive pages list no items
- --known-threshold consecutive items are already complete
- --max-pages pages were walked

Examples:
  # Crawl the movies of a site
  dizicrawl crawl --base-url https://dizipal.example --kind movies

  # Crawl two configured sites, two at a time
  dizicrawl crawl films series -b 2

  # Use a cookie solved by hand instead of a browser
  dizicrawl crawl --base-url https://dizipal.example \
    --cookie "cf_clearance=..." --user-agent "Mozilla/5.0 ..."

  # Walk the whole catalog once, ignoring the known-item short-circuit
  dizicrawl crawl films --known-threshold -1

  # Crawl every six hours until interrupted
  dizicrawl crawl films --schedule "0 */6 * * *"

  # Write a Markdown report
  dizicrawl crawl films --markdown -o report.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Site flags
	cmd.Flags().StringP("kind", "k", string(model.KindMovies),
		"Catalog kind: movies or series")
	cmd.Flags().StringP("base-url", "u", "",
		"Site root URL (overrides the configuration file)")
	cmd.Flags().String("catalog", "",
		"Catalog JSON file (default: <data-dir>/catalogs/<site>-<kind>.json)")
	cmd.Flags().StringToString("header", nil,
		"Extra request header, e.g. --header Accept-Language=tr-TR (repeatable)")

	// Walk flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum listing pages per run (0 disables the cap)")
	cmd.Flags().Int("known-threshold", config.DefaultKnownThreshold,
		"Stop after this many consecutive complete items (<=0 disables)")
	cmd.Flags().Int("empty-pages", config.DefaultEmptyPageThreshold,
		"Stop after this many consecutive empty listing pages")
	cmd.Flags().Duration("refresh-after", 0,
		"Revisit entries crawled longer ago than this (series default: 24h)")

	// Politeness and retry flags
	cmd.Flags().Int("attempts", config.DefaultTransportAttempts,
		"Total attempts for a URL that fails below HTTP")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"First delay between transport attempts")
	cmd.Flags().Duration("delay", config.DefaultRequestDelay,
		"Minimum delay between requests")
	cmd.Flags().Duration("jitter", config.DefaultRequestJitter,
		"Maximum random delay added to --delay")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")

	// Session flags
	cmd.Flags().String("cookie", "",
		"Challenge cookie solved by hand; skips the browser")
	cmd.Flags().String("user-agent", "",
		"User agent matching --cookie")
	cmd.Flags().Bool("headless", true,
		"Run the challenge browser without a window")
	cmd.Flags().String("browser", "",
		"Browser binary for the challenge solver (default: downloaded)")

	// Egress flags
	cmd.Flags().Bool("tor", false,
		"Route all traffic through an embedded Tor daemon")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy, [socks5://][user:pass@]host:port")

	// Run flags
	cmd.Flags().String("schedule", "",
		`Repeat on a cron schedule until interrupted, e.g. "0 */6 * * *"`)
	cmd.Flags().IntP("concurrency", "b", 1,
		"Number of sites crawled at once")
	cmd.Flags().Bool("no-ledger", false,
		"Do not record fetches and runs in the ledger")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .dizicrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfgs, err := buildConfigs(cmd, args)
	if err != nil {
		return err
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, finishing the current item...")
			cancel()
		case <-ctx.Done():
		}
	}()

	env, err := openCrawlEnv(ctx, cfgs, concurrency, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	defer env.Close()

	spec := cfgs[0].Schedule
	if spec == "" {
		return env.runOnce(ctx)
	}

	sched, err := schedule.New(spec, schedule.WithImmediate(true), schedule.WithLogger(logger))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Crawling on schedule %q; press Ctrl-C to stop.\n", spec)
	return sched.Run(ctx, func(ctx context.Context) {
		if err := env.runOnce(ctx); err != nil {
			// The next tick tries again.
			logger.Error("scheduled crawl failed", "error", err)
		}
	})
}

// buildConfigs creates one Config per selected site from the preset, the
// configuration file and the flags, in increasing precedence.
func buildConfigs(cmd *cobra.Command, args []string) ([]*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cf, err := loadConfigFile(configPath)
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
	baseURL, err := cmd.Flags().GetString("base-url")
	if err != nil {
		return nil, err
	}

	type selection struct {
		site    string
		baseURL string
	}
	var selected []selection
	switch {
	case len(args) > 0:
		for _, arg := range args {
			if name := cf.FindSite(arg); name != "" {
				selected = append(selected, selection{site: name})
				continue
			}
			if siteHost(arg) == "" {
				return nil, fmt.Errorf("unknown site %q: not in the configuration file and not a URL", arg)
			}
			selected = append(selected, selection{baseURL: arg})
		}
	case baseURL != "":
		selected = append(selected, selection{site: cf.FindSite(baseURL)})
	default:
		for _, name := range cf.SiteNames() {
			selected = append(selected, selection{site: name})
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoTargets
	}
	if len(selected) > 1 && cmd.Flags().Changed("catalog") {
		return nil, errors.New("--catalog names a single file; select one site or configure catalogFile per site")
	}

	cfgs := make([]*config.Config, 0, len(selected))
	for _, sel := range selected {
		cfg := config.NewConfig()
		cfg.ConfigFilePath = configPath
		cfg.SiteConfigs = cf

		sc, err := config.Resolve(kind, cf, sel.site)
		if err != nil {
			return nil, err
		}
		// An explicit --kind beats the site's kind, preset included.
		if cmd.Flags().Changed("kind") && !strings.EqualFold(sc.Kind, string(kind)) {
			preset := config.Preset(kind)
			sc.Kind = preset.Kind
			sc.ListPath = preset.ListPath
			sc.FirstPageBare = preset.FirstPageBare
			sc.RequiredFields = preset.RequiredFields
			sc.RefreshAfter = preset.RefreshAfter
		}
		cfg.ApplySite(sc)
		cfg.Kind = model.Kind(strings.ToLower(sc.Kind))
		cfg.Site = sel.site
		if sel.baseURL != "" {
			cfg.BaseURL = sel.baseURL
		}

		if err := applyCrawlFlags(cmd, cfg); err != nil {
			return nil, err
		}
		if sel.baseURL != "" {
			cfg.BaseURL = sel.baseURL
		}
		if cfg.Site == "" {
			cfg.Site = siteHost(cfg.BaseURL)
		}
		if err := applyRunFlags(cmd, cfg); err != nil {
			return nil, err
		}
		if cfg.CatalogFile == "" {
			cfg.CatalogFile = config.CatalogFileIn(cfg.DBDir, cfg.Site, cfg.Kind)
		}

		if err := cfg.Validate(); err != nil {
			if cfg.Site != "" {
				return nil, fmt.Errorf("configuration error for %s: %w", cfg.Site, err)
			}
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		cfgs = append(cfgs, cfg)
	}

	for _, cfg := range cfgs[1:] {
		if cfg.Schedule != cfgs[0].Schedule {
			return nil, ErrMixedSchedules
		}
	}
	if spec := cfgs[0].Schedule; spec != "" {
		if _, err := schedule.Parse(spec); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}
	return cfgs, nil
}

// loadConfigFile loads the configuration file. If the user explicitly
// specified a path, a missing file is an error; otherwise an empty
// configuration is used.
func loadConfigFile(configPath string) (*config.File, error) {
	path := config.FindConfigFile(configPath)
	if path == "" {
		if configPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}

// applyCrawlFlags copies every site flag the user set onto cfg. Unset
// flags leave the file and preset values alone.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("base-url") {
		if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
			return err
		}
	}
	if flags.Changed("catalog") {
		if cfg.CatalogFile, err = flags.GetString("catalog"); err != nil {
			return err
		}
	}
	if flags.Changed("header") {
		headers, err := flags.GetStringToString("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Headers[k] = v
		}
	}

	intFlags := map[string]*int{
		"max-pages":       &cfg.MaxPages,
		"known-threshold": &cfg.KnownThreshold,
		"empty-pages":     &cfg.EmptyPageThreshold,
		"attempts":        &cfg.TransportAttempts,
	}
	for name, dst := range intFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetInt(name); err != nil {
			return err
		}
	}

	durationFlags := map[string]*time.Duration{
		"refresh-after": &cfg.RefreshAfter,
		"retry-delay":   &cfg.RetryDelay,
		"delay":         &cfg.RequestDelay,
		"jitter":        &cfg.RequestJitter,
		"timeout":       &cfg.Timeout,
		"tor-timeout":   &cfg.TorStartupTimeout,
	}
	for name, dst := range durationFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetDuration(name); err != nil {
			return err
		}
	}

	stringFlags := map[string]*string{
		"cookie":     &cfg.Cookie,
		"user-agent": &cfg.UserAgent,
		"browser":    &cfg.BrowserBin,
		"proxy":      &cfg.ProxyAddress,
		"schedule":   &cfg.Schedule,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return err
		}
	}

	if flags.Changed("headless") {
		if cfg.Headless, err = flags.GetBool("headless"); err != nil {
			return err
		}
	}
	if flags.Changed("tor") {
		if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
			return err
		}
		if cfg.UseTor && !flags.Changed("proxy") {
			cfg.ProxyAddress = ""
		}
	}
	return nil
}

// applyRunFlags copies the flags shared by every site.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	noLedger, err := flags.GetBool("no-ledger")
	if err != nil {
		return err
	}
	cfg.SaveToDB = !noLedger
	cfg.DBDir = dataDir(cmd)
	cfg.Verbose, _ = flags.GetBool("verbose") //nolint:errcheck // persistent flag always defined
	cfg.LogJSON, _ = flags.GetBool("log-json") //nolint:errcheck // persistent flag always defined
	return nil
}

// siteHost returns the host of a site URL without "www.", or "" when raw
// is not an absolute http(s) URL.
func siteHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// crawlEnv holds what outlives a single run: the ledger, the Tor daemon
// and the sessions carried over between scheduled runs.
type crawlEnv struct {
	cfgs        []*config.Config
	concurrency int
	out         io.Writer
	status      io.Writer
	logger      *slog.Logger

	db  *database.CrawlDB
	tor *egress.Tor

	mu       sync.Mutex
	sessions map[string]*model.Session
}

// openCrawlEnv opens the ledger and starts the egress shared by all sites.
func openCrawlEnv(ctx context.Context, cfgs []*config.Config, concurrency int, out, status io.Writer, logger *slog.Logger) (*crawlEnv, error) {
	env := &crawlEnv{
		cfgs:        cfgs,
		concurrency: concurrency,
		out:         out,
		status:      status,
		logger:      logger,
		sessions:    make(map[string]*model.Session),
	}

	first := cfgs[0]
	if first.SaveToDB {
		db, err := database.Open(first.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		env.db = db
		logger.Info("ledger opened", "path", db.Path())
	}

	for _, cfg := range cfgs {
		if cfg.UseTor {
			if err := env.startTor(ctx, cfg); err != nil {
				env.Close()
				return nil, err
			}
			break
		}
	}

	// Fail before any browser starts if an external proxy is unusable.
	for _, cfg := range cfgs {
		if cfg.ProxyAddress == "" {
			continue
		}
		p, err := egress.NewProxy(cfg.ProxyAddress)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("%s: %w", cfg.Site, err)
		}
		if status := p.Check(ctx, probeAddress(cfg.BaseURL)); status != egress.StatusOK {
			env.Close()
			return nil, fmt.Errorf("proxy check failed for %s: %w (make sure the proxy is running at %s)",
				cfg.Site, status.Err(), p.Address())
		}
		logger.Info("proxy connection verified", "site", cfg.Site, "address", p.Address())
	}

	return env, nil
}

// startTor starts the embedded Tor daemon.
func (e *crawlEnv) startTor(ctx context.Context, cfg *config.Config) error {
	fmt.Fprintln(e.status, "Starting embedded Tor daemon...")
	fmt.Fprintf(e.status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	e.tor = egress.NewTor(
		egress.WithStartupTimeout(cfg.TorStartupTimeout),
		egress.WithLogger(e.logger),
	)
	if err := e.tor.Start(ctx); err != nil {
		e.tor = nil
		return fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	e.logger.Info("embedded Tor daemon started", "socksAddr", e.tor.SocksAddr())
	return nil
}

// Close stops the Tor daemon and closes the ledger.
func (e *crawlEnv) Close() {
	if e.tor != nil {
		e.logger.Info("stopping embedded Tor daemon...")
		if err := e.tor.Stop(); err != nil {
			e.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Error("failed to close ledger", "error", err)
		}
	}
}

// runOnce crawls every site once, writes the report and records the runs.
// The error joins the fatal errors of all sites.
func (e *crawlEnv) runOnce(ctx context.Context) error {
	targets := make([]pipeline.Target, 0, len(e.cfgs))
	for _, cfg := range e.cfgs {
		run, err := e.siteRun(cfg)
		if err != nil {
			return err
		}
		targets = append(targets, pipeline.Target{Name: cfg.Site, Run: run})
	}

	batch := pipeline.NewBatch(
		pipeline.WithConcurrency(e.concurrency),
		pipeline.WithBatchLogger(e.logger),
	)
	results, batchErr := batch.Run(ctx, targets)

	reports := make([]*model.RunReport, 0, len(results))
	var errs []error
	for _, res := range results {
		if res.Report != nil {
			reports = append(reports, res.Report)
			e.saveRun(ctx, res.Report)
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}

	if len(reports) > 0 {
		if err := e.writeReport(reports); err != nil {
			errs = append(errs, fmt.Errorf("report failed: %w", err))
		}
	}
	if len(errs) == 0 && batchErr != nil {
		errs = append(errs, batchErr)
	}
	return errors.Join(errs...)
}

// siteRun wires the components of one site and returns its crawl.
func (e *crawlEnv) siteRun(cfg *config.Config) (pipeline.RunFunc, error) {
	logger := e.logger.With("site", cfg.Site)

	var egressProxy *egress.Proxy
	var err error
	switch {
	case cfg.UseTor && e.tor != nil:
		egressProxy, err = e.tor.Proxy()
	case cfg.ProxyAddress != "":
		egressProxy, err = egress.NewProxy(cfg.ProxyAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Site, err)
	}

	t := transport.New(cfg.BaseURL, transportOptions(cfg, egressProxy, e.db, logger)...)
	solver := newSolver(cfg, egressProxy, logger)
	store := catalog.NewStore(cfg.CatalogFile, catalog.WithLogger(logger))

	return func(ctx context.Context) (*model.RunReport, error) {
		fetchOpts := []fetcher.Option{
			fetcher.WithTransportAttempts(cfg.TransportAttempts),
			fetcher.WithRetryDelay(cfg.RetryDelay),
			fetcher.WithLogger(logger),
		}
		if sess := e.session(cfg.Site); sess != nil {
			fetchOpts = append(fetchOpts, fetcher.WithSession(sess))
		}
		f := fetcher.New(t, solver, fetchOpts...)

		c := crawler.New(crawler.Target{
			Site:       cfg.Site,
			Kind:       cfg.Kind,
			BaseURL:    cfg.BaseURL,
			ListingURL: cfg.ListingURL,
			Policy: catalog.Policy{
				Kind:           cfg.Kind,
				RequiredFields: cfg.RequiredFields,
				RefreshAfter:   cfg.RefreshAfter,
			},
		}, f, store,
			crawler.WithThresholds(crawler.Thresholds{
				KnownThreshold:     cfg.KnownThreshold,
				EmptyPageThreshold: cfg.EmptyPageThreshold,
				MaxPages:           cfg.MaxPages,
			}),
			crawler.WithLogger(logger),
		)

		rep, err := c.Run(ctx)
		e.keepSession(cfg.Site, f.Session())
		return rep, err
	}, nil
}

// transportOptions builds the transport of one site.
func transportOptions(cfg *config.Config, p *egress.Proxy, db *database.CrawlDB, logger *slog.Logger) []transport.Option {
	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithPoliteness(cfg.RequestDelay, cfg.RequestJitter),
		transport.WithBlockStatuses(cfg.BlockStatuses...),
		transport.WithDetector(session.NewDetector(cfg.ChallengeMarkers...)),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithHeaders(cfg.Headers),
		transport.WithLogger(logger),
	}
	if p != nil {
		opts = append(opts, transport.WithRoundTripper(p.Transport()))
	}
	if db != nil {
		opts = append(opts, transport.WithObserver(db.Observer(cfg.Site, logger)))
	}
	return opts
}

// newSolver returns the static solver when a cookie is configured and the
// browser solver otherwise.
func newSolver(cfg *config.Config, p *egress.Proxy, logger *slog.Logger) session.Solver {
	if cfg.Cookie != "" {
		return session.NewStaticSolver(cfg.Cookie, cfg.UserAgent)
	}

	opts := []session.RodOption{
		session.WithHeadless(cfg.Headless),
		session.WithUserAgent(cfg.UserAgent),
		session.WithAttempts(cfg.SolverAttempts),
		session.WithTimeout(cfg.SolverTimeout),
		session.WithMarkers(cfg.ChallengeMarkers...),
		session.WithLogger(logger),
	}
	if cfg.BrowserBin != "" {
		opts = append(opts, session.WithBrowserBin(cfg.BrowserBin))
	}
	if p != nil {
		if p.HasAuth() {
			logger.Warn("the browser cannot authenticate to the proxy; use an unauthenticated proxy or --cookie")
		}
		opts = append(opts, session.WithProxy(p.URL()))
	}
	return session.NewRodSolver(cfg.ListingURL(1), opts...)
}

func (e *crawlEnv) session(site string) *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[site]
}

func (e *crawlEnv) keepSession(site string, sess *model.Session) {
	if sess == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[site] = sess
}

// saveRun records a report in the ledger. A ledger failure never fails
// the crawl.
func (e *crawlEnv) saveRun(ctx context.Context, rep *model.RunReport) {
	if e.db == nil {
		return
	}
	id, err := e.db.SaveRun(context.WithoutCancel(ctx), rep)
	if err != nil {
		e.logger.Error("failed to save run", "site", rep.Site, "error", err)
		return
	}
	e.logger.Info("run saved", "site", rep.Site, "id", id)
}

// writeReport outputs the reports in the requested format.
func (e *crawlEnv) writeReport(reports []*model.RunReport) error {
	cfg := e.cfgs[0]

	// Determine output destination
	output := e.out
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	w := newReportWriter(cfg, output)
	var err error
	if len(reports) == 1 {
		_, err = w.Write(reports[0])
	} else {
		_, err = w.WriteSummary(reports)
	}
	return err
}

// newReportWriter selects the writer for the report flags.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// probeAddress returns host:port of a site URL for the proxy check.
func probeAddress(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
