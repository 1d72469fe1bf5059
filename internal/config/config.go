package config

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/gunestv/dizicrawl/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "dizicrawl"

	// DefaultTimeout is the per-request timeout of the lightweight transport.
	DefaultTimeout = 15 * time.Second

	// DefaultKnownThreshold is the number of consecutive already-complete
	// items after which the walk assumes the rest of the catalog is unchanged.
	DefaultKnownThreshold = 30

	// DefaultEmptyPageThreshold is the number of consecutive listing pages
	// without items that ends the walk.
	DefaultEmptyPageThreshold = 2

	// DefaultMaxPages caps the walk. It is a safety bound only; the
	// thresholds above are what normally end a run.
	DefaultMaxPages = 500

	// DefaultTransportAttempts is the total number of attempts made for a
	// URL that keeps failing below the HTTP layer.
	DefaultTransportAttempts = 3

	// DefaultRetryDelay is the first delay between transport attempts.
	// Later delays grow exponentially.
	DefaultRetryDelay = 2 * time.Second

	// DefaultRequestDelay is the minimum spacing between two requests.
	DefaultRequestDelay = 1 * time.Second

	// DefaultRequestJitter is the upper bound of the random delay added on
	// top of DefaultRequestDelay.
	DefaultRequestJitter = 500 * time.Millisecond

	// DefaultSolverTimeout bounds one browser challenge-solving session.
	DefaultSolverTimeout = 90 * time.Second

	// DefaultSolverAttempts is how many times the solver re-checks the
	// page title before giving up.
	DefaultSolverAttempts = 3

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent is presented by the browser solver and, when no
	// session identity is known yet, by the transport.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// DefaultBlockStatuses are the HTTP statuses that mean the challenge
// re-triggered.
var DefaultBlockStatuses = []int{403}

// DefaultChallengeMarkers are page-title fragments of the challenge
// interstitial.
var DefaultChallengeMarkers = []string{"Just a moment", "Attention Required"}

// Config holds all options of one crawl invocation. It is populated from
// the kind preset, the configuration file and CLI flags, in that order.
type Config struct {
	// Site is the name of the site section used from the config file.
	// Empty when the site is given only by --base-url.
	Site string

	// Kind selects movies (flat) or series (nested) extraction.
	Kind model.Kind

	// BaseURL is the scheme and host of the catalog site.
	BaseURL string

	// ListPath is the listing path, e.g. "/filmler/".
	ListPath string

	// FirstPageBare serves page 1 at ListPath instead of ListPath+"page/1/".
	FirstPageBare bool

	// CatalogFile is the JSON file holding the catalog.
	CatalogFile string

	// MaxPages caps the walk; 0 disables the cap.
	MaxPages int

	// KnownThreshold ends the walk after this many consecutive complete
	// items; 0 or less disables the short-circuit.
	KnownThreshold int

	// EmptyPageThreshold ends the walk after this many consecutive empty
	// listing pages. Must be at least 1.
	EmptyPageThreshold int

	// RefreshAfter marks entries older than this as incomplete so they are
	// re-fetched as update work; 0 disables staleness.
	RefreshAfter time.Duration

	// RequiredFields must all be present for an entry to be complete.
	RequiredFields []string

	// TransportAttempts is the total attempts per URL for transport errors.
	TransportAttempts int

	// RetryDelay is the initial backoff between transport attempts.
	RetryDelay time.Duration

	// RequestDelay is the minimum spacing between requests.
	RequestDelay time.Duration

	// RequestJitter is the maximum random delay added to RequestDelay.
	RequestJitter time.Duration

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// BlockStatuses are the statuses classified as Blocked.
	BlockStatuses []int

	// ChallengeMarkers are the title fragments of the challenge page.
	ChallengeMarkers []string

	// Headers are extra request headers.
	Headers map[string]string

	// Cookie, when set, selects the static solver: the operator supplies
	// the challenge cookie obtained by hand.
	Cookie string

	// UserAgent is the identity used with Cookie, and by the browser.
	UserAgent string

	// Headless runs the browser solver without a window.
	Headless bool

	// BrowserBin is an explicit browser binary; empty lets rod download or
	// find one.
	BrowserBin string

	// SolverTimeout bounds one challenge-solving session.
	SolverTimeout time.Duration

	// SolverAttempts is how many title checks the solver makes.
	SolverAttempts int

	// UseTor routes both the browser and the transport through an
	// embedded Tor daemon.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// ProxyAddress is an external SOCKS5 proxy in host:port form.
	// Mutually exclusive with UseTor.
	ProxyAddress string

	// Schedule is a cron expression; when set the crawl repeats until
	// interrupted.
	Schedule string

	// ConfigFilePath is the explicit configuration file path.
	ConfigFilePath string

	// SiteConfigs holds the parsed configuration file.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the report format; both false
	// selects the plain text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the ledger directory; SaveToDB enables the ledger.
	DBDir    string
	SaveToDB bool

	// Verbose enables debug logging; LogJSON selects JSON log lines.
	Verbose bool
	LogJSON bool
}

// NewConfig creates a Config with default values and no site selected.
func NewConfig() *Config {
	return &Config{
		Kind:               model.KindMovies,
		MaxPages:           DefaultMaxPages,
		KnownThreshold:     DefaultKnownThreshold,
		EmptyPageThreshold: DefaultEmptyPageThreshold,
		TransportAttempts:  DefaultTransportAttempts,
		RetryDelay:         DefaultRetryDelay,
		RequestDelay:       DefaultRequestDelay,
		RequestJitter:      DefaultRequestJitter,
		Timeout:            DefaultTimeout,
		BlockStatuses:      append([]int(nil), DefaultBlockStatuses...),
		ChallengeMarkers:   append([]string(nil), DefaultChallengeMarkers...),
		UserAgent:          DefaultUserAgent,
		Headless:           true,
		SolverTimeout:      DefaultSolverTimeout,
		SolverAttempts:     DefaultSolverAttempts,
		TorStartupTimeout:  DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the data directory: ledger database and default
// catalog files live here.
// On Linux: ~/.local/share/dizicrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory.
// On Linux: ~/.config/dizicrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the cache directory; the browser profile lives here.
// On Linux: ~/.cache/dizicrawl
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultCatalogFile returns the catalog path used when none is configured.
func DefaultCatalogFile(site string, kind model.Kind) string {
	return CatalogFileIn(XDGDataDir(), site, kind)
}

// CatalogFileIn returns the default catalog path under dataDir.
func CatalogFileIn(dataDir, site string, kind model.Kind) string {
	name := string(kind)
	if site != "" {
		name = site + "-" + name
	}
	return filepath.Join(dataDir, "catalogs", name+".json")
}

// ApplySite copies every non-zero value of sc into c.
func (c *Config) ApplySite(sc SiteConfig) {
	if sc.Kind != "" {
		c.Kind = model.Kind(strings.ToLower(sc.Kind))
	}
	if sc.BaseURL != "" {
		c.BaseURL = sc.BaseURL
	}
	if sc.ListPath != "" {
		c.ListPath = sc.ListPath
	}
	if sc.FirstPageBare != nil {
		c.FirstPageBare = *sc.FirstPageBare
	}
	if sc.CatalogFile != "" {
		c.CatalogFile = sc.CatalogFile
	}
	if sc.MaxPages != 0 {
		c.MaxPages = sc.MaxPages
	}
	if sc.KnownThreshold != 0 {
		c.KnownThreshold = sc.KnownThreshold
	}
	if sc.EmptyPageThreshold != 0 {
		c.EmptyPageThreshold = sc.EmptyPageThreshold
	}
	if sc.RefreshAfter != 0 {
		c.RefreshAfter = sc.RefreshAfter
	}
	if len(sc.RequiredFields) > 0 {
		c.RequiredFields = append([]string(nil), sc.RequiredFields...)
	}
	if sc.TransportAttempts != 0 {
		c.TransportAttempts = sc.TransportAttempts
	}
	if sc.RetryDelay != 0 {
		c.RetryDelay = sc.RetryDelay
	}
	if sc.RequestDelay != 0 {
		c.RequestDelay = sc.RequestDelay
	}
	if sc.RequestJitter != 0 {
		c.RequestJitter = sc.RequestJitter
	}
	if sc.Timeout != 0 {
		c.Timeout = sc.Timeout
	}
	if len(sc.BlockStatuses) > 0 {
		c.BlockStatuses = append([]int(nil), sc.BlockStatuses...)
	}
	if len(sc.ChallengeMarkers) > 0 {
		c.ChallengeMarkers = append([]string(nil), sc.ChallengeMarkers...)
	}
	if len(sc.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(sc.Headers))
		}
		for k, v := range sc.Headers {
			c.Headers[k] = v
		}
	}
	if sc.Cookie != "" {
		c.Cookie = sc.Cookie
	}
	if sc.UserAgent != "" {
		c.UserAgent = sc.UserAgent
	}
	if sc.Headless != nil {
		c.Headless = *sc.Headless
	}
	if sc.BrowserBin != "" {
		c.BrowserBin = sc.BrowserBin
	}
	if sc.Tor != nil {
		c.UseTor = *sc.Tor
	}
	if sc.Proxy != "" {
		c.ProxyAddress = sc.Proxy
	}
	if sc.Schedule != "" {
		c.Schedule = sc.Schedule
	}
}

// ListingURL returns the URL of listing page n (1-based).
func (c *Config) ListingURL(n int) string {
	base := strings.TrimRight(c.BaseURL, "/")
	path := "/" + strings.Trim(c.ListPath, "/") + "/"
	if path == "//" {
		path = "/"
	}
	if n <= 1 && c.FirstPageBare {
		return base + path
	}
	return base + path + "page/" + strconv.Itoa(n) + "/"
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if _, err := model.ParseKind(string(c.Kind)); err != nil {
		return ErrInvalidKind
	}
	if c.CatalogFile == "" {
		return ErrNoCatalogFile
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.EmptyPageThreshold < 1 {
		return ErrInvalidEmptyPageThreshold
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.TransportAttempts < 1 {
		return ErrInvalidTransportAttempts
	}
	if c.RetryDelay < 0 || c.RequestDelay < 0 || c.RequestJitter < 0 {
		return ErrInvalidDelay
	}
	if c.RefreshAfter < 0 {
		return ErrInvalidRefreshAfter
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingEgress
	}
	return nil
}
