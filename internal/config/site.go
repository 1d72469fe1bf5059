package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/gunestv/dizicrawl/internal/model"
)

// SiteConfig holds the configuration of one catalog site. Every field is
// optional; unset fields fall back to the defaults section, then to the
// kind preset, then to the built-in defaults.
type SiteConfig struct {
	// BaseURL is the scheme and host, e.g. "https://dizipal1538.com".
	BaseURL string `yaml:"baseURL,omitempty"`

	// Kind is "movies" or "series".
	Kind string `yaml:"kind,omitempty"`

	// ListPath is the listing path, e.g. "/diziler/".
	ListPath string `yaml:"listPath,omitempty"`

	// FirstPageBare serves page 1 at ListPath without the page/1/ suffix.
	FirstPageBare *bool `yaml:"firstPageBare,omitempty"`

	// CatalogFile is the JSON catalog path for this site.
	CatalogFile string `yaml:"catalogFile,omitempty"`

	// MaxPages caps the walk.
	MaxPages int `yaml:"maxPages,omitempty"`

	// KnownThreshold is the consecutive complete-item threshold.
	// Use a negative value to disable it from the file.
	KnownThreshold int `yaml:"knownThreshold,omitempty"`

	// EmptyPageThreshold is the consecutive empty-page threshold.
	EmptyPageThreshold int `yaml:"emptyPageThreshold,omitempty"`

	// RefreshAfter marks older entries as incomplete.
	RefreshAfter time.Duration `yaml:"refreshAfter,omitempty"`

	// RequiredFields must be present for an entry to be complete.
	RequiredFields []string `yaml:"requiredFields,omitempty"`

	TransportAttempts int           `yaml:"transportAttempts,omitempty"`
	RetryDelay        time.Duration `yaml:"retryDelay,omitempty"`
	RequestDelay      time.Duration `yaml:"requestDelay,omitempty"`
	RequestJitter     time.Duration `yaml:"requestJitter,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`

	// BlockStatuses are the HTTP statuses classified as Blocked.
	BlockStatuses []int `yaml:"blockStatuses,omitempty"`

	// ChallengeMarkers are title fragments of the challenge page.
	ChallengeMarkers []string `yaml:"challengeMarkers,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Cookie is a challenge cookie obtained by hand.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// UserAgent must match the browser the Cookie was obtained with.
	UserAgent string `yaml:"userAgent,omitempty"`

	Headless   *bool  `yaml:"headless,omitempty"`
	BrowserBin string `yaml:"browserBin,omitempty"`
	Tor        *bool  `yaml:"tor,omitempty"`
	Proxy      string `yaml:"proxy,omitempty"`

	// Schedule is a cron expression for repeated crawls.
	Schedule string `yaml:"schedule,omitempty"`
}

// File represents the structure of the .dizicrawl configuration file.
type File struct {
	// Sites maps a site name to its configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to all sites unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// Preset returns the built-in configuration of a catalog kind.
func Preset(kind model.Kind) SiteConfig {
	bare := true
	switch kind {
	case model.KindSeries:
		return SiteConfig{
			Kind:           string(model.KindSeries),
			ListPath:       "/diziler/",
			FirstPageBare:  &bare,
			RequiredFields: []string{model.FieldPoster},
			RefreshAfter:   24 * time.Hour,
		}
	default:
		return SiteConfig{
			Kind:           string(model.KindMovies),
			ListPath:       "/filmler/",
			RequiredFields: []string{model.FieldVideoURL},
		}
	}
}

// GetSiteConfig returns the configuration of a named site, merged over
// the defaults section. An unknown name yields the defaults.
func (cf *File) GetSiteConfig(name string) (SiteConfig, error) {
	result := cloneSite(cf.Defaults)
	site, ok := cf.Sites[name]
	if !ok {
		return result, nil
	}
	if err := mergeSite(&result, site); err != nil {
		return SiteConfig{}, fmt.Errorf("merge site %q: %w", name, err)
	}
	return result, nil
}

// HasSite reports whether the file declares the named site.
func (cf *File) HasSite(name string) bool {
	_, ok := cf.Sites[name]
	return ok
}

// SiteNames returns the declared site names in sorted order.
func (cf *File) SiteNames() []string {
	return slices.Sorted(maps.Keys(cf.Sites))
}

// FindSite resolves a site by name, or by the host of a URL matching a
// site's baseURL. It returns the site name, or "" when nothing matches.
func (cf *File) FindSite(nameOrURL string) string {
	if cf.HasSite(nameOrURL) {
		return nameOrURL
	}
	host := hostOf(nameOrURL)
	if host == "" {
		return ""
	}
	for _, name := range cf.SiteNames() {
		if hostOf(cf.Sites[name].BaseURL) == host {
			return name
		}
	}
	return ""
}

// Resolve builds the effective site configuration for a kind and an
// optional site name: preset, then file defaults, then the site section.
func Resolve(kind model.Kind, cf *File, site string) (SiteConfig, error) {
	result := Preset(kind)
	if cf == nil {
		return result, nil
	}
	fromFile, err := cf.GetSiteConfig(site)
	if err != nil {
		return SiteConfig{}, err
	}
	// A site section may change the kind; its preset then applies instead.
	if fromFile.Kind != "" && !strings.EqualFold(fromFile.Kind, string(kind)) {
		result = Preset(model.Kind(strings.ToLower(fromFile.Kind)))
	}
	if err := mergeSite(&result, fromFile); err != nil {
		return SiteConfig{}, fmt.Errorf("merge preset: %w", err)
	}
	return result, nil
}

// mergeSite overlays the set fields of src onto dst. Optional booleans are
// copied by hand: mergo treats an explicit false as empty.
func mergeSite(dst *SiteConfig, src SiteConfig) error {
	src = cloneSite(src)
	firstPageBare, headless, tor := src.FirstPageBare, src.Headless, src.Tor
	src.FirstPageBare, src.Headless, src.Tor = nil, nil, nil

	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return err
	}
	if firstPageBare != nil {
		dst.FirstPageBare = firstPageBare
	}
	if headless != nil {
		dst.Headless = headless
	}
	if tor != nil {
		dst.Tor = tor
	}
	return nil
}

// cloneSite copies the reference fields so that merging never writes
// into the parsed file.
func cloneSite(sc SiteConfig) SiteConfig {
	sc.Headers = maps.Clone(sc.Headers)
	sc.RequiredFields = slices.Clone(sc.RequiredFields)
	sc.BlockStatuses = slices.Clone(sc.BlockStatuses)
	sc.ChallengeMarkers = slices.Clone(sc.ChallengeMarkers)
	sc.FirstPageBare = cloneBool(sc.FirstPageBare)
	sc.Headless = cloneBool(sc.Headless)
	sc.Tor = cloneBool(sc.Tor)
	return sc
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
