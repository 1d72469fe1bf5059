package canon

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// ErrNotHTTP is returned for URLs whose scheme is not http or https.
var ErrNotHTTP = errors.New("not an http(s) url")

var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// Canonicalize returns the catalog key for raw.
//
// The scheme and host are lowercased, default ports and dot segments are
// removed, the query string and fragment are stripped and the path gets a
// single trailing slash.
func Canonicalize(raw string) (string, error) {
	parsed, err := urlParser.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", raw, err)
	}
	return reduce(parsed.Href(true))
}

// Resolve resolves ref against base and canonicalizes the result.
// It is used for relative links found on fetched pages.
func Resolve(base, ref string) (string, error) {
	parsed, err := urlParser.ParseRef(base, strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("resolve %q against %q: %w", ref, base, err)
	}
	return reduce(parsed.Href(true))
}

// Key is Canonicalize for callers that cannot handle an error: an
// unparsable URL is used trimmed as its own key.
func Key(raw string) string {
	key, err := Canonicalize(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return key
}

// Equal reports whether a and b canonicalize to the same key.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}

// SameHost reports whether both URLs point at the same host.
func SameHost(a, b string) bool {
	ua, errA := url.Parse(Key(a))
	ub, errB := url.Parse(Key(b))
	if errA != nil || errB != nil {
		return false
	}
	return ua.Host == ub.Host
}

func reduce(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", href, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("canonicalize %q: %w", href, ErrNotHTTP)
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = withTrailingSlash(u.Path)
	if u.RawPath != "" {
		u.RawPath = withTrailingSlash(u.RawPath)
	}

	return u.String(), nil
}

func withTrailingSlash(p string) string {
	return strings.TrimRight(p, "/") + "/"
}
