package log

import (
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"cookie":              true,
	"cookies":             true,
	"set-cookie":          true,
	"authorization":       true,
	"proxy-authorization": true,
	"credential":          true,
	"credentials":         true,
	"cf_clearance":        true,
	"__cf_bm":             true,
	"cf_chl_rc_m":         true,
	"phpsessid":           true,
	"password":            true,
	"passwd":              true,
	"token":               true,
}

// sensitiveKeywords mask any key containing them. The bare "key" is left
// out: "catalog_key" and "page_key" are ordinary.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "clearance", "credential", "cookie",
}

// inlineCookie matches name=value pairs of the challenge cookies inside a
// longer string, such as an error message or a raw header dump.
var inlineCookie = regexp.MustCompile(`(?i)\b(cf_clearance|__cf_bm|cf_chl_[a-z_]+|phpsessid)=([^;\s"]+)`)

// opaqueToken matches a bare clearance-looking token: long, no spaces.
var opaqueToken = regexp.MustCompile(`^[A-Za-z0-9_.\-]{64,}$`)

// proxyUserinfo finds scheme://user:pass@ prefixes.
var proxyUserinfo = regexp.MustCompile(`[a-z0-9+.\-]+://[^/\s@]+@[^\s]+`)

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// RedactString masks secrets embedded in s and returns the rest intact.
// A string that is itself an opaque token is masked entirely.
func RedactString(s string) string {
	if opaqueToken.MatchString(s) {
		return MaskValue
	}
	s = inlineCookie.ReplaceAllString(s, "${1}="+MaskValue)
	return proxyUserinfo.ReplaceAllStringFunc(s, redactURLPassword)
}

func redactURLPassword(raw string) string {
	start := strings.Index(raw, "://") + len("://")
	at := strings.Index(raw[start:], "@")
	if at < 0 {
		return raw
	}
	userinfo := raw[start : start+at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return raw
	}
	// The mask is spliced in as is; re-encoding the URL would escape it.
	return raw[:start+colon+1] + MaskValue + raw[start+at:]
}
