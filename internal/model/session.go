package model

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// Session is a bundle of credentials that passed the site's bot challenge.
// It is immutable once created; a refresh replaces the whole value.
type Session struct {
	// Identity is the user agent string the credentials were issued to.
	// Requests made with the session must present the same identity.
	Identity string

	// credentials are cookie name/value pairs. Unexported so that
	// callers cannot mutate a session after construction.
	credentials map[string]string

	// CreatedAt is when the solver produced the session.
	CreatedAt time.Time
}

// NewSession creates a session, copying the credential map.
func NewSession(identity string, credentials map[string]string, createdAt time.Time) *Session {
	return &Session{
		Identity:    identity,
		credentials: maps.Clone(credentials),
		CreatedAt:   createdAt,
	}
}

// Credential returns a single credential by cookie name.
func (s *Session) Credential(name string) (string, bool) {
	v, ok := s.credentials[name]
	return v, ok
}

// Credentials returns a copy of all credentials.
func (s *Session) Credentials() map[string]string {
	return maps.Clone(s.credentials)
}

// CredentialNames returns the sorted cookie names. Safe to log.
func (s *Session) CredentialNames() []string {
	return slices.Sorted(maps.Keys(s.credentials))
}

// Len returns the number of credentials.
func (s *Session) Len() int {
	return len(s.credentials)
}

// CookieHeader renders the credentials as a Cookie header value.
// Names are sorted so the header is stable across calls.
func (s *Session) CookieHeader() string {
	names := s.CredentialNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+s.credentials[name])
	}
	return strings.Join(parts, "; ")
}

// Age returns how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// LogValue logs the identity and credential names, never the values.
func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("none")
	}
	return slog.GroupValue(
		slog.String("identity", s.Identity),
		slog.Any("names", s.CredentialNames()),
		slog.Time("created_at", s.CreatedAt),
	)
}

// ParseCookieHeader parses "a=b; c=d" into a credential map.
// Malformed pairs and empty names are ignored.
func ParseCookieHeader(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = strings.TrimSpace(value)
	}
	return out
}
