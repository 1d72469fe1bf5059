// Package transport performs the lightweight HTTP fetches of a crawl and
// classifies every response into a model.FetchOutcome.
//
// Requests reuse the cookies and user agent of the session a browser
// obtained. The TLS fingerprint is hardened with cloudflare-bp-go so the
// site keeps accepting the session outside the browser.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/gunestv/dizicrawl/internal/model"
	"github.com/gunestv/dizicrawl/internal/session"
)

// Defaults for HTTPTransport.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRedirect = 10
	defaultLanguage    = "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7"
	defaultAccept      = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ErrUnexpectedStatus is the cause of a TransportError for statuses that
// are neither success, not-found nor block.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Observer receives a record of every completed exchange.
type Observer func(ctx context.Context, rec model.FetchRecord)

// HTTPTransport is the resty-based transport.
type HTTPTransport struct {
	client        *resty.Client
	baseURL       string
	userAgent     string
	headers       map[string]string
	blockStatuses map[int]bool
	detector      session.Detector
	limiter       *rate.Limiter
	jitter        time.Duration
	observers     []Observer
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.client.SetTimeout(d) }
}

// WithRoundTripper replaces the underlying transport, e.g. with a SOCKS
// egress. The TLS hardening is applied on top of it.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(t *HTTPTransport) { t.client.SetTransport(rt) }
}

// WithPoliteness enforces at least delay between requests plus a random
// extra wait of up to jitter.
func WithPoliteness(delay, jitter time.Duration) Option {
	return func(t *HTTPTransport) {
		if delay > 0 {
			t.limiter = rate.NewLimiter(rate.Every(delay), 1)
		} else {
			t.limiter = nil
		}
		t.jitter = jitter
	}
}

// WithBlockStatuses sets the statuses classified as Blocked.
func WithBlockStatuses(statuses ...int) Option {
	return func(t *HTTPTransport) {
		t.blockStatuses = make(map[int]bool, len(statuses))
		for _, s := range statuses {
			t.blockStatuses[s] = true
		}
	}
}

// WithDetector sets the challenge page detector.
func WithDetector(d session.Detector) Option {
	return func(t *HTTPTransport) { t.detector = d }
}

// WithUserAgent sets the identity used when the session carries none.
func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(t *HTTPTransport) {
		for k, v := range headers {
			t.headers[k] = v
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(t *HTTPTransport) { t.observers = append(t.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = logger }
}

// New creates a transport for the site at baseURL. Redirects are only
// followed within the site's host.
func New(baseURL string, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client:        resty.New(),
		baseURL:       baseURL,
		headers:       map[string]string{"Accept": defaultAccept, "Accept-Language": defaultLanguage},
		blockStatuses: map[int]bool{http.StatusForbidden: true},
		detector:      session.NewDetector(),
		logger:        slog.Default(),
		now:           time.Now,
	}
	t.client.SetTimeout(DefaultTimeout)
	if hosts := redirectHosts(baseURL); hosts != nil {
		t.client.SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(DefaultMaxRedirect),
			resty.DomainCheckRedirectPolicy(hosts...),
		)
	}

	for _, opt := range opts {
		opt(t)
	}

	t.client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(t.client.GetClient().Transport)
	t.client.SetLogger(restyLogger{t.logger})
	t.client.OnBeforeRequest(t.beforeRequest)
	return t
}

// beforeRequest enforces the politeness delay.
func (t *HTTPTransport) beforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx := req.Context()
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if t.jitter > 0 {
		d := time.Duration(rand.Int64N(int64(t.jitter)))
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Fetch issues a GET for rawURL with the session's credentials and
// classifies the result. It never returns an error: every failure is a
// TransportError outcome.
func (t *HTTPTransport) Fetch(ctx context.Context, rawURL string, sess *model.Session) model.FetchOutcome {
	started := t.now()

	req := t.client.R().SetContext(ctx).SetHeaders(t.headers)
	ua := t.userAgent
	if sess != nil {
		if sess.Identity != "" {
			ua = sess.Identity
		}
		if sess.Len() > 0 {
			req.SetHeader("Cookie", sess.CookieHeader())
		}
	}
	if ua != "" {
		req.SetHeader("User-Agent", ua)
	}
	if t.baseURL != "" {
		req.SetHeader("Referer", t.baseURL)
	}

	resp, err := req.Get(rawURL)
	rec := model.FetchRecord{URL: rawURL, FetchedAt: started}

	var outcome model.FetchOutcome
	if err != nil {
		outcome = model.TransportError(err)
	} else {
		rec.StatusCode = resp.StatusCode()
		rec.Bytes = len(resp.Body())
		outcome = t.classify(rawURL, resp, started)
	}

	rec.Outcome = outcome.Kind
	rec.Elapsed = t.now().Sub(started)
	if outcome.Cause != nil {
		rec.Error = outcome.Cause.Error()
	}
	t.logger.Debug("fetched", "url", rawURL, "outcome", outcome.Kind, "status", rec.StatusCode, "bytes", rec.Bytes, "elapsed", rec.Elapsed)
	for _, o := range t.observers {
		o(ctx, rec)
	}
	return outcome
}

func (t *HTTPTransport) classify(rawURL string, resp *resty.Response, fetchedAt time.Time) model.FetchOutcome {
	status := resp.StatusCode()
	body := resp.Body()

	switch {
	case status >= 200 && status < 300:
		if t.detector.IsChallengeDocument(body) {
			return model.Blocked()
		}
		finalURL := rawURL
		if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
			finalURL = raw.Request.URL.String()
		}
		return model.Ok(model.NewDocument(finalURL, status, resp.Header().Get("Content-Type"), body, fetchedAt))
	case status == http.StatusNotFound:
		return model.NotFound()
	case t.blockStatuses[status]:
		return model.Blocked()
	case t.detector.IsChallengeDocument(body):
		return model.Blocked()
	default:
		return model.TransportError(fmt.Errorf("%w %d", ErrUnexpectedStatus, status))
	}
}

// restyLogger routes resty's own messages to slog at debug level.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// redirectHosts returns the bare and www. forms of baseURL's host.
func redirectHosts(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	bare := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return []string{bare, "www." + bare}
}
