package fetch

import (
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"url-spider/pkg/config"
	"url-spider/pkg/utils"
)

// ClientOptions carries per-run request decoration applied to every outgoing request
type ClientOptions struct {
	Headers map[string]string
	Cookie  string // Raw "name=value; name2=value2" string
}

// NewClient creates a new HTTP client based on the provided configuration.
// The client keeps a cookie jar so session cookies set by the site are replayed, and injects the
// configured headers and cookies on every request.
func NewClient(cfg config.HTTPClientConfig, opts ClientOptions, log *logrus.Entry) (*http.Client, error) {
	log.Debug("Initializing HTTP client...")

	// Create custom dialer with configured timeouts
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment, // Use system proxy settings
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20,
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	cookies, err := parseCookies(opts.Cookie)
	if err != nil {
		return nil, err
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &decoratingTransport{
			base:    transport,
			headers: opts.Headers,
			cookies: cookies,
		},
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				// Hand back the last 3xx instead of failing; it still counts as a fetched page
				log.Debugf("Redirect cap (%d) reached at %s", maxRedirects, req.URL)
				return http.ErrUseLastResponse
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	log.Debug("HTTP client initialized.")
	return client, nil
}

// parseCookies splits a Cookie header value into cookies
func parseCookies(raw string) ([]*http.Cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "Cookie:")
	cookies, err := http.ParseCookie(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cookie string: %w", utils.ErrConfigValidation, err)
	}
	return cookies, nil
}

// ParseHeaders converts "Name: value" strings into a header map
func ParseHeaders(lines []string) (map[string]string, error) {
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q is not in 'Name: value' form", utils.ErrConfigValidation, line)
		}
		headers[http.CanonicalHeaderKey(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// decoratingTransport adds configured headers and cookies without overriding values already on the request
type decoratingTransport struct {
	base    http.RoundTripper
	headers map[string]string
	cookies []*http.Cookie
}

func (t *decoratingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 && len(t.cookies) == 0 {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	for name, value := range t.headers {
		if clone.Header.Get(name) == "" {
			clone.Header.Set(name, value)
		}
	}
	for _, c := range t.cookies {
		if _, err := clone.Cookie(c.Name); err != nil {
			clone.AddCookie(c)
		}
	}
	return t.base.RoundTrip(clone)
}
