package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

// HTTPFetcher retrieves one URL. Implementations must be safe for concurrent use.
type HTTPFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*models.FetchResponse, error)
}

// FetchError is the typed failure returned by Fetcher
type FetchError struct {
	Kind       models.FetchErrorKind
	URL        string
	StatusCode int // Set for http_status failures
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s %d after %d attempt(s): %v", e.URL, e.Kind, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetcherConfig holds per-run fetch settings
type FetcherConfig struct {
	UserAgent         string
	Timeout           time.Duration // Per attempt, covering headers and body
	Retries           int           // Extra attempts after the first
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	MaxBodyBytes      int64   // <= 0 means unlimited
	RequestsPerSecond float64 // <= 0 disables the global limiter
}

// Fetcher handles making HTTP requests with configured retry logic, using an underlying http.Client
type Fetcher struct {
	client  *http.Client
	cfg     FetcherConfig
	limiter *rate.Limiter // nil when unlimited
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg FetcherConfig, log *logrus.Entry) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.InitialRetryDelay <= 0 {
		cfg.InitialRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 10 * time.Second
	}
	f := &Fetcher{client: client, cfg: cfg, log: log}
	if cfg.RequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.RequestsPerSecond))
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// Fetch performs a GET with up to Retries+1 attempts.
// Transient network errors, timeouts, 5xx and 429 are retried with exponential backoff and jitter.
// Each attempt runs under its own timeout and is not interrupted by ctx; ctx is checked before each
// attempt and during backoff sleeps, so cancellation lets the in-flight attempt finish but starts no new one.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResponse, error) {
	reqLog := f.log.WithField("url", rawURL)
	maxAttempts := f.cfg.Retries + 1

	var lastErr *FetchError
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {

		// --- Context Check ---
		if err := ctx.Err(); err != nil {
			return nil, f.cancelled(rawURL, attempts, lastErr, err)
		}

		// --- Exponential Backoff Delay ---
		if attempt > 1 {
			finalDelay := f.backoff(attempt - 1)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": maxAttempts, "delay": finalDelay}).Debug("Retrying request...")

			select {
			case <-time.After(finalDelay):
			case <-ctx.Done():
				reqLog.Debugf("Context cancelled during retry sleep: %v", ctx.Err())
				return nil, f.cancelled(rawURL, attempts, lastErr, ctx.Err())
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, f.cancelled(rawURL, attempts, lastErr, err)
			}
		}

		attempts++
		resp, ferr, retryable := f.attempt(ctx, rawURL)
		if ferr == nil {
			resp.Attempts = attempts
			reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Debug("Successfully fetched")
			return resp, nil
		}
		ferr.Attempts = attempts
		lastErr = ferr
		if !retryable {
			reqLog.WithFields(logrus.Fields{"kind": ferr.Kind, "status_code": ferr.StatusCode}).Debug("Non-retryable fetch failure")
			return nil, ferr
		}
		reqLog.WithFields(logrus.Fields{"kind": ferr.Kind, "attempt": attempt}).Debugf("Fetch attempt failed: %v", ferr.Err)
	}

	// --- All Retries Failed ---
	reqLog.Debugf("All %d fetch attempts failed. Last error: %v", maxAttempts, lastErr.Err)
	if maxAttempts > 1 {
		lastErr.Err = fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr.Err)
	}
	return nil, lastErr
}

// backoff returns initial*2^(n-1), capped, with +/- 10% jitter
func (f *Fetcher) backoff(n int) time.Duration {
	backoff := float64(f.cfg.InitialRetryDelay) * math.Pow(2, float64(n-1))
	delay := time.Duration(backoff)
	if delay <= 0 || delay > f.cfg.MaxRetryDelay {
		delay = f.cfg.MaxRetryDelay
	}
	var jitter time.Duration
	if delay >= 5 {
		jitter = time.Duration(rand.Int63n(int64(delay)/5)) - (delay / 10)
	}
	if finalDelay := delay + jitter; finalDelay > 0 {
		return finalDelay
	}
	return 0
}

// cancelled builds the error returned when ctx ends between attempts.
// The last attempt's failure is kept so the caller still sees why the URL was not fetched.
func (f *Fetcher) cancelled(rawURL string, attempts int, lastErr *FetchError, ctxErr error) *FetchError {
	if lastErr != nil {
		lastErr.Attempts = attempts
		lastErr.Err = fmt.Errorf("%w (context done: %w)", lastErr.Err, ctxErr)
		return lastErr
	}
	return &FetchError{Kind: models.FetchErrorConnection, URL: rawURL, Attempts: attempts, Err: ctxErr}
}

// attempt runs one request; the bool reports whether the failure is worth retrying
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*models.FetchResponse, *FetchError, bool) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: models.FetchErrorConnection, URL: rawURL,
			Err: fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)}, false
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyNetErr(err), URL: rawURL, Err: err}, true
	}
	defer resp.Body.Close()

	statusCode := resp.StatusCode
	switch {
	case statusCode >= 200 && statusCode < 400:
		// Success; 3xx only reaches here when the redirect cap stopped following
	case statusCode >= 500:
		drain(resp.Body)
		return nil, &FetchError{Kind: models.FetchErrorHTTPStatus, URL: rawURL, StatusCode: statusCode,
			Err: fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)}, true
	case statusCode == http.StatusTooManyRequests:
		drain(resp.Body)
		return nil, &FetchError{Kind: models.FetchErrorHTTPStatus, URL: rawURL, StatusCode: statusCode,
			Err: fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)}, true
	case statusCode >= 400:
		drain(resp.Body)
		return nil, &FetchError{Kind: models.FetchErrorHTTPStatus, URL: rawURL, StatusCode: statusCode,
			Err: fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)}, false
	default:
		drain(resp.Body)
		return nil, &FetchError{Kind: models.FetchErrorHTTPStatus, URL: rawURL, StatusCode: statusCode,
			Err: fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)}, false
	}

	var reader io.Reader = resp.Body
	if f.cfg.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, f.cfg.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{Kind: classifyNetErr(err), URL: rawURL,
			Err: fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)}, true
	}

	contentType := resp.Header.Get("Content-Type")
	if isTextual(contentType) {
		body = decodeUTF8(body, contentType, f.log)
	}

	return &models.FetchResponse{
		RequestURL:  rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  statusCode,
		ContentType: contentType,
		Body:        body,
	}, nil, false
}

func classifyNetErr(err error) models.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FetchErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.FetchErrorTimeout
	}
	return models.FetchErrorConnection
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
}

// isTextual reports whether a body should go through charset decoding; an empty type is sniffed
func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" || strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, marker := range []string{"html", "xml", "json", "javascript", "ecmascript", "css"} {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

// decodeUTF8 converts body to UTF-8 using the declared or sniffed charset; on failure the raw bytes are kept
func decodeUTF8(body []byte, contentType string, log *logrus.Entry) []byte {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "" || (!certain && utf8.Valid(body)) {
		return body
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		log.Debugf("Charset reader for %q failed: %v", contentType, err)
		return body
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		log.Debugf("Charset decoding (%s) failed: %v", name, err)
		return body
	}
	return decoded
}
