package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-spider/pkg/config"
	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

// testConfig returns a FetcherConfig with fast retry delays for testing
func testConfig(retries int) FetcherConfig {
	return FetcherConfig{
		UserAgent:         "test-agent",
		Timeout:           2 * time.Second,
		Retries:           retries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(statusCodes[idx])
		_, _ = w.Write([]byte("<html><a href=\"/x\">x</a></html>"))
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func asFetchError(t *testing.T, err error) *FetchError {
	t.Helper()
	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %T: %v", err, err)
	return fe
}

func TestFetch_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
		{"204 No Content", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})
			fetcher := NewFetcher(testClient(), testConfig(3), testLogger())

			resp, err := fetcher.Fetch(context.Background(), server.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.statusCode, resp.StatusCode)
			assert.Equal(t, 1, resp.Attempts)
			assert.Equal(t, int32(1), attempts.Load())
			assert.Equal(t, server.URL, resp.RequestURL)
			assert.Contains(t, resp.ContentType, "text/html")
		})
	}
}

func TestFetch_ServerError_RetrySuccess(t *testing.T) {
	// 500 → 500 → 200 (succeeds on 3rd attempt)
	server, attempts := mockServer(t, []int{500, 500, 200})
	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())

	resp, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_ServerError_AllRetriesFail(t *testing.T) {
	server, attempts := mockServer(t, []int{503})
	fetcher := NewFetcher(testClient(), testConfig(2), testLogger())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	fe := asFetchError(t, err)

	assert.Equal(t, models.FetchErrorHTTPStatus, fe.Kind)
	assert.Equal(t, 503, fe.StatusCode)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, int32(3), attempts.Load())
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.ErrorIs(t, err, utils.ErrServerHTTPError)
	assert.Equal(t, "RetryFailed_HTTPServer", utils.CategorizeError(err))
}

func TestFetch_RateLimit_RetrySuccess(t *testing.T) {
	server, attempts := mockServer(t, []int{429, 200})
	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())

	resp, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetch_ClientError_NoRetry(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404, 410} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server, attempts := mockServer(t, []int{code})
			fetcher := NewFetcher(testClient(), testConfig(3), testLogger())

			_, err := fetcher.Fetch(context.Background(), server.URL)
			fe := asFetchError(t, err)

			assert.Equal(t, models.FetchErrorHTTPStatus, fe.Kind)
			assert.Equal(t, code, fe.StatusCode)
			assert.Equal(t, 1, fe.Attempts)
			assert.Equal(t, int32(1), attempts.Load(), "4xx must not be retried")
			assert.ErrorIs(t, err, utils.ErrClientHTTPError)
			assert.NotErrorIs(t, err, utils.ErrRetryFailed)
		})
	}
}

func TestFetch_404Category(t *testing.T) {
	server, _ := mockServer(t, []int{404})
	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	assert.Equal(t, "HTTP_404", utils.CategorizeError(err))
}

func TestFetch_RedirectStatusIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(1), testLogger())
	resp, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	resp, err := fetcher.Fetch(context.Background(), server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/old", resp.RequestURL)
	assert.Equal(t, server.URL+"/new", resp.FinalURL)
	assert.Equal(t, "moved", string(resp.Body))
}

func TestFetch_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, server.URL)
	fe := asFetchError(t, err)
	assert.Equal(t, 0, fe.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetch_ContextCancelled_DuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{500})
	cfg := testConfig(5)
	cfg.InitialRetryDelay = time.Second
	cfg.MaxRetryDelay = time.Second
	fetcher := NewFetcher(testClient(), cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.Fetch(ctx, server.URL)
	elapsed := time.Since(start)

	fe := asFetchError(t, err)
	assert.Equal(t, 500, fe.StatusCode, "last attempt's failure is preserved")
	assert.Equal(t, 1, fe.Attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), attempts.Load(), "no retry may start after cancellation")
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestFetch_InFlightAttemptSurvivesCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("done"))
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()

	resp, err := fetcher.Fetch(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "done", string(resp.Body))
}

func TestFetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(1)
	cfg.Timeout = 50 * time.Millisecond
	fetcher := NewFetcher(testClient(), cfg, testLogger())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	fe := asFetchError(t, err)
	assert.Equal(t, models.FetchErrorTimeout, fe.Kind)
	assert.Equal(t, 2, fe.Attempts)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
}

func TestFetch_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close() // Nothing listens any more

	fetcher := NewFetcher(testClient(), testConfig(1), testLogger())
	_, err := fetcher.Fetch(context.Background(), url)
	fe := asFetchError(t, err)
	assert.Equal(t, models.FetchErrorConnection, fe.Kind)
	assert.Equal(t, 2, fe.Attempts)
}

func TestFetch_ZeroRetries(t *testing.T) {
	server, attempts := mockServer(t, []int{500, 200})
	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	fe := asFetchError(t, err)
	assert.Equal(t, 1, fe.Attempts)
	assert.Equal(t, int32(1), attempts.Load())
	assert.NotErrorIs(t, err, utils.ErrRetryFailed, "a single attempt is not a retry failure")
}

func TestFetch_InvalidURL(t *testing.T) {
	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	_, err := fetcher.Fetch(context.Background(), "http://[::1")
	fe := asFetchError(t, err)
	assert.Equal(t, 1, fe.Attempts)
	assert.ErrorIs(t, err, utils.ErrRequestCreation)
}

func TestFetch_BodyLimitAndCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
		case "/latin1":
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<p>caf\xe9</p>"))
		case "/binary":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G', 0xe9})
		}
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(0)
	cfg.MaxBodyBytes = 100
	fetcher := NewFetcher(testClient(), cfg, testLogger())

	resp, err := fetcher.Fetch(context.Background(), server.URL+"/big")
	require.NoError(t, err)
	assert.Len(t, resp.Body, 100)

	resp, err = fetcher.Fetch(context.Background(), server.URL+"/latin1")
	require.NoError(t, err)
	assert.Equal(t, "<p>café</p>", string(resp.Body))

	resp, err = fetcher.Fetch(context.Background(), server.URL+"/binary")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', 0xe9}, resp.Body, "binary bodies are not transcoded")
}

func TestFetch_SendsUserAgent(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "test-agent", got.Load())
}

func TestFetch_GlobalRateLimit(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	cfg := testConfig(0)
	cfg.RequestsPerSecond = 20
	fetcher := NewFetcher(testClient(), cfg, testLogger())

	start := time.Now()
	for range 25 {
		_, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
	}
	// Burst covers the first 20; the remaining 5 need about 250ms
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(25), attempts.Load())
}

func TestNewClient_HeadersAndCookies(t *testing.T) {
	type seen struct {
		header string
		cookie string
		ua     string
	}
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := r.Cookie("session")
		s := seen{header: r.Header.Get("X-Api-Key"), ua: r.UserAgent()}
		if c != nil {
			s.cookie = c.Value
		}
		got.Store(s)
	}))
	t.Cleanup(server.Close)

	cfg := config.AppConfig{}
	_, err := cfg.Validate()
	require.NoError(t, err)

	client, err := NewClient(cfg.HTTPClientSettings, ClientOptions{
		Headers: map[string]string{"X-Api-Key": "k1", "User-Agent": "header-agent"},
		Cookie:  "session=abc; theme=dark",
	}, testLogger())
	require.NoError(t, err)

	fetcher := NewFetcher(client, testConfig(0), testLogger())
	_, err = fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	s := got.Load().(seen)
	assert.Equal(t, "k1", s.header)
	assert.Equal(t, "abc", s.cookie)
	assert.Equal(t, "test-agent", s.ua, "the fetcher's User-Agent wins over a default header")
}

func TestNewClient_InvalidCookie(t *testing.T) {
	_, err := NewClient(config.HTTPClientConfig{}, ClientOptions{Cookie: "=;"}, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders([]string{"x-token: abc", "Accept:  text/html "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Token": "abc", "Accept": "text/html"}, headers)

	_, err = ParseHeaders([]string{"no-colon"})
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestFetchError_Message(t *testing.T) {
	fe := &FetchError{Kind: models.FetchErrorHTTPStatus, URL: "https://example.com/", StatusCode: 404, Attempts: 1, Err: utils.ErrClientHTTPError}
	assert.Contains(t, fe.Error(), "http_status 404")
	assert.ErrorIs(t, fe, utils.ErrClientHTTPError)
}
