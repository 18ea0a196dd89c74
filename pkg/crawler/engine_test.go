package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-spider/pkg/extract"
	"url-spider/pkg/fetch"
	"url-spider/pkg/models"
	"url-spider/pkg/seed"
	"url-spider/pkg/storage"
	"url-spider/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type fakePage struct {
	body        string
	contentType string
	finalURL    string // set when the request is redirected
	err         error
}

// fakeFetcher serves canned pages; unknown URLs fail with a 404 http_status error
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	calls   map[string]int
	onFetch func(rawURL string)
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResponse, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	page, ok := f.pages[rawURL]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(rawURL)
	}
	if !ok {
		return nil, &fetch.FetchError{Kind: models.FetchErrorHTTPStatus, URL: rawURL, StatusCode: 404, Attempts: 1,
			Err: fmt.Errorf("%w: status 404 Not Found", utils.ErrClientHTTPError)}
	}
	if page.err != nil {
		return nil, page.err
	}
	ct := page.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	final := page.finalURL
	if final == "" {
		final = rawURL
	}
	return &models.FetchResponse{RequestURL: rawURL, FinalURL: final, StatusCode: 200, ContentType: ct,
		Body: []byte(page.body), Attempts: 1}, nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) callsFor(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

func linksPage(hrefs ...string) fakePage {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")
	return fakePage{body: b.String()}
}

func testPolicy() models.CrawlPolicy {
	return models.CrawlPolicy{
		MaxDepth:       2,
		SameDomainOnly: true,
		Concurrency:    4,
		Timeout:        time.Second,
	}
}

// discoveredNonSeed returns the canonical URLs of non-seed discoveries, sorted
func discoveredNonSeed(result *models.CrawlResult) []string {
	var out []string
	for _, d := range result.Discovered() {
		if d.Context != models.ContextSeed {
			out = append(out, d.Canonical)
		}
	}
	sort.Strings(out)
	return out
}

func TestRun_SameDomainScenario(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": {body: `<html><body>
			<a href="/api/login">Login</a>
			<a href="../about">About</a>
			<script src="//cdn.example.com/app.js"></script>
		</body></html>`},
	})
	policy := testPolicy()
	policy.MaxDepth = 1

	engine := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(), nil)
	result, err := engine.Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStateCompleted, result.State())
	assert.Equal(t, []string{"https://example.com/about", "https://example.com/api/login"}, discoveredNonSeed(result))

	stats := result.Stats()
	assert.GreaterOrEqual(t, stats.FilterRejected, 1, "cdn script should be rejected")
	assert.Equal(t, 1, stats.ByContext[models.ContextSeed])
	assert.Equal(t, 2, stats.ByContext[models.ContextHTMLLink])
	assert.Equal(t, 0, fetcher.callsFor("https://cdn.example.com/app.js"))
}

func TestRun_MaxDepthZeroOnlySeeds(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": linksPage("/a", "/b"),
	})
	policy := testPolicy()
	policy.MaxDepth = 0

	result, err := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(), nil).
		Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Empty(t, discoveredNonSeed(result))
	assert.Len(t, result.Discovered(), 1)
	assert.Equal(t, 1, fetcher.totalCalls())
	assert.Equal(t, 2, result.Stats().BeyondMaxDepth)
}

func TestRun_FetchTimeoutDoesNotStopRun(t *testing.T) {
	timeoutErr := &fetch.FetchError{Kind: models.FetchErrorTimeout, URL: "https://example.com/slow", Attempts: 3,
		Err: fmt.Errorf("%w: context deadline exceeded", utils.ErrRetryFailed)}
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/":     linksPage("/slow", "/ok"),
		"https://example.com/slow": {err: timeoutErr},
		"https://example.com/ok":   linksPage(),
	})

	result, err := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), testLogger(), nil).
		Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, result.State())

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "https://example.com/slow", failures[0].URL)
	assert.Equal(t, models.FetchErrorTimeout, failures[0].Kind)
	assert.Equal(t, 3, failures[0].Attempts)
	assert.Equal(t, "RetryFailed_NetworkTimeout", failures[0].Category)

	var pages []string
	for _, p := range result.Pages() {
		pages = append(pages, p.URL)
	}
	assert.ElementsMatch(t, []string{"https://example.com/", "https://example.com/ok"}, pages)
}

func TestRun_DedupAcrossPages(t *testing.T) {
	// Every page links to every other page (and itself) under different spellings
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/":  linksPage("/a", "/b", "https://EXAMPLE.com:443/a#top", "./"),
		"https://example.com/a": linksPage("/", "/b", "b", "/a"),
		"https://example.com/b": linksPage("/", "/a", "/b?"),
	})

	for _, kind := range []string{storage.KindMemory, storage.KindBadger} {
		t.Run(kind, func(t *testing.T) {
			store, err := storage.Open(context.Background(), storage.Options{Kind: kind, Dir: t.TempDir()}, testLogger())
			require.NoError(t, err)
			defer store.Close()

			f := newFakeFetcher(fetcher.pages)
			result, err := NewEngine(testPolicy(), f, store, testLogger(), nil).
				Run(context.Background(), []string{"https://example.com/"})
			require.NoError(t, err)

			seen := make(map[string]int)
			for _, e := range result.Entries() {
				if e.Kind == models.EntryDiscovered {
					seen[e.Discovered.Canonical]++
				}
			}
			for u, n := range seen {
				assert.Equal(t, 1, n, "discovered more than once: %s", u)
			}
			for u := range fetcher.pages {
				assert.Equal(t, 1, f.callsFor(u), "fetch count for %s", u)
			}
			assert.Greater(t, result.Stats().Duplicates, 0)
		})
	}
}

func TestRun_DepthBound(t *testing.T) {
	pages := map[string]fakePage{}
	for i := 0; i < 6; i++ {
		u := fmt.Sprintf("https://example.com/p%d", i)
		pages[u] = linksPage(fmt.Sprintf("/p%d", i+1))
	}
	fetcher := newFakeFetcher(pages)
	policy := testPolicy()
	policy.MaxDepth = 2

	result, err := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(), nil).
		Run(context.Background(), []string{"https://example.com/p0"})
	require.NoError(t, err)

	for _, e := range result.Entries() {
		switch e.Kind {
		case models.EntryDiscovered:
			assert.LessOrEqual(t, e.Discovered.Depth, 2)
		case models.EntryPage:
			assert.LessOrEqual(t, e.Page.Depth, 2)
		}
	}
	assert.Equal(t, 3, fetcher.totalCalls())
	assert.Equal(t, 0, fetcher.callsFor("https://example.com/p3"))
	assert.Equal(t, 1, result.Stats().BeyondMaxDepth)
}

func TestRun_PageBound(t *testing.T) {
	pages := map[string]fakePage{}
	var hrefs []string
	for i := 0; i < 20; i++ {
		hrefs = append(hrefs, fmt.Sprintf("/page%d", i))
		pages[fmt.Sprintf("https://example.com/page%d", i)] = linksPage(fmt.Sprintf("/deep%d", i))
	}
	pages["https://example.com/"] = linksPage(hrefs...)
	fetcher := newFakeFetcher(pages)

	policy := testPolicy()
	policy.MaxPages = 3
	policy.Concurrency = 8

	result, err := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(), nil).
		Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStateCompleted, result.State())
	assert.LessOrEqual(t, fetcher.totalCalls(), 3)
	stats := result.Stats()
	assert.LessOrEqual(t, stats.PagesFetched+stats.Failures, 3)
	assert.Equal(t, 0, fetcher.callsFor("https://example.com/deep0"))
}

func TestRun_CancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": linksPage("/a", "/b", "/c"),
	})
	fetcher.onFetch = func(rawURL string) {
		if rawURL == "https://example.com/" {
			cancel()
		}
	}

	result, err := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), testLogger(), nil).Run(ctx, []string{"https://example.com/"})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.RunStateAborted, result.State())
	assert.Equal(t, 1, fetcher.totalCalls(), "no fetch may start after cancellation")
	assert.Len(t, result.Pages(), 1, "in-flight fetch is still recorded")
	assert.False(t, result.FinishedAt.IsZero())
}

func TestRun_CancelledBeforeSendIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": linksPage("/late"),
		"https://example.com/late": {err: &fetch.FetchError{Kind: models.FetchErrorConnection,
			URL: "https://example.com/late", Attempts: 0, Err: context.Canceled}},
	})
	fetcher.onFetch = func(rawURL string) {
		if rawURL == "https://example.com/late" {
			cancel()
		}
	}
	policy := testPolicy()
	policy.Concurrency = 1

	result, err := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(), nil).Run(ctx, []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStateAborted, result.State())
	assert.Empty(t, result.Failures(), "a request that never went out is not a failure")
	assert.GreaterOrEqual(t, result.Stats().Dropped, 1)
	assert.Len(t, result.Pages(), 1)
}

func TestRun_FetchScripts(t *testing.T) {
	pages := map[string]fakePage{
		"https://example.com/": {body: `<html><body><script src="/app.js"></script></body></html>`},
		"https://example.com/app.js": {body: `fetch("/api/x").then(r => r.json())`,
			contentType: "application/javascript"},
	}
	tests := []struct {
		name         string
		fetchScripts int
		wantAPI      bool
	}{
		{name: "Disabled", fetchScripts: 0, wantAPI: false},
		{name: "Enabled", fetchScripts: 5, wantAPI: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(pages)
			policy := testPolicy()
			policy.MaxDepth = 1

			result, err := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(),
				&EngineOptions{FetchScripts: tt.fetchScripts}).Run(context.Background(), []string{"https://example.com/"})
			require.NoError(t, err)

			found := discoveredNonSeed(result)
			assert.Contains(t, found, "https://example.com/app.js")
			assert.Equal(t, 1, fetcher.callsFor("https://example.com/app.js"))
			if !tt.wantAPI {
				assert.NotContains(t, found, "https://example.com/api/x")
				return
			}
			assert.Contains(t, found, "https://example.com/api/x")
			for _, d := range result.Discovered() {
				assert.LessOrEqual(t, d.Depth, 1, d.Canonical)
				if d.Canonical == "https://example.com/api/x" {
					assert.Equal(t, "https://example.com/app.js", d.SourcePage)
					assert.Equal(t, 1, d.Depth)
				}
			}
		})
	}
}

func TestRun_FetchScriptsCountAgainstPageCap(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": {body: `<script src="/a.js"></script><script src="/b.js"></script>`},
		"https://example.com/a.js": {body: `fetch("/api/a")`, contentType: "text/javascript"},
		"https://example.com/b.js": {body: `fetch("/api/b")`, contentType: "text/javascript"},
	})
	policy := testPolicy()
	policy.MaxPages = 2
	policy.Concurrency = 1

	result, err := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(),
		&EngineOptions{FetchScripts: 5}).Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.totalCalls())
	assert.Len(t, result.Pages(), 2)
	assert.GreaterOrEqual(t, result.Stats().Dropped, 1)
}

func TestRun_ExtractionWarningsKeepPartialLinks(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": linksPage("/feed"),
		"https://example.com/feed": {body: `<rss><channel><item><link>https://example.com/post`,
			contentType: "application/rss+xml"},
	})

	result, err := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), testLogger(), nil).
		Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Greater(t, result.Stats().ExtractionWarnings, 0)
	assert.Contains(t, discoveredNonSeed(result), "https://example.com/post")
}

func TestRun_RedirectTarget(t *testing.T) {
	tests := []struct {
		name      string
		finalURL  string
		wantLinks bool
	}{
		{name: "SameHost", finalURL: "https://example.com/new", wantLinks: true},
		{name: "OffSite", finalURL: "https://other.com/landing", wantLinks: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(map[string]fakePage{
				"https://example.com/": linksPage("/old"),
				"https://example.com/old": {body: `<a href="/new">self</a><a href="/child">child</a>`,
					finalURL: tt.finalURL},
				"https://example.com/child": linksPage(),
			})

			result, err := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), testLogger(), nil).
				Run(context.Background(), []string{"https://example.com/"})
			require.NoError(t, err)

			pages := result.Pages()
			i := slices.IndexFunc(pages, func(p models.PageRecord) bool { return p.URL == "https://example.com/old" })
			require.GreaterOrEqual(t, i, 0)
			old := pages[i]
			assert.Equal(t, tt.finalURL, old.FinalURL)
			assert.Equal(t, 0, fetcher.callsFor("https://example.com/new"))

			found := discoveredNonSeed(result)
			if tt.wantLinks {
				assert.Contains(t, found, "https://example.com/child")
				assert.NotContains(t, found, "https://example.com/new", "the redirect target is already visited")
				return
			}
			assert.Equal(t, 0, old.LinksFound)
			assert.Equal(t, []string{"https://example.com/old"}, found)
			assert.GreaterOrEqual(t, result.Stats().FilterRejected, 1)
		})
	}
}

func TestRun_NoSeeds(t *testing.T) {
	engine := NewEngine(testPolicy(), newFakeFetcher(nil), storage.NewMemoryStore(), testLogger(), nil)

	result, err := engine.Run(context.Background(), []string{"not a url", "mailto:someone@example.com", ""})
	assert.ErrorIs(t, err, utils.ErrNoSeeds)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Stats().NormalizationErrors)

	policy := testPolicy()
	policy.ExcludePatterns = []string{`example\.com`}
	_, err = NewEngine(policy, newFakeFetcher(nil), storage.NewMemoryStore(), testLogger(), nil).
		Run(context.Background(), []string{"https://example.com/"})
	assert.ErrorIs(t, err, utils.ErrNoSeeds)
}

func TestRun_SkipExtensionsRecordedNotFetched(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": linksPage("/logo.png", "/docs"),
	})
	engine := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), testLogger(),
		&EngineOptions{SkipExtensions: []string{".png"}})

	result, err := engine.Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	assert.Contains(t, discoveredNonSeed(result), "https://example.com/logo.png")
	assert.Equal(t, 0, fetcher.callsFor("https://example.com/logo.png"))
	assert.Equal(t, 1, fetcher.callsFor("https://example.com/docs"))
}

func TestRun_OnProgressFinalCall(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{"https://example.com/": linksPage("/x")})

	var mu sync.Mutex
	var last Progress
	engine := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), testLogger(), &EngineOptions{
		OnProgress: func(p Progress) {
			mu.Lock()
			last = p
			mu.Unlock()
		},
	})
	result, err := engine.Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, result.RunID, last.RunID)
	assert.Equal(t, models.RunStateCompleted, last.State)
	assert.Equal(t, 2, last.Discovered)
	assert.Equal(t, 0, last.Queued)
}

func TestRun_HTTPIntegrationWithRobotsAndSitemap(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "User-agent: *\nDisallow: /private\nSitemap: %s/sitemap.xml\n", srvURL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`+
			`<url><loc>%s/from-sitemap</loc></url></urlset>`, srvURL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<a href="/public">p</a><a href="/private/secret">s</a><script src="/static/app.js"></script>`)
		case "/static/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			fmt.Fprint(w, `const api = "/api/v1/items"; fetch(api);`)
		case "/public", "/from-sitemap", "/api/v1/items":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<p>leaf</p>`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	log := testLogger()
	fetcher := fetch.NewFetcher(srv.Client(), fetch.FetcherConfig{UserAgent: "url-spider-test", Timeout: 2 * time.Second}, log)
	engine := NewEngine(testPolicy(), fetcher, storage.NewMemoryStore(), log, &EngineOptions{
		Robots:         fetch.NewRobotsHandler(fetcher, "url-spider-test", log),
		RespectRobots:  true,
		SeedSitemaps:   true,
		HostSemaphores: fetch.NewHostSemaphorePool(2, log),
		RateLimiter:    fetch.NewRateLimiter(0, log),
	})

	result, err := engine.Run(context.Background(), []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, result.State())

	discovered := discoveredNonSeed(result)
	assert.Contains(t, discovered, srv.URL+"/public")
	assert.Contains(t, discovered, srv.URL+"/static/app.js")
	assert.Contains(t, discovered, srv.URL+"/api/v1/items")
	assert.Contains(t, discovered, srv.URL+"/from-sitemap")

	stats := result.Stats()
	assert.Equal(t, 1, stats.RobotsBlocked)
	var blocked []string
	for _, e := range result.Entries() {
		if e.Kind == models.EntryBlocked {
			blocked = append(blocked, e.Failure.URL)
			assert.Equal(t, "Policy_Robots", e.Failure.Category)
		}
	}
	assert.Equal(t, []string{srv.URL + "/private/secret"}, blocked)

	var fetched []string
	for _, p := range result.Pages() {
		fetched = append(fetched, p.URL)
		assert.NotEmpty(t, p.ContentHash)
	}
	assert.Contains(t, fetched, srv.URL+"/from-sitemap")
	assert.NotContains(t, fetched, srv.URL+"/private/secret")
}

func TestScan(t *testing.T) {
	engine := NewEngine(testPolicy(), nil, storage.NewMemoryStore(), testLogger(), nil)
	docs := []seed.Document{
		{Name: "line 1", Body: []byte(`fetch("/api/" + "v2/users")`), Hint: extract.MimeJavaScript},
		{Name: "page.html", Body: []byte(`<a href="/about">a</a><a href="https://other.org/x">x</a>`), Hint: extract.MimeHTML},
	}

	t.Run("with base", func(t *testing.T) {
		result, err := engine.Scan(docs, "https://example.com/")
		require.NoError(t, err)
		assert.Equal(t, models.RunStateCompleted, result.State())

		urls := discoveredNonSeed(result)
		assert.Contains(t, urls, "https://example.com/api/v2/users")
		assert.Contains(t, urls, "https://example.com/about")
		assert.NotContains(t, urls, "https://other.org/x", "same-domain rule applies to the base host")
		for _, d := range result.Discovered() {
			assert.Equal(t, 0, d.Depth)
		}
	})

	t.Run("without base", func(t *testing.T) {
		result, err := engine.Scan(docs, "")
		require.NoError(t, err)
		urls := discoveredNonSeed(result)
		assert.Equal(t, []string{"https://other.org/x"}, urls)
		assert.Greater(t, result.Stats().NormalizationErrors, 0)
	})

	t.Run("invalid base", func(t *testing.T) {
		_, err := engine.Scan(docs, "::nope")
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})
}

func TestScanDocuments_AfterRun(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		"https://example.com/": linksPage("/about"),
	})
	policy := testPolicy()
	policy.MaxDepth = 1
	engine := NewEngine(policy, fetcher, storage.NewMemoryStore(), testLogger(), nil)

	result, err := engine.Run(context.Background(), []string{"https://example.com/"})
	require.NoError(t, err)
	callsAfterRun := fetcher.totalCalls()

	docs := []seed.Document{
		{Name: "line 2", Body: []byte(`fetch("/about"); fetch("/api/v1/users"); load("https://other.org/x")`),
			Hint: extract.MimeJavaScript},
	}
	require.NoError(t, engine.ScanDocuments(result, docs))

	urls := discoveredNonSeed(result)
	assert.Equal(t, []string{"https://example.com/about", "https://example.com/api/v1/users"}, urls,
		"crawl discoveries are not repeated and external URLs stay filtered")
	assert.Equal(t, callsAfterRun, fetcher.totalCalls(), "scanning never fetches")
}

func TestScanDocuments_NoDocs(t *testing.T) {
	engine := NewEngine(testPolicy(), nil, storage.NewMemoryStore(), testLogger(), nil)
	result := models.NewCrawlResult()

	require.NoError(t, engine.ScanDocuments(result, nil))
	assert.Empty(t, result.Discovered())
}
