package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// robotsEntry caches one host's parsed robots.txt; once makes concurrent workers share a single fetch
type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData // nil when the file could not be obtained
}

// RobotsHandler manages fetching, parsing, caching, and checking robots.txt data
type RobotsHandler struct {
	fetcher   HTTPFetcher
	userAgent string
	cache     map[string]*robotsEntry // scheme://host -> entry
	mu        sync.Mutex
	log       *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler that fetches through fetcher and evaluates rules for userAgent
func NewRobotsHandler(fetcher HTTPFetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:   fetcher,
		userAgent: userAgent,
		cache:     make(map[string]*robotsEntry),
		log:       log,
	}
}

// robotsData returns the parsed robots.txt for u's host, fetching it on first use.
// Returns nil on any fetch or parse failure.
func (rh *RobotsHandler) robotsData(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	scheme := u.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	key := scheme + "://" + u.Host

	rh.mu.Lock()
	entry, found := rh.cache[key]
	if !found {
		entry = &robotsEntry{}
		rh.cache[key] = entry
	}
	rh.mu.Unlock()

	entry.once.Do(func() {
		robotsURL := key + "/robots.txt"
		robotsLog := rh.log.WithField("robots_url", robotsURL)
		robotsLog.Debug("Fetching robots.txt...")

		resp, err := rh.fetcher.Fetch(ctx, robotsURL)
		if err != nil {
			robotsLog.Debugf("Fetching robots.txt failed, allowing all: %v", err)
			return
		}
		data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
		if err != nil {
			robotsLog.Warnf("Error parsing robots.txt, allowing all: %v", err)
			return
		}
		entry.data = data
		if len(data.Sitemaps) > 0 {
			robotsLog.Infof("Found %d sitemap directive(s)", len(data.Sitemaps))
		}
	})
	return entry.data
}

// Allowed reports whether the configured user agent may fetch u.
// Returns true if robots.txt could not be obtained.
func (rh *RobotsHandler) Allowed(ctx context.Context, u *url.URL) bool {
	data := rh.robotsData(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), rh.userAgent)
}

// Sitemaps returns the Sitemap: directives of u's host
func (rh *RobotsHandler) Sitemaps(ctx context.Context, u *url.URL) []string {
	data := rh.robotsData(ctx, u)
	if data == nil {
		return nil
	}
	return append([]string(nil), data.Sitemaps...)
}
