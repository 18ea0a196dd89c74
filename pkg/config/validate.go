package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"url-spider/pkg/utils"
)

// Defaults applied by Validate
const (
	DefaultUserAgent        = "url-spider/1.0 (+https://github.com/url-spider)"
	DefaultNumWorkers       = 10
	DefaultMaxDepth         = 2
	DefaultRequestTimeout   = 10 * time.Second
	DefaultMaxRetries       = 2
	DefaultMaxBodyBytes     = 10 << 20
	DefaultProgressInterval = 30 * time.Second
	DefaultFetchScripts     = 5 // Script assets per page when --js is given without a count
)

// DefaultSkipExtensions lists assets that are recorded as discoveries but never fetched
var DefaultSkipExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".bmp", ".avif",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp3", ".mp4", ".webm", ".avi", ".mov", ".wav", ".ogg",
	".zip", ".gz", ".tar", ".rar", ".7z", ".exe", ".dmg", ".iso", ".pdf",
}

// Supported output formats
var OutputFormats = []string{"text", "json", "csv", "yaml", "markdown", "sqlite"}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.DefaultUserAgent == "" {
		c.DefaultUserAgent = DefaultUserAgent
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		if c.NumWorkers < 0 {
			warnings = append(warnings, fmt.Sprintf("num_workers should be > 0, defaulting to %d", DefaultNumWorkers))
		}
		c.NumWorkers = DefaultNumWorkers
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		c.MaxRequestsPerHost = c.NumWorkers
	}

	// MaxDepth
	if c.MaxDepth != nil && *c.MaxDepth < 0 {
		warnings = append(warnings, "max_depth cannot be negative, setting to 0 (seeds only)")
		zero := 0
		c.MaxDepth = &zero
	}

	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, disabling delay")
		c.DefaultDelayPerHost = 0
	}

	// RequestTimeout
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 500 * time.Millisecond
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 10 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.RequestsPerSecond < 0 {
		warnings = append(warnings, "requests_per_second cannot be negative, disabling the global limiter")
		c.RequestsPerSecond = 0
	}

	if c.FetchScripts < 0 {
		warnings = append(warnings, "fetch_scripts cannot be negative, disabling script fetching")
		c.FetchScripts = 0
	}

	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.SkipExtensions == nil {
		c.SkipExtensions = append([]string(nil), DefaultSkipExtensions...)
	}
	for i, ext := range c.SkipExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.SkipExtensions[i] = ext
	}

	// VisitedStore
	switch strings.ToLower(c.VisitedStore) {
	case "":
		c.VisitedStore = "memory"
	case "memory", "badger":
		c.VisitedStore = strings.ToLower(c.VisitedStore)
	default:
		return warnings, fmt.Errorf("%w: visited_store must be 'memory' or 'badger', got '%s'", utils.ErrConfigValidation, c.VisitedStore)
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	outWarnings, err := c.Output.Validate()
	warnings = append(warnings, outWarnings...)
	if err != nil {
		return warnings, err
	}

	// Sites are validated in name order so messages are stable
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		site := c.Sites[name]
		siteWarnings, siteErr := site.Validate()
		for _, w := range siteWarnings {
			warnings = append(warnings, fmt.Sprintf("site '%s': %s", name, w))
		}
		if siteErr != nil {
			return warnings, fmt.Errorf("site '%s': %w", name, siteErr)
		}
		c.Sites[name] = site
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

// Validate normalizes format names and rejects unknown ones
func (o *OutputConfig) Validate() (warnings []string, err error) {
	seen := make(map[string]bool, len(o.Formats))
	formats := o.Formats[:0]
	for _, f := range o.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "md" {
			f = "markdown"
		}
		if f == "" || seen[f] {
			continue
		}
		if !isOutputFormat(f) {
			return nil, fmt.Errorf("%w: unknown output format '%s' (want one of %s)",
				utils.ErrConfigValidation, f, strings.Join(OutputFormats, ", "))
		}
		seen[f] = true
		formats = append(formats, f)
	}
	o.Formats = formats
	if len(o.Formats) == 0 {
		o.Formats = []string{"text"}
	}
	if o.Path == "" && (len(o.Formats) > 1 || o.Formats[0] == "sqlite") {
		warnings = append(warnings, "output.path is empty; only the first text-capable format is written to stdout")
	}
	return warnings, nil
}

func isOutputFormat(f string) bool {
	for _, known := range OutputFormats {
		if f == known {
			return true
		}
	}
	return false
}

// Validate checks SiteConfig fields.
// Returns collected warnings and any fatal error.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	// Required: some seed source
	if len(c.Seeds) == 0 && c.SeedFile == "" {
		return nil, fmt.Errorf("%w: site has neither seeds nor seed_file", utils.ErrConfigValidation)
	}

	if c.MaxDepth != nil && *c.MaxDepth < 0 {
		warnings = append(warnings, "max_depth cannot be negative, setting to 0 (seeds only)")
		zero := 0
		c.MaxDepth = &zero
	}

	if c.Retries != nil && *c.Retries < 0 {
		warnings = append(warnings, "retries cannot be negative, setting to 0")
		zero := 0
		c.Retries = &zero
	}

	if c.Concurrency < 0 {
		warnings = append(warnings, "concurrency cannot be negative, using the global num_workers")
		c.Concurrency = 0
	}

	// Compile patterns so a bad regex surfaces before INIT
	if _, err := utils.CompileRegexPatterns(c.IncludePatterns); err != nil {
		return warnings, fmt.Errorf("include_patterns: %w", err)
	}
	if _, err := utils.CompileRegexPatterns(c.ExcludePatterns); err != nil {
		return warnings, fmt.Errorf("exclude_patterns: %w", err)
	}

	return warnings, nil
}
