package config

import (
	"maps"
	"time"

	"url-spider/pkg/models"
)

// SiteConfig is a named crawl profile. Pointer fields distinguish "unset" from an explicit zero so the
// global value can show through.
type SiteConfig struct {
	Seeds           []string          `yaml:"seeds"`
	SeedFile        string            `yaml:"seed_file,omitempty"`
	MaxDepth        *int              `yaml:"max_depth,omitempty"`
	MaxPages        *int              `yaml:"max_pages,omitempty"`
	IncludePatterns []string          `yaml:"include_patterns,omitempty"`
	ExcludePatterns []string          `yaml:"exclude_patterns,omitempty"` // Exclude wins over include
	SameDomainOnly  *bool             `yaml:"same_domain_only,omitempty"`
	AllowSubdomains *bool             `yaml:"allow_subdomains,omitempty"`
	RespectRobots   *bool             `yaml:"respect_robots,omitempty"`
	SeedSitemaps    *bool             `yaml:"seed_sitemaps,omitempty"`
	FetchScripts    *int              `yaml:"fetch_scripts,omitempty"`
	UserAgent       string            `yaml:"user_agent,omitempty"`
	DelayPerHost    time.Duration     `yaml:"delay_per_host,omitempty"`
	Concurrency     int               `yaml:"concurrency,omitempty"`
	Timeout         time.Duration     `yaml:"timeout,omitempty"`
	Retries         *int              `yaml:"retries,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Cookie          string            `yaml:"cookie,omitempty"`
}

// OutputConfig controls where and how results are written
type OutputConfig struct {
	Path    string   `yaml:"path,omitempty"`    // Base path; the extension is chosen per format. Empty writes text to stdout
	Formats []string `yaml:"formats,omitempty"` // text, json, csv, yaml, markdown, sqlite
	NoColor bool     `yaml:"no_color,omitempty"`
	Quiet   bool     `yaml:"quiet,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent    string                `yaml:"default_user_agent"`
	DefaultDelayPerHost time.Duration         `yaml:"default_delay_per_host"`
	NumWorkers          int                   `yaml:"num_workers"`
	MaxRequestsPerHost  int                   `yaml:"max_requests_per_host"`
	MaxDepth            *int                  `yaml:"max_depth,omitempty"` // nil means DefaultMaxDepth
	MaxPages            int                   `yaml:"max_pages"` // <= 0 means unlimited
	SameDomainOnly      *bool                 `yaml:"same_domain_only,omitempty"`
	AllowSubdomains     bool                  `yaml:"allow_subdomains,omitempty"`
	RespectRobots       bool                  `yaml:"respect_robots,omitempty"`
	SeedSitemaps        bool                  `yaml:"seed_sitemaps,omitempty"`
	FetchScripts        int                   `yaml:"fetch_scripts,omitempty"` // Script assets fetched along with each page; 0 disables
	RequestTimeout      time.Duration         `yaml:"request_timeout,omitempty"` // Per fetch attempt
	MaxRetries          int                   `yaml:"max_retries,omitempty"`
	InitialRetryDelay   time.Duration         `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay       time.Duration         `yaml:"max_retry_delay,omitempty"`
	RequestsPerSecond   float64               `yaml:"requests_per_second,omitempty"` // 0 disables the global limiter
	MaxBodyBytes        int64                 `yaml:"max_body_bytes,omitempty"`
	SkipExtensions      []string              `yaml:"skip_extensions,omitempty"` // Recorded but never fetched
	Headers             map[string]string     `yaml:"headers,omitempty"`
	Cookie              string                `yaml:"cookie,omitempty"`
	VisitedStore        string                `yaml:"visited_store,omitempty"` // memory or badger
	StateDir            string                `yaml:"state_dir,omitempty"`
	GlobalCrawlTimeout  time.Duration         `yaml:"global_crawl_timeout,omitempty"`
	ProgressInterval    time.Duration         `yaml:"progress_interval,omitempty"`
	Output              OutputConfig          `yaml:"output,omitempty"`
	HTTPClientSettings  HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Sites               map[string]SiteConfig `yaml:"sites,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// GetEffectiveMaxDepth determines the effective depth bound
func GetEffectiveMaxDepth(siteCfg SiteConfig, appCfg AppConfig) int {
	if siteCfg.MaxDepth != nil {
		return *siteCfg.MaxDepth
	}
	if appCfg.MaxDepth != nil {
		return *appCfg.MaxDepth
	}
	return DefaultMaxDepth
}

// GetEffectiveMaxPages determines the effective page cap
func GetEffectiveMaxPages(siteCfg SiteConfig, appCfg AppConfig) int {
	if siteCfg.MaxPages != nil {
		return *siteCfg.MaxPages
	}
	return appCfg.MaxPages
}

// GetEffectiveSameDomainOnly defaults to true when neither level sets it
func GetEffectiveSameDomainOnly(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.SameDomainOnly != nil {
		return *siteCfg.SameDomainOnly
	}
	if appCfg.SameDomainOnly != nil {
		return *appCfg.SameDomainOnly
	}
	return true
}

// GetEffectiveAllowSubdomains determines whether seed subdomains count as in scope
func GetEffectiveAllowSubdomains(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.AllowSubdomains != nil {
		return *siteCfg.AllowSubdomains
	}
	return appCfg.AllowSubdomains
}

// GetEffectiveRespectRobots determines whether robots.txt is consulted
func GetEffectiveRespectRobots(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.RespectRobots != nil {
		return *siteCfg.RespectRobots
	}
	return appCfg.RespectRobots
}

// GetEffectiveSeedSitemaps determines whether robots.txt sitemaps are added as seeds
func GetEffectiveSeedSitemaps(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.SeedSitemaps != nil {
		return *siteCfg.SeedSitemaps
	}
	return appCfg.SeedSitemaps
}

// GetEffectiveFetchScripts determines how many script assets are fetched along with each page
func GetEffectiveFetchScripts(siteCfg SiteConfig, appCfg AppConfig) int {
	n := appCfg.FetchScripts
	if siteCfg.FetchScripts != nil {
		n = *siteCfg.FetchScripts
	}
	return max(n, 0)
}

// GetEffectiveUserAgent determines the User-Agent sent with every request
func GetEffectiveUserAgent(siteCfg SiteConfig, appCfg AppConfig) string {
	if siteCfg.UserAgent != "" {
		return siteCfg.UserAgent
	}
	return appCfg.DefaultUserAgent
}

// GetEffectiveDelayPerHost determines the minimum spacing between requests to one host
func GetEffectiveDelayPerHost(siteCfg SiteConfig, appCfg AppConfig) time.Duration {
	if siteCfg.DelayPerHost > 0 {
		return siteCfg.DelayPerHost
	}
	return appCfg.DefaultDelayPerHost
}

// GetEffectiveHeaders merges global headers with the site's; site values win
func GetEffectiveHeaders(siteCfg SiteConfig, appCfg AppConfig) map[string]string {
	merged := make(map[string]string, len(appCfg.Headers)+len(siteCfg.Headers))
	maps.Copy(merged, appCfg.Headers)
	maps.Copy(merged, siteCfg.Headers)
	return merged
}

// GetEffectiveCookie determines the Cookie header value
func GetEffectiveCookie(siteCfg SiteConfig, appCfg AppConfig) string {
	if siteCfg.Cookie != "" {
		return siteCfg.Cookie
	}
	return appCfg.Cookie
}

// ResolvePolicy builds the immutable crawl policy for one run from a site profile and the global config.
// appCfg is expected to have been validated so its defaults are populated.
func ResolvePolicy(siteCfg SiteConfig, appCfg AppConfig) models.CrawlPolicy {
	policy := models.CrawlPolicy{
		MaxDepth:        GetEffectiveMaxDepth(siteCfg, appCfg),
		MaxPages:        GetEffectiveMaxPages(siteCfg, appCfg),
		IncludePatterns: append([]string(nil), siteCfg.IncludePatterns...),
		ExcludePatterns: append([]string(nil), siteCfg.ExcludePatterns...),
		SameDomainOnly:  GetEffectiveSameDomainOnly(siteCfg, appCfg),
		AllowSubdomains: GetEffectiveAllowSubdomains(siteCfg, appCfg),
		Concurrency:     appCfg.NumWorkers,
		Timeout:         appCfg.RequestTimeout,
		Retries:         appCfg.MaxRetries,
	}
	if siteCfg.Concurrency > 0 {
		policy.Concurrency = siteCfg.Concurrency
	}
	if siteCfg.Timeout > 0 {
		policy.Timeout = siteCfg.Timeout
	}
	if siteCfg.Retries != nil && *siteCfg.Retries >= 0 {
		policy.Retries = *siteCfg.Retries
	}
	if policy.MaxDepth < 0 {
		policy.MaxDepth = 0
	}
	return policy
}
