package models

import "time"

// FrontierEntry represents a canonical URL and the depth at which it was accepted into the frontier
type FrontierEntry struct {
	URL   string
	Depth int
}

// DiscoveredURL is one reference found while processing a page (or a seed)
// It is not deduplicated here; the engine's visited set owns dedup
type DiscoveredURL struct {
	Canonical  string            `json:"url" yaml:"url"`
	Raw        string            `json:"raw" yaml:"raw"`
	SourcePage string            `json:"source_page,omitempty" yaml:"source_page,omitempty"`
	Context    ExtractionContext `json:"context" yaml:"context"`
	Depth      int               `json:"depth" yaml:"depth"`
}

// PageRecord stores the outcome of a successful fetch
type PageRecord struct {
	URL         string `json:"url" yaml:"url"`
	FinalURL    string `json:"final_url,omitempty" yaml:"final_url,omitempty"`
	Depth       int    `json:"depth" yaml:"depth"`
	StatusCode  int    `json:"status_code" yaml:"status_code"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Bytes       int    `json:"bytes" yaml:"bytes"`
	ContentHash string `json:"content_hash,omitempty" yaml:"content_hash,omitempty"` // SHA-256 of the decoded body
	LinksFound  int    `json:"links_found" yaml:"links_found"`
	Attempts    int    `json:"attempts" yaml:"attempts"`
}

// FailureRecord stores a failed fetch (or a robots.txt refusal)
type FailureRecord struct {
	URL        string         `json:"url" yaml:"url"`
	Depth      int            `json:"depth" yaml:"depth"`
	Kind       FetchErrorKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	StatusCode int            `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Category   string         `json:"category" yaml:"category"` // utils.CategorizeError output
	Detail     string         `json:"detail" yaml:"detail"`
	Attempts   int            `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// CrawlPolicy is the immutable configuration of a single crawl run
type CrawlPolicy struct {
	MaxDepth        int           `json:"max_depth" yaml:"max_depth"`
	MaxPages        int           `json:"max_pages" yaml:"max_pages"` // <= 0 means unlimited
	IncludePatterns []string      `json:"include_patterns,omitempty" yaml:"include_patterns,omitempty"`
	ExcludePatterns []string      `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`
	SameDomainOnly  bool          `json:"same_domain_only" yaml:"same_domain_only"`
	AllowSubdomains bool          `json:"allow_subdomains" yaml:"allow_subdomains"`
	Concurrency     int           `json:"concurrency" yaml:"concurrency"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	Retries         int           `json:"retries" yaml:"retries"`
}

// FetchResponse is the successful result of a Fetcher call
type FetchResponse struct {
	RequestURL  string
	FinalURL    string // URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte // Decoded to UTF-8 when the content type is textual
	Attempts    int
}
