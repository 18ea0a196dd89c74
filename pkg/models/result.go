package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResultEntry is one element of a CrawlResult; exactly one of the pointers matching Kind is set
type ResultEntry struct {
	Seq        int            `json:"seq" yaml:"seq"`
	Kind       EntryKind      `json:"kind" yaml:"kind"`
	At         time.Time      `json:"at" yaml:"at"`
	Discovered *DiscoveredURL `json:"discovered,omitempty" yaml:"discovered,omitempty"`
	Page       *PageRecord    `json:"page,omitempty" yaml:"page,omitempty"`
	Failure    *FailureRecord `json:"failure,omitempty" yaml:"failure,omitempty"` // also used for EntryBlocked
}

// URL returns the URL the entry is about, regardless of its kind
func (e ResultEntry) URL() string {
	switch {
	case e.Discovered != nil:
		return e.Discovered.Canonical
	case e.Page != nil:
		return e.Page.URL
	case e.Failure != nil:
		return e.Failure.URL
	}
	return ""
}

// Stats aggregates counters for a run
type Stats struct {
	Discovered          int                       `json:"discovered" yaml:"discovered"`
	PagesFetched        int                       `json:"pages_fetched" yaml:"pages_fetched"`
	Failures            int                       `json:"failures" yaml:"failures"`
	RobotsBlocked       int                       `json:"robots_blocked" yaml:"robots_blocked"`
	NormalizationErrors int                       `json:"normalization_errors" yaml:"normalization_errors"`
	FilterRejected      int                       `json:"filter_rejected" yaml:"filter_rejected"`
	Duplicates          int                       `json:"duplicates" yaml:"duplicates"`
	BeyondMaxDepth      int                       `json:"beyond_max_depth" yaml:"beyond_max_depth"`
	Dropped             int                       `json:"dropped" yaml:"dropped"` // frontier entries discarded on stop/cancel
	ExtractionWarnings  int                       `json:"extraction_warnings" yaml:"extraction_warnings"`
	ByContext           map[ExtractionContext]int `json:"by_context" yaml:"by_context"`
}

// CrawlResult is the append-only outcome of one run
// All methods are safe for concurrent use
type CrawlResult struct {
	RunID      string
	Seeds      []string
	StartedAt  time.Time
	FinishedAt time.Time

	mu      sync.Mutex
	state   RunState
	entries []ResultEntry
	stats   Stats
}

// NewCrawlResult creates an empty result in the init state with a fresh run ID
func NewCrawlResult() *CrawlResult {
	return &CrawlResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		state:     RunStateInit,
		stats:     Stats{ByContext: make(map[ExtractionContext]int)},
	}
}

func (r *CrawlResult) appendLocked(e ResultEntry) {
	e.Seq = len(r.entries)
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.entries = append(r.entries, e)
}

// AddDiscovered appends an accepted discovery
func (r *CrawlResult) AddDiscovered(d DiscoveredURL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ResultEntry{Kind: EntryDiscovered, Discovered: &d})
	r.stats.Discovered++
	r.stats.ByContext[d.Context]++
}

// AddPage appends a successful fetch record
func (r *CrawlResult) AddPage(p PageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ResultEntry{Kind: EntryPage, Page: &p})
	r.stats.PagesFetched++
}

// AddFailure appends a fetch failure record
func (r *CrawlResult) AddFailure(f FailureRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ResultEntry{Kind: EntryFailure, Failure: &f})
	r.stats.Failures++
}

// AddBlocked appends a robots.txt refusal
func (r *CrawlResult) AddBlocked(f FailureRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ResultEntry{Kind: EntryBlocked, Failure: &f})
	r.stats.RobotsBlocked++
}

// Count adjusts one of the drop counters; field is applied under the result lock
func (r *CrawlResult) Count(field func(*Stats)) {
	r.mu.Lock()
	field(&r.stats)
	r.mu.Unlock()
}

// SetState records a run state transition
func (r *CrawlResult) SetState(s RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	if s.IsTerminal() {
		r.FinishedAt = time.Now()
	}
}

// State returns the current run state
func (r *CrawlResult) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Entries returns a copy of all entries in append order
func (r *CrawlResult) Entries() []ResultEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ResultEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Discovered returns accepted discoveries deduplicated on canonical URL (first occurrence wins)
func (r *CrawlResult) Discovered() []DiscoveredURL {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.entries))
	out := make([]DiscoveredURL, 0, r.stats.Discovered)
	for _, e := range r.entries {
		if e.Kind != EntryDiscovered {
			continue
		}
		if _, dup := seen[e.Discovered.Canonical]; dup {
			continue
		}
		seen[e.Discovered.Canonical] = struct{}{}
		out = append(out, *e.Discovered)
	}
	return out
}

// Pages returns all successful fetch records in append order
func (r *CrawlResult) Pages() []PageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PageRecord
	for _, e := range r.entries {
		if e.Kind == EntryPage {
			out = append(out, *e.Page)
		}
	}
	return out
}

// Failures returns failure and robots-blocked records in append order
func (r *CrawlResult) Failures() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FailureRecord
	for _, e := range r.entries {
		if e.Kind == EntryFailure || e.Kind == EntryBlocked {
			out = append(out, *e.Failure)
		}
	}
	return out
}

// Stats returns a snapshot of the counters
func (r *CrawlResult) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.ByContext = make(map[ExtractionContext]int, len(r.stats.ByContext))
	for k, v := range r.stats.ByContext {
		s.ByContext[k] = v
	}
	return s
}

// Duration returns the elapsed run time (up to now if still running)
func (r *CrawlResult) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
