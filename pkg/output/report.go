package output

import (
	"sort"
	"time"

	"url-spider/pkg/filter"
	"url-spider/pkg/models"
	"url-spider/pkg/parse"
)

// URLEntry is one deduplicated, classified URL of a report
type URLEntry struct {
	URL     string                   `json:"url" yaml:"url"`
	Scope   filter.Scope             `json:"scope" yaml:"scope"`
	Kind    filter.Kind              `json:"kind" yaml:"kind"`
	Context models.ExtractionContext `json:"context" yaml:"context"`
	Depth   int                      `json:"depth" yaml:"depth"`
	Source  string                   `json:"source,omitempty" yaml:"source,omitempty"`
}

// Report is the exported view of a CrawlResult
type Report struct {
	RunID      string                 `json:"run_id" yaml:"run_id"`
	State      models.RunState        `json:"state" yaml:"state"`
	Seeds      []string               `json:"seeds" yaml:"seeds"`
	StartedAt  time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time              `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Duration   string                 `json:"duration" yaml:"duration"`
	Stats      models.Stats           `json:"stats" yaml:"stats"`
	URLs       []URLEntry             `json:"urls" yaml:"urls"`
	Subdomains []string               `json:"subdomains,omitempty" yaml:"subdomains,omitempty"`
	Pages      []models.PageRecord    `json:"pages,omitempty" yaml:"pages,omitempty"`
	Failures   []models.FailureRecord `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// NewReport classifies the discoveries of result against its seed hosts.
// URLs are deduplicated again on the canonical form and sorted.
func NewReport(result *models.CrawlResult) *Report {
	var seedHosts []string
	for _, s := range result.Seeds {
		if h := parse.Hostname(s); h != "" {
			seedHosts = append(seedHosts, h)
		}
	}

	rep := &Report{
		RunID:      result.RunID,
		State:      result.State(),
		Seeds:      append([]string(nil), result.Seeds...),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Duration:   result.Duration().Round(time.Millisecond).String(),
		Stats:      result.Stats(),
		Pages:      result.Pages(),
		Failures:   result.Failures(),
	}

	seen := make(map[string]struct{})
	urls := make([]string, 0)
	for _, d := range result.Discovered() {
		if _, dup := seen[d.Canonical]; dup {
			continue
		}
		seen[d.Canonical] = struct{}{}
		scope, kind := filter.Classify(d.Canonical, seedHosts)
		rep.URLs = append(rep.URLs, URLEntry{
			URL:     d.Canonical,
			Scope:   scope,
			Kind:    kind,
			Context: d.Context,
			Depth:   d.Depth,
			Source:  d.SourcePage,
		})
		urls = append(urls, d.Canonical)
	}
	sort.Slice(rep.URLs, func(i, j int) bool { return rep.URLs[i].URL < rep.URLs[j].URL })
	rep.Subdomains = filter.Subdomains(urls, seedHosts)
	return rep
}

// CountByScope returns the number of URLs per scope
func (r *Report) CountByScope() map[filter.Scope]int {
	out := make(map[filter.Scope]int, 3)
	for _, u := range r.URLs {
		out[u.Scope]++
	}
	return out
}

// CountByKind returns the number of URLs per kind
func (r *Report) CountByKind() map[filter.Kind]int {
	out := make(map[filter.Kind]int, 4)
	for _, u := range r.URLs {
		out[u.Kind]++
	}
	return out
}

// Filter returns the URLs of the given scopes; no scopes returns all of them
func (r *Report) Filter(scopes ...filter.Scope) []URLEntry {
	if len(scopes) == 0 {
		return r.URLs
	}
	want := make(map[filter.Scope]bool, len(scopes))
	for _, s := range scopes {
		want[s] = true
	}
	var out []URLEntry
	for _, u := range r.URLs {
		if want[u.Scope] {
			out = append(out, u)
		}
	}
	return out
}
