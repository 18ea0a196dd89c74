package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"url-spider/pkg/models"
	"url-spider/pkg/parse"
	"url-spider/pkg/utils"
)

// Decision explains why Accept returned its answer; used for stats and debug logging
type Decision string

const (
	Accepted        Decision = "accepted"
	RejectedDomain  Decision = "rejected_domain"
	RejectedExclude Decision = "rejected_exclude"
	RejectedInclude Decision = "rejected_include"
	RejectedInvalid Decision = "rejected_invalid"
)

// Filter applies a CrawlPolicy's scope rules to canonical URLs.
// It is immutable after construction and safe for concurrent use.
type Filter struct {
	include         []*regexp.Regexp
	exclude         []*regexp.Regexp
	sameDomainOnly  bool
	allowSubdomains bool
	seedHosts       map[string]struct{}
	seedDomains     map[string]struct{}
}

// New compiles the policy's patterns (case-insensitively) and binds the run's seed hosts.
// seedHosts may be canonical URLs or bare hostnames.
func New(policy models.CrawlPolicy, seedHosts []string) (*Filter, error) {
	include, err := utils.CompileRegexPatterns(policy.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling include patterns: %w", err)
	}
	exclude, err := utils.CompileRegexPatterns(policy.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling exclude patterns: %w", err)
	}

	f := &Filter{
		include:         include,
		exclude:         exclude,
		sameDomainOnly:  policy.SameDomainOnly,
		allowSubdomains: policy.AllowSubdomains,
		seedHosts:       make(map[string]struct{}, len(seedHosts)),
		seedDomains:     make(map[string]struct{}, len(seedHosts)),
	}
	for _, h := range seedHosts {
		host := hostOf(h)
		if host == "" {
			continue
		}
		f.seedHosts[host] = struct{}{}
		f.seedDomains[parse.RegistrableDomain(host)] = struct{}{}
	}
	return f, nil
}

// hostOf accepts either a URL or a bare hostname and returns the lowercased hostname
func hostOf(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.Contains(s, "://") {
		return parse.Hostname(s)
	}
	if u, err := url.Parse("//" + s); err == nil {
		return u.Hostname()
	}
	return s
}

// Accept reports whether canonical passes the policy
func (f *Filter) Accept(canonical string) bool {
	return f.Decide(canonical) == Accepted
}

// Decide evaluates the rules in order: same-domain, exclude (deny wins), include
func (f *Filter) Decide(canonical string) Decision {
	if f.sameDomainOnly {
		host := parse.Hostname(canonical)
		if host == "" {
			return RejectedInvalid
		}
		if !f.InScope(host) {
			return RejectedDomain
		}
	}
	for _, re := range f.exclude {
		if re.MatchString(canonical) {
			return RejectedExclude
		}
	}
	if len(f.include) == 0 {
		return Accepted
	}
	for _, re := range f.include {
		if re.MatchString(canonical) {
			return Accepted
		}
	}
	return RejectedInclude
}

// InScope reports whether host is a seed host (or shares a seed's registrable domain when subdomains are allowed)
func (f *Filter) InScope(host string) bool {
	host = strings.ToLower(host)
	if _, ok := f.seedHosts[host]; ok {
		return true
	}
	if f.allowSubdomains {
		_, ok := f.seedDomains[parse.RegistrableDomain(host)]
		return ok
	}
	return false
}

// SeedHosts returns the hosts bound at construction
func (f *Filter) SeedHosts() []string {
	hosts := make([]string, 0, len(f.seedHosts))
	for h := range f.seedHosts {
		hosts = append(hosts, h)
	}
	return hosts
}
