package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}

func TestGetEffectiveSameDomainOnly(t *testing.T) {
	tests := []struct {
		name     string
		siteCfg  SiteConfig
		appCfg   AppConfig
		expected bool
	}{
		{
			name:     "site disabled overrides global enabled",
			siteCfg:  SiteConfig{SameDomainOnly: boolPtr(false)},
			appCfg:   AppConfig{SameDomainOnly: boolPtr(true)},
			expected: false,
		},
		{
			name:     "site nil uses global disabled",
			siteCfg:  SiteConfig{},
			appCfg:   AppConfig{SameDomainOnly: boolPtr(false)},
			expected: false,
		},
		{
			name:     "both nil defaults to true",
			siteCfg:  SiteConfig{},
			appCfg:   AppConfig{},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetEffectiveSameDomainOnly(tt.siteCfg, tt.appCfg))
		})
	}
}

func TestGetEffectiveMaxDepth(t *testing.T) {
	tests := []struct {
		name     string
		siteCfg  SiteConfig
		appCfg   AppConfig
		expected int
	}{
		{"site zero overrides global", SiteConfig{MaxDepth: intPtr(0)}, AppConfig{MaxDepth: intPtr(5)}, 0},
		{"global used when site unset", SiteConfig{}, AppConfig{MaxDepth: intPtr(5)}, 5},
		{"default when both unset", SiteConfig{}, AppConfig{}, DefaultMaxDepth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetEffectiveMaxDepth(tt.siteCfg, tt.appCfg))
		})
	}
}

func TestGetEffectiveBoolOverrides(t *testing.T) {
	app := AppConfig{RespectRobots: true, SeedSitemaps: true, AllowSubdomains: true}

	assert.True(t, GetEffectiveRespectRobots(SiteConfig{}, app))
	assert.False(t, GetEffectiveRespectRobots(SiteConfig{RespectRobots: boolPtr(false)}, app))
	assert.True(t, GetEffectiveSeedSitemaps(SiteConfig{}, app))
	assert.False(t, GetEffectiveSeedSitemaps(SiteConfig{SeedSitemaps: boolPtr(false)}, app))
	assert.True(t, GetEffectiveAllowSubdomains(SiteConfig{}, app))
	assert.False(t, GetEffectiveAllowSubdomains(SiteConfig{AllowSubdomains: boolPtr(false)}, app))
}

func TestGetEffectiveFetchScripts(t *testing.T) {
	tests := []struct {
		name     string
		siteCfg  SiteConfig
		appCfg   AppConfig
		expected int
	}{
		{"disabled by default", SiteConfig{}, AppConfig{}, 0},
		{"global used when site unset", SiteConfig{}, AppConfig{FetchScripts: 3}, 3},
		{"site zero overrides global", SiteConfig{FetchScripts: intPtr(0)}, AppConfig{FetchScripts: 3}, 0},
		{"negative site value disables", SiteConfig{FetchScripts: intPtr(-2)}, AppConfig{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetEffectiveFetchScripts(tt.siteCfg, tt.appCfg))
		})
	}
}

func TestGetEffectiveStrings(t *testing.T) {
	app := AppConfig{DefaultUserAgent: "global-agent", Cookie: "a=1", DefaultDelayPerHost: time.Second}

	assert.Equal(t, "global-agent", GetEffectiveUserAgent(SiteConfig{}, app))
	assert.Equal(t, "site-agent", GetEffectiveUserAgent(SiteConfig{UserAgent: "site-agent"}, app))
	assert.Equal(t, "a=1", GetEffectiveCookie(SiteConfig{}, app))
	assert.Equal(t, "b=2", GetEffectiveCookie(SiteConfig{Cookie: "b=2"}, app))
	assert.Equal(t, time.Second, GetEffectiveDelayPerHost(SiteConfig{}, app))
	assert.Equal(t, 2*time.Second, GetEffectiveDelayPerHost(SiteConfig{DelayPerHost: 2 * time.Second}, app))
}

func TestGetEffectiveHeaders(t *testing.T) {
	app := AppConfig{Headers: map[string]string{"X-A": "global", "X-B": "global"}}
	site := SiteConfig{Headers: map[string]string{"X-B": "site", "X-C": "site"}}

	merged := GetEffectiveHeaders(site, app)
	assert.Equal(t, map[string]string{"X-A": "global", "X-B": "site", "X-C": "site"}, merged)
	assert.Equal(t, "global", app.Headers["X-B"], "inputs must not be mutated")
}

func TestResolvePolicy(t *testing.T) {
	app := AppConfig{NumWorkers: 8, RequestTimeout: 5 * time.Second, MaxRetries: 3, MaxPages: 100}
	site := SiteConfig{
		Seeds:           []string{"https://example.com/"},
		MaxDepth:        intPtr(4),
		IncludePatterns: []string{"/docs/"},
		ExcludePatterns: []string{`\.pdf$`},
		Concurrency:     2,
		Retries:         intPtr(0),
	}

	policy := ResolvePolicy(site, app)
	assert.Equal(t, 4, policy.MaxDepth)
	assert.Equal(t, 100, policy.MaxPages)
	assert.Equal(t, []string{"/docs/"}, policy.IncludePatterns)
	assert.Equal(t, []string{`\.pdf$`}, policy.ExcludePatterns)
	assert.True(t, policy.SameDomainOnly)
	assert.False(t, policy.AllowSubdomains)
	assert.Equal(t, 2, policy.Concurrency)
	assert.Equal(t, 5*time.Second, policy.Timeout)
	assert.Equal(t, 0, policy.Retries)

	site.IncludePatterns[0] = "changed"
	assert.Equal(t, []string{"/docs/"}, policy.IncludePatterns, "policy must own its pattern slices")
}
