package filter

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"url-spider/pkg/parse"
)

// Scope places a URL relative to the run's seed hosts
type Scope string

const (
	ScopeInternal  Scope = "internal"
	ScopeSubdomain Scope = "subdomain"
	ScopeExternal  Scope = "external"
)

// Kind is a coarse resource type guessed from the URL path
type Kind string

const (
	KindPage   Kind = "page"
	KindStatic Kind = "static"
	KindFile   Kind = "file"
	KindAPI    Kind = "api"
)

var staticExtensions = map[string]bool{
	".js": true, ".mjs": true, ".css": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true, ".webp": true, ".avif": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".mp4": true, ".webm": true, ".mp3": true, ".ogg": true, ".wav": true,
}

var fileExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true,
	".csv": true, ".txt": true, ".exe": true, ".dmg": true, ".apk": true, ".iso": true,
}

var apiExtensions = map[string]bool{
	".json": true, ".xml": true, ".graphql": true,
}

var apiSegments = []string{"/api/", "/graphql", "/rest/", "/v1/", "/v2/", "/v3/", "/ajax/", "/rpc/", "/wp-json/"}

// Classify returns the scope and kind of a canonical URL relative to seedHosts.
// An unparseable URL is reported as external page.
func Classify(canonical string, seedHosts []string) (Scope, Kind) {
	u, err := url.Parse(canonical)
	if err != nil {
		return ScopeExternal, KindPage
	}
	return classifyScope(strings.ToLower(u.Hostname()), seedHosts), classifyKind(u.Path)
}

func classifyScope(host string, seedHosts []string) Scope {
	domain := parse.RegistrableDomain(host)
	scope := ScopeExternal
	for _, seed := range seedHosts {
		seedHost := hostOf(seed)
		if host == seedHost {
			return ScopeInternal
		}
		if domain == parse.RegistrableDomain(seedHost) {
			scope = ScopeSubdomain
		}
	}
	return scope
}

func classifyKind(p string) Kind {
	lower := strings.ToLower(p)
	ext := path.Ext(lower)
	switch {
	case staticExtensions[ext]:
		return KindStatic
	case fileExtensions[ext]:
		return KindFile
	case apiExtensions[ext]:
		return KindAPI
	}
	for _, seg := range apiSegments {
		if strings.Contains(lower+"/", seg) {
			return KindAPI
		}
	}
	return KindPage
}

// Subdomains lists the distinct hosts among urls that share a seed's registrable domain
// without being a seed host themselves, sorted
func Subdomains(urls []string, seedHosts []string) []string {
	set := make(map[string]struct{})
	for _, u := range urls {
		if scope, _ := Classify(u, seedHosts); scope == ScopeSubdomain {
			set[parse.Hostname(u)] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
