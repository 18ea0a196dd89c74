package parse

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"

	"url-spider/pkg/utils"
)

// Schemes that never denote a fetchable resource; values using them are dropped during normalization
var rejectedSchemes = map[string]bool{
	"javascript": true,
	"mailto":     true,
	"tel":        true,
	"data":       true,
	"blob":       true,
	"about":      true,
	"vbscript":   true,
	"file":       true,
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// Normalize canonicalizes raw relative to base and returns the canonical string used as the dedup key.
//
// Relative references ("./", "../", "//host/path", "#frag") are resolved against base, dot segments are
// collapsed, scheme and host are lowercased, default ports and a trailing host dot are removed, an empty
// path becomes "/" and the fragment is dropped. The query is kept. A trailing slash is significant: "/a" and
// "/a/" stay distinct. Percent escapes of unreserved characters (letters, digits and "-._~") are decoded in
// the path and query; every other escape is kept with uppercase hex, so "%2f" becomes "%2F" and never "/".
//
// base may be nil when raw is absolute. The function is pure and idempotent.
func Normalize(raw string, base *url.URL) (string, error) {
	cleaned := cleanRaw(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty URL", utils.ErrNormalization)
	}
	if strings.ContainsAny(cleaned, " \t\r\n") {
		return "", fmt.Errorf("%w: whitespace in '%s'", utils.ErrNormalization, truncate(cleaned))
	}

	ref, err := url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: parsing URL '%s': %w", utils.ErrNormalization, truncate(cleaned), err)
	}
	if rejectedSchemes[strings.ToLower(ref.Scheme)] {
		return "", fmt.Errorf("%w: unsupported scheme '%s'", utils.ErrNormalization, ref.Scheme)
	}

	var resolved *url.URL
	switch {
	case ref.IsAbs():
		resolved = (&url.URL{}).ResolveReference(ref) // collapses dot segments
	case base != nil:
		resolved = base.ResolveReference(ref)
	default:
		return "", fmt.Errorf("%w: relative URL '%s' without base", utils.ErrNormalization, truncate(cleaned))
	}

	return canonicalize(resolved)
}

// NormalizeURL standardizes an already-parsed absolute URL using the same rules as Normalize
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) (string, error) {
	if u == nil {
		return "", fmt.Errorf("%w: nil URL", utils.ErrNormalization)
	}
	if rejectedSchemes[strings.ToLower(u.Scheme)] {
		return "", fmt.Errorf("%w: unsupported scheme '%s'", utils.ErrNormalization, u.Scheme)
	}
	return canonicalize((&url.URL{}).ResolveReference(u))
}

// ParseAndNormalize normalizes an absolute URL string and returns both the canonical string and its parsed form
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	canonical, err := Normalize(urlStr, nil)
	if err != nil {
		return "", nil, err
	}
	parsed, err := url.Parse(canonical)
	if err != nil { // canonical strings always re-parse; kept for safety of callers
		return "", nil, fmt.Errorf("%w: %w", utils.ErrNormalization, err)
	}
	return canonical, parsed, nil
}

func canonicalize(u *url.URL) (string, error) {
	normalized := *u // Work on a copy

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	if normalized.Scheme == "" || normalized.Host == "" {
		return "", fmt.Errorf("%w: missing scheme or host in '%s'", utils.ErrNormalization, truncate(u.String()))
	}
	if rejectedSchemes[normalized.Scheme] {
		return "", fmt.Errorf("%w: unsupported scheme '%s'", utils.ErrNormalization, normalized.Scheme)
	}

	host := strings.ToLower(normalized.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if port == "" || defaultPorts[normalized.Scheme] == port {
			host = bracketIPv6(h)
		}
	} else if strings.HasSuffix(host, ":") { // "host:" with an empty port
		host = strings.TrimSuffix(host, ":")
	}
	if h, port, err := net.SplitHostPort(host); err == nil {
		host = net.JoinHostPort(strings.TrimSuffix(strings.Trim(h, "[]"), "."), port)
	} else {
		host = strings.TrimSuffix(host, ".")
	}
	if hostOnly(host) == "" {
		return "", fmt.Errorf("%w: empty host in '%s'", utils.ErrNormalization, truncate(u.String()))
	}
	normalized.Host = host

	if escaped := normalized.EscapedPath(); escaped != "" {
		if cleaned := normalizeEscapes(escaped); cleaned != escaped {
			if err := setEscapedPath(&normalized, cleaned); err != nil {
				return "", err
			}
		}
	}
	normalized.RawQuery = normalizeEscapes(normalized.RawQuery)

	if normalized.Path == "" {
		normalized.Path = "/"
		normalized.RawPath = ""
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.ForceQuery = false
	normalized.Opaque = ""

	return normalized.String(), nil
}

// setEscapedPath replaces the path of u and collapses dot segments that decoding may have produced
func setEscapedPath(u *url.URL, escaped string) error {
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return fmt.Errorf("%w: path '%s': %w", utils.ErrNormalization, truncate(escaped), err)
	}
	u.Path, u.RawPath = decoded, escaped
	*u = *(&url.URL{}).ResolveReference(u)
	return nil
}

// normalizeEscapes decodes percent escapes of unreserved characters and uppercases the hex of the rest
func normalizeEscapes(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			b.WriteByte(s[i])
			continue
		}
		c := unhex(s[i+1])<<4 | unhex(s[i+2])
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(s[i+1 : i+3]))
		}
		i += 2
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func bracketIPv6(h string) string {
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}

// cleanRaw strips surrounding whitespace and quoting picked up by pattern-based extraction
func cleanRaw(raw string) string {
	s := strings.TrimSpace(raw)
	for len(s) >= 1 {
		trimmed := strings.Trim(s, "\"'`")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.ReplaceAll(s, `\/`, "/")
}

func truncate(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

// IsCrawlable reports whether a canonical URL can be handed to the HTTP fetcher
func IsCrawlable(canonical string) bool {
	return strings.HasPrefix(canonical, "http://") || strings.HasPrefix(canonical, "https://")
}

// RegistrableDomain returns the eTLD+1 of host (e.g. "docs.example.co.uk" -> "example.co.uk").
// Falls back to the host itself for IPs, single labels, and public suffixes.
func RegistrableDomain(host string) string {
	h := strings.TrimSuffix(strings.ToLower(hostOnly(host)), ".")
	h = strings.Trim(h, "[]")
	if net.ParseIP(h) != nil {
		return h
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(h)
	if err != nil {
		return h
	}
	return domain
}

// Hostname returns the lowercased host of a canonical URL without port, or "" if unparseable
func Hostname(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Extension returns the lowercased file extension of the URL path (including the dot), or ""
func Extension(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

// HasExtension reports whether the URL path ends with one of exts (case-insensitive, with or without dot)
func HasExtension(canonical string, exts []string) bool {
	ext := Extension(canonical)
	if ext == "" {
		return false
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if e == ext {
			return true
		}
	}
	return false
}
