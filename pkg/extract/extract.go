package extract

import (
	"bytes"
	"fmt"
	"iter"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

// MimeHint selects the extraction strategy for a body
type MimeHint string

const (
	MimeHTML       MimeHint = "html"
	MimeJavaScript MimeHint = "javascript"
	MimeCSS        MimeHint = "css"
	MimeJSON       MimeHint = "json"
	MimeXML        MimeHint = "xml"
	MimeFeed       MimeHint = "feed"
	MimeText       MimeHint = "text"
)

// String implements fmt.Stringer for logging
func (m MimeHint) String() string {
	if m == "" {
		return "unset"
	}
	return string(m)
}

// RawLink is a URL-like string found in a body, before normalization
type RawLink struct {
	Raw     string
	Context models.ExtractionContext
}

// handler scans one kind of body, emitting what it finds
type handler func(body []byte, em *emitter)

var handlers map[MimeHint]handler

func init() {
	// Assigned in init because the HTML handler recurses into the table
	handlers = map[MimeHint]handler{
		MimeHTML:       extractHTML,
		MimeJavaScript: extractJS,
		MimeCSS:        extractCSS,
		MimeJSON:       extractJSON,
		MimeXML:        extractXML,
		MimeFeed:       extractFeed,
		MimeText:       extractText,
	}
}

// Extract returns the URL-like strings found in body as a lazy sequence.
//
// The sequence is finite and restartable: ranging over it twice, or calling Extract again on the same
// input, yields the same links in the same order. Within one pass each raw string appears once, tagged
// with the context where it was first seen. Malformed input yields a partial (possibly empty) sequence;
// Extract never panics on bad content. source is used only by HTML to resolve <base href> and may be nil.
func Extract(body []byte, hint MimeHint, source *url.URL) iter.Seq[RawLink] {
	return func(yield func(RawLink) bool) {
		em := newEmitter(yield, source)
		defer em.recoverHandler()
		dispatch(hint, body, em)
	}
}

// ExtractAll collects the Extract sequence into a slice
func ExtractAll(body []byte, hint MimeHint, source *url.URL) []RawLink {
	var out []RawLink
	for link := range Extract(body, hint, source) {
		out = append(out, link)
	}
	return out
}

// ExtractWithWarnings collects the sequence like ExtractAll and also returns what went wrong on the
// way: a handler that gave up on malformed content or panicked. The links found before that are kept.
func ExtractWithWarnings(body []byte, hint MimeHint, source *url.URL) ([]RawLink, []error) {
	var out []RawLink
	em := newEmitter(func(l RawLink) bool {
		out = append(out, l)
		return true
	}, source)
	func() {
		defer em.recoverHandler()
		dispatch(hint, body, em)
	}()
	return out, em.warnings
}

func dispatch(hint MimeHint, body []byte, em *emitter) {
	h, ok := handlers[hint]
	if !ok {
		h = handlers[MimeText]
	}
	h(body, em)
}

// emitter dedups within one pass, applies the <base href> override and stops when the consumer does
type emitter struct {
	yield   func(RawLink) bool
	source  *url.URL
	base    *url.URL
	seen    map[string]struct{}
	stopped bool
	inYield bool

	warnings []error
}

func newEmitter(yield func(RawLink) bool, source *url.URL) *emitter {
	return &emitter{yield: yield, source: source, seen: make(map[string]struct{})}
}

// emit forwards raw to the consumer; returns false once the consumer has stopped
func (em *emitter) emit(raw string, ctx models.ExtractionContext) bool {
	if em.stopped {
		return false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || isNoise(raw) {
		return true
	}
	raw = em.rebase(raw)
	if _, dup := em.seen[raw]; dup {
		return true
	}
	em.seen[raw] = struct{}{}

	em.inYield = true
	ok := em.yield(RawLink{Raw: raw, Context: ctx})
	em.inYield = false
	if !ok {
		em.stopped = true
	}
	return ok
}

// rebase resolves relative values against <base href> when the document declared one
func (em *emitter) rebase(raw string) string {
	if em.base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	return em.base.ResolveReference(ref).String()
}

// warn records a parse problem; extraction carries on with whatever fallback the handler has
func (em *emitter) warn(err error) {
	em.warnings = append(em.warnings, err)
}

func (em *emitter) done() bool {
	return em.stopped
}

// recoverHandler swallows panics raised by a handler on hostile input, never those raised by the consumer
func (em *emitter) recoverHandler() {
	if r := recover(); r != nil {
		if em.inYield {
			panic(r)
		}
		em.warn(fmt.Errorf("%w: extraction handler panicked: %v", utils.ErrParsing, r))
		em.stopped = true
	}
}

// --- Content type detection ---

var extensionHints = map[string]MimeHint{
	".html": MimeHTML, ".htm": MimeHTML, ".xhtml": MimeHTML, ".shtml": MimeHTML,
	".php": MimeHTML, ".asp": MimeHTML, ".aspx": MimeHTML, ".jsp": MimeHTML,
	".js": MimeJavaScript, ".mjs": MimeJavaScript, ".cjs": MimeJavaScript, ".jsx": MimeJavaScript,
	".ts": MimeJavaScript, ".tsx": MimeJavaScript, ".vue": MimeJavaScript,
	".css": MimeCSS,
	".json": MimeJSON, ".map": MimeJSON, ".webmanifest": MimeJSON,
	".xml": MimeXML,
	".rss": MimeFeed, ".atom": MimeFeed,
	".txt": MimeText,
}

// DetectMime picks the extraction strategy from the Content-Type header, then the URL's extension,
// then by sniffing the body. u may be nil.
func DetectMime(contentType string, u *url.URL, body []byte) MimeHint {
	if hint, ok := hintFromContentType(contentType); ok {
		if hint == MimeXML && looksLikeFeed(body) {
			return MimeFeed
		}
		return hint
	}
	if u != nil {
		if hint, ok := extensionHints[strings.ToLower(path.Ext(u.Path))]; ok {
			if hint == MimeXML && looksLikeFeed(body) {
				return MimeFeed
			}
			return hint
		}
	}
	return sniff(body)
}

func hintFromContentType(contentType string) (MimeHint, bool) {
	if contentType == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return MimeHTML, true
	case strings.Contains(mediaType, "javascript") || strings.Contains(mediaType, "ecmascript") ||
		strings.Contains(mediaType, "typescript"):
		return MimeJavaScript, true
	case mediaType == "text/css":
		return MimeCSS, true
	case mediaType == "application/rss+xml" || mediaType == "application/atom+xml" ||
		mediaType == "application/feed+json":
		return MimeFeed, true
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return MimeJSON, true
	case mediaType == "text/xml" || mediaType == "application/xml" || strings.HasSuffix(mediaType, "+xml"):
		return MimeXML, true
	}
	// text/plain and application/octet-stream say too little; fall through to extension and sniffing
	return "", false
}

var feedMarker = regexp.MustCompile(`(?i)<(rss|feed|rdf:rdf)[\s>]`)

func looksLikeFeed(body []byte) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	return feedMarker.Match(head)
}

func sniff(body []byte) MimeHint {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return MimeText
	}
	if looksLikeFeed(trimmed) {
		return MimeFeed
	}
	detected := http.DetectContentType(trimmed)
	switch {
	case strings.HasPrefix(detected, "text/html"):
		return MimeHTML
	case strings.HasPrefix(detected, "text/xml"):
		return MimeXML
	}
	switch trimmed[0] {
	case '{', '[':
		return MimeJSON
	case '<':
		return MimeHTML
	}
	if jsMarker.Match(trimmed[:min(len(trimmed), 2048)]) {
		return MimeJavaScript
	}
	return MimeText
}

var jsMarker = regexp.MustCompile(`\b(function\s*\(|const\s+\w+\s*=|let\s+\w+\s*=|var\s+\w+\s*=|=>|import\s+.+\s+from\s|require\()`)

// ParseHint converts a user-supplied name to a MimeHint
func ParseHint(s string) (MimeHint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html", "htm":
		return MimeHTML, nil
	case "js", "javascript", "ts":
		return MimeJavaScript, nil
	case "css":
		return MimeCSS, nil
	case "json":
		return MimeJSON, nil
	case "xml", "sitemap":
		return MimeXML, nil
	case "feed", "rss", "atom":
		return MimeFeed, nil
	case "text", "txt":
		return MimeText, nil
	}
	return "", fmt.Errorf("unknown content hint '%s'", s)
}
