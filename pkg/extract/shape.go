package extract

import (
	"regexp"
	"strings"

	"url-spider/pkg/models"
)

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(true|false|null|undefined|nan|none)$`),
	regexp.MustCompile(`(?i)^-?(webkit|moz|ms|o)-`),                                     // CSS vendor prefixes
	regexp.MustCompile(`^[\d\s%.,:+-]+$`),                                                // numbers, percentages
	regexp.MustCompile(`^\d{1,4}[/-]\d{1,2}(?:[/-]\d{1,4})?$`),                           // dates
	regexp.MustCompile(`(?i)^(width|height|initial-scale|maximum-scale|minimum-scale|user-scalable)\b`), // meta viewport
	regexp.MustCompile(`(?i)^(application|text|image|audio|video|font|multipart|model)/[\w.+-]+$`),      // mime types
	regexp.MustCompile(`^\p{Han}`),
}

func isNoise(s string) bool {
	for _, re := range noisePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// knownExtensions are file types worth reporting when they appear in a bare relative string
var knownExtensions = map[string]bool{
	"html": true, "htm": true, "xhtml": true, "shtml": true,
	"php": true, "asp": true, "aspx": true, "ashx": true, "asmx": true, "jsp": true, "jspx": true, "do": true, "action": true, "cgi": true,
	"json": true, "jsonp": true, "xml": true, "rss": true, "atom": true,
	"js": true, "mjs": true, "cjs": true, "jsx": true, "ts": true, "tsx": true, "vue": true, "wasm": true, "map": true,
	"css": true, "scss": true, "sass": true, "less": true,
	"txt": true, "md": true, "csv": true, "pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true,
	"zip": true, "rar": true, "7z": true, "gz": true, "tar": true, "tgz": true,
	"svg": true, "png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "ico": true, "webp": true, "avif": true,
	"mp3": true, "mp4": true, "webm": true, "avi": true, "mov": true, "ogg": true,
	"woff": true, "woff2": true, "ttf": true, "eot": true, "otf": true,
	"yml": true, "yaml": true, "toml": true, "ini": true, "conf": true, "config": true, "env": true, "bak": true, "sql": true,
}

var (
	schemeURL    = regexp.MustCompile(`^(?i:https?|wss?|ftp)://[\w\[]`)
	protoRel     = regexp.MustCompile(`^//[a-zA-Z0-9][\w.-]*\.[a-zA-Z]{2,}(?:[:/?#]|$)`)
	rootRel      = regexp.MustCompile(`^/[\w~.%@:+!$&=,;-]`)
	dotRel       = regexp.MustCompile(`^\.{1,2}/`)
	apiRel       = regexp.MustCompile(`(?i)^(api|rest|graphql|ajax|rpc|v\d+|wp-json)(/|$)`)
	fileRel      = regexp.MustCompile(`^[\w.-]+(/[\w.@~%+-]+)*\.([a-zA-Z0-9]{1,6})(?:[?#].*)?$`)
	badURLChars  = regexp.MustCompile("[\\s<>\"'`\\\\^|]")
	absoluteURLs = regexp.MustCompile(`(?i)\b(?:https?|wss?|ftp)://[a-z0-9\[][a-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]*`)
	attrURLs     = regexp.MustCompile(`(?i)\b(?:src|href|data-src|data-href|action)\s*=\s*["']([^"']+)["']`)
)

// looksLikeURL is the strict shape test applied to free-standing strings
func looksLikeURL(s string) bool {
	if len(s) < 2 || len(s) > 2048 || badURLChars.MatchString(s) || isNoise(s) {
		return false
	}
	switch {
	case schemeURL.MatchString(s):
		return true
	case strings.HasPrefix(s, "//"):
		return protoRel.MatchString(s)
	case rootRel.MatchString(s):
		return true
	case dotRel.MatchString(s):
		return len(s) > 3
	case apiRel.MatchString(s) && strings.Contains(s, "/"):
		return true
	}
	if m := fileRel.FindStringSubmatch(s); m != nil {
		return knownExtensions[strings.ToLower(m[2])]
	}
	return false
}

// looksLikeURLRelaxed is applied to strings in positions that expect a URL (fetch arguments, url keys)
func looksLikeURLRelaxed(s string) bool {
	if s == "" || len(s) > 2048 || badURLChars.MatchString(s) || isNoise(s) {
		return false
	}
	if looksLikeURL(s) || s == "/" {
		return true
	}
	if strings.HasPrefix(s, "#") {
		return false
	}
	return strings.ContainsAny(s, "/?")
}

// trimURLTail drops punctuation that usually ends a sentence rather than a URL
func trimURLTail(s string) string {
	s = strings.TrimRight(s, ".,;:!?'\"")
	for strings.HasSuffix(s, ")") && strings.Count(s, "(") < strings.Count(s, ")") {
		s = strings.TrimSuffix(s, ")")
	}
	for strings.HasSuffix(s, "]") && strings.Count(s, "[") < strings.Count(s, "]") {
		s = strings.TrimSuffix(s, "]")
	}
	return s
}

// scanLoose finds absolute URLs and quoted attribute values in unstructured text
func scanLoose(s string, ctx models.ExtractionContext, em *emitter) {
	for _, m := range absoluteURLs.FindAllString(s, -1) {
		if !em.emit(trimURLTail(m), ctx) {
			return
		}
	}
	for _, m := range attrURLs.FindAllStringSubmatch(s, -1) {
		if !em.emit(m[1], ctx) {
			return
		}
	}
}
