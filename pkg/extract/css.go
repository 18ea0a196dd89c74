package extract

import (
	"regexp"
	"strings"

	"url-spider/pkg/models"
)

var (
	cssURL    = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)
	cssImport = regexp.MustCompile(`(?i)@import\s+["']([^"']+)["']`)
	cssBlock  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

func extractCSS(body []byte, em *emitter) {
	src := string(body)
	for _, c := range cssBlock.FindAllString(src, -1) {
		scanLoose(c, models.ContextComment, em)
	}
	src = cssBlock.ReplaceAllString(src, " ")

	for _, m := range cssImport.FindAllStringSubmatch(src, -1) {
		if !em.emit(m[1], models.ContextCSSURL) {
			return
		}
	}
	for _, m := range cssURL.FindAllStringSubmatch(src, -1) {
		val := m[1] + m[2] + m[3] // exactly one group matched
		if val == "" || strings.HasPrefix(strings.ToLower(val), "data:") || strings.HasPrefix(val, "#") {
			continue
		}
		if !em.emit(val, models.ContextCSSURL) {
			return
		}
	}
}
