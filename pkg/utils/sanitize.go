package utils

import (
	"regexp"
	"strings"
)

var (
	unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]+`)
	underscoreRuns  = regexp.MustCompile(`_{2,}`)
)

const maxFilenameLength = 100

// SanitizeFilename turns a site key or label into a single safe path component.
// Separators and reserved characters become underscores; the result is never empty.
func SanitizeFilename(name string) string {
	clean := unsafePathChars.ReplaceAllString(name, "_")
	clean = underscoreRuns.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_ .")
	if len(clean) > maxFilenameLength {
		clean = strings.Trim(clean[:maxFilenameLength], "_ .")
	}
	if clean == "" {
		return "untitled"
	}
	return clean
}
