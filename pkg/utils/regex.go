package utils

import (
	"regexp"
	"strings"
)

// CompileRegexPatterns compiles regex strings into usable *regexp.Regexp objects.
// Patterns are matched case-insensitively unless they already carry an inline flag group.
// Returns an error if any pattern is invalid.
func CompileRegexPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" { // Skip empty patterns silently
			continue
		}
		expr := pattern
		if !strings.HasPrefix(expr, "(?") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "invalid regex pattern #%d ('%s')", i+1, pattern)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
