package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"url-spider/pkg/models"
)

const maxConsoleFailures = 10

// PrintSummary renders a short colored overview of rep. noColor forces plain output.
func PrintSummary(w io.Writer, rep *Report, noColor bool) {
	title := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)
	dim := color.New(color.Faint)
	for _, c := range []*color.Color{title, good, warn, bad, dim} {
		if noColor {
			c.DisableColor()
		}
	}

	state := good
	if rep.State == models.RunStateAborted {
		state = warn
	}
	title.Fprintf(w, "URL Spider results")
	fmt.Fprintf(w, " (run %s, ", rep.RunID)
	state.Fprintf(w, "%s", rep.State)
	fmt.Fprintf(w, " in %s)\n", rep.Duration)
	if len(rep.Seeds) > 0 {
		fmt.Fprintf(w, "  Seeds: %s\n", strings.Join(rep.Seeds, ", "))
	}

	fmt.Fprintf(w, "  Discovered URLs: ")
	good.Fprintf(w, "%d", len(rep.URLs))
	fmt.Fprintf(w, "   Pages fetched: %d   Failures: ", rep.Stats.PagesFetched)
	if rep.Stats.Failures > 0 {
		bad.Fprintf(w, "%d", rep.Stats.Failures)
	} else {
		fmt.Fprintf(w, "%d", rep.Stats.Failures)
	}
	fmt.Fprintf(w, "   Robots blocked: %d\n", rep.Stats.RobotsBlocked)
	if rep.Stats.ExtractionWarnings > 0 {
		warn.Fprintf(w, "  Extraction warnings: %d (partial results kept)\n", rep.Stats.ExtractionWarnings)
	}

	byScope := rep.CountByScope()
	parts := make([]string, 0, len(scopeOrder))
	for _, s := range scopeOrder {
		parts = append(parts, fmt.Sprintf("%s %d", s, byScope[s]))
	}
	fmt.Fprintf(w, "  By scope: %s\n", strings.Join(parts, ", "))

	byKind := rep.CountByKind()
	parts = parts[:0]
	for _, k := range kindOrder {
		parts = append(parts, fmt.Sprintf("%s %d", k, byKind[k]))
	}
	fmt.Fprintf(w, "  By kind: %s\n", strings.Join(parts, ", "))

	if len(rep.Subdomains) > 0 {
		title.Fprintf(w, "  Subdomains (%d):\n", len(rep.Subdomains))
		for _, h := range rep.Subdomains {
			fmt.Fprintf(w, "    - %s\n", h)
		}
	}

	if len(rep.Failures) > 0 {
		bad.Fprintf(w, "  Failures (%d):\n", len(rep.Failures))
		for i, f := range rep.Failures {
			if i == maxConsoleFailures {
				dim.Fprintf(w, "    ... and %d more\n", len(rep.Failures)-maxConsoleFailures)
				break
			}
			fmt.Fprintf(w, "    - %s ", f.URL)
			dim.Fprintf(w, "[%s]\n", f.Category)
		}
	}

	s := rep.Stats
	dim.Fprintf(w, "  Dropped: duplicates %d, filtered %d, beyond depth %d, invalid %d, discarded %d\n",
		s.Duplicates, s.FilterRejected, s.BeyondMaxDepth, s.NormalizationErrors, s.Dropped)
}
