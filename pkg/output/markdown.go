package output

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"url-spider/pkg/filter"
	"url-spider/pkg/models"
)

// maxFailureRows caps the failure table; the JSON/YAML/SQLite exports carry the full list
const maxFailureRows = 50

var scopeOrder = []filter.Scope{filter.ScopeInternal, filter.ScopeSubdomain, filter.ScopeExternal}
var kindOrder = []filter.Kind{filter.KindPage, filter.KindAPI, filter.KindStatic, filter.KindFile}

// writeMarkdown renders a human-readable report
func writeMarkdown(w io.Writer, rep *Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("URL Spider Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + rep.RunID + "`"},
			{"State", string(rep.State)},
			{"Started", rep.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", rep.Duration},
			{"Seeds", strconv.Itoa(len(rep.Seeds))},
			{"Pages Fetched", strconv.Itoa(rep.Stats.PagesFetched)},
		},
	})
	md.PlainText("")
	if rep.State == models.RunStateAborted {
		md.Warningf("The run was cancelled; the %d URL(s) below are a partial result.", len(rep.URLs))
		md.PlainText("")
	}

	writeMarkdownSummary(md, rep)

	for _, scope := range scopeOrder {
		entries := rep.Filter(scope)
		if len(entries) == 0 {
			continue
		}
		md.H2(titleFor(scope) + " URLs")
		md.PlainText("")
		rows := make([][]string, 0, len(entries))
		for _, u := range entries {
			rows = append(rows, []string{u.URL, string(u.Kind), u.Context.String(), strconv.Itoa(u.Depth)})
		}
		md.Table(markdown.TableSet{Header: []string{"URL", "Kind", "Context", "Depth"}, Rows: rows})
		md.PlainText("")
	}

	if len(rep.Subdomains) > 0 {
		md.H2("Subdomains")
		md.PlainText("")
		md.BulletList(rep.Subdomains...)
		md.PlainText("")
	}

	if len(rep.Failures) > 0 {
		md.H2("Failures")
		md.PlainText("")
		rows := make([][]string, 0, min(len(rep.Failures), maxFailureRows))
		for i, f := range rep.Failures {
			if i == maxFailureRows {
				break
			}
			status := ""
			if f.StatusCode != 0 {
				status = strconv.Itoa(f.StatusCode)
			}
			rows = append(rows, []string{f.URL, f.Category, status, strconv.Itoa(f.Attempts)})
		}
		md.Table(markdown.TableSet{Header: []string{"URL", "Category", "Status", "Attempts"}, Rows: rows})
		if len(rep.Failures) > maxFailureRows {
			md.PlainTextf("... and %d more", len(rep.Failures)-maxFailureRows)
		}
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("*Generated by url-spider*")
	return md.Build()
}

func writeMarkdownSummary(md *markdown.Markdown, rep *Report) {
	md.H2("Summary")
	md.PlainText("")

	byScope := rep.CountByScope()
	byKind := rep.CountByKind()
	rows := [][]string{}
	for _, s := range scopeOrder {
		rows = append(rows, []string{titleFor(s), strconv.Itoa(byScope[s])})
	}
	for _, k := range kindOrder {
		rows = append(rows, []string{"Kind: " + string(k), strconv.Itoa(byKind[k])})
	}
	rows = append(rows,
		[]string{"Failures", strconv.Itoa(rep.Stats.Failures)},
		[]string{"Robots Blocked", strconv.Itoa(rep.Stats.RobotsBlocked)},
		[]string{"**Total URLs**", "**" + strconv.Itoa(len(rep.URLs)) + "**"},
	)
	md.Table(markdown.TableSet{Header: []string{"Category", "Count"}, Rows: rows})
	md.PlainText("")

	if len(rep.URLs) == 0 {
		md.Note("No URLs were discovered.")
		md.PlainText("")
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URLs by Scope"),
		piechart.WithShowData(true),
	)
	for _, s := range scopeOrder {
		if byScope[s] > 0 {
			chart.LabelAndIntValue(titleFor(s), uint64(byScope[s]))
		}
	}
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func titleFor(s filter.Scope) string {
	switch s {
	case filter.ScopeInternal:
		return "Internal"
	case filter.ScopeSubdomain:
		return "Subdomain"
	case filter.ScopeExternal:
		return "External"
	}
	return string(s)
}
