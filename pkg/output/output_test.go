package output

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"url-spider/pkg/filter"
	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func sampleResult() *models.CrawlResult {
	r := models.NewCrawlResult()
	r.Seeds = []string{"https://example.com/"}
	r.SetState(models.RunStateRunning)
	r.AddDiscovered(models.DiscoveredURL{Canonical: "https://example.com/", Raw: "https://example.com/", Context: models.ContextSeed})
	r.AddDiscovered(models.DiscoveredURL{Canonical: "https://example.com/api/users", Raw: "/api/users",
		SourcePage: "https://example.com/", Context: models.ContextJSStringLiteral, Depth: 1})
	r.AddDiscovered(models.DiscoveredURL{Canonical: "https://cdn.example.com/app.js", Raw: "//cdn.example.com/app.js",
		SourcePage: "https://example.com/", Context: models.ContextScriptSrc, Depth: 1})
	r.AddDiscovered(models.DiscoveredURL{Canonical: "https://other.org/report.pdf", Raw: "https://other.org/report.pdf",
		SourcePage: "https://example.com/", Context: models.ContextHTMLLink, Depth: 1})
	// Duplicate entries must collapse in the report
	r.AddDiscovered(models.DiscoveredURL{Canonical: "https://example.com/api/users", Raw: "api/users", Context: models.ContextHTMLLink, Depth: 1})
	r.AddPage(models.PageRecord{URL: "https://example.com/", StatusCode: 200, ContentType: "text/html", Bytes: 120, LinksFound: 4, Attempts: 1})
	r.AddFailure(models.FailureRecord{URL: "https://example.com/api/users", Depth: 1, Kind: models.FetchErrorHTTPStatus,
		StatusCode: 404, Category: "HTTP_404", Detail: "not found", Attempts: 1})
	r.SetState(models.RunStateCompleted)
	return r
}

func TestNewReport(t *testing.T) {
	rep := NewReport(sampleResult())

	require.Len(t, rep.URLs, 4)
	assert.Equal(t, models.RunStateCompleted, rep.State)

	byURL := make(map[string]URLEntry)
	for _, u := range rep.URLs {
		byURL[u.URL] = u
	}
	assert.Equal(t, filter.ScopeInternal, byURL["https://example.com/api/users"].Scope)
	assert.Equal(t, filter.KindAPI, byURL["https://example.com/api/users"].Kind)
	assert.Equal(t, models.ContextJSStringLiteral, byURL["https://example.com/api/users"].Context, "first occurrence wins")
	assert.Equal(t, filter.ScopeSubdomain, byURL["https://cdn.example.com/app.js"].Scope)
	assert.Equal(t, filter.KindStatic, byURL["https://cdn.example.com/app.js"].Kind)
	assert.Equal(t, filter.ScopeExternal, byURL["https://other.org/report.pdf"].Scope)
	assert.Equal(t, filter.KindFile, byURL["https://other.org/report.pdf"].Kind)

	assert.Equal(t, []string{"cdn.example.com"}, rep.Subdomains)
	assert.Equal(t, map[filter.Scope]int{filter.ScopeInternal: 2, filter.ScopeSubdomain: 1, filter.ScopeExternal: 1}, rep.CountByScope())
	assert.Len(t, rep.Filter(filter.ScopeExternal, filter.ScopeSubdomain), 2)
	assert.Len(t, rep.Filter(), 4)
}

func TestWrite_StreamFormats(t *testing.T) {
	rep := NewReport(sampleResult())

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatText, rep))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Equal(t, []string{
			"https://cdn.example.com/app.js",
			"https://example.com/",
			"https://example.com/api/users",
			"https://other.org/report.pdf",
		}, lines)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatJSON, rep))
		var decoded struct {
			RunID string     `json:"run_id"`
			URLs  []URLEntry `json:"urls"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, rep.RunID, decoded.RunID)
		assert.Len(t, decoded.URLs, 4)
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatCSV, rep))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, []string{"url", "scope", "kind", "context", "depth", "source"}, records[0])
		assert.Equal(t, "https://cdn.example.com/app.js", records[1][0])
		assert.Equal(t, "subdomain", records[1][1])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatYAML, rep))
		var decoded map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "completed", decoded["state"])
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatMarkdown, rep))
		out := buf.String()
		assert.Contains(t, out, "# URL Spider Report")
		assert.Contains(t, out, "## Internal URLs")
		assert.Contains(t, out, "## Subdomains")
		assert.Contains(t, out, "cdn.example.com")
		assert.Contains(t, out, "HTTP_404")
		assert.Contains(t, out, "mermaid")
	})

	t.Run("sqlite needs a file", func(t *testing.T) {
		assert.ErrorIs(t, Write(io.Discard, FormatSQLite, rep), utils.ErrConfigValidation)
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"md", FormatMarkdown, false},
		{"YAML", FormatYAML, false},
		{"db", FormatSQLite, false},
		{"", FormatText, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []Format
		wantErr bool
	}{
		{name: "Distinct", in: []string{"json", "csv"}, want: []Format{FormatJSON, FormatCSV}},
		{name: "Repeated", in: []string{"json", "json"}, want: []Format{FormatJSON}},
		{name: "Aliases", in: []string{"yml", "csv", "YAML"}, want: []Format{FormatYAML, FormatCSV}},
		{name: "Unknown", in: []string{"json", "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormats(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteAll_RepeatedFormatWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	rep := NewReport(sampleResult())
	base := filepath.Join(dir, "results")

	paths, err := WriteAll(context.Background(), base, []Format{FormatJSON, FormatJSON, FormatSQLite, FormatSQLite},
		rep, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{base + ".json", base + ".db"}, paths)

	raw, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), "file must hold exactly one report")
}

func TestPaths(t *testing.T) {
	assert.Equal(t, map[Format]string{FormatJSON: "out/results.json"}, Paths("out/results.json", []Format{FormatJSON}))
	assert.Equal(t, map[Format]string{
		FormatJSON:   "out/results.json",
		FormatCSV:    "out/results.csv",
		FormatSQLite: "out/results.db",
	}, Paths("out/results.json", []Format{FormatJSON, FormatCSV, FormatSQLite}))
	assert.Equal(t, map[Format]string{FormatText: "urls.txt", FormatMarkdown: "urls.md"},
		Paths("urls", []Format{FormatText, FormatMarkdown}))
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	rep := NewReport(sampleResult())
	formats := []Format{FormatText, FormatJSON, FormatCSV, FormatYAML, FormatMarkdown, FormatSQLite}

	paths, err := WriteAll(context.Background(), filepath.Join(dir, "nested", "results"), formats, rep, testLogger())
	require.NoError(t, err)
	require.Len(t, paths, len(formats))
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Greater(t, info.Size(), int64(0), p)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "nested", "results.db"))
	require.NoError(t, err)
	defer db.Close()

	var urls, pages, failures int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM urls").Scan(&urls))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM pages").Scan(&pages))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM failures").Scan(&failures))
	assert.Equal(t, 4, urls)
	assert.Equal(t, 1, pages)
	assert.Equal(t, 1, failures)

	var state string
	require.NoError(t, db.QueryRow("SELECT state FROM runs WHERE run_id = ?", rep.RunID).Scan(&state))
	assert.Equal(t, "completed", state)

	// A second write replaces the database instead of appending to it
	_, err = WriteAll(context.Background(), filepath.Join(dir, "nested", "results"), []Format{FormatSQLite}, rep, testLogger())
	require.NoError(t, err)
}

func TestPrintSummary(t *testing.T) {
	rep := NewReport(sampleResult())
	var buf bytes.Buffer
	PrintSummary(&buf, rep, true)
	out := buf.String()

	assert.NotContains(t, out, "\x1b[", "no ANSI escapes with noColor")
	assert.Contains(t, out, "URL Spider results")
	assert.Contains(t, out, "Discovered URLs: 4")
	assert.Contains(t, out, "By scope: internal 2, subdomain 1, external 1")
	assert.Contains(t, out, "Subdomains (1):")
	assert.Contains(t, out, "https://example.com/api/users [HTTP_404]")
	assert.NotContains(t, out, "Extraction warnings")

	rep.Stats.ExtractionWarnings = 2
	buf.Reset()
	PrintSummary(&buf, rep, true)
	assert.Contains(t, buf.String(), "Extraction warnings: 2 (partial results kept)")
}
