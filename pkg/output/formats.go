package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"url-spider/pkg/utils"
)

// Format names an export format
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatSQLite   Format = "sqlite"
)

var extensions = map[Format]string{
	FormatText:     ".txt",
	FormatJSON:     ".json",
	FormatCSV:      ".csv",
	FormatYAML:     ".yaml",
	FormatMarkdown: ".md",
	FormatSQLite:   ".db",
}

// Extension returns the file extension used for f
func (f Format) Extension() string {
	return extensions[f]
}

// ParseFormat converts a user-supplied name to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "sqlite", "db":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: unknown output format '%s'", utils.ErrConfigValidation, s)
}

// ParseFormats parses a format list, keeping the first occurrence of each format
func ParseFormats(names []string) ([]Format, error) {
	formats := make([]Format, 0, len(names))
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return uniqueFormats(formats), nil
}

func uniqueFormats(formats []Format) []Format {
	seen := make(map[Format]bool, len(formats))
	out := formats[:0:0]
	for _, f := range formats {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Write renders rep in a stream format. SQLite needs a file path; use WriteFile for it.
func Write(w io.Writer, f Format, rep *Report) error {
	switch f {
	case FormatText:
		return writeText(w, rep)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatCSV:
		return writeCSV(w, rep)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case FormatMarkdown:
		return writeMarkdown(w, rep)
	case FormatSQLite:
		return fmt.Errorf("%w: sqlite output needs a file path", utils.ErrConfigValidation)
	}
	return fmt.Errorf("%w: unknown output format '%s'", utils.ErrConfigValidation, f)
}

// writeText prints one canonical URL per line
func writeText(w io.Writer, rep *Report) error {
	for _, u := range rep.URLs {
		if _, err := fmt.Fprintln(w, u.URL); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url", "scope", "kind", "context", "depth", "source"}); err != nil {
		return err
	}
	for _, u := range rep.URLs {
		row := []string{u.URL, string(u.Scope), string(u.Kind), u.Context.String(), strconv.Itoa(u.Depth), u.Source}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
