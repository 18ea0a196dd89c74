package seed

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/extract"
	"url-spider/pkg/utils"
)

// Document is local content scanned offline: a file named in a seed file, or an inline snippet
type Document struct {
	Name string // File path, or "line N" for snippets
	Body []byte
	Hint extract.MimeHint
}

// Seeds is the parsed content of a seed file
type Seeds struct {
	URLs      []string
	Documents []Document
}

const maxLineBytes = 1 << 20

// Parse reads seed lines from r. Each non-blank, non-comment line is one of:
//   - an http(s) URL, or a bare "www." host, which becomes a crawl seed
//   - a path to an existing file (relative paths resolve against baseDir), scanned offline
//   - anything else, treated as an inline JavaScript snippet
func Parse(r io.Reader, baseDir string, log *logrus.Entry) (Seeds, error) {
	var out Seeds
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if u, ok := asURL(line); ok {
			out.URLs = append(out.URLs, u)
			continue
		}

		path := line
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			doc, err := LoadDocument(path)
			if err != nil {
				log.WithField("line", lineNo).Warnf("Skipping unreadable seed file: %v", err)
				continue
			}
			out.Documents = append(out.Documents, doc)
			continue
		}

		out.Documents = append(out.Documents, Document{
			Name: fmt.Sprintf("line %d", lineNo),
			Body: []byte(line),
			Hint: extract.MimeJavaScript,
		})
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("%w: reading seeds: %w", utils.ErrFilesystem, err)
	}
	log.Debugf("Parsed seeds: %d URL(s), %d document(s)", len(out.URLs), len(out.Documents))
	return out, nil
}

// LoadFile parses the seed file at path; relative file references resolve against its directory
func LoadFile(path string, log *logrus.Entry) (Seeds, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seeds{}, fmt.Errorf("%w: opening seed file: %w", utils.ErrFilesystem, err)
	}
	defer f.Close()
	return Parse(f, filepath.Dir(path), log)
}

// LoadDocument reads a local file and picks its content hint from the extension, falling back to sniffing
func LoadDocument(path string) (Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: reading %s: %w", utils.ErrFilesystem, path, err)
	}
	hint := extract.DetectMime("", &url.URL{Path: filepath.ToSlash(path)}, body)
	return Document{Name: path, Body: body, Hint: hint}, nil
}

// asURL recognizes seed URLs; "www." hosts get an https scheme
func asURL(line string) (string, bool) {
	lower := strings.ToLower(line)
	if strings.ContainsAny(line, " \t") {
		return "", false
	}
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(line)
		if err != nil || u.Host == "" {
			return "", false
		}
		return line, true
	case strings.HasPrefix(lower, "www.") && !strings.ContainsAny(line, "'\"();"):
		return "https://" + line, true
	}
	return "", false
}
