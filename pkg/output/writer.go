package output

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"url-spider/pkg/utils"
)

// WriteFile writes rep to path in format f, truncating any existing file
func WriteFile(ctx context.Context, path string, f Format, rep *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating output directory %s: %w", utils.ErrFilesystem, dir, err)
		}
	}
	if f == FormatSQLite {
		return writeSQLite(ctx, path, rep)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", utils.ErrFilesystem, path, err)
	}
	bw := bufio.NewWriter(file)
	if err := Write(bw, f, rep); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing %s output to %s: %w", f, path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: flushing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

// Paths maps each format to its output file. A base path that already carries the extension of its only
// format is used as is; otherwise the extension is replaced per format.
func Paths(base string, formats []Format) map[Format]string {
	out := make(map[Format]string, len(formats))
	ext := filepath.Ext(base)
	if len(formats) == 1 && ext != "" {
		out[formats[0]] = base
		return out
	}
	stem := base
	if _, known := formatForExtension(ext); known {
		stem = strings.TrimSuffix(base, ext)
	}
	for _, f := range formats {
		out[f] = stem + f.Extension()
	}
	return out
}

func formatForExtension(ext string) (Format, bool) {
	for f, e := range extensions {
		if strings.EqualFold(e, ext) {
			return f, true
		}
	}
	return "", false
}

// WriteAll writes every format concurrently and returns the written paths in format order.
// A format listed twice is written once.
func WriteAll(ctx context.Context, base string, formats []Format, rep *Report, log *logrus.Entry) ([]string, error) {
	formats = uniqueFormats(formats)
	paths := Paths(base, formats)
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range formats {
		path := paths[f]
		g.Go(func() error {
			if err := WriteFile(gctx, path, f, rep); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"format": f, "path": path}).Infof("Wrote %d URL(s)", len(rep.URLs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(formats))
	for _, f := range formats {
		written = append(written, paths[f])
	}
	return written, nil
}
