package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"url-spider/pkg/config"
	"url-spider/pkg/crawler"
	"url-spider/pkg/extract"
	"url-spider/pkg/output"
	"url-spider/pkg/seed"
	"url-spider/pkg/storage"
)

// extractOptions holds the flags of the offline extract command
type extractOptions struct {
	base            string
	seedFile        string
	snippets        []string
	include         []string
	exclude         []string
	includeExternal bool

	outputFlags
}

func newExtractCmd(global *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [file...]",
		Short: "Extract URLs from local JavaScript, HTML, CSS or feed files without fetching anything",
		Example: `  url-spider extract app.js vendor.js --base https://example.com
  url-spider extract -f snippets.txt --include-external --format json
  url-spider extract -s 'fetch("/api/" + "v2/users")' --base https://example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitCode(doExtract(global, opts, args, cmd.Flags(), stdout, stderr))
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.base, "base", "", "URL that relative references resolve against; also defines the in-scope domain")
	fs.StringVarP(&opts.seedFile, "file", "f", "", "Seed file with file paths or JavaScript snippets")
	fs.StringArrayVarP(&opts.snippets, "snippet", "s", nil, "Inline JavaScript snippet (repeatable)")
	fs.StringArrayVar(&opts.include, "include", nil, "Only keep URLs matching this regex (repeatable)")
	fs.StringArrayVar(&opts.exclude, "exclude", nil, "Drop URLs matching this regex (repeatable)")
	fs.BoolVar(&opts.includeExternal, "include-external", false, "Keep URLs on domains other than --base")
	opts.outputFlags.register(fs)

	return cmd
}

// doExtract is the testable implementation of the extract command
func doExtract(global *globalOptions, opts *extractOptions, files []string, fs *pflag.FlagSet, stdout, stderr io.Writer) int {
	log, err := setupLogger(global.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	appCfg, err := loadConfig(global.configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if err := opts.outputFlags.apply(fs, &appCfg.Output); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// --- Documents ---
	var docs []seed.Document
	for _, path := range files {
		doc, err := seed.LoadDocument(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		docs = append(docs, doc)
	}
	if opts.seedFile != "" {
		fromFile, err := seed.LoadFile(opts.seedFile, log.WithField("seed_file", opts.seedFile))
		if err != nil {
			fmt.Fprintf(stderr, "Error reading seed file: %v\n", err)
			return 1
		}
		if len(fromFile.URLs) > 0 {
			log.Warnf("Ignoring %d URL line(s) in %s; use 'crawl' to fetch them", len(fromFile.URLs), opts.seedFile)
		}
		docs = append(docs, fromFile.Documents...)
	}
	for i, snippet := range opts.snippets {
		docs = append(docs, seed.Document{
			Name: fmt.Sprintf("snippet %d", i+1),
			Body: []byte(snippet),
			Hint: extract.MimeJavaScript,
		})
	}
	if len(docs) == 0 {
		fmt.Fprintln(stderr, "Error: nothing to extract; pass files, -f or -s")
		return 1
	}

	// --- Scan ---
	sameDomain := !opts.includeExternal
	siteCfg := config.SiteConfig{
		IncludePatterns: opts.include,
		ExcludePatterns: opts.exclude,
		SameDomainOnly:  &sameDomain,
	}
	policy := config.ResolvePolicy(siteCfg, *appCfg)
	store := storage.NewMemoryStore()
	defer store.Close()
	engine := crawler.NewEngine(policy, nil, store, log.WithField("component", "engine"),
		&crawler.EngineOptions{SkipExtensions: appCfg.SkipExtensions})

	result, err := engine.Scan(docs, opts.base)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := writeOutputs(context.Background(), appCfg.Output, output.NewReport(result), stdout, stderr, log); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		return 1
	}
	return 0
}
