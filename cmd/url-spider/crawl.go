package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"url-spider/pkg/config"
	"url-spider/pkg/crawler"
	"url-spider/pkg/fetch"
	"url-spider/pkg/orchestrate"
	"url-spider/pkg/output"
	"url-spider/pkg/seed"
)

// crawlOptions holds the crawl flags. Policy flags only override the config when set on the command line.
type crawlOptions struct {
	urls            []string
	seedFile        string
	site            string
	depth           int
	maxPages        int
	threads         int
	timeout         time.Duration
	retries         int
	include         []string
	exclude         []string
	sameDomain      bool
	includeExternal bool
	allowSubdomains bool
	userAgent       string
	cookie          string
	headers         []string
	respectRobots   bool
	sitemaps        bool
	fetchScripts    int
	store           string

	outputFlags
}

// outputFlags are shared by crawl and extract
type outputFlags struct {
	output  string
	formats []string
	noColor bool
	quiet   bool
}

func (o *outputFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.output, "output", "o", "", "Output base path; the extension is chosen per format (default: text to stdout)")
	fs.StringSliceVar(&o.formats, "format", nil, "Output formats: text, json, csv, yaml, markdown, sqlite (comma separated)")
	fs.BoolVar(&o.noColor, "no-color", false, "Disable colored summary")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "Do not print the summary")
}

// apply copies the output flags that were set onto the config's output section
func (o *outputFlags) apply(fs *pflag.FlagSet, out *config.OutputConfig) error {
	if fs.Changed("output") {
		out.Path = o.output
	}
	if fs.Changed("format") {
		out.Formats = append([]string(nil), o.formats...)
	}
	if fs.Changed("no-color") {
		out.NoColor = o.noColor
	}
	if fs.Changed("quiet") {
		out.Quiet = o.quiet
	}
	_, err := out.Validate()
	return err
}

func newCrawlCmd(global *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl from seed URLs and record every URL found",
		Long: `Crawl from seed URLs given with -u, read from a seed file with -f, or taken from a config profile
with --site. Seed files hold one entry per line: a URL to crawl, a path to a local JavaScript or HTML file,
or an inline JavaScript snippet; files and snippets are scanned offline.`,
		Example: `  url-spider crawl -u https://example.com --depth 3
  url-spider crawl -u https://example.com --js --depth 1
  url-spider crawl -f targets.txt --include-external -o results --format json,csv,markdown
  url-spider crawl --site docs --config config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitCode(doCrawl(cmd.Context(), global, opts, cmd.Flags(), stdout, stderr))
		},
	}

	fs := cmd.Flags()
	fs.StringArrayVarP(&opts.urls, "url", "u", nil, "Seed URL (repeatable)")
	fs.StringVarP(&opts.seedFile, "file", "f", "", "Seed file with URLs, file paths or JavaScript snippets")
	fs.StringVar(&opts.site, "site", "", "Site profile from the config file")
	fs.IntVar(&opts.depth, "depth", config.DefaultMaxDepth, "Maximum link depth from the seeds")
	fs.IntVar(&opts.maxPages, "max-pages", 0, "Maximum number of pages to fetch (0 = unlimited)")
	fs.IntVarP(&opts.threads, "threads", "t", config.DefaultNumWorkers, "Number of concurrent fetches")
	fs.DurationVar(&opts.timeout, "timeout", config.DefaultRequestTimeout, "Timeout per fetch attempt")
	fs.IntVar(&opts.retries, "retries", config.DefaultMaxRetries, "Extra attempts for failed fetches")
	fs.StringArrayVar(&opts.include, "include", nil, "Only keep URLs matching this regex (repeatable)")
	fs.StringArrayVar(&opts.exclude, "exclude", nil, "Drop URLs matching this regex (repeatable, wins over --include)")
	fs.BoolVar(&opts.sameDomain, "same-domain", true, "Only keep URLs on the seed domains")
	fs.BoolVar(&opts.includeExternal, "include-external", false, "Keep URLs on other domains (same as --same-domain=false)")
	fs.BoolVar(&opts.allowSubdomains, "allow-subdomains", false, "Treat subdomains of the seed hosts as in scope")
	fs.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header")
	fs.StringVarP(&opts.cookie, "cookie", "c", "", "Cookie header value, e.g. 'session=abc; theme=dark'")
	fs.StringArrayVarP(&opts.headers, "header", "H", nil, "Extra request header 'Name: value' (repeatable)")
	fs.BoolVar(&opts.respectRobots, "respect-robots", false, "Skip URLs disallowed by robots.txt")
	fs.BoolVar(&opts.sitemaps, "sitemaps", false, "Also crawl the sitemaps listed in the seed hosts' robots.txt")
	fs.IntVarP(&opts.fetchScripts, "js", "j", 0, "Fetch up to N script assets of each page and report the URLs inside them (--js alone means 5)")
	fs.Lookup("js").NoOptDefVal = strconv.Itoa(config.DefaultFetchScripts)
	fs.StringVar(&opts.store, "store", "", "Visited set: memory or badger (default from config)")
	opts.outputFlags.register(fs)
	cmd.MarkFlagsMutuallyExclusive("same-domain", "include-external")

	return cmd
}

// applyCrawlFlags overlays the flags that were set on the site profile and the global config
func applyCrawlFlags(fs *pflag.FlagSet, opts *crawlOptions, siteCfg *config.SiteConfig, appCfg *config.AppConfig) error {
	siteCfg.Seeds = append(siteCfg.Seeds, opts.urls...)
	if fs.Changed("depth") {
		siteCfg.MaxDepth = &opts.depth
	}
	if fs.Changed("max-pages") {
		siteCfg.MaxPages = &opts.maxPages
	}
	if fs.Changed("threads") {
		siteCfg.Concurrency = opts.threads
	}
	if fs.Changed("timeout") {
		siteCfg.Timeout = opts.timeout
	}
	if fs.Changed("retries") {
		siteCfg.Retries = &opts.retries
	}
	siteCfg.IncludePatterns = append(siteCfg.IncludePatterns, opts.include...)
	siteCfg.ExcludePatterns = append(siteCfg.ExcludePatterns, opts.exclude...)
	if fs.Changed("same-domain") {
		siteCfg.SameDomainOnly = &opts.sameDomain
	}
	if fs.Changed("include-external") {
		sameDomain := !opts.includeExternal
		siteCfg.SameDomainOnly = &sameDomain
	}
	if fs.Changed("allow-subdomains") {
		siteCfg.AllowSubdomains = &opts.allowSubdomains
	}
	if fs.Changed("respect-robots") {
		siteCfg.RespectRobots = &opts.respectRobots
	}
	if fs.Changed("sitemaps") {
		siteCfg.SeedSitemaps = &opts.sitemaps
	}
	if fs.Changed("js") {
		siteCfg.FetchScripts = &opts.fetchScripts
	}
	if opts.userAgent != "" {
		siteCfg.UserAgent = opts.userAgent
	}
	if opts.cookie != "" {
		siteCfg.Cookie = opts.cookie
	}
	if len(opts.headers) > 0 {
		headers, err := fetch.ParseHeaders(opts.headers)
		if err != nil {
			return err
		}
		merged := make(map[string]string, len(siteCfg.Headers)+len(headers))
		maps.Copy(merged, siteCfg.Headers)
		maps.Copy(merged, headers)
		siteCfg.Headers = merged
	}
	if opts.store != "" {
		appCfg.VisitedStore = strings.ToLower(opts.store)
	}
	return opts.outputFlags.apply(fs, &appCfg.Output)
}

// doCrawl is the testable implementation of the crawl command
func doCrawl(ctx context.Context, global *globalOptions, opts *crawlOptions, fs *pflag.FlagSet, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := setupLogger(global.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// --- Configuration ---
	appCfg, err := loadConfig(global.configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	logAppConfig(appCfg, log)

	var siteCfg config.SiteConfig
	if opts.site != "" {
		cfg, ok := appCfg.Sites[opts.site]
		if !ok {
			fmt.Fprintf(stderr, "Error: site '%s' not found in config\n", opts.site)
			return 1
		}
		siteCfg = cfg
	}
	if err := applyCrawlFlags(fs, opts, &siteCfg, appCfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// --- Seeds ---
	var docs []seed.Document
	seedFiles := []string{siteCfg.SeedFile, opts.seedFile}
	for _, path := range seedFiles {
		if path == "" {
			continue
		}
		fromFile, err := seed.LoadFile(path, log.WithField("seed_file", path))
		if err != nil {
			fmt.Fprintf(stderr, "Error reading seed file: %v\n", err)
			return 1
		}
		siteCfg.Seeds = append(siteCfg.Seeds, fromFile.URLs...)
		docs = append(docs, fromFile.Documents...)
	}
	if len(siteCfg.Seeds) == 0 && len(docs) == 0 {
		fmt.Fprintln(stderr, "Error: no seeds given; use -u, -f or --site")
		return 1
	}
	siteCfg.SeedFile = ""
	if _, err := siteCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// --- Context & Signals ---
	var cancel context.CancelFunc
	if appCfg.GlobalCrawlTimeout > 0 {
		log.Infof("Setting global crawl timeout: %v", appCfg.GlobalCrawlTimeout)
		ctx, cancel = context.WithTimeout(ctx, appCfg.GlobalCrawlTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stopSignals := handleSignals(cancel, log)
	defer stopSignals()

	// --- Run ---
	engine, cleanup, err := crawler.Setup(ctx, appCfg, siteCfg, nil, log.WithField("component", "engine"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	report, err := orchestrate.RunSite(ctx, engine, siteCfg.Seeds, docs, logrus.NewEntry(log))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Outputs are written even when the run was cancelled
	writeCtx := context.WithoutCancel(ctx)
	if err := writeOutputs(writeCtx, appCfg.Output, report, stdout, stderr, log); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		return 1
	}
	return 0
}

// writeOutputs writes the report files, or text to stdout when no path is set, then the summary
func writeOutputs(ctx context.Context, outCfg config.OutputConfig, rep *output.Report, stdout, stderr io.Writer, log *logrus.Logger) error {
	formats, err := output.ParseFormats(outCfg.Formats)
	if err != nil {
		return err
	}

	summaryTo := stdout
	if outCfg.Path == "" {
		// Results own stdout; the summary moves to stderr
		summaryTo = stderr
		f := output.FormatText
		for _, candidate := range formats {
			if candidate != output.FormatSQLite {
				f = candidate
				break
			}
		}
		if err := output.Write(stdout, f, rep); err != nil {
			return err
		}
	} else {
		written, err := output.WriteAll(ctx, outCfg.Path, formats, rep, log.WithField("component", "output"))
		if err != nil {
			return err
		}
		if !outCfg.Quiet {
			for _, p := range written {
				fmt.Fprintf(stdout, "Wrote %s\n", p)
			}
		}
	}

	if !outCfg.Quiet {
		output.PrintSummary(summaryTo, rep, outCfg.NoColor)
	}
	return nil
}
