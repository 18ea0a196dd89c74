package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"url-spider/pkg/config"
	"url-spider/pkg/orchestrate"
	"url-spider/pkg/utils"
)

// crawlSitesOptions holds the flags of the crawl-sites command
type crawlSitesOptions struct {
	parallel  int
	outputDir string
	formats   []string
	noColor   bool
	quiet     bool
}

func newCrawlSitesCmd(global *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	opts := &crawlSitesOptions{}
	cmd := &cobra.Command{
		Use:   "crawl-sites [site...]",
		Short: "Crawl several site profiles from the config in parallel",
		Long: `Crawl the named site profiles, or every profile when none is named. Each site gets its own
visited set and writes its results to <output-dir>/<site>.<ext>.`,
		Example: `  url-spider crawl-sites --config config.yaml
  url-spider crawl-sites docs blog --parallel 2 --output-dir results --format json,markdown`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitCode(doCrawlSites(cmd.Context(), global, opts, args, cmd.Flags(), stdout, stderr))
		},
	}

	fs := cmd.Flags()
	fs.IntVarP(&opts.parallel, "parallel", "p", 2, "Number of sites crawled at once")
	fs.StringVarP(&opts.outputDir, "output-dir", "o", ".", "Directory for per-site result files")
	fs.StringSliceVar(&opts.formats, "format", nil, "Output formats: text, json, csv, yaml, markdown, sqlite (comma separated)")
	fs.BoolVar(&opts.noColor, "no-color", false, "Disable colored summary")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print summaries")
	return cmd
}

// doCrawlSites is the testable implementation of the crawl-sites command
func doCrawlSites(ctx context.Context, global *globalOptions, opts *crawlSitesOptions, siteKeys []string, fs *pflag.FlagSet, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
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
	logAppConfig(appCfg, log)

	if len(siteKeys) == 0 {
		siteKeys = orchestrate.GetAllSiteKeys(appCfg)
		if len(siteKeys) == 0 {
			fmt.Fprintln(stderr, "Error: no sites configured")
			return 1
		}
	}
	if err := orchestrate.ValidateSiteKeys(appCfg, siteKeys); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	outCfg := appCfg.Output
	if fs.Changed("format") {
		outCfg.Formats = append([]string(nil), opts.formats...)
	}
	if fs.Changed("no-color") {
		outCfg.NoColor = opts.noColor
	}
	if fs.Changed("quiet") {
		outCfg.Quiet = opts.quiet
	}
	if _, err := outCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

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

	results := orchestrate.NewOrchestrator(appCfg, siteKeys, opts.parallel, log.WithField("component", "orchestrator")).Run(ctx)

	return writeSiteResults(context.WithoutCancel(ctx), results, opts.outputDir, outCfg, stdout, stderr, log)
}

// writeSiteResults writes each successful site's report to <dir>/<site> and returns 1 when any site failed
func writeSiteResults(ctx context.Context, results []orchestrate.SiteResult, dir string, outCfg config.OutputConfig,
	stdout, stderr io.Writer, log *logrus.Logger) int {
	code := 0
	for _, r := range results {
		if !r.Success() {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", r.SiteKey, r.Err)
			code = 1
			continue
		}
		siteOut := outCfg
		siteOut.Path = filepath.Join(dir, utils.SanitizeFilename(r.SiteKey))
		if !siteOut.Quiet {
			fmt.Fprintf(stdout, "\n== %s ==\n", r.SiteKey)
		}
		if err := writeOutputs(ctx, siteOut, r.Report, stdout, stderr, log); err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] writing output: %v\n", r.SiteKey, err)
			code = 1
		}
	}
	return code
}
