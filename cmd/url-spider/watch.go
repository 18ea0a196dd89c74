package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"url-spider/pkg/orchestrate"
	"url-spider/pkg/watch"
)

// watchOptions holds the flags of the watch command
type watchOptions struct {
	every     string
	parallel  int
	outputDir string
	formats   []string
}

func newWatchCmd(global *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch [site...]",
		Short: "Re-crawl site profiles on an interval and report URLs that were not seen before",
		Long: `Crawl the named site profiles, or every profile, whenever their interval has elapsed. URLs found
in earlier rounds are remembered in the state directory; each round prints the ones that are new and
rewrites <output-dir>/<site>.<ext>. Runs until interrupted.`,
		Example: `  url-spider watch --every 24h
  url-spider watch docs --every 1d12h --output-dir results --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitCode(doWatch(cmd.Context(), global, opts, args, stdout, stderr))
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.every, "every", "24h", "Interval between rounds per site (e.g. 30m, 24h, 7d)")
	fs.IntVarP(&opts.parallel, "parallel", "p", 2, "Number of sites crawled at once")
	fs.StringVarP(&opts.outputDir, "output-dir", "o", ".", "Directory for per-site result files")
	fs.StringSliceVar(&opts.formats, "format", []string{"json"}, "Output formats written each round")
	return cmd
}

// doWatch is the testable implementation of the watch command
func doWatch(ctx context.Context, global *globalOptions, opts *watchOptions, siteKeys []string, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := setupLogger(global.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	interval, err := watch.ParseInterval(opts.every)
	if err != nil || interval <= 0 {
		fmt.Fprintf(stderr, "Error: invalid --every '%s'\n", opts.every)
		return 1
	}

	appCfg, err := loadConfig(global.configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
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
	outCfg.Formats = append([]string(nil), opts.formats...)
	outCfg.Quiet = true
	if _, err := outCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := handleSignals(cancel, log)
	defer stopSignals()

	onRound := func(results []orchestrate.SiteResult, fresh map[string][]string) {
		writeSiteResults(context.WithoutCancel(ctx), results, opts.outputDir, outCfg, stdout, stderr, log)
		for _, r := range results {
			for _, u := range fresh[r.SiteKey] {
				fmt.Fprintf(stdout, "[%s] new: %s\n", r.SiteKey, u)
			}
		}
	}

	scheduler := watch.NewScheduler(appCfg, siteKeys, interval, opts.parallel, onRound, log.WithField("component", "watch"))
	if err := scheduler.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
