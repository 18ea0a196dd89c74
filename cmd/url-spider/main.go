package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"url-spider/pkg/config"
	applog "url-spider/pkg/log"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

// exitError carries a process exit code through cobra's error return
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// exitCode wraps an exit status from a do* function; 0 yields nil
func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code, err: fmt.Errorf("exit status %d", code)}
}

// globalOptions are the persistent root flags
type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "url-spider",
		Short: "Discover URLs by crawling pages and mining HTML, JavaScript, CSS and feeds",
		Long: `url-spider crawls from seed URLs up to a depth and page bound and records every URL referenced by the
pages it fetches: links, assets, API paths found in inline scripts, sitemap entries and more.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newCrawlCmd(opts, stdout, stderr),
		newCrawlSitesCmd(opts, stdout, stderr),
		newWatchCmd(opts, stdout, stderr),
		newExtractCmd(opts, stdout, stderr),
		newValidateCmd(opts, stdout, stderr),
		newMcpServerCmd(opts, stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "url-spider %s\n", version)
		},
	}
}

// setupLogger creates a logger writing to w at the given level
func setupLogger(logLevelStr string, w io.Writer) (*logrus.Logger, error) {
	log, err := applog.New(w, logLevelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", logLevelStr, err)
	}
	return log, nil
}

// loadConfig loads the config file and applies defaults, logging any warnings
func loadConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	appCfg, warnings, err := config.LoadAndValidate(path)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	return appCfg, nil
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Debugf("Global Config: Workers:%d, MaxReqPerHost:%d, DefaultDelay:%v, RPS:%.2f",
		appCfg.NumWorkers, appCfg.MaxRequestsPerHost, appCfg.DefaultDelayPerHost, appCfg.RequestsPerSecond)
	log.Debugf("Global Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v, Timeout:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay, appCfg.RequestTimeout)
	log.Debugf("Global Config Store: Kind:%s, StateDir:%s, GlobalCrawlTimeout:%v",
		appCfg.VisitedStore, appCfg.StateDir, appCfg.GlobalCrawlTimeout)
	log.Debugf("Global Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}
