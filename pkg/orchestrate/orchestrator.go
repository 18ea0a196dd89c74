package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"url-spider/pkg/config"
	"url-spider/pkg/crawler"
	"url-spider/pkg/output"
	"url-spider/pkg/seed"
	"url-spider/pkg/utils"
)

// SiteResult contains the result of crawling a single site profile
type SiteResult struct {
	SiteKey  string
	Report   *output.Report // nil when the crawl could not start
	Err      error
	Duration time.Duration
}

// Success reports whether the site produced a report without error
func (r SiteResult) Success() bool {
	return r.Err == nil && r.Report != nil
}

// Orchestrator crawls several site profiles concurrently, at most maxParallel at a time.
// Each site gets its own engine, visited set and rate limiter.
type Orchestrator struct {
	appCfg   *config.AppConfig
	log      *logrus.Entry
	siteKeys []string
	sites    *semaphore.Weighted
}

// NewOrchestrator creates an orchestrator for the given site keys; appCfg must be validated
func NewOrchestrator(appCfg *config.AppConfig, siteKeys []string, maxParallel int, log *logrus.Entry) *Orchestrator {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Orchestrator{
		appCfg:   appCfg,
		log:      log,
		siteKeys: siteKeys,
		sites:    semaphore.NewWeighted(int64(maxParallel)),
	}
}

// Run crawls every site and returns the results in site key order.
// Cancelling ctx stops running crawls; sites not yet started are reported as cancelled.
func (o *Orchestrator) Run(ctx context.Context) []SiteResult {
	startTime := time.Now()
	o.log.Infof("Starting parallel crawl of %d sites: %v", len(o.siteKeys), o.siteKeys)

	results := make([]SiteResult, len(o.siteKeys))
	var wg sync.WaitGroup
	for i, key := range o.siteKeys {
		err := ctx.Err()
		if err == nil {
			err = o.sites.Acquire(ctx, 1)
		}
		if err != nil {
			results[i] = SiteResult{SiteKey: key, Err: fmt.Errorf("not started: %w", err)}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.sites.Release(1)
			results[i] = o.crawlSite(ctx, key)
		}()
	}
	wg.Wait()

	o.logSummary(results, time.Since(startTime))
	return results
}

// crawlSite runs one site profile to completion
func (o *Orchestrator) crawlSite(ctx context.Context, siteKey string) SiteResult {
	startTime := time.Now()
	result := SiteResult{SiteKey: siteKey}
	siteLog := o.log.WithField("site", siteKey)

	siteCfg, exists := o.appCfg.Sites[siteKey]
	if !exists {
		result.Err = fmt.Errorf("site '%s' not found in configuration", siteKey)
		siteLog.Error(result.Err)
		return result
	}

	seeds, docs, err := LoadSiteSeeds(siteCfg, siteLog)
	if err != nil {
		result.Err = err
		siteLog.Errorf("Loading seeds failed: %v", err)
		return result
	}
	siteCfg.Seeds = seeds
	siteCfg.SeedFile = ""

	engine, cleanup, err := crawler.Setup(ctx, o.appCfg, siteCfg, nil, siteLog)
	if err != nil {
		result.Err = fmt.Errorf("failed to set up crawl for '%s': %w", siteKey, err)
		siteLog.Error(result.Err)
		return result
	}
	defer cleanup()

	siteLog.Info("Starting crawl")
	result.Report, result.Err = RunSite(ctx, engine, seeds, docs, siteLog)
	result.Duration = time.Since(startTime)
	if result.Err != nil {
		siteLog.Errorf("Crawl failed: %v", result.Err)
	}
	return result
}

// RunSite crawls seeds with engine, or only scans docs when there are no seed URLs.
// Documents are scanned into the crawl result after the run. A cancelled run is not an error;
// its partial report is returned.
func RunSite(ctx context.Context, engine *crawler.Engine, seeds []string, docs []seed.Document, log *logrus.Entry) (*output.Report, error) {
	if len(seeds) == 0 {
		result, err := engine.Scan(docs, "")
		if err != nil {
			return nil, err
		}
		return output.NewReport(result), nil
	}

	result, err := engine.Run(ctx, seeds)
	if err != nil {
		if errors.Is(err, utils.ErrNoSeeds) {
			return nil, fmt.Errorf("%w: every seed failed normalization or filtering", err)
		}
		return nil, err
	}
	if err := engine.ScanDocuments(result, docs); err != nil {
		log.Warnf("Scanning seed file documents failed: %v", err)
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("Crawl stopped by the global timeout, keeping partial results.")
		} else {
			log.Warn("Crawl cancelled gracefully, keeping partial results.")
		}
	}
	return output.NewReport(result), nil
}

// LoadSiteSeeds returns the seed URLs of a profile plus the URLs and documents of its seed file
func LoadSiteSeeds(siteCfg config.SiteConfig, log *logrus.Entry) ([]string, []seed.Document, error) {
	urls := append([]string(nil), siteCfg.Seeds...)
	if siteCfg.SeedFile == "" {
		return urls, nil, nil
	}
	fromFile, err := seed.LoadFile(siteCfg.SeedFile, log.WithField("seed_file", siteCfg.SeedFile))
	if err != nil {
		return nil, nil, err
	}
	return append(urls, fromFile.URLs...), fromFile.Documents, nil
}

// logSummary logs a summary of all site results
func (o *Orchestrator) logSummary(results []SiteResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Parallel crawl completed in %v", totalDuration)
	o.log.Info("Site Results:")

	totalURLs := 0
	successCount := 0
	for _, r := range results {
		status := "FAILED"
		urls := 0
		if r.Success() {
			status = string(r.Report.State)
			urls = len(r.Report.URLs)
			successCount++
		}
		totalURLs += urls

		o.log.Infof("  %s: %s - %d URLs in %v", r.SiteKey, status, urls, r.Duration.Round(time.Millisecond))
		if r.Err != nil {
			o.log.Infof("    Error: %v", r.Err)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d sites (%d success, %d failed), %d URLs found",
		len(results), successCount, len(results)-successCount, totalURLs)
	o.log.Info("============================================")
}

// ValidateSiteKeys checks that all provided site keys exist in the config
func ValidateSiteKeys(appCfg *config.AppConfig, siteKeys []string) error {
	for _, key := range siteKeys {
		if _, exists := appCfg.Sites[key]; !exists {
			return fmt.Errorf("%w: site '%s' not found. Available sites: %v",
				utils.ErrConfigValidation, key, GetAllSiteKeys(appCfg))
		}
	}
	return nil
}

// GetAllSiteKeys returns all site keys from the config, sorted
func GetAllSiteKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
