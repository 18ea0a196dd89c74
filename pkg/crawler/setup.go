package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/config"
	"url-spider/pkg/fetch"
	"url-spider/pkg/models"
	"url-spider/pkg/storage"
)

// NewSiteFetcher builds the HTTP client and retrying fetcher for one site profile
func NewSiteFetcher(appCfg *config.AppConfig, siteCfg config.SiteConfig, policy models.CrawlPolicy, log *logrus.Entry) (*fetch.Fetcher, error) {
	clientOpts := fetch.ClientOptions{
		Headers: config.GetEffectiveHeaders(siteCfg, *appCfg),
		Cookie:  config.GetEffectiveCookie(siteCfg, *appCfg),
	}
	httpClient, err := fetch.NewClient(appCfg.HTTPClientSettings, clientOpts, log.WithField("component", "http_client"))
	if err != nil {
		return nil, err
	}
	return fetch.NewFetcher(httpClient, fetch.FetcherConfig{
		UserAgent:         config.GetEffectiveUserAgent(siteCfg, *appCfg),
		Timeout:           policy.Timeout,
		Retries:           policy.Retries,
		InitialRetryDelay: appCfg.InitialRetryDelay,
		MaxRetryDelay:     appCfg.MaxRetryDelay,
		MaxBodyBytes:      appCfg.MaxBodyBytes,
		RequestsPerSecond: appCfg.RequestsPerSecond,
	}, log.WithField("component", "fetcher")), nil
}

// Setup wires an Engine for one site profile: fetcher, robots handler, per-host limits and the visited set.
// appCfg must already be validated. The returned cleanup closes the visited set and must be called once
// the engine is no longer used.
func Setup(ctx context.Context, appCfg *config.AppConfig, siteCfg config.SiteConfig, onProgress func(Progress), log *logrus.Entry) (*Engine, func(), error) {
	policy := config.ResolvePolicy(siteCfg, *appCfg)

	fetcher, err := NewSiteFetcher(appCfg, siteCfg, policy, log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating fetcher: %w", err)
	}

	expected := uint(0)
	if policy.MaxPages > 0 {
		// Each fetched page tends to yield dozens of references
		expected = uint(policy.MaxPages) * 50
	}
	store, err := storage.Open(ctx, storage.Options{
		Kind:          appCfg.VisitedStore,
		Dir:           appCfg.StateDir,
		ExpectedItems: expected,
	}, log.WithField("component", "visited_store"))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warnf("Closing visited store: %v", err)
		}
	}

	opts := &EngineOptions{
		RespectRobots:    config.GetEffectiveRespectRobots(siteCfg, *appCfg),
		SeedSitemaps:     config.GetEffectiveSeedSitemaps(siteCfg, *appCfg),
		SkipExtensions:   appCfg.SkipExtensions,
		FetchScripts:     config.GetEffectiveFetchScripts(siteCfg, *appCfg),
		HostSemaphores:   fetch.NewHostSemaphorePool(appCfg.MaxRequestsPerHost, log.WithField("component", "host_semaphores")),
		SemaphoreTimeout: policy.Timeout * 3,
		RateLimiter:      fetch.NewRateLimiter(appCfg.DefaultDelayPerHost, log.WithField("component", "rate_limiter")),
		DelayPerHost:     config.GetEffectiveDelayPerHost(siteCfg, *appCfg),
		ProgressInterval: appCfg.ProgressInterval,
		OnProgress:       onProgress,
		GCInterval:       10 * time.Minute,
	}
	if opts.RespectRobots || opts.SeedSitemaps {
		opts.Robots = fetch.NewRobotsHandler(fetcher, config.GetEffectiveUserAgent(siteCfg, *appCfg), log.WithField("component", "robots"))
	}

	return NewEngine(policy, fetcher, store, log, opts), cleanup, nil
}
