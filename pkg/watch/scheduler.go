package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/config"
	"url-spider/pkg/orchestrate"
)

// RoundHandler receives the results of one round and, per site, the URLs no earlier round had found
type RoundHandler func(results []orchestrate.SiteResult, fresh map[string][]string)

// Scheduler re-crawls site profiles whenever their interval has elapsed
type Scheduler struct {
	appCfg       *config.AppConfig
	siteKeys     []string
	interval     time.Duration
	parallel     int
	log          *logrus.Entry
	stateManager *StateManager
	onRound      RoundHandler
}

// NewScheduler creates a watch scheduler; state lives in appCfg.StateDir
func NewScheduler(appCfg *config.AppConfig, siteKeys []string, interval time.Duration, parallel int,
	onRound RoundHandler, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		appCfg:       appCfg,
		siteKeys:     siteKeys,
		interval:     interval,
		parallel:     parallel,
		log:          log,
		stateManager: NewStateManager(appCfg.StateDir),
		onRound:      onRound,
	}
}

// Run crawls due sites immediately and then on every tick until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d sites with interval %s", len(s.siteKeys), FormatInterval(s.interval))
	s.logSchedule()

	s.RunDue(ctx)

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs one round over the sites that are due and returns their keys.
// Rounds run one at a time so a slow crawl never overlaps the next round of the same site.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	due := s.dueSites()
	if len(due) == 0 {
		s.logNextRun()
		return nil
	}

	s.log.Infof("Running crawl for %d due sites: %v", len(due), due)
	results := orchestrate.NewOrchestrator(s.appCfg, due, s.parallel, s.log).Run(ctx)
	if ctx.Err() != nil {
		// A cancelled round is incomplete; keep the previous state so it reruns next time
		s.log.Warn("Round cancelled, state not updated")
		return due
	}

	fresh := make(map[string][]string, len(results))
	for _, r := range results {
		if !r.Success() {
			s.stateManager.RecordFailure(r.SiteKey, r.Err.Error())
			continue
		}
		urls := make([]string, 0, len(r.Report.URLs))
		for _, u := range r.Report.URLs {
			urls = append(urls, u.URL)
		}
		fresh[r.SiteKey] = s.stateManager.RecordSuccess(r.SiteKey, urls)
		if n := len(fresh[r.SiteKey]); n > 0 {
			s.log.WithField("site", r.SiteKey).Infof("%d new URL(s) since the previous round", n)
		}
	}

	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
	if s.onRound != nil {
		s.onRound(results, fresh)
	}
	s.logNextRun()
	return due
}

func (s *Scheduler) dueSites() []string {
	var due []string
	for _, siteKey := range s.siteKeys {
		if s.stateManager.ShouldRun(siteKey, s.interval) {
			due = append(due, siteKey)
		}
	}
	return due
}

// tickInterval is how often due sites are checked: a tenth of the interval, clamped to [1m, 10m]
func (s *Scheduler) tickInterval() time.Duration {
	check := s.interval / 10
	if check < time.Minute {
		check = time.Minute
	}
	if check > 10*time.Minute {
		check = 10 * time.Minute
	}
	return check
}

func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, siteKey := range s.siteKeys {
		state, exists := s.stateManager.GetSiteState(siteKey)
		if !exists {
			s.log.Infof("  %s: never run, will run immediately", siteKey)
			continue
		}
		status := "success"
		if !state.LastRunSuccess {
			status = "failed"
		}
		s.log.Infof("  %s: last run %s (%s, %d URLs, %d known), next run %s",
			siteKey,
			state.LastRunTime.Format(time.RFC3339),
			status,
			state.URLCount,
			len(state.KnownURLs),
			s.stateManager.GetNextRunTime(siteKey, s.interval).Format(time.RFC3339))
	}
}

func (s *Scheduler) logNextRun() {
	type nextRun struct {
		site string
		at   time.Time
	}
	runs := make([]nextRun, 0, len(s.siteKeys))
	for _, siteKey := range s.siteKeys {
		runs = append(runs, nextRun{siteKey, s.stateManager.GetNextRunTime(siteKey, s.interval)})
	}
	if len(runs) == 0 {
		return
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].at.Before(runs[j].at) })

	next := runs[0]
	until := max(time.Until(next.at), 0)
	s.log.Infof("Next crawl: %s in %v (at %s)", next.site, until.Round(time.Second), next.at.Format("15:04:05"))
}

// FormatInterval formats a duration with a day unit, e.g. 1d12h
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if mins := int(d.Minutes()) % 60; mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	if hours := int(d.Hours()) % 24; hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string that may start with a day count, e.g. 7d or 1d12h
func ParseInterval(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d := time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}
	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
