package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"url-spider/pkg/config"
	"url-spider/pkg/crawler"
	"url-spider/pkg/filter"
	"url-spider/pkg/models"
	"url-spider/pkg/orchestrate"
	"url-spider/pkg/output"
	"url-spider/pkg/seed"
)

const defaultMaxResults = 500

// handleListSites handles the list_sites tool
func (s *Server) handleListSites(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys := make([]string, 0, len(s.cfg.AppConfig.Sites))
	for k := range s.cfg.AppConfig.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sites := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		siteCfg := s.cfg.AppConfig.Sites[key]
		siteInfo := map[string]any{
			"key":              key,
			"seeds":            siteCfg.Seeds,
			"max_depth":        config.GetEffectiveMaxDepth(siteCfg, *s.cfg.AppConfig),
			"max_pages":        config.GetEffectiveMaxPages(siteCfg, *s.cfg.AppConfig),
			"same_domain_only": config.GetEffectiveSameDomainOnly(siteCfg, *s.cfg.AppConfig),
		}
		if siteCfg.SeedFile != "" {
			siteInfo["seed_file"] = siteCfg.SeedFile
		}
		if job := s.jobManager.GetJobByKey(key); job != nil && job.Status.IsActive() {
			siteInfo["status"] = "running"
			siteInfo["job_id"] = job.ID
		}
		sites = append(sites, siteInfo)
	}

	result := map[string]any{
		"sites":       sites,
		"config_path": s.cfg.ConfigPath,
		"total_sites": len(sites),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleExtractURLs handles the extract_urls tool: one fetch, no traversal
func (s *Server) handleExtractURLs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := strings.TrimSpace(request.GetString("url", ""))
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	scope, err := parseScope(request.GetString("scope", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Depth 1 with a single page slot records the page's references without fetching any of them
	depth, pageCap, noSitemaps := 1, 1, false
	sameDomain := !request.GetBool("include_external", false)
	siteCfg := config.SiteConfig{
		Seeds:          []string{rawURL},
		MaxDepth:       &depth,
		MaxPages:       &pageCap,
		SameDomainOnly: &sameDomain,
		SeedSitemaps:   &noSitemaps,
	}
	appCfg := *s.cfg.AppConfig
	appCfg.VisitedStore = "memory"

	startTime := time.Now()
	engine, cleanup, err := crawler.Setup(ctx, &appCfg, siteCfg, nil, s.log.WithField("tool", "extract_urls"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set up fetcher: %v", err)), nil
	}
	defer cleanup()

	result, err := engine.Run(ctx, siteCfg.Seeds)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL '%s': %v", rawURL, err)), nil
	}
	if len(result.Pages()) == 0 {
		if failures := result.Failures(); len(failures) > 0 {
			f := failures[0]
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch %s: %s (%s)", f.URL, f.Detail, f.Category)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("%s was not fetched (state: %s)", rawURL, result.State())), nil
	}

	rep := output.NewReport(result)
	urls := withoutSeeds(filterScope(rep, scope))
	page := result.Pages()[0]
	response := map[string]any{
		"url":           page.URL,
		"final_url":     page.FinalURL,
		"status_code":   page.StatusCode,
		"content_type":  page.ContentType,
		"links_found":   page.LinksFound,
		"urls":          urls,
		"total_urls":    len(urls),
		"by_scope":      rep.CountByScope(),
		"subdomains":    rep.Subdomains,
		"fetch_time_ms": time.Since(startTime).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCrawlURLs handles the crawl_urls tool
func (s *Server) handleCrawlURLs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seeds := splitURLs(request.GetString("urls", ""))
	siteKey := strings.TrimSpace(request.GetString("site_key", ""))

	var siteCfg config.SiteConfig
	var docs []seed.Document
	key := siteKey
	switch {
	case len(seeds) > 0:
		siteCfg.Seeds = seeds
		key = strings.Join(seeds, ",")
	case siteKey != "":
		cfg, exists := s.cfg.AppConfig.Sites[siteKey]
		if !exists {
			available := make([]string, 0, len(s.cfg.AppConfig.Sites))
			for k := range s.cfg.AppConfig.Sites {
				available = append(available, k)
			}
			sort.Strings(available)
			return mcp.NewToolResultError(fmt.Sprintf("site '%s' not found. Available sites: %v", siteKey, available)), nil
		}
		siteCfg = cfg
		var err error
		seeds, docs, err = orchestrate.LoadSiteSeeds(cfg, s.log)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read seed file: %v", err)), nil
		}
		siteCfg.Seeds = seeds
		siteCfg.SeedFile = ""
	default:
		return mcp.NewToolResultError("either urls or site_key is required"), nil
	}

	if d := request.GetInt("max_depth", -1); d >= 0 {
		siteCfg.MaxDepth = &d
	}
	if p := request.GetInt("max_pages", -1); p >= 0 {
		siteCfg.MaxPages = &p
	}
	if request.GetBool("include_external", false) {
		sameDomain := false
		siteCfg.SameDomainOnly = &sameDomain
	}
	if _, err := siteCfg.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid crawl settings: %v", err)), nil
	}

	job, created := s.jobManager.CreateJob(key, seeds)
	if !created {
		result := map[string]any{
			"status":  "already_running",
			"message": "A crawl is already in progress for these seeds",
			"job_id":  job.ID,
			"key":     key,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runCrawlJob(job.ID, siteCfg, seeds, docs)

	result := map[string]any{
		"status":  "started",
		"message": "Crawl started successfully",
		"job_id":  job.ID,
		"seeds":   seeds,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job, errResult := s.lookupJob(request)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(formatJSON(jobInfo(job))), nil
}

// handleGetJobResult handles the get_job_result tool
func (s *Server) handleGetJobResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job, errResult := s.lookupJob(request)
	if errResult != nil {
		return errResult, nil
	}
	scope, err := parseScope(request.GetString("scope", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxResults := request.GetInt("max_results", defaultMaxResults)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	rep := s.jobManager.Report(job.ID)
	if rep == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' has no result yet (status: %s)", job.ID, job.Status)), nil
	}

	urls := filterScope(rep, scope)
	total := len(urls)
	truncated := total > maxResults
	if truncated {
		urls = urls[:maxResults]
	}

	response := jobInfo(job)
	response["state"] = rep.State
	response["urls"] = urls
	response["total_urls"] = total
	response["truncated"] = truncated
	response["by_scope"] = rep.CountByScope()
	response["by_kind"] = rep.CountByKind()
	response["subdomains"] = rep.Subdomains
	response["failed_urls"] = len(rep.Failures)
	if scope != "" {
		response["scope"] = scope
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job, errResult := s.lookupJob(request)
	if errResult != nil {
		return errResult, nil
	}
	if !s.jobManager.CancelJob(job.ID) {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' is not running (status: %s)", job.ID, job.Status)), nil
	}
	result := map[string]any{
		"status":  "cancelled",
		"job_id":  job.ID,
		"message": "Crawl cancelled; URLs discovered so far are available through get_job_result",
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.jobManager.ListJobs()
	infos := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, jobInfo(job))
	}
	result := map[string]any{
		"jobs":       infos,
		"total_jobs": len(infos),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runCrawlJob runs a crawl job in the background
func (s *Server) runCrawlJob(jobID string, siteCfg config.SiteConfig, seeds []string, docs []seed.Document) {
	jobLog := s.log.WithField("job_id", jobID)
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")

	jobCtx := s.jobManager.GetContext(jobID)
	if timeout := s.cfg.AppConfig.GlobalCrawlTimeout; timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, timeout)
		defer cancel()
	}

	onProgress := func(p crawler.Progress) { s.jobManager.UpdateProgress(jobID, p) }
	engine, cleanup, err := crawler.Setup(jobCtx, s.cfg.AppConfig, siteCfg, onProgress, jobLog)
	if err != nil {
		s.jobManager.UpdateStatus(jobID, JobStatusFailed, fmt.Sprintf("failed to set up crawl: %v", err))
		return
	}
	defer cleanup()

	report, err := orchestrate.RunSite(jobCtx, engine, seeds, docs, jobLog)
	if err != nil {
		jobLog.Warnf("Crawl job failed: %v", err)
		s.jobManager.UpdateStatus(jobID, JobStatusFailed, err.Error())
		return
	}
	s.jobManager.SetReport(jobID, report)
	if report.State == models.RunStateAborted {
		msg := ""
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			msg = "global crawl timeout exceeded"
		}
		s.jobManager.UpdateStatus(jobID, JobStatusCancelled, msg)
		return
	}
	s.jobManager.UpdateStatus(jobID, JobStatusCompleted, "")
}

// lookupJob resolves the job_id argument, returning a tool error result when it is missing or unknown
func (s *Server) lookupJob(request mcp.CallToolRequest) (*Job, *mcp.CallToolResult) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return nil, mcp.NewToolResultError("job_id parameter is required")
	}
	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID))
	}
	return job, nil
}

func jobInfo(job *Job) map[string]any {
	info := map[string]any{
		"job_id":        job.ID,
		"key":           job.Key,
		"seeds":         job.Seeds,
		"status":        job.Status,
		"started_at":    job.StartedAt.Format(time.RFC3339),
		"discovered":    job.Discovered,
		"pages_fetched": job.PagesFetched,
		"failures":      job.Failures,
		"queued":        job.Queued,
	}
	if job.RunID != "" {
		info["run_id"] = job.RunID
	}
	if !job.CompletedAt.IsZero() {
		info["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		info["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		info["error_message"] = job.ErrorMessage
	}
	return info
}

// parseScope accepts an empty string (all scopes) or one of the scope names
func parseScope(s string) (filter.Scope, error) {
	switch scope := filter.Scope(strings.ToLower(strings.TrimSpace(s))); scope {
	case "":
		return "", nil
	case filter.ScopeInternal, filter.ScopeSubdomain, filter.ScopeExternal:
		return scope, nil
	}
	return "", fmt.Errorf("invalid scope '%s' (want internal, subdomain or external)", s)
}

func filterScope(rep *output.Report, scope filter.Scope) []output.URLEntry {
	var urls []output.URLEntry
	if scope == "" {
		urls = rep.Filter()
	} else {
		urls = rep.Filter(scope)
	}
	if urls == nil {
		urls = []output.URLEntry{}
	}
	return urls
}

// withoutSeeds drops the seed entries so only references found on the page remain
func withoutSeeds(urls []output.URLEntry) []output.URLEntry {
	out := make([]output.URLEntry, 0, len(urls))
	for _, u := range urls {
		if u.Context != models.ContextSeed {
			out = append(out, u)
		}
	}
	return out
}

// splitURLs splits a list of URLs separated by commas or whitespace
func splitURLs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
