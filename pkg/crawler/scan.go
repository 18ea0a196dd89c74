package crawler

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/filter"
	"url-spider/pkg/models"
	"url-spider/pkg/parse"
	"url-spider/pkg/seed"
	"url-spider/pkg/storage"
	"url-spider/pkg/utils"
)

// Scan extracts URLs from local documents without touching the network.
// Relative references resolve against base; with an empty base they are dropped and the same-domain rule
// is lifted, since there is no seed host to compare against. Every accepted URL is recorded at depth 0.
func (e *Engine) Scan(docs []seed.Document, base string) (*models.CrawlResult, error) {
	result := models.NewCrawlResult()

	policy := e.policy
	var baseURL *url.URL
	var seedHosts []string
	if base != "" {
		canonical, parsed, err := parse.ParseAndNormalize(base)
		if err != nil {
			return result, fmt.Errorf("%w: base URL: %w", utils.ErrConfigValidation, err)
		}
		baseURL = parsed
		seedHosts = []string{parsed.Hostname()}
		result.Seeds = []string{canonical}
	} else {
		policy.SameDomainOnly = false
	}

	store := storage.NewMemoryStore()
	defer store.Close()

	result.SetState(models.RunStateRunning)
	if err := e.scanInto(result, store, policy, docs, baseURL, seedHosts); err != nil {
		return result, err
	}
	result.SetState(models.RunStateCompleted)
	return result, nil
}

// ScanDocuments adds the references found in docs to the result of a finished Run.
// The engine's visited set is reused so URLs the crawl already recorded are not repeated, and relative
// references resolve against the first seed.
func (e *Engine) ScanDocuments(result *models.CrawlResult, docs []seed.Document) error {
	if len(docs) == 0 {
		return nil
	}
	var baseURL *url.URL
	var seedHosts []string
	for _, s := range result.Seeds {
		_, parsed, err := parse.ParseAndNormalize(s)
		if err != nil {
			continue
		}
		if baseURL == nil {
			baseURL = parsed
		}
		seedHosts = append(seedHosts, parsed.Hostname())
	}
	policy := e.policy
	if len(seedHosts) == 0 {
		policy.SameDomainOnly = false
	}
	return e.scanInto(result, e.store, policy, docs, baseURL, seedHosts)
}

func (e *Engine) scanInto(result *models.CrawlResult, store storage.VisitedSet, policy models.CrawlPolicy,
	docs []seed.Document, baseURL *url.URL, seedHosts []string) error {
	scanLog := e.log.WithFields(logrus.Fields{"run_id": result.RunID, "mode": "scan"})

	f, err := filter.New(policy, seedHosts)
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
	}

	r := &run{
		Engine: &Engine{policy: policy, fetcher: e.fetcher, store: store, log: e.log, opts: e.opts},
		ctx:    context.Background(),
		log:    scanLog,
		result: result,
		filter: f,
	}

	accepted := 0
	for _, doc := range docs {
		docLog := scanLog.WithFields(logrus.Fields{"document": doc.Name, "hint": doc.Hint})
		links := r.extractLinks(doc.Body, doc.Hint, baseURL, docLog)
		for _, link := range links {
			canonical, err := parse.Normalize(link.Raw, baseURL)
			if err != nil {
				result.Count(func(s *models.Stats) { s.NormalizationErrors++ })
				continue
			}
			if r.admit(canonical, link.Raw, doc.Name, link.Context, 0) {
				accepted++
			}
		}
		docLog.Debugf("Scanned document, %d reference(s) found", len(links))
	}

	scanLog.Infof("Scan finished: %d document(s), %d URL(s) accepted", len(docs), accepted)
	return nil
}
