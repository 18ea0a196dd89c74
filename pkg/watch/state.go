package watch

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"url-spider/pkg/utils"
)

const stateFileName = "watch_state.json"

// SiteState contains the last round's outcome for a site and every URL seen so far
type SiteState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	URLCount       int       `json:"url_count"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	KnownURLs      []string  `json:"known_urls,omitempty"` // Sorted
}

// WatchState is the persisted state of the watch scheduler
type WatchState struct {
	Sites     map[string]SiteState `json:"sites"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a state manager backed by <stateDir>/watch_state.json
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     WatchState{Sites: make(map[string]SiteState)},
	}
}

// Load reads the state file; a missing file starts fresh
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Sites: make(map[string]SiteState)}
			return nil
		}
		return fmt.Errorf("%w: read state file: %w", utils.ErrFilesystem, err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("%w: parse state file: %w", utils.ErrFilesystem, err)
	}
	if m.state.Sites == nil {
		m.state.Sites = make(map[string]SiteState)
	}
	return nil
}

// Save writes the state file, replacing it atomically
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", utils.ErrFilesystem, err)
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write state file: %w", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("%w: replace state file: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// GetSiteState returns the state for a specific site
func (m *StateManager) GetSiteState(siteKey string) (SiteState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Sites[siteKey]
	return state, ok
}

// RecordSuccess stores a finished round and returns the URLs not seen in any earlier round, sorted.
// The first round of a site reports nothing as new.
func (m *StateManager) RecordSuccess(siteKey string, urls []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, seenBefore := m.state.Sites[siteKey]
	known := make(map[string]struct{}, len(prev.KnownURLs)+len(urls))
	for _, u := range prev.KnownURLs {
		known[u] = struct{}{}
	}

	var fresh []string
	for _, u := range urls {
		if _, ok := known[u]; ok {
			continue
		}
		known[u] = struct{}{}
		if seenBefore {
			fresh = append(fresh, u)
		}
	}
	sort.Strings(fresh)

	all := make([]string, 0, len(known))
	for u := range known {
		all = append(all, u)
	}
	sort.Strings(all)

	m.state.Sites[siteKey] = SiteState{
		LastRunTime:    time.Now(),
		LastRunSuccess: true,
		URLCount:       len(urls),
		KnownURLs:      all,
	}
	return fresh
}

// RecordFailure stores a failed round; previously known URLs are kept
func (m *StateManager) RecordFailure(siteKey string, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.Sites[siteKey]
	m.state.Sites[siteKey] = SiteState{
		LastRunTime:    time.Now(),
		LastRunSuccess: false,
		ErrorMessage:   errorMsg,
		KnownURLs:      prev.KnownURLs,
	}
}

// ShouldRun reports whether interval has passed since the site's last round
func (m *StateManager) ShouldRun(siteKey string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sites[siteKey]
	if !ok {
		return true
	}
	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the site should next run
func (m *StateManager) GetNextRunTime(siteKey string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sites[siteKey]
	if !ok {
		return time.Now()
	}
	return state.LastRunTime.Add(interval)
}

// GetAllSiteStates returns a copy of all site states
func (m *StateManager) GetAllSiteStates() map[string]SiteState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.state.Sites)
}
