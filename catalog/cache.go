package catalog

import (
	"sync"
	"time"

	"github.com/halderavik/cbc-design-MCP/constraints"
)

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL bounds how long entries stay valid. Zero means entries live
	// until the next mutation invalidates them.
	TTL time.Duration
}

// DefaultCacheConfig invalidates on mutation only
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

type compiledEntry struct {
	rules    *constraints.CompiledRules
	cachedAt time.Time
}

// StudyCache holds the active study list and the compiled rules of each
// study. Compiled rules are immutable, so they are shared, not copied.
type StudyCache struct {
	config CacheConfig
	mu     sync.RWMutex

	active   []*Study
	listedAt time.Time
	listOK   bool

	compiled map[string]compiledEntry
}

// NewStudyCache creates an empty cache
func NewStudyCache(config CacheConfig) *StudyCache {
	return &StudyCache{
		config:   config,
		compiled: make(map[string]compiledEntry),
	}
}

func (c *StudyCache) fresh(at time.Time) bool {
	return c.config.TTL <= 0 || time.Since(at) <= c.config.TTL
}

// Active returns the cached active list, or false on a miss or expiry
func (c *StudyCache) Active() ([]*Study, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.listOK || !c.fresh(c.listedAt) {
		return nil, false
	}
	out := make([]*Study, len(c.active))
	for i, s := range c.active {
		out[i] = s.Clone()
	}
	return out, true
}

// SetActive stores a copy of the active list
func (c *StudyCache) SetActive(studies []*Study) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = make([]*Study, len(studies))
	for i, s := range studies {
		c.active[i] = s.Clone()
	}
	c.listedAt = time.Now()
	c.listOK = true
}

// Rules returns the compiled rules cached for a study
func (c *StudyCache) Rules(id string) (*constraints.CompiledRules, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.compiled[id]
	if !ok || !c.fresh(e.cachedAt) {
		return nil, false
	}
	return e.rules, true
}

// SetRules caches compiled rules for a study
func (c *StudyCache) SetRules(id string, rules *constraints.CompiledRules) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiled[id] = compiledEntry{rules: rules, cachedAt: time.Now()}
}

// Invalidate drops the active list and the compiled rules of the given
// studies. With no IDs only the list is dropped.
func (c *StudyCache) Invalidate(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = nil
	c.listOK = false
	for _, id := range ids {
		delete(c.compiled, id)
	}
}
