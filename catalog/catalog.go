package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/engine"
)

var (
	// ErrStudyInactive is returned when generating from a deactivated study
	ErrStudyInactive = errors.New("study is inactive")

	// ErrInvalidStudy is returned for study metadata the catalog rejects
	ErrInvalidStudy = errors.New("invalid study")
)

// Catalog validates studies before they reach the store and keeps their
// compiled constraint sets warm. Safe for concurrent use.
type Catalog struct {
	store  StudyStore
	cache  *StudyCache
	logger *slog.Logger

	// serializes mutations so a compiled entry always matches the stored study
	mu sync.Mutex
}

// NewCatalog wraps store and compiles every active study up front. A
// stored study that no longer compiles is logged and skipped.
func NewCatalog(store StudyStore, config CacheConfig, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		store:  store,
		cache:  NewStudyCache(config),
		logger: logger,
	}

	studies, err := store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load studies: %w", err)
	}
	loaded := 0
	for _, s := range studies {
		rules, err := compileStudy(s)
		if err != nil {
			logger.Warn("Skipping study that no longer compiles", "study_id", s.ID, "error", err)
			continue
		}
		c.cache.SetRules(s.ID, rules)
		loaded++
	}
	c.cache.SetActive(studies)
	logger.Info("Study catalog loaded", "studies", loaded, "skipped", len(studies)-loaded)
	return c, nil
}

func compileStudy(s *Study) (*constraints.CompiledRules, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidStudy)
	}
	if s.Defaults.Method != "" {
		if _, err := design.ParseMethod(string(s.Defaults.Method)); err != nil {
			return nil, err
		}
	}
	return constraints.Compile(s.Constraints, s.Grid)
}

// Add validates and stores a new study. A study that does not compile is
// never stored; a failed store leaves no compiled entry behind.
func (c *Catalog) Add(s *Study) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.Get(s.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrStudyExists, s.ID)
	}

	rules, err := compileStudy(s)
	if err != nil {
		return fmt.Errorf("study validation failed: %w", err)
	}
	c.cache.SetRules(s.ID, rules)

	if err := c.store.Add(s); err != nil {
		c.cache.Invalidate(s.ID)
		return err
	}
	c.cache.Invalidate()

	c.logger.Info("Study added", "study_id", s.ID, "name", s.Name, "rules", rules.Summary())
	return nil
}

// Get returns a stored study
func (c *Catalog) Get(id string) (*Study, error) {
	return c.store.Get(id)
}

// ListActive serves the active list from cache when possible
func (c *Catalog) ListActive() ([]*Study, error) {
	if studies, ok := c.cache.Active(); ok {
		return studies, nil
	}
	studies, err := c.store.ListActive()
	if err != nil {
		return nil, err
	}
	c.cache.SetActive(studies)
	return studies, nil
}

// Update validates the new definition before replacing the stored one
func (c *Catalog) Update(s *Study) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rules, err := compileStudy(s)
	if err != nil {
		return fmt.Errorf("study validation failed: %w", err)
	}
	if err := c.store.Update(s); err != nil {
		return err
	}
	c.cache.Invalidate(s.ID)
	c.cache.SetRules(s.ID, rules)

	c.logger.Info("Study updated", "study_id", s.ID, "active", s.Active)
	return nil
}

// Delete removes a study and its compiled rules
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(id); err != nil {
		return err
	}
	c.cache.Invalidate(id)

	c.logger.Info("Study deleted", "study_id", id)
	return nil
}

// Rules returns the compiled constraint set of a study, compiling and
// caching it on a miss
func (c *Catalog) Rules(id string) (*constraints.CompiledRules, error) {
	if rules, ok := c.cache.Rules(id); ok {
		return rules, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	rules, err := compileStudy(s)
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", id, err)
	}
	c.cache.SetRules(id, rules)
	return rules, nil
}

// Request merges a study into a generate request. Fields the request
// sets win over the study defaults; grid and constraints always come from
// the study.
func (c *Catalog) Request(id string, req engine.GenerateRequest) (engine.GenerateRequest, *constraints.CompiledRules, error) {
	s, err := c.store.Get(id)
	if err != nil {
		return req, nil, err
	}
	if !s.Active {
		return req, nil, fmt.Errorf("%w: %s", ErrStudyInactive, id)
	}
	rules, err := c.Rules(id)
	if err != nil {
		return req, nil, err
	}

	req.Grid = s.Grid
	req.Constraints = s.Constraints
	if req.Method == "" {
		req.Method = s.Defaults.Method
	}
	if req.OptionsPerScreen == 0 {
		req.OptionsPerScreen = s.Defaults.OptionsPerScreen
	}
	if req.NumScreens == 0 {
		req.NumScreens = s.Defaults.NumScreens
	}
	return req, rules, nil
}
