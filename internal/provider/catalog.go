package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// catalogTTL bounds how long a fetched model catalog is served before the
// provider model lists are queried again.
const catalogTTL = 24 * time.Hour

// ErrUnknownModel indicates a model id absent from the catalog. Callers must
// treat this as a client error, never silently default to another backend.
var ErrUnknownModel = errors.New("unknown model")

// ModelLister fetches the model list served by one provider. Implemented by
// the backend adapters; injected here so the catalog stays transport-agnostic.
type ModelLister interface {
	ListModels(ctx context.Context, p Provider) ([]Model, error)
}

// seedModels is the per-label fallback used when a provider's model listing
// cannot be fetched. Kept deliberately small: it exists so a transient
// listing failure does not make every configured model unroutable.
var seedModels = map[string][]string{
	"openai":     {"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini"},
	"groq":       {"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
	"cloudflare": {"@cf/meta/llama-3.1-8b-instruct", "@cf/meta/llama-3.3-70b-instruct"},
	"anthropic":  {"claude-sonnet-4-20250514", "claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"},
}

// Catalog merges and caches the model lists of all configured providers.
//
// The cache is refreshed when it is older than catalogTTL or when the
// provider-set signature changes (a provider was added or removed). Lookups
// of ids absent from the catalog fail with ErrUnknownModel.
//
// Catalog is safe for concurrent use.
type Catalog struct {
	repo   *Repository
	lister ModelLister
	logger *slog.Logger

	mu        sync.Mutex
	models    []Model
	byID      map[string]Model
	fetchedAt time.Time
	signature string
	now       func() time.Time // test hook
}

// NewCatalog creates a catalog over the repository's providers.
func NewCatalog(repo *Repository, lister ModelLister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		repo:   repo,
		lister: lister,
		logger: logger,
		now:    time.Now,
	}
}

// Models returns the merged catalog, refreshing it if stale.
func (c *Catalog) Models(ctx context.Context) ([]Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}

	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out, nil
}

// ModelFamily resolves a model id to its owning backend family.
// Returns ErrUnknownModel when the id is not in the catalog.
func (c *Catalog) ModelFamily(ctx context.Context, modelID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}

	m, ok := c.byID[modelID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return m.Family, nil
}

// ModelProvider resolves a model id to the provider serving it.
func (c *Catalog) ModelProvider(ctx context.Context, modelID string) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx); err != nil {
		return Provider{}, err
	}

	m, ok := c.byID[modelID]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}

	p, ok := c.repo.ByName(m.Provider)
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return p, nil
}

// refreshLocked rebuilds the cache when it is stale or the provider set
// changed. Caller must hold c.mu.
func (c *Catalog) refreshLocked(ctx context.Context) error {
	signature := c.repo.Signature()
	fresh := c.byID != nil &&
		signature == c.signature &&
		c.now().Sub(c.fetchedAt) < catalogTTL
	if fresh {
		return nil
	}

	var merged []Model
	for _, p := range c.repo.Providers() {
		models, err := c.lister.ListModels(ctx, p)
		if err != nil {
			c.logger.Warn("model listing failed, using seed list",
				"provider", p.Name, "error", err)
			models = seeds(p)
		}
		merged = append(merged, models...)
	}

	byID := make(map[string]Model, len(merged))
	for _, m := range merged {
		// First provider listing a model wins; duplicates across providers
		// keep the earlier (sorted-label) entry.
		if _, exists := byID[m.ID]; !exists {
			byID[m.ID] = m
		}
	}

	c.models = merged
	c.byID = byID
	c.fetchedAt = c.now()
	c.signature = signature
	c.logger.Debug("model catalog refreshed", "models", len(merged), "signature", signature)
	return nil
}

// seeds returns the fallback models for a provider.
func seeds(p Provider) []Model {
	ids := seedModels[p.Name]
	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		models = append(models, Model{ID: id, Provider: p.Name, Family: p.Family, OwnedBy: p.Name})
	}
	return models
}
