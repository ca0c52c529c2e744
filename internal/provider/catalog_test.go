package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geoffsee/open-gsio/internal/config"
)

// stubLister serves canned model lists and counts fetches per provider.
type stubLister struct {
	models map[string][]Model
	err    error
	calls  int
}

func (l *stubLister) ListModels(_ context.Context, p Provider) ([]Model, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.models[p.Name], nil
}

func repoFor(t *testing.T, labels ...string) *Repository {
	t.Helper()
	providers := make(map[string]config.ProviderCredentials, len(labels))
	for _, l := range labels {
		providers[l] = config.ProviderCredentials{APIKey: "k"}
	}
	repo, err := NewRepository(&config.Config{Providers: providers}, nil)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return repo
}

func TestCatalogCachesWithinTTL(t *testing.T) {
	lister := &stubLister{models: map[string][]Model{
		"openai": {{ID: "gpt-4o", Provider: "openai", Family: FamilyOpenAI}},
	}}
	c := NewCatalog(repoFor(t, config.ProviderOpenAI), lister, nil)

	current := time.Now()
	c.now = func() time.Time { return current }
	ctx := context.Background()

	if _, err := c.Models(ctx); err != nil {
		t.Fatalf("Models: %v", err)
	}
	if _, err := c.ModelFamily(ctx, "gpt-4o"); err != nil {
		t.Fatalf("ModelFamily: %v", err)
	}
	if lister.calls != 1 {
		t.Errorf("calls = %d, want 1 (cache hit expected)", lister.calls)
	}

	// Past the TTL the catalog refetches.
	current = current.Add(25 * time.Hour)
	if _, err := c.Models(ctx); err != nil {
		t.Fatalf("Models after expiry: %v", err)
	}
	if lister.calls != 2 {
		t.Errorf("calls = %d, want 2 after TTL expiry", lister.calls)
	}
}

func TestCatalogUnknownModel(t *testing.T) {
	lister := &stubLister{models: map[string][]Model{
		"openai": {{ID: "gpt-4o", Provider: "openai", Family: FamilyOpenAI}},
	}}
	c := NewCatalog(repoFor(t, config.ProviderOpenAI), lister, nil)

	if _, err := c.ModelFamily(context.Background(), "imaginary-model"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}
	if _, err := c.ModelProvider(context.Background(), "imaginary-model"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}
}

func TestCatalogSignatureInvalidation(t *testing.T) {
	lister := &stubLister{models: map[string][]Model{
		"openai":    {{ID: "gpt-4o", Provider: "openai", Family: FamilyOpenAI}},
		"anthropic": {{ID: "claude-sonnet-4-20250514", Provider: "anthropic", Family: FamilyAnthropic}},
	}}
	c := NewCatalog(repoFor(t, config.ProviderOpenAI), lister, nil)
	ctx := context.Background()

	if _, err := c.Models(ctx); err != nil {
		t.Fatalf("Models: %v", err)
	}
	if _, err := c.ModelFamily(ctx, "claude-sonnet-4-20250514"); !errors.Is(err, ErrUnknownModel) {
		t.Fatal("anthropic model should be unknown before the provider exists")
	}

	// A changed provider set discards the cache even within the TTL.
	c.repo = repoFor(t, config.ProviderOpenAI, config.ProviderAnthropic)
	family, err := c.ModelFamily(ctx, "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("ModelFamily after provider change: %v", err)
	}
	if family != FamilyAnthropic {
		t.Errorf("family = %q", family)
	}
}

func TestCatalogSeedFallbackOnListingFailure(t *testing.T) {
	lister := &stubLister{err: errors.New("upstream down")}
	c := NewCatalog(repoFor(t, config.ProviderOpenAI), lister, nil)

	family, err := c.ModelFamily(context.Background(), "gpt-4o")
	if err != nil {
		t.Fatalf("ModelFamily: %v", err)
	}
	if family != FamilyOpenAI {
		t.Errorf("family = %q", family)
	}
}

func TestCatalogFirstProviderWinsOnDuplicateID(t *testing.T) {
	shared := "llama-3.3-70b-versatile"
	lister := &stubLister{models: map[string][]Model{
		"groq":   {{ID: shared, Provider: "groq", Family: FamilyOpenAI}},
		"openai": {{ID: shared, Provider: "openai", Family: FamilyOpenAI}},
	}}
	c := NewCatalog(repoFor(t, config.ProviderGroq, config.ProviderOpenAI), lister, nil)

	p, err := c.ModelProvider(context.Background(), shared)
	if err != nil {
		t.Fatalf("ModelProvider: %v", err)
	}
	// Providers are scanned in sorted label order, so groq is listed first.
	if p.Name != "groq" {
		t.Errorf("provider = %q", p.Name)
	}
}
