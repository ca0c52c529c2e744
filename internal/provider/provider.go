// Package provider discovers configured LLM backends from credential
// configuration and resolves model identifiers to their owning backend family.
//
// A "family" groups providers that share one wire protocol: the openai family
// covers every OpenAI-compatible endpoint (OpenAI itself, Groq, Cloudflare
// Workers AI), while anthropic is its own family. The catalog maps model ids
// to the provider that serves them, so the orchestrator can pick the right
// adapter for a request.
package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geoffsee/open-gsio/internal/config"
)

// Backend family names. internal/backend registers one Adapter per family.
const (
	FamilyOpenAI    = "openai"
	FamilyAnthropic = "anthropic"
)

// Default base endpoints per provider label. Cloudflare embeds the account id
// in the URL path; the placeholder is substituted during repository
// construction.
const (
	openAIEndpoint     = "https://api.openai.com/v1"
	groqEndpoint       = "https://api.groq.com/openai/v1"
	cloudflareEndpoint = "https://api.cloudflare.com/client/v4/accounts/{account_id}/ai/v1"
	anthropicEndpoint  = "https://api.anthropic.com/v1"
)

// ErrUnknownProvider indicates a credential entry whose label cannot be
// mapped to a backend family.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider is one resolved backend: credentials plus endpoint, read-only
// after construction.
type Provider struct {
	Name     string // label from configuration ("openai", "groq", ...)
	Family   string // backend family owning the wire protocol
	APIKey   string
	Endpoint string // base URL, account segments already substituted
}

// Model identifies a catalog entry with provider metadata.
type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Family   string `json:"family"`
	OwnedBy  string `json:"owned_by,omitempty"`
	Created  int64  `json:"created,omitempty"`
}

// Repository holds the providers discovered from configuration.
//
// Repository is read-only after construction and safe for concurrent use.
type Repository struct {
	providers []Provider
	logger    *slog.Logger
}

// NewRepository scans cfg.Providers for credential entries and resolves each
// to a Provider. Entries without an API key are skipped. Unknown labels are
// rejected so a typo in configuration fails loudly instead of silently
// dropping a backend.
func NewRepository(cfg *config.Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var providers []Provider
	for _, label := range cfg.ConfiguredProviders() {
		creds := cfg.Providers[label]

		p, err := resolveProvider(strings.ToLower(label), creds)
		if err != nil {
			return nil, err
		}

		providers = append(providers, p)
		logger.Debug("configured provider", "name", p.Name, "family", p.Family, "endpoint", p.Endpoint)
	}

	return &Repository{providers: providers, logger: logger}, nil
}

// resolveProvider maps a credential label to family and endpoint.
func resolveProvider(label string, creds config.ProviderCredentials) (Provider, error) {
	p := Provider{Name: label, APIKey: creds.APIKey}

	switch label {
	case config.ProviderOpenAI:
		p.Family = FamilyOpenAI
		p.Endpoint = openAIEndpoint
	case config.ProviderGroq:
		p.Family = FamilyOpenAI
		p.Endpoint = groqEndpoint
	case config.ProviderCloudflare:
		p.Family = FamilyOpenAI
		p.Endpoint = strings.ReplaceAll(cloudflareEndpoint, "{account_id}", creds.AccountID)
	case config.ProviderAnthropic:
		p.Family = FamilyAnthropic
		p.Endpoint = anthropicEndpoint
	default:
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, label)
	}

	if creds.Endpoint != "" {
		p.Endpoint = creds.Endpoint
	}

	return p, nil
}

// Providers returns the configured providers in label-sorted order.
// The returned slice must not be modified.
func (r *Repository) Providers() []Provider {
	return r.providers
}

// Signature returns the cache invalidation key for the provider set: the
// sorted provider names joined with commas. The model catalog discards its
// cache when this changes.
func (r *Repository) Signature() string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name
	}
	return strings.Join(names, ",")
}

// ByFamily returns the first configured provider belonging to the given
// family, or false when none is configured.
func (r *Repository) ByFamily(family string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Family == family {
			return p, true
		}
	}
	return Provider{}, false
}

// ByName returns the provider with the given label, or false.
func (r *Repository) ByName(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}
