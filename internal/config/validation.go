package config

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration validation.
// Check with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrNoProviders indicates no provider credentials are configured.
	ErrNoProviders = errors.New("no provider credentials configured")

	// ErrUnknownProviderLabel indicates a providers entry with an
	// unrecognized label.
	ErrUnknownProviderLabel = errors.New("unknown provider label")

	// ErrMissingAccountID indicates Cloudflare credentials without the
	// account id required to build the endpoint URL.
	ErrMissingAccountID = errors.New("cloudflare account_id is required")

	// ErrInvalidPort indicates the listen port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrInvalidStreamTTL indicates the stream TTL is out of range.
	ErrInvalidStreamTTL = errors.New("invalid stream TTL")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidTopK indicates the retrieval top-k default is out of range.
	ErrInvalidTopK = errors.New("invalid default top_k")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid default threshold")
)

// knownProviderLabels are the provider labels the repository can map to a
// backend family.
var knownProviderLabels = map[string]bool{
	ProviderOpenAI:     true,
	ProviderGroq:       true,
	ProviderCloudflare: true,
	ProviderAnthropic:  true,
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for structural problems. It does not
// require providers to be present; ValidateServe enforces that for the
// serving path.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d (expected 1-65535)", ErrInvalidPort, c.Port)
	}

	if c.StreamTTLSeconds < 1 || c.StreamTTLSeconds > 86400 {
		return fmt.Errorf("%w: %d seconds (expected 1-86400)", ErrInvalidStreamTTL, c.StreamTTLSeconds)
	}

	for label, creds := range c.Providers {
		if creds.APIKey == "" {
			continue
		}
		normalized := strings.ToLower(label)
		if !knownProviderLabels[normalized] {
			return fmt.Errorf("%w: %q", ErrUnknownProviderLabel, label)
		}
		if normalized == ProviderCloudflare && creds.AccountID == "" {
			return ErrMissingAccountID
		}
	}

	if c.HasPostgres() {
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if !validSSLModes[c.PostgresSSLMode] {
			return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
		}
	}

	if c.DefaultTopK < 1 || c.DefaultTopK > 50 {
		return fmt.Errorf("%w: %d (expected 1-50)", ErrInvalidTopK, c.DefaultTopK)
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("%w: %g (expected 0-1)", ErrInvalidThreshold, c.DefaultThreshold)
	}

	return nil
}

// ValidateServe performs the additional checks required before starting the
// HTTP server: at least one provider must be configured.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.ConfiguredProviders()) == 0 {
		return ErrNoProviders
	}
	return nil
}
