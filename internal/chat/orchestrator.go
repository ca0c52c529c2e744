package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/log"
	"github.com/geoffsee/open-gsio/internal/provider"
	"github.com/geoffsee/open-gsio/internal/stream"
)

// openingDelay paces the very first frame so clients render a brief
// "thinking" beat before content arrives. UX only, not a correctness
// requirement.
const openingDelay = 200 * time.Millisecond

// Orchestrator coordinates the two-phase stream lifecycle: Submit parks a
// validated request in the registry under a fresh id, Materialize later
// replays it as a live stream with at-most-one active consumer per id.
type Orchestrator struct {
	registry stream.Registry
	backends *backend.Registry
	catalog  *provider.Catalog
	tool     Tool
	ttl      time.Duration
	logger   log.Logger

	mu     sync.Mutex
	active map[string]struct{}

	// pace is a test hook for the opening delay.
	pace time.Duration
}

// NewOrchestrator creates an orchestrator. tool may be nil to disable the
// retrieval tool entirely.
func NewOrchestrator(registry stream.Registry, backends *backend.Registry, catalog *provider.Catalog, tool Tool, ttl time.Duration, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		backends: backends,
		catalog:  catalog,
		tool:     tool,
		ttl:      ttl,
		logger:   logger,
		active:   make(map[string]struct{}),
		pace:     openingDelay,
	}
}

// Submit validates and parks a request, returning the stream id and the
// relative URL the client should GET to materialize it. The model must be
// resolvable through the catalog; unknown models fail loudly here rather
// than surfacing mid-stream.
func (o *Orchestrator) Submit(ctx context.Context, req StreamRequest) (string, string, error) {
	if err := req.Validate(); err != nil {
		return "", "", err
	}
	if _, err := o.catalog.ModelProvider(ctx, req.Model); err != nil {
		return "", "", err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("marshal stream request: %w", err)
	}

	id := uuid.NewString()
	if err := o.registry.Put(ctx, id, payload, o.ttl); err != nil {
		return "", "", fmt.Errorf("register stream request: %w", err)
	}

	o.logger.Debug("stream submitted", "stream_id", id, "model", req.Model)
	return id, "/streams/" + id, nil
}

// Materialize turns a parked request into a live stream, sending normalized
// chunks through emit. It returns ErrStreamActive when the id already has a
// consumer and ErrStreamNotFound for unknown or expired ids.
//
// The active entry is released through a deferred finalizer guarded to run
// exactly once, on every exit path including client disconnect and panic
// during production.
func (o *Orchestrator) Materialize(ctx context.Context, id string, emit EmitFunc) error {
	o.mu.Lock()
	if _, busy := o.active[id]; busy {
		o.mu.Unlock()
		return ErrStreamActive
	}
	o.active[id] = struct{}{}
	o.mu.Unlock()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
	}
	defer release()

	payload, err := o.registry.Get(ctx, id)
	if errors.Is(err, stream.ErrNotFound) {
		return ErrStreamNotFound
	}
	if err != nil {
		return fmt.Errorf("load stream request %s: %w", id, err)
	}

	var req StreamRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode stream request %s: %w", id, err)
	}

	p, err := o.catalog.ModelProvider(ctx, req.Model)
	if err != nil {
		return err
	}
	adapter, err := o.backends.ForFamily(p.Family)
	if err != nil {
		return err
	}
	client := adapter.NewClient(p)

	if err := o.openStream(ctx, emit); err != nil {
		return err
	}

	loop := NewLoop(adapter, client, o.tool, o.logger)
	runErr := loop.Run(ctx, backend.Request{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Messages:     req.Messages,
		MaxTokens:    req.MaxTokens,
	}, emit)
	if runErr != nil {
		return runErr
	}

	// Ids are single-use; a completed stream cannot be replayed.
	if err := o.registry.Delete(ctx, id); err != nil {
		o.logger.Warn("failed to delete consumed stream request", "stream_id", id, "error", err)
	}
	o.logger.Debug("stream completed", "stream_id", id, "model", req.Model)
	return nil
}

// openStream paces briefly, then emits the placeholder assistant frame that
// starts the visible response.
func (o *Orchestrator) openStream(ctx context.Context, emit EmitFunc) error {
	if o.pace > 0 {
		select {
		case <-time.After(o.pace):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return emit(backend.Chunk{Choices: []backend.Choice{{
		Delta: backend.Delta{Role: backend.RoleAssistant},
	}}})
}
