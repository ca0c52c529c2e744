package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/geoffsee/open-gsio/internal/log"
)

// Querier is the subset of pgx operations the registry needs. Interfaces
// are defined by the consumer; *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the durable Registry over the stream_requests table.
// Expiry is wall-clock based and enforced on read, so entries survive
// process restarts but never outlive their TTL.
type Postgres struct {
	db     Querier
	logger log.Logger
}

// NewPostgres creates a registry over the given querier.
func NewPostgres(db Querier, logger log.Logger) *Postgres {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

// Put upserts the payload under id with expiry now+ttl.
func (p *Postgres) Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	const query = `
		INSERT INTO stream_requests (key, payload, expires_at)
		VALUES ($1, $2, now() + $3)
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`

	if _, err := p.db.Exec(ctx, query, keyPrefix+id, payload, ttl); err != nil {
		return fmt.Errorf("put stream request %s: %w", id, err)
	}
	return nil
}

// Get returns the payload for id. Expired rows are deleted in the same
// statement, so an expired entry reads exactly like an absent one.
func (p *Postgres) Get(ctx context.Context, id string) ([]byte, error) {
	const query = `
		SELECT payload FROM stream_requests
		WHERE key = $1 AND expires_at > now()`

	var payload []byte
	err := p.db.QueryRow(ctx, query, keyPrefix+id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		// Reap the row if it exists but expired. Best effort; the sweep
		// in Cleanup catches anything missed here.
		if _, delErr := p.db.Exec(ctx,
			`DELETE FROM stream_requests WHERE key = $1 AND expires_at <= now()`,
			keyPrefix+id); delErr != nil {
			p.logger.Debug("expired entry cleanup failed", "id", id, "error", delErr)
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stream request %s: %w", id, err)
	}
	return payload, nil
}

// Delete removes the entry for id.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx,
		`DELETE FROM stream_requests WHERE key = $1`, keyPrefix+id); err != nil {
		return fmt.Errorf("delete stream request %s: %w", id, err)
	}
	return nil
}

// Cleanup removes every expired row and returns how many were deleted.
// Intended for a periodic background sweep.
func (p *Postgres) Cleanup(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM stream_requests WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup stream requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
