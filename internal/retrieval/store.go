// Package retrieval implements the knowledge base behind the model's
// retrieval tool: query classification, Gemini embeddings and vector
// similarity search over PostgreSQL + pgvector.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/geoffsee/open-gsio/internal/log"
)

const (
	// MaxTopK bounds result counts regardless of what callers ask for.
	MaxTopK = 50

	// MaxSearchQueryLen truncates oversized queries before embedding.
	MaxSearchQueryLen = 8192

	embedTimeout = 30 * time.Second
)

// Querier is the subset of pgx operations the store needs.
// *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Document is one entry in the knowledge base.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Result pairs a document with its cosine similarity to the query, in [0, 1].
type Result struct {
	Document
	Similarity float64 `json:"similarity"`
}

// Store manages knowledge documents with vector search.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder Embedder
	logger   log.Logger
}

// NewStore creates a knowledge store.
func NewStore(db Querier, embedder Embedder, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	values, err := s.embedder.Embed(embedCtx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(values), nil
}

// Add upserts a document, embedding its content first.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.Content == "" {
		return fmt.Errorf("document content is required")
	}
	if doc.Collection == "" {
		return fmt.Errorf("document collection is required")
	}

	vec, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	const query = `
		INSERT INTO documents (id, collection, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET collection = EXCLUDED.collection,
		    content = EXCLUDED.content,
		    metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding,
		    updated_at = now()`

	if _, err := s.db.Exec(ctx, query, doc.ID, doc.Collection, doc.Content, metadataJSON, vec); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "collection", doc.Collection)
	return nil
}

// Search finds documents in the collection similar to the query, keeping
// only results at or above the similarity threshold, ordered by similarity
// descending.
func (s *Store) Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]Result, error) {
	if query == "" {
		return []Result{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if len(query) > MaxSearchQueryLen {
		query = query[:MaxSearchQueryLen]
	}
	if strings.ContainsRune(query, 0) {
		return []Result{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, collection, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM documents
		 WHERE collection = $2
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, collection, threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var r Result
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.Collection, &r.Content, &metadataJSON, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				s.logger.Warn("malformed document metadata", "id", r.ID, "error", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}

	s.logger.Debug("searched documents",
		"collection", collection, "top_k", topK, "threshold", threshold, "results", len(results))
	return results, nil
}

// Count returns the number of documents in a collection, or in the whole
// store when collection is empty.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	var err error
	if collection == "" {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE collection = $1`, collection).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// CollectionInfo summarizes one collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Documents int64  `json:"documents"`
}

// ListCollections returns every collection with its document count,
// ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.Query(ctx,
		`SELECT collection, count(*) FROM documents GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	infos := []CollectionInfo{}
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Documents); err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading collection rows: %w", err)
	}
	return infos, nil
}

// Delete removes a document by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	return nil
}
