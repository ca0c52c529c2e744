package retrieval_test

import (
	"context"
	"testing"

	"github.com/geoffsee/open-gsio/internal/retrieval"
	"github.com/geoffsee/open-gsio/internal/testutil"
)

func TestStoreSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := retrieval.NewStore(tdb.Pool, testutil.StaticEmbedder{}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	docs := []retrieval.Document{
		{ID: "go-1", Collection: "knowledge", Content: "go is a statically typed compiled language",
			Metadata: map[string]any{"topic": "go"}},
		{ID: "go-2", Collection: "knowledge", Content: "goroutines make concurrent programming simple in go"},
		{ID: "cooking-1", Collection: "knowledge", Content: "simmer the onions until translucent"},
		{ID: "other-1", Collection: "archive", Content: "go is a statically typed compiled language"},
	}
	for _, doc := range docs {
		if err := store.Add(ctx, doc); err != nil {
			t.Fatalf("Add(%s): %v", doc.ID, err)
		}
	}

	t.Run("finds similar documents in collection", func(t *testing.T) {
		results, err := store.Search(ctx, "go is a statically typed compiled language", "knowledge", 5, 0.5)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("no results")
		}
		if results[0].ID != "go-1" {
			t.Errorf("top result = %q, want go-1", results[0].ID)
		}
		if results[0].Similarity < 0.99 {
			t.Errorf("exact match similarity = %v", results[0].Similarity)
		}
		for _, r := range results {
			if r.Collection != "knowledge" {
				t.Errorf("result %q leaked from collection %q", r.ID, r.Collection)
			}
		}
	})

	t.Run("threshold filters weak matches", func(t *testing.T) {
		results, err := store.Search(ctx, "go is a statically typed compiled language", "knowledge", 5, 0.99)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("got %d results above 0.99, want only the exact match", len(results))
		}
	})

	t.Run("metadata round trips", func(t *testing.T) {
		results, err := store.Search(ctx, "go is a statically typed compiled language", "knowledge", 1, 0.9)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].Metadata["topic"] != "go" {
			t.Errorf("metadata = %v", results[0].Metadata)
		}
	})

	t.Run("upsert replaces content", func(t *testing.T) {
		doc := retrieval.Document{ID: "go-1", Collection: "knowledge",
			Content: "go ships a garbage collector tuned for low latency"}
		if err := store.Add(ctx, doc); err != nil {
			t.Fatalf("Add: %v", err)
		}
		count, err := store.Count(ctx, "knowledge")
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count != 3 {
			t.Errorf("count = %d, want 3 (upsert must not duplicate)", count)
		}
	})

	t.Run("list collections", func(t *testing.T) {
		infos, err := store.ListCollections(ctx)
		if err != nil {
			t.Fatalf("ListCollections: %v", err)
		}
		if len(infos) != 2 {
			t.Fatalf("collections = %+v", infos)
		}
		if infos[0].Name != "archive" || infos[1].Name != "knowledge" {
			t.Errorf("collections not sorted: %+v", infos)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete(ctx, "cooking-1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		count, _ := store.Count(ctx, "knowledge")
		if count != 2 {
			t.Errorf("count after delete = %d", count)
		}
	})

	t.Run("empty query returns nothing", func(t *testing.T) {
		results, err := store.Search(ctx, "", "knowledge", 5, 0)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("results = %d", len(results))
		}
	})
}
