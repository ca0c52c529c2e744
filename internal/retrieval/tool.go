package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/log"
)

// ToolName is the function name offered to the model.
const ToolName = "knowledge_search"

// Tool actions. analyze_query classifies without searching; the search
// variants differ only in name, kept as aliases because models trained on
// different tool vocabularies ask for different ones.
const (
	ActionAnalyzeQuery    = "analyze_query"
	ActionSearchKnowledge = "search_knowledge"
	ActionGetContext      = "get_context"
	ActionSemanticSearch  = "semantic_search"
	ActionListCollections = "list_collections"
)

// SearchInput is the argument shape of the knowledge_search tool. The
// numeric knobs are optional; zero values fall back to the tool's
// configured defaults.
type SearchInput struct {
	Action              string  `json:"action"`
	Query               string  `json:"query,omitempty"`
	CollectionName      string  `json:"collection_name,omitempty"`
	TopK                int     `json:"top_k,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	ContextWindow       int     `json:"context_window,omitempty"`
}

// SearchStore is the store surface the tool uses, defined by the consumer
// so tests can substitute a fake.
type SearchStore interface {
	Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]Result, error)
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
}

// Tool executes knowledge_search invocations against the store.
type Tool struct {
	store       SearchStore
	collection  string
	collections []string
	topK        int
	threshold   float64
	logger      log.Logger
}

// NewTool creates a tool bound to a default collection, result budget and
// similarity threshold.
func NewTool(store SearchStore, collection string, topK int, threshold float64, logger log.Logger) *Tool {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Tool{
		store:       store,
		collection:  collection,
		collections: []string{collection},
		topK:        topK,
		threshold:   threshold,
		logger:      logger,
	}
}

// SetCollections widens the collection_name values advertised in the tool
// schema beyond the default collection.
func (t *Tool) SetCollections(names []string) {
	if len(names) > 0 {
		t.collections = names
	}
}

// Definition builds the function declaration offered to backends.
func (t *Tool) Definition() backend.ToolDefinition {
	return backend.ToolDefinition{
		Name: ToolName,
		Description: "Analyze a user query and search the knowledge base for relevant context. " +
			"Use analyze_query first to decide whether retrieval is needed, then " +
			"search_knowledge to fetch supporting documents.",
		Schema: searchInputSchema(t.collections),
	}
}

// searchInputSchema derives the JSON schema from SearchInput and constrains
// the action and collection_name fields to the known sets.
func searchInputSchema(collections []string) map[string]any {
	schema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		// SearchInput is a fixed struct; derivation only fails on a
		// programming error.
		panic(fmt.Sprintf("retrieval: derive tool schema: %v", err))
	}

	if action, ok := schema.Properties["action"]; ok {
		action.Enum = []any{
			ActionAnalyzeQuery,
			ActionSearchKnowledge,
			ActionGetContext,
			ActionSemanticSearch,
			ActionListCollections,
		}
		action.Description = "Operation to perform against the knowledge base."
	}
	if query, ok := schema.Properties["query"]; ok {
		query.Description = "Natural language query. Required for every action except list_collections."
	}
	if name, ok := schema.Properties["collection_name"]; ok {
		name.Enum = make([]any, len(collections))
		for i, c := range collections {
			name.Enum[i] = c
		}
		name.Description = "Collection to search. Defaults to the primary collection."
	}
	if topK, ok := schema.Properties["top_k"]; ok {
		topK.Description = "Maximum number of documents to return."
	}
	if threshold, ok := schema.Properties["similarity_threshold"]; ok {
		threshold.Description = "Minimum similarity score (0-1) a document must reach to be included."
	}
	if window, ok := schema.Properties["context_window"]; ok {
		window.Description = "For get_context, number of documents to include as context."
	}
	schema.Required = []string{"action"}

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("retrieval: marshal tool schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("retrieval: decode tool schema: %v", err))
	}
	return out
}

// Name returns the tool's function name.
func (t *Tool) Name() string {
	return ToolName
}

// Execute runs one tool invocation. arguments must be a JSON-encoded
// SearchInput. The second return reports whether the model should be
// offered the tool again next iteration (a query classified as needing
// retrieval has not been answered yet).
func (t *Tool) Execute(ctx context.Context, arguments string) (string, bool, error) {
	var input SearchInput
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return "", false, fmt.Errorf("invalid tool arguments: %w", err)
	}

	switch input.Action {
	case ActionAnalyzeQuery:
		return t.analyzeQuery(input)
	case ActionSearchKnowledge, ActionGetContext, ActionSemanticSearch:
		return t.search(ctx, input)
	case ActionListCollections:
		return t.listCollections(ctx)
	case "":
		return "", false, fmt.Errorf("tool arguments missing required field %q", "action")
	default:
		return "", false, fmt.Errorf("unknown tool action %q", input.Action)
	}
}

func (t *Tool) analyzeQuery(input SearchInput) (string, bool, error) {
	if input.Query == "" {
		return "", false, fmt.Errorf("analyze_query requires a query")
	}

	classification := ClassifyQuery(input.Query)
	t.logger.Debug("classified query",
		"category", classification.Category, "needs_retrieval", classification.NeedsRetrieval,
		"confidence", classification.Confidence)

	result, err := json.Marshal(struct {
		Classification
		Query string `json:"query"`
	}{Classification: classification, Query: input.Query})
	if err != nil {
		return "", false, fmt.Errorf("marshal classification: %w", err)
	}
	return string(result), classification.NeedsRetrieval, nil
}

func (t *Tool) search(ctx context.Context, input SearchInput) (string, bool, error) {
	if input.Query == "" {
		return "", false, fmt.Errorf("%s requires a query", input.Action)
	}

	collection := input.CollectionName
	if collection == "" {
		collection = t.collection
	}
	topK := input.TopK
	if topK <= 0 {
		topK = t.topK
	}
	if input.Action == ActionGetContext && input.ContextWindow > 0 {
		topK = input.ContextWindow
	}
	threshold := input.SimilarityThreshold
	if threshold <= 0 {
		threshold = t.threshold
	}

	results, err := t.store.Search(ctx, input.Query, collection, topK, threshold)
	if err != nil {
		return "", false, fmt.Errorf("knowledge search: %w", err)
	}

	if len(results) == 0 {
		return fmt.Sprintf("No relevant documents found in collection %q.", collection), false, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant document(s) in collection %q:\n", len(results), collection)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] (similarity %.2f) %s\n%s\n", i+1, r.Similarity, r.ID, r.Content)
	}
	return b.String(), false, nil
}

func (t *Tool) listCollections(ctx context.Context) (string, bool, error) {
	infos, err := t.store.ListCollections(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list collections: %w", err)
	}
	if len(infos) == 0 {
		return "The knowledge base has no collections yet.", false, nil
	}

	var b strings.Builder
	b.WriteString("Available collections:\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "- %s (%d documents)\n", info.Name, info.Documents)
	}
	return b.String(), false, nil
}
