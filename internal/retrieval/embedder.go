package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// VectorDimension is the embedding width stored in the documents table.
// Gemini embeddings are truncated to 768 via OutputDimensionality
// (Matryoshka Representation Learning keeps the leading dimensions useful).
const VectorDimension int32 = 768

// Embedder turns text into a fixed-width vector. Defined here so the store
// can be tested with a deterministic implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiEmbedder embeds text through the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates an embedder for the given model
// (e.g. gemini-embedding-001).
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required for embeddings")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed generates a VectorDimension-wide embedding for the text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := VectorDimension
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
