package retrieval

import (
	"math"
	"testing"
)

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		wantCategory   string
		wantRetrieval  bool
		wantConfidence float64
	}{
		{
			name:           "plain factual question",
			query:          "What is AI?",
			wantCategory:   CategoryFactual,
			wantRetrieval:  true,
			wantConfidence: 0.6,
		},
		{
			name:           "greeting",
			query:          "Hello, how are you today?",
			wantCategory:   CategoryConversational,
			wantRetrieval:  false,
			wantConfidence: 0.8,
		},
		{
			name:           "definition request",
			query:          "Define photosynthesis and explain the light reactions",
			wantCategory:   CategoryFactual,
			wantRetrieval:  true,
			wantConfidence: 0.7,
		},
		{
			name:           "creative prompt",
			query:          "Write a poem about the sea",
			wantCategory:   CategoryCreative,
			wantRetrieval:  false,
			wantConfidence: 0.7,
		},
		{
			name:           "creative story",
			query:          "Imagine a story about a dragon who learns to code",
			wantCategory:   CategoryCreative,
			wantRetrieval:  false,
			wantConfidence: 0.7,
		},
		{
			name:           "no keywords falls back to analytical",
			query:          "Compare the two proposals",
			wantCategory:   CategoryAnalytical,
			wantRetrieval:  true,
			wantConfidence: 0.5,
		},
		{
			name:           "history question",
			query:          "Tell me about the history of Rome",
			wantCategory:   CategoryFactual,
			wantRetrieval:  true,
			wantConfidence: 0.6,
		},
		{
			name:           "single conversational keyword is not enough",
			query:          "thanks",
			wantCategory:   CategoryAnalytical,
			wantRetrieval:  true,
			wantConfidence: 0.5,
		},
		{
			name:           "case insensitive",
			query:          "WHAT IS THE CAPITAL OF FRANCE",
			wantCategory:   CategoryFactual,
			wantRetrieval:  true,
			wantConfidence: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyQuery(tt.query)
			if got.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", got.Category, tt.wantCategory)
			}
			if got.NeedsRetrieval != tt.wantRetrieval {
				t.Errorf("needs_retrieval = %v, want %v", got.NeedsRetrieval, tt.wantRetrieval)
			}
			if math.Abs(got.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.Reasoning == "" {
				t.Error("reasoning is empty")
			}
		})
	}
}

func TestClassifyQueryConfidenceCapped(t *testing.T) {
	got := ClassifyQuery("what who when where why which define explain")
	if got.Category != CategoryFactual {
		t.Fatalf("category = %q", got.Category)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want cap at 0.9", got.Confidence)
	}
}
