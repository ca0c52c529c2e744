package backend

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/geoffsee/open-gsio/internal/provider"
)

func TestMessageUnmarshalStringContent(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Role != RoleUser || m.Content != "hello" {
		t.Errorf("got %+v, want role=user content=hello", m)
	}
}

func TestMessageUnmarshalContentParts(t *testing.T) {
	raw := `{"role":"user","content":[{"type":"text","text":"part one "},{"type":"image_url","text":"skipped"},{"type":"text","text":"part two"}]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Content != "part one part two" {
		t.Errorf("content = %q, want text parts flattened", m.Content)
	}
}

func TestMessageUnmarshalToolFields(t *testing.T) {
	raw := `{"role":"tool","content":"result body","tool_call_id":"call_1"}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Role != RoleTool || m.ToolCallID != "call_1" || m.Content != "result body" {
		t.Errorf("got %+v", m)
	}
}

func TestMessageUnmarshalRejectsObjectContent(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":{"nested":true}}`), &m); err == nil {
		t.Error("expected error for object content")
	}
}

func TestChunkFinishReason(t *testing.T) {
	if got := ContentChunk("hi").FinishReason(); got != "" {
		t.Errorf("content chunk finish reason = %q, want empty", got)
	}
	if got := FinishChunk(FinishStop).FinishReason(); got != FinishStop {
		t.Errorf("finish chunk reason = %q, want %q", got, FinishStop)
	}
}

type stubAdapter struct {
	family string
	models []provider.Model
}

func (s *stubAdapter) Family() string                              { return s.family }
func (s *stubAdapter) NewClient(p provider.Provider) *Client       { return NewClient(p.Endpoint) }
func (s *stubAdapter) BuildParams(req Request) (any, error)        { return req, nil }
func (s *stubAdapter) Open(context.Context, *Client, any) (*Stream, error) {
	return nil, nil
}
func (s *stubAdapter) ListModels(context.Context, *Client) ([]provider.Model, error) {
	return s.models, nil
}

func TestRegistryForFamily(t *testing.T) {
	reg := NewRegistry(&stubAdapter{family: "openai"})

	if _, err := reg.ForFamily("openai"); err != nil {
		t.Fatalf("ForFamily(openai): %v", err)
	}
	if _, err := reg.ForFamily("unknown"); err == nil {
		t.Error("ForFamily(unknown) should fail")
	}
}

func TestListerStampsProviderOwnership(t *testing.T) {
	reg := NewRegistry(&stubAdapter{
		family: "openai",
		models: []provider.Model{{ID: "model-a"}, {ID: "model-b"}},
	})
	lister := NewLister(reg)

	models, err := lister.ListModels(context.Background(), provider.Provider{
		Name:   "groq",
		Family: "openai",
	})
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	for _, m := range models {
		if m.Provider != "groq" || m.Family != "openai" {
			t.Errorf("model %q ownership = %q/%q, want groq/openai", m.ID, m.Provider, m.Family)
		}
	}
}
