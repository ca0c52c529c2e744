package chat

import (
	"strings"

	"github.com/geoffsee/open-gsio/internal/backend"
)

// toolCallBuilder accumulates fragmented tool-call deltas into a complete
// call. ID, name, and argument JSON may each arrive split across several
// fragments for the same index and are concatenated in arrival order.
type toolCallBuilder struct {
	id        strings.Builder
	name      strings.Builder
	arguments strings.Builder
}

// accumulateToolCallDelta merges one delta into the running builder list,
// growing the list when a new index appears.
func accumulateToolCallDelta(builders []toolCallBuilder, delta backend.ToolCallDelta) []toolCallBuilder {
	for len(builders) <= delta.Index {
		builders = append(builders, toolCallBuilder{})
	}

	b := &builders[delta.Index]
	if delta.ID != "" {
		b.id.WriteString(delta.ID)
	}
	if delta.Function.Name != "" {
		b.name.WriteString(delta.Function.Name)
	}
	if delta.Function.Arguments != "" {
		b.arguments.WriteString(delta.Function.Arguments)
	}
	return builders
}

// finalizeToolCalls converts builders into completed calls, dropping
// entries that never received a name.
func finalizeToolCalls(builders []toolCallBuilder) []backend.ToolCall {
	var calls []backend.ToolCall
	for i := range builders {
		b := &builders[i]
		if b.name.Len() == 0 {
			continue
		}
		calls = append(calls, backend.ToolCall{
			ID:   b.id.String(),
			Type: "function",
			Function: backend.ToolFunction{
				Name:      b.name.String(),
				Arguments: b.arguments.String(),
			},
		})
	}
	return calls
}
