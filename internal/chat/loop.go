package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/kaptinlin/jsonrepair"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/log"
)

// MaxToolIterations caps how many model turns a single stream may spend on
// tool calls before it is forced to answer.
const MaxToolIterations = 5

// toolNotice is streamed to the client while a tool call executes, so the
// connection carries visible progress instead of going quiet.
const toolNotice = "\n\n*Searching the knowledge base...*\n\n"

// limitNotice is injected into the conversation when the iteration cap is
// reached, before the final no-tools turn.
const limitNotice = "Tool call limit reached. Answer now using the information gathered so far; do not request further tool calls."

// Tool is one function the model may invoke mid-stream. Execute's second
// return reports whether the tool should remain available on the next
// iteration (query analysis that concluded retrieval is still pending).
type Tool interface {
	Definition() backend.ToolDefinition
	Execute(ctx context.Context, arguments string) (result string, needsMore bool, err error)
}

// EmitFunc receives normalized chunks for delivery to the client. An error
// return aborts the loop (client gone).
type EmitFunc func(backend.Chunk) error

// Loop drives the tool-call conversation for one stream: it relays model
// output to the client, intercepts tool-call turns, executes the tool and
// feeds results back until the model produces a final answer.
type Loop struct {
	adapter backend.Adapter
	client  *backend.Client
	tool    Tool
	logger  log.Logger
}

// NewLoop creates a loop. tool may be nil, in which case every turn streams
// straight through.
func NewLoop(adapter backend.Adapter, client *backend.Client, tool Tool, logger log.Logger) *Loop {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Loop{adapter: adapter, client: client, tool: tool, logger: logger}
}

// turnResult is what one streamed model turn produced.
type turnResult struct {
	content   string
	toolCalls []backend.ToolCall
	finish    string
}

// Run executes the loop until the model finishes or the iteration cap
// forces completion. Every emitted stream ends with a finish-reason chunk.
func (l *Loop) Run(ctx context.Context, req backend.Request, emit EmitFunc) error {
	messages := slices.Clone(req.Messages)
	executed := make(map[string]bool)
	retrievalNeeded := false

	for iteration := 0; iteration < MaxToolIterations; iteration++ {
		turn := req
		turn.Messages = messages
		turn.Tools = nil
		// The tool is offered on the opening turn, and again only while a
		// prior analysis says retrieval is still pending.
		if l.tool != nil && (iteration == 0 || retrievalNeeded) {
			turn.Tools = []backend.ToolDefinition{l.tool.Definition()}
		}

		result, err := l.streamTurn(ctx, turn, emit)
		if err != nil {
			return err
		}

		if result.finish != backend.FinishToolCalls || len(result.toolCalls) == 0 {
			return finishStream(result.finish, emit)
		}

		// Calls that already ran this conversation are filtered out, and at
		// most one fresh call runs per iteration; extras are dropped and the
		// model re-requests them next turn if it still wants them.
		var call backend.ToolCall
		chosen := false
		for _, c := range result.toolCalls {
			key := c.Function.Name + ":" + c.Function.Arguments
			if executed[key] {
				l.logger.Debug("suppressing duplicate tool call", "name", c.Function.Name)
				continue
			}
			executed[key] = true
			call = c
			chosen = true
			break
		}
		if !chosen {
			// Every requested call already ran. There is nothing new to
			// execute, so the stream ends here instead of burning another
			// model turn.
			return finishStream(result.finish, emit)
		}
		if len(result.toolCalls) > 1 {
			l.logger.Debug("dropping extra tool calls", "count", len(result.toolCalls)-1)
		}

		messages = append(messages, backend.Message{
			Role:      backend.RoleAssistant,
			Content:   result.content,
			ToolCalls: []backend.ToolCall{call},
		})

		if err := emit(backend.ContentChunk(toolNotice)); err != nil {
			return err
		}

		toolResult, needsMore, execErr := l.executeCall(ctx, call)
		retrievalNeeded = needsMore
		if execErr != nil {
			// Tool failures are absorbed into the conversation so the model
			// can recover or answer without the tool.
			l.logger.Warn("tool execution failed", "name", call.Function.Name, "error", execErr)
			toolResult = fmt.Sprintf("Tool execution failed: %v", execErr)
		}

		messages = append(messages, backend.Message{
			Role:       backend.RoleTool,
			ToolCallID: call.ID,
			Content:    toolResult,
		})
	}

	// Cap reached: one final turn with the tool withdrawn.
	l.logger.Debug("tool iteration cap reached, forcing final answer")
	messages = append(messages, backend.Message{Role: backend.RoleUser, Content: limitNotice})

	final := req
	final.Messages = messages
	final.Tools = nil

	result, err := l.streamTurn(ctx, final, emit)
	if err != nil {
		return err
	}
	return finishStream(result.finish, emit)
}

// finishStream guarantees the client sees a terminal finish-reason chunk.
// Content and stop/length finishes were already forwarded inline; anything
// else (including a model that somehow still answered with a tool_calls
// finish) is closed out with a synthetic stop.
func finishStream(finish string, emit EmitFunc) error {
	switch finish {
	case backend.FinishStop, backend.FinishLength:
		return nil
	default:
		return emit(backend.FinishChunk(backend.FinishStop))
	}
}

// streamTurn runs one model turn, forwarding content to the client while
// collecting tool-call fragments. Tool-call deltas and tool_calls finish
// frames are held back; the client only ever sees content and final
// stop/length frames.
func (l *Loop) streamTurn(ctx context.Context, req backend.Request, emit EmitFunc) (turnResult, error) {
	params, err := l.adapter.BuildParams(req)
	if err != nil {
		return turnResult{}, fmt.Errorf("build request params: %w", err)
	}

	stream, err := l.adapter.Open(ctx, l.client, params)
	if err != nil {
		return turnResult{}, err
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			l.logger.Debug("stream close failed", "error", closeErr)
		}
	}()

	var result turnResult
	var builders []toolCallBuilder

	for {
		if ctx.Err() != nil {
			return turnResult{}, ctx.Err()
		}

		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return turnResult{}, err
		}

		forward := backend.Chunk{}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				result.content += choice.Delta.Content
			}
			for _, delta := range choice.Delta.ToolCalls {
				builders = accumulateToolCallDelta(builders, delta)
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				result.finish = *choice.FinishReason
			}

			if filtered, ok := clientChoice(choice); ok {
				forward.Choices = append(forward.Choices, filtered)
			}
		}

		if len(forward.Choices) > 0 {
			if err := emit(forward); err != nil {
				return turnResult{}, err
			}
		}
	}

	result.toolCalls = finalizeToolCalls(builders)
	return result, nil
}

// clientChoice strips tool-call internals from a choice, reporting whether
// anything client-visible remains.
func clientChoice(choice backend.Choice) (backend.Choice, bool) {
	out := backend.Choice{Delta: backend.Delta{
		Role:    choice.Delta.Role,
		Content: choice.Delta.Content,
	}}
	if choice.FinishReason != nil {
		switch *choice.FinishReason {
		case backend.FinishStop, backend.FinishLength:
			out.FinishReason = choice.FinishReason
		}
	}
	return out, out.Delta.Content != "" || out.FinishReason != nil
}

// executeCall validates the call's argument JSON, attempting a repair pass
// on malformed payloads before giving up, then runs the tool.
func (l *Loop) executeCall(ctx context.Context, call backend.ToolCall) (string, bool, error) {
	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		repaired, err := jsonrepair.JSONRepair(args)
		if err != nil {
			return "", false, fmt.Errorf("unparseable tool arguments: %w", err)
		}
		l.logger.Debug("repaired malformed tool arguments", "name", call.Function.Name)
		args = repaired
	}
	return l.tool.Execute(ctx, args)
}
