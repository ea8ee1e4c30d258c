package agents

import (
	"context"
	"fmt"
	"strings"

	"stock-analyst/observability"
	"stock-analyst/services"
)

// Tool is a function the model may call during a tool loop.
// Run receives the raw JSON arguments and returns the text handed back to the model.
type Tool struct {
	Definition services.ToolDefinition
	Run        func(ctx context.Context, arguments string) (string, error)
}

// loopState is the position of a tool loop
type loopState int

const (
	awaitingModel loopState = iota
	toolRequested
	toolExecuted
	finished
)

func (s loopState) String() string {
	switch s {
	case awaitingModel:
		return "AWAITING_MODEL"
	case toolRequested:
		return "TOOL_REQUESTED"
	case toolExecuted:
		return "TOOL_EXECUTED"
	case finished:
		return "FINISHED"
	}
	return "UNKNOWN"
}

// loopResult is what a tool loop leaves behind
type loopResult struct {
	Text       string
	Iterations int
	Messages   []services.ChatMessage
}

// assistantText joins every assistant turn, for callers that salvage an unfinished loop
func (r loopResult) assistantText() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == services.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// runToolLoop alternates model turns and tool executions until the model answers without
// requesting a tool. It makes at most maxIterations model calls and returns ErrToolLoopExhausted
// when the last allowed call still asked for tools. Tool failures are reported to the model
// as the tool result rather than aborting the loop.
func runToolLoop(ctx context.Context, llm LLMService, stage, systemPrompt string, messages []services.ChatMessage, tools []Tool, maxIterations int) (loopResult, error) {
	defs := make([]services.ToolDefinition, len(tools))
	byName := make(map[string]Tool, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition
		byName[t.Definition.Name] = t
	}

	res := loopResult{Messages: messages}
	var resp *services.ChatResponse
	state := awaitingModel

	for {
		switch state {
		case awaitingModel:
			if res.Iterations >= maxIterations {
				observability.GetMetrics().RecordToolIterations(stage, res.Iterations)
				return res, fmt.Errorf("%w (%d model calls)", ErrToolLoopExhausted, res.Iterations)
			}
			res.Iterations++

			var err error
			resp, err = llm.ChatWithTools(ctx, systemPrompt, res.Messages, defs)
			if err != nil {
				observability.GetMetrics().RecordToolIterations(stage, res.Iterations)
				return res, fmt.Errorf("model call %d failed: %w", res.Iterations, err)
			}
			res.Messages = append(res.Messages, services.ChatMessage{
				Role:      services.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			if resp.HasToolCalls() {
				state = toolRequested
			} else {
				state = finished
			}

		case toolRequested:
			for _, call := range resp.ToolCalls {
				res.Messages = append(res.Messages, services.ChatMessage{
					Role:       services.RoleTool,
					Content:    runTool(ctx, byName, call),
					ToolCallID: call.ID,
				})
			}
			state = toolExecuted

		case toolExecuted:
			observability.Debug("tool results appended",
				"stage", stage,
				"iteration", res.Iterations,
				"messages", len(res.Messages))
			state = awaitingModel

		case finished:
			observability.GetMetrics().RecordToolIterations(stage, res.Iterations)
			res.Text = resp.Content
			return res, nil
		}
	}
}

func runTool(ctx context.Context, tools map[string]Tool, call services.ToolCall) string {
	observability.GetMetrics().RecordToolCall(call.Name)

	tool, ok := tools[call.Name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}
	out, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		observability.Warn("tool call failed",
			"tool", call.Name,
			"error", err)
		return "error: " + err.Error()
	}
	return out
}
