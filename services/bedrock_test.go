package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"stock-analyst/config"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// mockBedrockClient implements bedrockClient for testing
type mockBedrockClient struct {
	invokeFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockBedrockClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.invokeFunc(ctx, params, optFns...)
}

func newTestBedrockService(client bedrockClient) *BedrockService {
	return newBedrockServiceWithClient(client, "test-model", 4096, "bedrock-2023-05-31")
}

func claudeReplies(body string) *mockBedrockClient {
	return &mockBedrockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			return &bedrockruntime.InvokeModelOutput{Body: []byte(body)}, nil
		},
	}
}

func TestClaudeRequest_Serialization(t *testing.T) {
	req := ClaudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		Messages:         []ClaudeMessage{{Role: RoleUser, Content: textBlock("Hello")}},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal ClaudeRequest: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal to map: %v", err)
	}
	if _, exists := raw["system"]; exists {
		t.Error("Empty system field should be omitted from JSON")
	}
	if _, exists := raw["tools"]; exists {
		t.Error("Empty tools should be omitted from JSON")
	}
	if !strings.Contains(string(data), `"content":[{"type":"text","text":"Hello"}]`) {
		t.Errorf("unexpected message encoding: %s", data)
	}
}

func TestNewBedrockService_MissingConfig(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.Bedrock.Region = ""

	_, err := NewBedrockService(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "BEDROCK_MODEL_ID") {
		t.Errorf("expected missing configuration error, got %v", err)
	}
}

func TestBedrockInvokeWithPrompt_Success(t *testing.T) {
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	var sent ClaudeRequest
	client := &mockBedrockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			if err := json.Unmarshal(params.Body, &sent); err != nil {
				t.Fatalf("request body is not JSON: %v", err)
			}
			return &bedrockruntime.InvokeModelOutput{
				Body: []byte(`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":"there"}]}`),
			}, nil
		},
	}

	result, err := newTestBedrockService(client).InvokeWithPrompt(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Hello\nthere" {
		t.Errorf("result = %q, want both text blocks", result)
	}
	if sent.AnthropicVersion != "bedrock-2023-05-31" || sent.MaxTokens != 4096 {
		t.Errorf("request envelope not filled: %+v", sent)
	}
}

func TestBedrockInvokeWithPrompt_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  *mockBedrockClient
		wantMsg string
	}{
		{
			name: "api error",
			client: &mockBedrockClient{
				invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
					return nil, errors.New("throttled")
				},
			},
			wantMsg: "failed to invoke model",
		},
		{"invalid body", claudeReplies("not json"), "failed to unmarshal response"},
		{"empty content", claudeReplies(`{"content":[]}`), "empty response from model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

			_, err := newTestBedrockService(tt.client).InvokeWithPrompt(context.Background(), "system", "user")
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.wantMsg, err)
			}
			if !errors.Is(err, ErrTransientCall) {
				t.Errorf("expected ErrTransientCall, got %v", err)
			}
		})
	}
}

func TestBedrockInvokeStructured(t *testing.T) {
	t.Run("fenced json", func(t *testing.T) {
		SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))
		body := `{"content":[{"type":"text","text":"Here you go:\n` + "```json" + `\n{\"stop_loss\": 181.2}\n` + "```" + `"}]}`

		var result struct {
			StopLoss float64 `json:"stop_loss" validate:"gt=0"`
		}
		if err := newTestBedrockService(claudeReplies(body)).InvokeStructured(context.Background(), "system", "user", &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.StopLoss != 181.2 {
			t.Errorf("StopLoss = %v, want 181.2", result.StopLoss)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

		var result struct {
			StopLoss float64 `json:"stop_loss" validate:"gt=0"`
		}
		err := newTestBedrockService(claudeReplies(`{"content":[{"type":"text","text":"{\"stop_loss\": -1}"}]}`)).
			InvokeStructured(context.Background(), "system", "user", &result)
		if !errors.Is(err, ErrSchemaValidation) {
			t.Errorf("expected ErrSchemaValidation, got %v", err)
		}
	})
}

func TestBedrockChatWithTools(t *testing.T) {
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	var sent ClaudeRequest
	client := &mockBedrockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			_ = json.Unmarshal(params.Body, &sent)
			return &bedrockruntime.InvokeModelOutput{
				Body: []byte(`{"stop_reason":"tool_use","content":[
					{"type":"text","text":"Let me check."},
					{"type":"tool_use","id":"tu_1","name":"get_news_sentiment","input":{"ticker":"MSFT"}}
				]}`),
			}, nil
		},
	}

	messages := []ChatMessage{
		{Role: RoleUser, Content: "analyze MSFT"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "a", Name: "get_stock_summary", Arguments: `{"ticker":"MSFT"}`},
			{ID: "b", Name: "get_news_sentiment", Arguments: `not json`},
		}},
		{Role: RoleTool, ToolCallID: "a", Content: "summary"},
		{Role: RoleTool, ToolCallID: "b", Content: "sentiment"},
	}
	tools := []ToolDefinition{{Name: "get_news_sentiment", Description: "news", Parameters: map[string]any{"type": "object"}}}

	resp, err := newTestBedrockService(client).ChatWithTools(context.Background(), "system", messages, tools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tu_1" || resp.ToolCalls[0].Arguments != `{"ticker":"MSFT"}` {
		t.Errorf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.Content != "Let me check." {
		t.Errorf("Content = %q", resp.Content)
	}

	if len(sent.Tools) != 1 || sent.Tools[0].InputSchema["type"] != "object" {
		t.Errorf("tools not forwarded: %+v", sent.Tools)
	}
	// user, assistant with two tool_use blocks, one user turn holding both results
	if len(sent.Messages) != 3 {
		t.Fatalf("expected 3 Claude turns, got %d", len(sent.Messages))
	}
	if got := len(sent.Messages[2].Content); got != 2 {
		t.Errorf("tool results should share one turn, got %d blocks", got)
	}
	if string(sent.Messages[1].Content[1].Input) != "{}" {
		t.Errorf("invalid tool arguments should be replaced by {}, got %s", sent.Messages[1].Content[1].Input)
	}
}
