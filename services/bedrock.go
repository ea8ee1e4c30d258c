package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appconfig "stock-analyst/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockClient is the subset of the Bedrock runtime client used here (for testing)
type bedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockService handles communication with AWS Bedrock for Claude models
type BedrockService struct {
	client           bedrockClient
	model            string
	maxTokens        int
	anthropicVersion string
}

// ClaudeRequest represents the request format for Claude models via Bedrock
type ClaudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []ClaudeMessage `json:"messages"`
	Tools            []ClaudeTool    `json:"tools,omitempty"`
}

// ClaudeMessage represents a message in the Claude conversation
type ClaudeMessage struct {
	Role    string        `json:"role"`
	Content []ClaudeBlock `json:"content"`
}

// ClaudeBlock is one content block: text, tool_use or tool_result
type ClaudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// ClaudeTool declares a tool the model may use
type ClaudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ClaudeResponse represents the response from Claude models
type ClaudeResponse struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Role       string        `json:"role"`
	Content    []ClaudeBlock `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// text concatenates the text blocks of a response
func (r *ClaudeResponse) text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func textBlock(s string) []ClaudeBlock {
	return []ClaudeBlock{{Type: "text", Text: s}}
}

// NewBedrockService creates a new BedrockService instance
func NewBedrockService(ctx context.Context, cfg *appconfig.Config) (*BedrockService, error) {
	if !cfg.HasBedrock() {
		return nil, fmt.Errorf("AWS_REGION and BEDROCK_MODEL_ID are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Bedrock.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return newBedrockServiceWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg.Bedrock.ModelID,
		cfg.Bedrock.MaxTokens, cfg.Bedrock.AnthropicVersion), nil
}

// newBedrockServiceWithClient creates a BedrockService with a custom client (for testing)
func newBedrockServiceWithClient(client bedrockClient, model string, maxTokens int, anthropicVersion string) *BedrockService {
	return &BedrockService{
		client:           client,
		model:            model,
		maxTokens:        maxTokens,
		anthropicVersion: anthropicVersion,
	}
}

// invoke sends one request through the breaker and records metrics under op
func (s *BedrockService) invoke(ctx context.Context, op string, request ClaudeRequest) (*ClaudeResponse, error) {
	request.AnthropicVersion = s.anthropicVersion
	request.MaxTokens = s.maxTokens

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return track(ctx, BreakerBedrock, op, func() (*ClaudeResponse, error) {
		output, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(s.model),
			Body:        reqBody,
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to invoke model: %w: %w", ErrTransientCall, err)
		}

		var response ClaudeResponse
		if err := json.Unmarshal(output.Body, &response); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w: %w", ErrTransientCall, err)
		}

		if len(response.Content) == 0 {
			return nil, fmt.Errorf("empty response from model: %w", ErrTransientCall)
		}
		return &response, nil
	})
}

// InvokeWithPrompt sends a prompt to Claude and returns the response text
func (s *BedrockService) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	response, err := s.invoke(ctx, "invoke", ClaudeRequest{
		System:   systemPrompt,
		Messages: []ClaudeMessage{{Role: RoleUser, Content: textBlock(userPrompt)}},
	})
	if err != nil {
		return "", err
	}
	return response.text(), nil
}

// InvokeStructured sends a prompt and decodes the JSON answer into result
func (s *BedrockService) InvokeStructured(ctx context.Context, systemPrompt, userPrompt string, result any) error {
	response, err := s.invoke(ctx, "structured", ClaudeRequest{
		System:   systemPrompt + jsonInstruction,
		Messages: []ClaudeMessage{{Role: RoleUser, Content: textBlock(userPrompt)}},
	})
	if err != nil {
		return err
	}
	return DecodeStructured(response.text(), result)
}

// ChatWithTools runs one turn of a conversation in which Claude may use tools
func (s *BedrockService) ChatWithTools(ctx context.Context, systemPrompt string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error) {
	request := ClaudeRequest{
		System:   systemPrompt,
		Messages: toClaudeMessages(messages),
	}
	for _, tool := range tools {
		request.Tools = append(request.Tools, ClaudeTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	response, err := s.invoke(ctx, "chat", request)
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{Content: response.text()}
	for _, block := range response.Content {
		if block.Type == "tool_use" {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	return resp, nil
}

// toClaudeMessages maps a conversation onto Claude turns.
// Tool results are user turns, and consecutive results share one turn.
func toClaudeMessages(messages []ChatMessage) []ClaudeMessage {
	out := make([]ClaudeMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, ClaudeMessage{Role: RoleUser, Content: textBlock(msg.Content)})
		case RoleAssistant:
			var blocks []ClaudeBlock
			if msg.Content != "" {
				blocks = append(blocks, textBlock(msg.Content)...)
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, ClaudeBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
			}
			out = append(out, ClaudeMessage{Role: RoleAssistant, Content: blocks})
		case RoleTool:
			block := ClaudeBlock{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content}
			if n := len(out); n > 0 && out[n-1].Role == RoleUser && out[n-1].Content[0].Type == "tool_result" {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, ClaudeMessage{Role: RoleUser, Content: []ClaudeBlock{block}})
		}
	}
	return out
}
