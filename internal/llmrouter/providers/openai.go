package providers

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/cratos-ai/orchestrator/internal/llmrouter"
)

// OpenAIConfig configures the OpenAI provider adapter.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // empty uses the default OpenAI endpoint
	DefaultModel string
	SmallModel   string
}

// OpenAIProvider implements llmrouter.Provider for GPT models, grounded
// on the donor's internal/agent/providers/openai.go message-conversion
// idiom but returning a single Response instead of a streamed channel.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIProvider constructs an OpenAI-backed provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{
		SupportsTools:  true,
		SupportsVision: true,
		DefaultModel:   p.cfg.DefaultModel,
		SmallerVariant: p.cfg.SmallModel,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		oaiMsg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if m.ToolCallID != "" {
			oaiMsg.Role = openai.ChatMessageRoleTool
			oaiMsg.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, oaiMsg)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			chatReq.Tools = append(chatReq.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}
	choice := resp.Choices[0]
	out := &llmrouter.Response{
		Model:        model,
		Provider:     p.Name(),
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llmrouter.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llmrouter.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
