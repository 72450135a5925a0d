// Package providers adapts concrete LLM SDKs to the llmrouter.Provider
// capability set, grounded on the donor's internal/agent/providers
// package (message/tool conversion idiom), reworked from streaming
// chunks to the uniform non-streaming Response the router expects.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/llmrouter"
)

// AnthropicConfig configures the Anthropic provider adapter.
type AnthropicConfig struct {
	APIKey       string
	DefaultModel string
	SmallModel   string // auto-downgrade target on context-window errors
}

// AnthropicProvider implements llmrouter.Provider for Claude models.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicProvider constructs an Anthropic-backed provider.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicProvider{client: client, cfg: cfg}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{
		SupportsTools:  true,
		SupportsVision: true,
		DefaultModel:   p.cfg.DefaultModel,
		SmallerVariant: p.cfg.SmallModel,
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	var httpResp *http.Response
	msg, err := p.client.Messages.New(ctx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		return nil, err
	}

	resp := &llmrouter.Response{
		Model:        model,
		Provider:     p.Name(),
		FinishReason: string(msg.StopReason),
		Usage: llmrouter.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Quota: quotaFromHeaders(p.Name(), httpResp),
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, llmrouter.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: string(variant.Input),
			})
		}
	}
	return resp, nil
}

// quotaFromHeaders parses Anthropic's anthropic-ratelimit-* response
// headers into a QuotaState. Returns nil if resp is nil or carries none
// of the headers.
func quotaFromHeaders(provider string, resp *http.Response) *coretypes.QuotaState {
	if resp == nil {
		return nil
	}
	reqLimit, hasReqLimit := parseHeaderInt64(resp.Header, "anthropic-ratelimit-requests-limit")
	reqRemaining, hasReqRemaining := parseHeaderInt64(resp.Header, "anthropic-ratelimit-requests-remaining")
	tokLimit, hasTokLimit := parseHeaderInt64(resp.Header, "anthropic-ratelimit-tokens-limit")
	tokRemaining, hasTokRemaining := parseHeaderInt64(resp.Header, "anthropic-ratelimit-tokens-remaining")
	if !hasReqLimit && !hasReqRemaining && !hasTokLimit && !hasTokRemaining {
		return nil
	}

	var resetAt *time.Time
	if reset := resp.Header.Get("anthropic-ratelimit-tokens-reset"); reset != "" {
		if t, ok := llmrouter.ParseResetHeader(reset, time.Now()); ok {
			resetAt = &t
		}
	}

	q := llmrouter.BuildQuotaState(provider, nil, nil, nil, nil, resetAt)
	if hasReqLimit {
		q.RequestsLimit = &reqLimit
	}
	if hasReqRemaining {
		q.RequestsRemaining = &reqRemaining
	}
	if hasTokLimit {
		q.TokensLimit = &tokLimit
	}
	if hasTokRemaining {
		q.TokensRemaining = &tokRemaining
	}
	return q
}

func parseHeaderInt64(h http.Header, key string) (int64, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func convertMessages(messages []llmrouter.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "user":
			if m.ToolCallID != "" {
				out = append(out, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.ToolIsError)))
			} else {
				blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
				for _, img := range m.Images {
					if img.Data == "" {
						continue
					}
					blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Data))
				}
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input json.RawMessage = []byte(tc.Arguments)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out, nil
}

func convertTools(tools []llmrouter.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, err
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out, nil
}
