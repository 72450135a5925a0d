package providers

import (
	"context"

	"google.golang.org/genai"

	"github.com/cratos-ai/orchestrator/internal/llmrouter"
)

// GeminiConfig configures the Gemini provider adapter.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	SmallModel   string
}

// GeminiProvider implements llmrouter.Provider for Google's Gemini
// models, wiring a fourth concrete backend into the multi-provider
// facade (the donor's own go.mod already required google.golang.org/genai).
type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiProvider constructs a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{
		SupportsTools:  true,
		SupportsVision: true,
		DefaultModel:   p.cfg.DefaultModel,
		SmallerVariant: p.cfg.SmallModel,
	}
}

func (p *GeminiProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, err
	}

	resp := &llmrouter.Response{Model: model, Provider: p.Name(), Content: result.Text()}
	if result.UsageMetadata != nil {
		resp.Usage = llmrouter.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(result.Candidates) > 0 {
		resp.FinishReason = string(result.Candidates[0].FinishReason)
	}
	return resp, nil
}
