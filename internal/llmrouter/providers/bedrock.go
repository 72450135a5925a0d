package providers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/cratos-ai/orchestrator/internal/llmrouter"
)

// BedrockConfig configures the Bedrock provider adapter.
type BedrockConfig struct {
	Client       *bedrockruntime.Client
	DefaultModel string // e.g. "anthropic.claude-3-5-sonnet-20241022-v2:0"
	SmallModel   string
}

// BedrockProvider implements llmrouter.Provider over the Bedrock
// Converse API, giving the facade a second Claude/Llama/Titan-capable
// backend distinct from the direct Anthropic SDK path.
type BedrockProvider struct {
	cfg BedrockConfig
}

// NewBedrockProvider constructs a Bedrock-backed provider.
func NewBedrockProvider(cfg BedrockConfig) *BedrockProvider {
	return &BedrockProvider{cfg: cfg}
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{
		SupportsTools:  true,
		SupportsVision: false,
		DefaultModel:   p.cfg.DefaultModel,
		SmallerVariant: p.cfg.SmallModel,
	}
}

func (p *BedrockProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	var messages []types.Message
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		mt := int32(req.MaxTokens)
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: &mt}
	}

	out, err := p.cfg.Client.Converse(ctx, input)
	if err != nil {
		return nil, err
	}

	resp := &llmrouter.Response{Model: model, Provider: p.Name()}
	if out.Usage != nil {
		resp.Usage = llmrouter.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				resp.Content += tb.Value
			}
		}
	}
	resp.FinishReason = string(out.StopReason)
	return resp, nil
}
