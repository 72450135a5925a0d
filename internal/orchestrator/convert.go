package orchestrator

import (
	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/llmrouter"
	"github.com/cratos-ai/orchestrator/internal/toolrunner"
)

func toLLMMessages(messages []coretypes.Message) []llmrouter.Message {
	out := make([]llmrouter.Message, 0, len(messages))
	for _, m := range messages {
		lm := llmrouter.Message{Role: string(m.Role), Content: m.Content}
		for _, img := range m.Images {
			lm.Images = append(lm.Images, llmrouter.Image{MimeType: img.MimeType, Data: img.Data, URL: img.URL})
		}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llmrouter.ToolCall{
				ID:               tc.ID,
				Name:             tc.Name,
				Arguments:        tc.Arguments,
				ThoughtSignature: tc.ThoughtSignature,
			})
		}
		if m.ToolResult != nil {
			lm.Content = m.ToolResult.Output
			lm.ToolCallID = m.ToolResult.ToolCallID
			lm.ToolIsError = m.ToolResult.IsError
		}
		out = append(out, lm)
	}
	return out
}

func toLLMToolSpecs(defs []toolrunner.Definition) []llmrouter.ToolSpec {
	out := make([]llmrouter.ToolSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, llmrouter.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}
