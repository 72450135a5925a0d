package orchestrator

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// extractArtifacts scans a successful tool output for the known shapes:
// {screenshot}, {image}, and {artifact: {name, mime_type, data}}.
// Outputs matching none of these shapes yield no artifacts.
func extractArtifacts(output string) []coretypes.Artifact {
	var shape struct {
		Screenshot string `json:"screenshot"`
		Image      string `json:"image"`
		Artifact   *struct {
			Name     string `json:"name"`
			MimeType string `json:"mime_type"`
			Data     string `json:"data"`
		} `json:"artifact"`
	}
	if err := json.Unmarshal([]byte(output), &shape); err != nil {
		return nil
	}

	var out []coretypes.Artifact
	if shape.Screenshot != "" {
		out = append(out, coretypes.Artifact{ID: uuid.NewString(), Type: "screenshot", Data: shape.Screenshot, MimeType: "image/png"})
	}
	if shape.Image != "" {
		out = append(out, coretypes.Artifact{ID: uuid.NewString(), Type: "image", Data: shape.Image, MimeType: "image/png"})
	}
	if shape.Artifact != nil {
		out = append(out, coretypes.Artifact{
			ID:       uuid.NewString(),
			Type:     "artifact",
			Name:     shape.Artifact.Name,
			MimeType: shape.Artifact.MimeType,
			Data:     shape.Artifact.Data,
		})
	}
	return out
}
