package orchestrator

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/persona"
)

func newSkillTestOrchestrator(autoDetect bool) (*Orchestrator, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	skills := []persona.Skill{{Name: "deploy", Description: "deploys services", Keywords: []string{"deploy", "rollout"}}}
	router := persona.New(nil, nil, "default", skills, "You are a helpful assistant.", log)

	cfg := DefaultConfig()
	cfg.AutoSkillDetection = autoDetect

	o := New(nil, nil, nil, nil, router, nil, nil, cfg, log)
	return o, &buf
}

func TestDetectSkillLogsMatchWhenEnabled(t *testing.T) {
	o, buf := newSkillTestOrchestrator(true)
	exec := &coretypes.Execution{
		Input:    coretypes.ProcessInput{Text: "please deploy the rollout"},
		Response: "done",
	}

	o.detectSkill("sess-1", exec)

	out := buf.String()
	if !strings.Contains(out, "auto-skill detection matched a skill post-execution") {
		t.Fatalf("expected a skill-match log line, got: %s", out)
	}
	if !strings.Contains(out, "deploy") {
		t.Fatalf("expected the matched skill name in the log, got: %s", out)
	}
}

func TestDetectSkillSilentWhenNoMatch(t *testing.T) {
	o, buf := newSkillTestOrchestrator(true)
	exec := &coretypes.Execution{
		Input:    coretypes.ProcessInput{Text: "what's the weather like"},
		Response: "sunny",
	}

	o.detectSkill("sess-1", exec)

	if strings.Contains(buf.String(), "auto-skill detection") {
		t.Fatalf("expected no skill-match log line, got: %s", buf.String())
	}
}

func TestDetectSkillNoopWithoutPersonaRouter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	o := New(nil, nil, nil, nil, nil, nil, nil, DefaultConfig(), log)

	o.detectSkill("sess-1", &coretypes.Execution{
		Input:    coretypes.ProcessInput{Text: "please deploy the rollout"},
		Response: "done",
	})

	if strings.Contains(buf.String(), "auto-skill detection") {
		t.Fatalf("expected no skill-match log line without a Persona router, got: %s", buf.String())
	}
}
