package persona

import (
	"context"
	"testing"

	"github.com/cratos-ai/orchestrator/internal/llmrouter"
	"github.com/cratos-ai/orchestrator/internal/planner"
)

type scriptedProvider struct {
	response string
	err      error
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{DefaultModel: "m"}
}
func (p *scriptedProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llmrouter.Response{Content: p.response, Model: req.Model, Provider: "scripted"}, nil
}

func newRouterWithResponse(t *testing.T, response string) *Router {
	t.Helper()
	r := llmrouter.NewRouter("scripted", llmrouter.DefaultCircuitConfig())
	r.Register(&scriptedProvider{response: response})
	p := planner.New(r, "scripted", "m")
	presets := []Preset{
		{Name: "cratos"},
		{Name: "analyst", Aliases: []string{"data-analyst"}},
	}
	return New(p, presets, "cratos", nil, "default system prompt", nil)
}

func TestRoutePersonaSkipsClassificationUnderThreeTokens(t *testing.T) {
	r := newRouterWithResponse(t, "analyst")
	got := r.RoutePersona(context.Background(), "hi there")
	if got != "cratos" {
		t.Fatalf("expected short input to default to primary persona, got %q", got)
	}
}

func TestRoutePersonaUsesClassifiedLabel(t *testing.T) {
	r := newRouterWithResponse(t, `"Analyst"`)
	got := r.RoutePersona(context.Background(), "please analyze this quarterly sales dataset")
	if got != "analyst" {
		t.Fatalf("expected analyst persona, got %q", got)
	}
}

func TestRoutePersonaDefaultsOnUnknownLabel(t *testing.T) {
	r := newRouterWithResponse(t, "nonexistent-persona")
	got := r.RoutePersona(context.Background(), "please analyze this quarterly sales dataset")
	if got != "cratos" {
		t.Fatalf("expected default to primary on unknown label, got %q", got)
	}
}

func TestRouteSkillRejectsScoreAtThreshold(t *testing.T) {
	r := &Router{skills: []Skill{{Name: "weather", Keywords: []string{"forecast"}}}}
	_, found := r.RouteSkill("what is the forecast", nil, nil)
	// one keyword hit = 0.3, which is well under the 0.7 threshold
	if found {
		t.Fatalf("expected single keyword hit not to clear threshold")
	}
}

func TestRouteSkillAcceptsAboveThreshold(t *testing.T) {
	r := &Router{skills: []Skill{{
		Name:        "weather",
		Description: "reports current weather",
		Keywords:    []string{"forecast"},
		IntentTags:  []string{"weather_query"},
	}}}
	match, found := r.RouteSkill("what is the forecast", map[string]bool{"weather_query": true}, nil)
	if !found {
		t.Fatalf("expected keyword+intent combination to clear threshold")
	}
	if match.Name != "weather" {
		t.Fatalf("unexpected match: %+v", match)
	}
}

func TestRouteSkillProficiencyBonusPushesOverThreshold(t *testing.T) {
	r := &Router{skills: []Skill{{Name: "weather", Keywords: []string{"forecast"}, Regexes: []string{"temp"}}}}
	// 0.3 (keyword) + 0.4 (regex) = 0.7, not over threshold without bonus
	_, found := r.RouteSkill("forecast temp", nil, nil)
	if found {
		t.Fatalf("expected 0.7 exactly to be rejected (strict >)")
	}

	match, found := r.RouteSkill("forecast temp", nil, map[string]float64{"weather": 0.9})
	if !found {
		t.Fatalf("expected proficiency bonus to push score over threshold")
	}
	if match.Score <= 0.7 {
		t.Fatalf("expected boosted score above 0.7, got %v", match.Score)
	}
}

func TestCombineSystemPromptsPrecedence(t *testing.T) {
	r := newRouterWithResponse(t, "cratos")

	if got := r.CombineSystemPrompts("override", "persona", "skill"); got != "override" {
		t.Fatalf("expected explicit override to win, got %q", got)
	}
	if got := r.CombineSystemPrompts("", "persona", "skill"); got != "personaskill" {
		t.Fatalf("expected persona+skill concatenation, got %q", got)
	}
	if got := r.CombineSystemPrompts("", "persona", ""); got != "persona" {
		t.Fatalf("expected persona-only, got %q", got)
	}
	if got := r.CombineSystemPrompts("", "", "skill"); got != "default system promptskill" {
		t.Fatalf("expected router default + skill, got %q", got)
	}
	if got := r.CombineSystemPrompts("", "", ""); got != "" {
		t.Fatalf("expected empty result when nothing present, got %q", got)
	}
}
