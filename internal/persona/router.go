package persona

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cratos-ai/orchestrator/internal/planner"
)

// ClassificationPrompt is the default system prompt sent to the planner
// for persona classification, instructing the model to return exactly
// one configured persona name.
const ClassificationPrompt = "Classify the user's message into exactly one of the configured personas. Respond with only the persona name, nothing else."

// Router classifies input into a persona and routes it to a matching
// skill, composing the effective system prompt from both.
type Router struct {
	Planner        *planner.Planner
	presets        map[string]Preset
	primary        string
	skills         []Skill
	defaultPrompt  string
	classifyPrompt string
	log            *slog.Logger
}

// New constructs a Router. primary names the persona used when
// classification is skipped or its output is unrecognized.
func New(p *planner.Planner, presets []Preset, primary string, skills []Skill, defaultSystemPrompt string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	m := make(map[string]Preset, len(presets))
	for _, preset := range presets {
		m[strings.ToLower(preset.Name)] = preset
		for _, alias := range preset.Aliases {
			m[strings.ToLower(alias)] = preset
		}
	}
	return &Router{
		Planner:        p,
		presets:        m,
		primary:        primary,
		skills:         skills,
		defaultPrompt:  defaultSystemPrompt,
		classifyPrompt: ClassificationPrompt,
		log:            log.With("component", "persona_router"),
	}
}

// RoutePersona classifies input into a configured persona name. Inputs
// with fewer than 3 whitespace-separated tokens skip classification
// entirely and return the primary persona, matching route_by_llm's
// short-input fast path. A classification error or an unrecognized
// label also falls back to the primary persona, with a warning logged.
func (r *Router) RoutePersona(ctx context.Context, input string) string {
	if len(strings.Fields(input)) < 3 {
		return r.primary
	}

	raw, err := r.Planner.Classify(ctx, r.classifyPrompt, input)
	if err != nil {
		r.log.Warn("persona classification failed, defaulting to primary", "error", err)
		return r.primary
	}

	label := strings.ToLower(strings.Trim(strings.TrimSpace(raw), `"'`))
	if preset, ok := r.presets[label]; ok {
		return preset.Name
	}

	r.log.Warn("persona classification returned unknown label, defaulting to primary", "raw", raw)
	return r.primary
}

// Preset returns the configured preset for name, or the primary
// persona's preset if name is unrecognized.
func (r *Router) Preset(name string) Preset {
	if preset, ok := r.presets[strings.ToLower(name)]; ok {
		return preset
	}
	return r.presets[strings.ToLower(r.primary)]
}

// Frame renders a persona's self-introduction framing line, e.g.
// "[Cratos Lv3] ". Returns "" if the preset has no framing template.
func (p Preset) Frame() string {
	if p.FramingTemplate == "" {
		return ""
	}
	return strings.NewReplacer("%name%", p.Name).Replace(p.FramingTemplate)
}

// CombineSystemPrompts applies the exact composition precedence:
//
//	effective = explicitOverride
//	          ?? combine(personaPrompt, skillHint)
//	where combine(p, s)    = p + s       (both present)
//	      combine(p, "")   = p            (persona only)
//	      combine("", s)   = routerDefault + s  (skill only)
//	      combine("", "")  = ""           (neither; caller treats as "no override")
func (r *Router) CombineSystemPrompts(explicitOverride, personaPrompt, skillHint string) string {
	if explicitOverride != "" {
		return explicitOverride
	}
	switch {
	case personaPrompt != "" && skillHint != "":
		return personaPrompt + skillHint
	case personaPrompt != "":
		return personaPrompt
	case skillHint != "":
		return r.defaultPrompt + skillHint
	default:
		return ""
	}
}
