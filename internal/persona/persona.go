// Package persona implements the Persona & Skill Router: LLM-based
// persona classification with a short-input skip, keyword/regex/intent
// skill matching with a strict acceptance threshold, and the exact
// system-prompt composition precedence from original_source's routing.rs.
package persona

import (
	"regexp"
)

// MaxPatternLength bounds a skill's regex patterns to guard against
// catastrophic backtracking on attacker-controlled input.
const MaxPatternLength = 200

// Preset is one persona's voice/policy package: a base system prompt, a
// proficiency level, and a framing template for the assistant's
// self-introduction line (e.g. "[Name Lv3] ...").
type Preset struct {
	Name            string   `yaml:"name"`
	BasePrompt      string   `yaml:"base_prompt"`
	Level           int      `yaml:"level"`
	FramingTemplate string   `yaml:"framing_template"` // e.g. "[%s Lv%d] "
	Aliases         []string `yaml:"aliases"`
}

// Skill is a named capability the Skill Router can surface as a system
// prompt hint when an input matches its trigger.
type Skill struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Regexes     []string `yaml:"regexes"`
	IntentTags  []string `yaml:"intent_tags"`

	compiled []*regexp.Regexp
}

// compilePatterns compiles s.Regexes once, skipping (not erroring on) any
// pattern longer than MaxPatternLength or that fails to compile, since a
// single malformed skill definition should not break routing for every
// other skill.
func (s *Skill) compilePatterns() {
	if s.compiled != nil {
		return
	}
	s.compiled = make([]*regexp.Regexp, 0, len(s.Regexes))
	for _, pattern := range s.Regexes {
		if len(pattern) > MaxPatternLength {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		s.compiled = append(s.compiled, re)
	}
}

// Match is the result of matching an input against one Skill.
type Match struct {
	Name        string
	Description string
	Score       float64
}
