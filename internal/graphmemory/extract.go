package graphmemory

import (
	"regexp"
	"strings"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// DecomposeTurns splits a session's messages into turns, one per message,
// assigning monotonic turn_index. A simple one-message-per-turn policy is
// used rather than pairing user/assistant messages, since tool-result
// messages interleave unpredictably and each still carries entities worth
// indexing on its own.
func DecomposeTurns(sessionKey string, messages []coretypes.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for i, m := range messages {
		turns = append(turns, Turn{
			SessionKey: sessionKey,
			TurnIndex:  i,
			Role:       m.Role,
			Content:    m.Content,
			Summary:    summarize(m.Content),
			TokenCount: len(strings.Fields(m.Content)),
		})
	}
	return turns
}

func summarize(content string) string {
	const maxLen = 200
	content = strings.TrimSpace(content)
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen]
}

var (
	pathPattern       = regexp.MustCompile(`(?:[./][\w./-]*\.\w{1,8})|(?:/[\w./-]{3,})`)
	identifierPattern = regexp.MustCompile(`\b[a-z][a-zA-Z0-9]*(?:_[a-z0-9]+)+\b|\b[a-z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]*\b`)
	errorPattern      = regexp.MustCompile(`(?i)\b\w*(?:Error|Exception|panic|failed|failure)\w*\b`)
	configKeyPattern  = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`)
	knownTools        = map[string]bool{}
)

// RegisterToolName allows the Tool Registry to contribute known tool
// names so EntityExtractor recognizes tool mentions. Safe for concurrent
// registration at startup.
func RegisterToolName(name string) { knownTools[name] = true }

// EntityExtractor emits {name, kind, relevance} entities for a piece of
// content via heuristics over identifiers, path-like strings, tool
// names, and error snippets.
func EntityExtractor(content string) []ExtractedEntity {
	var out []ExtractedEntity
	seen := map[string]bool{}
	add := func(name string, kind EntityKind, relevance float64) {
		key := string(kind) + ":" + name
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, ExtractedEntity{Name: name, Kind: kind, Relevance: relevance})
	}

	for _, p := range pathPattern.FindAllString(content, -1) {
		add(p, EntityFile, 0.8)
	}
	for _, e := range errorPattern.FindAllString(content, -1) {
		add(strings.ToLower(e), EntityError, 0.9)
	}
	for _, id := range identifierPattern.FindAllString(content, -1) {
		kind := EntityFunc
		if knownTools[id] {
			kind = EntityTool
		}
		add(id, kind, 0.6)
	}
	for _, c := range configKeyPattern.FindAllString(content, -1) {
		if len(c) > 2 {
			add(c, EntityConfig, 0.5)
		}
	}
	for word := range knownTools {
		if strings.Contains(content, word) {
			add(word, EntityTool, 0.85)
		}
	}
	return out
}
