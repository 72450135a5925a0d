// Package secrets provides a central masker for key-shaped, private-key, and
// long base64 substrings, applied to tool outputs, provider error messages,
// and event payloads before persistence, eventing, or transport.
package secrets

import (
	"regexp"
)

const redactionText = "[REDACTED]"

// patterns mirrors the donor's builtinSecretPatterns (internal/agent/tool_result_guard.go)
// plus a long-base64-blob detector required by the output-sanitization spec
// (blobs >= 44 chars, the length of a base64-encoded 32-byte key).
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w\-.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`[A-Za-z0-9+/]{44,}={0,2}`),
}

// Mask replaces every detected secret-shaped substring in s with a fixed
// redaction token. Mask is idempotent: re-masking an already-masked string
// is a no-op, since the redaction token itself matches none of the patterns.
func Mask(s string) string {
	if s == "" {
		return s
	}
	out := s
	for _, re := range patterns {
		out = re.ReplaceAllString(out, redactionText)
	}
	return out
}
