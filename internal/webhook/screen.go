package webhook

import "strings"

// denyPatterns are crude markers of an attempt to redirect the agent's
// instructions via webhook field content. This is intentionally a small,
// conservative scanner, not a classifier — screening heuristics are
// under-specified by the source (spec §9 open questions); the mandate is
// graceful degradation on failure, not precision here.
var denyPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard the above",
	"system prompt",
	"you are now",
	"new instructions:",
}

// DefaultScreener redacts a value if it contains any deny pattern
// case-insensitively.
func DefaultScreener(value string) (string, bool) {
	lower := strings.ToLower(value)
	for _, p := range denyPatterns {
		if strings.Contains(lower, p) {
			return "[redacted: flagged content]", true
		}
	}
	return value, false
}
