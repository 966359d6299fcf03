package executor

import (
	"regexp"
	"strings"
)

var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes chain-of-thought blocks emitted by reasoning models
// before the output is persisted or chained. Applying it to already-filtered
// text is a no-op.
func StripThinkTags(s string) string {
	return strings.TrimSpace(thinkBlockPattern.ReplaceAllString(s, ""))
}
