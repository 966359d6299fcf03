package tools

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxResponseBytes = 50 * 1024 * 1024
	maxReturnedChars = 10000

	filteredMarker  = "[FILTERED_CONTENT]"
	truncatedMarker = "[RESPONSE_TRUNCATED_FOR_SECURITY]"
)

// responseContentAllowed is the content-type allow-list for API responses:
// text or structured data only.
var responseContentAllowed = []string{
	"text/",
	"application/json",
	"application/xml",
	"application/javascript",
	"application/x-www-form-urlencoded",
}

// maliciousPatterns mark a response as unsafe; the body is never returned to
// the model.
var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)\bsubprocess\.`),
	regexp.MustCompile(`(?i)__import__`),
	regexp.MustCompile(`(?i)\.(exe|bat|cmd|sh|ps1)\b`),
}

// injectionPatterns are prompt-injection markers. Matches are replaced, not
// fatal: the sanitized body still reaches the model.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)new\s+instructions\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*`),
	regexp.MustCompile(`(?is)\[INST\].*?\[/INST\]`),
	regexp.MustCompile(`<\|[^|]*\|>`),
}

// UnsafeResponseError reports a response rejected by the security scan.
type UnsafeResponseError struct {
	Reason string
}

func (e *UnsafeResponseError) Error() string {
	return fmt.Sprintf("response failed security scan: %s", e.Reason)
}

// ScanResponse validates size and content type, rejects malicious content
// and sanitizes prompt-injection markers. It returns the text safe to hand
// to the model.
func ScanResponse(body []byte, contentType string) (string, error) {
	if len(body) > maxResponseBytes {
		return "", &UnsafeResponseError{Reason: fmt.Sprintf("response too large (%d bytes)", len(body))}
	}

	if !contentTypeAllowed(contentType) {
		return "", &UnsafeResponseError{Reason: fmt.Sprintf("content type %q not allowed", contentType)}
	}

	text := string(body)
	for _, pattern := range maliciousPatterns {
		if pattern.MatchString(text) {
			return "", &UnsafeResponseError{Reason: fmt.Sprintf("malicious pattern detected: %s", pattern.String())}
		}
	}

	return Sanitize(text), nil
}

// CountInjections reports how many prompt-injection markers the text carries.
func CountInjections(text string) int {
	n := 0
	for _, pattern := range injectionPatterns {
		n += len(pattern.FindAllStringIndex(text, -1))
	}
	return n
}

// Sanitize replaces prompt-injection markers and truncates overlong text.
// Idempotent: sanitizing already-sanitized text is a no-op.
func Sanitize(text string) string {
	for _, pattern := range injectionPatterns {
		text = pattern.ReplaceAllString(text, filteredMarker)
	}
	if len(text) > maxReturnedChars {
		text = text[:maxReturnedChars] + "\n" + truncatedMarker
	}
	return text
}

func contentTypeAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" {
		// Missing content type is treated as text; the pattern scan still
		// applies.
		return true
	}
	for _, allowed := range responseContentAllowed {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}
