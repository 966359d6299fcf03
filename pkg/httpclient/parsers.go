package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicRateLimitHeaders extracts rate limit hints from Anthropic
// response headers.
func ParseAnthropicRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := parseRetryAfter(headers)

	resetHeaders := []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	}
	for _, header := range resetHeaders {
		if resetStr := headers.Get(header); resetStr != "" {
			if resetTime, err := time.Parse(time.RFC3339, resetStr); err == nil {
				info.ResetTime = resetTime.Unix()
				break
			}
		}
	}

	if remaining := headers.Get("anthropic-ratelimit-requests-remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}

	return info
}

// ParseOpenAIRateLimitHeaders extracts rate limit hints from OpenAI-style
// response headers (also used by Ollama's OpenAI-compatible endpoint).
func ParseOpenAIRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := parseRetryAfter(headers)

	if resetStr := headers.Get("x-ratelimit-reset-requests"); resetStr != "" {
		if d, err := time.ParseDuration(resetStr); err == nil && info.RetryAfter == 0 {
			info.RetryAfter = d
		}
	}

	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}

	return info
}

func parseRetryAfter(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}
	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return info
}
