package tools

import (
	"fmt"
	"net/url"
	"sync"
)

// Audit accumulates the per-execution API security summary. One Audit is
// shared by the tools of a single execution and drained into the execution
// record at the end.
type Audit struct {
	mu            sync.Mutex
	calls         []map[string]any
	errors        []string
	downloadBytes int64
	malicious     int
	injectionHits int
}

func NewAudit() *Audit {
	return &Audit{}
}

func (a *Audit) RecordCall(call map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *Audit) RecordError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, msg)
}

// RecordDownload accumulates response payload sizes for the rollup.
func (a *Audit) RecordDownload(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.downloadBytes += n
}

func (a *Audit) RecordMalicious() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.malicious++
}

func (a *Audit) RecordInjections(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.injectionHits += n
}

// Summary renders the audit as the api_security_summary payload. Returns nil
// when nothing was recorded so empty summaries stay out of the database.
func (a *Audit) Summary() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.calls) == 0 && len(a.errors) == 0 {
		return nil
	}

	passed := 0
	for _, call := range a.calls {
		if ok, _ := call["security_scan_passed"].(bool); ok {
			passed++
		}
	}

	summary := map[string]any{
		"api_calls":   a.calls,
		"total_calls": len(a.calls),
		"scan_passed": passed,
		"security_checks": map[string]any{
			"total_downloads":            humanBytes(a.downloadBytes),
			"malicious_content_detected": a.malicious,
			"prompt_injection_attempts":  a.injectionHits,
		},
	}
	if recs := a.recommendations(); len(recs) > 0 {
		summary["recommendations"] = recs
	}
	if len(a.errors) > 0 {
		summary["errors"] = a.errors
	}
	return summary
}

// recommendations surfaces, per domain, the auth method that worked and the
// latest rate-limit headroom, so the next call skips the discovery walk.
func (a *Audit) recommendations() map[string]any {
	recs := map[string]any{}
	for _, call := range a.calls {
		rawURL, _ := call["url"].(string)
		u, err := url.Parse(rawURL)
		if err != nil || u.Hostname() == "" {
			continue
		}

		entry := map[string]any{}
		if method, ok := call["successful_auth_method"].(string); ok {
			entry["auth_method"] = method
		}
		if remaining, ok := call["rate_limit_remaining"].(string); ok {
			entry["rate_limit_remaining"] = remaining
		}
		if len(entry) > 0 {
			recs[u.Hostname()] = entry
		}
	}
	return recs
}

func humanBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
