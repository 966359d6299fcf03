package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPITimeout = 30 * time.Second

// SecretSource resolves named secrets for a (project, user) scope.
type SecretSource interface {
	GetSecretValues(ctx context.Context, projectID, userID string, keys []string) (map[string]string, error)
}

// SecureAPITool lets the model call an HTTP API authenticated by a stored
// secret. Auth headers are discovered per host; responses are scanned and
// sanitized before reaching the model.
type SecureAPITool struct {
	secrets SecretSource
	audit   *Audit
	userID  string
	client  *http.Client
	logger  *slog.Logger
}

func NewSecureAPITool(secrets SecretSource, audit *Audit, userID string, logger *slog.Logger) *SecureAPITool {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecureAPITool{
		secrets: secrets,
		audit:   audit,
		userID:  userID,
		client:  &http.Client{Timeout: defaultAPITimeout},
		logger:  logger,
	}
}

func (t *SecureAPITool) GetName() string { return "secure_api_call" }

func (t *SecureAPITool) GetDescription() string {
	return "Call an external HTTPS API, optionally authenticated with a named project secret. Responses are security-scanned before being returned."
}

func (t *SecureAPITool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{Name: "url", Type: "string", Description: "Target URL (https required for external hosts)", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method", Default: "GET",
				Enum: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			{Name: "secret_name", Type: "string", Description: "Name of the stored secret to authenticate with"},
			{Name: "project_id", Type: "string", Description: "Project owning the secret (required with secret_name)"},
			{Name: "body", Type: "string", Description: "Request body for POST/PUT/PATCH"},
			{Name: "headers", Type: "object", Description: "Extra request headers"},
			{Name: "params", Type: "object", Description: "Query string parameters"},
			{Name: "description", Type: "string", Description: "Why this call is being made (audit only)"},
		},
	}
}

func (t *SecureAPITool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	call, err := parseAPICall(args)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, nil
	}

	start := time.Now()
	record := map[string]any{
		"url":         call.url,
		"method":      call.method,
		"secret_name": call.secretName,
	}
	if call.description != "" {
		record["description"] = call.description
	}

	result, scanErr := t.perform(ctx, call, record)
	record["execution_time_ms"] = time.Since(start).Milliseconds()
	record["security_scan_passed"] = scanErr == nil
	if scanErr != nil {
		record["error"] = scanErr.Error()
		if t.audit != nil {
			t.audit.RecordError(scanErr.Error())
		}
	}
	if t.audit != nil {
		t.audit.RecordCall(record)
	}

	if scanErr != nil {
		return ToolResult{Success: false, Error: scanErr.Error()}, nil
	}
	return ToolResult{Success: true, Content: result}, nil
}

type apiCall struct {
	url         string
	method      string
	secretName  string
	projectID   string
	body        string
	headers     map[string]string
	description string
}

func parseAPICall(args map[string]any) (*apiCall, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	isLocal := host == "localhost" || host == "127.0.0.1"
	if u.Scheme != "https" && !(isLocal && u.Scheme == "http") {
		return nil, fmt.Errorf("external API calls must use https")
	}

	call := &apiCall{
		url:     rawURL,
		method:  http.MethodGet,
		headers: map[string]string{},
	}

	if m, _ := args["method"].(string); m != "" {
		call.method = strings.ToUpper(m)
	}
	call.secretName, _ = args["secret_name"].(string)
	call.projectID, _ = args["project_id"].(string)
	call.body, _ = args["body"].(string)
	call.description, _ = args["description"].(string)

	if call.secretName != "" && call.projectID == "" {
		return nil, fmt.Errorf("project_id is required when secret_name is set")
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				call.headers[k] = s
			}
		}
	}

	if params, ok := args["params"].(map[string]any); ok && len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		call.url = u.String()
	}

	return call, nil
}

// perform runs the call, walking the auth candidates when a secret is bound.
func (t *SecureAPITool) perform(ctx context.Context, call *apiCall, record map[string]any) (string, error) {
	var secret string
	if call.secretName != "" {
		values, err := t.secrets.GetSecretValues(ctx, call.projectID, t.userID, []string{call.secretName})
		if err != nil {
			return "", fmt.Errorf("failed to resolve secret %s: %w", call.secretName, err)
		}
		var ok bool
		secret, ok = values[call.secretName]
		if !ok {
			return "", fmt.Errorf("secret %s is not defined in project %s", call.secretName, call.projectID)
		}
	}

	candidates := []AuthMethod{""}
	if secret != "" {
		candidates = DiscoverAuthMethods(call.url)
	}

	var attempted []string
	var lastStatus int
	for _, method := range candidates {
		headers := make(map[string]string, len(call.headers)+1)
		for k, v := range call.headers {
			headers[k] = v
		}
		if method != "" {
			method.Apply(headers, secret)
			attempted = append(attempted, string(method))
		}

		resp, body, err := t.doRequest(ctx, call, headers)
		if err != nil {
			record["attempted_auth_methods"] = attempted
			return "", err
		}
		lastStatus = resp.StatusCode

		// 401/403 means this auth candidate is wrong; try the next one.
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			t.logger.Debug("auth candidate rejected", "url", call.url, "method", string(method), "status", resp.StatusCode)
			continue
		}

		record["attempted_auth_methods"] = attempted
		if method != "" {
			record["successful_auth_method"] = string(method)
		}
		contentType := resp.Header.Get("Content-Type")
		record["response_size"] = len(body)
		record["content_type"] = contentType
		if remaining := rateLimitRemaining(resp.Header); remaining != "" {
			record["rate_limit_remaining"] = remaining
		}
		injections := CountInjections(string(body))
		record["prompt_injection_detected"] = injections > 0
		if t.audit != nil {
			t.audit.RecordDownload(int64(len(body)))
			t.audit.RecordInjections(injections)
		}

		sanitized, err := ScanResponse(body, contentType)
		if err != nil {
			var unsafeErr *UnsafeResponseError
			if t.audit != nil && errors.As(err, &unsafeErr) && strings.Contains(unsafeErr.Reason, "malicious") {
				t.audit.RecordMalicious()
			}
			return "", err
		}

		payload := map[string]any{
			"status_code":  resp.StatusCode,
			"content_type": contentType,
			"body":         sanitized,
			"url":          call.url,
		}
		out, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool result: %w", err)
		}
		return string(out), nil
	}

	record["attempted_auth_methods"] = attempted
	return "", fmt.Errorf("authentication failed for %s: all methods rejected (last status %d)", call.url, lastStatus)
}

func (t *SecureAPITool) doRequest(ctx context.Context, call *apiCall, headers map[string]string) (*http.Response, []byte, error) {
	var body io.Reader
	if call.body != "" {
		body = strings.NewReader(call.body)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.url, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if call.body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, data, nil
}

func rateLimitRemaining(h http.Header) string {
	for _, key := range []string{
		"X-RateLimit-Remaining",
		"x-ratelimit-remaining-requests",
		"anthropic-ratelimit-requests-remaining",
	} {
		if v := h.Get(key); v != "" {
			return v
		}
	}
	return ""
}
