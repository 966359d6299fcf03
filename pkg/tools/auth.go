package tools

import (
	"net/url"
	"strings"
)

// AuthMethod is one way of presenting a secret to an API.
type AuthMethod string

const (
	AuthBearer        AuthMethod = "Bearer"
	AuthToken         AuthMethod = "Token"
	AuthXAPIKey       AuthMethod = "X-API-Key"
	AuthAuthorization AuthMethod = "Authorization"
)

// defaultAuthCandidates is tried for APIs with no better hint.
var defaultAuthCandidates = []AuthMethod{AuthBearer, AuthToken, AuthXAPIKey, AuthAuthorization}

// hostAuthCandidates maps known API hosts to their preferred auth methods,
// most likely first.
var hostAuthCandidates = map[string][]AuthMethod{
	"api.github.com":     {AuthBearer, AuthToken},
	"api.stripe.com":     {AuthBearer},
	"api.openai.com":     {AuthBearer},
	"api.anthropic.com":  {AuthBearer},
	"api.slack.com":      {AuthBearer},
	"api.hubapi.com":     {AuthBearer},
	"api.sendgrid.com":   {AuthBearer},
	"slack.com":          {AuthBearer},
	"hooks.slack.com":    {AuthBearer},
	"googleapis.com":     {AuthBearer},
	"www.googleapis.com": {AuthBearer},
}

// DiscoverAuthMethods returns the ordered auth candidates for a URL. The
// caller tries each in turn; a 401 or 403 moves to the next.
func DiscoverAuthMethods(rawURL string) []AuthMethod {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultAuthCandidates
	}

	host := strings.ToLower(u.Hostname())
	if methods, ok := hostAuthCandidates[host]; ok {
		return methods
	}
	// Suffix match covers service subdomains like storage.googleapis.com.
	for known, methods := range hostAuthCandidates {
		if strings.HasSuffix(host, "."+known) {
			return methods
		}
	}

	path := strings.ToLower(u.Path)
	switch {
	case strings.Contains(path, "/graphql"):
		return []AuthMethod{AuthBearer, AuthAuthorization}
	case strings.Contains(path, "/rest/"):
		return []AuthMethod{AuthBearer, AuthXAPIKey}
	case strings.Contains(path, "/v1/"), strings.Contains(path, "/v2/"), strings.Contains(path, "/v3/"):
		return []AuthMethod{AuthBearer, AuthXAPIKey, AuthToken}
	}

	return defaultAuthCandidates
}

// Apply sets the header for this auth method on the given header map.
func (m AuthMethod) Apply(headers map[string]string, secret string) {
	switch m {
	case AuthBearer:
		headers["Authorization"] = "Bearer " + secret
	case AuthToken:
		headers["Authorization"] = "Token " + secret
	case AuthXAPIKey:
		headers["X-API-Key"] = secret
	case AuthAuthorization:
		headers["Authorization"] = secret
	}
}
