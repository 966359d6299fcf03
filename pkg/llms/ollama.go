package llms

const ollamaDefaultHost = "http://localhost:11434"

// NewOllamaClient targets an Ollama server through its OpenAI-compatible
// endpoint. The API key is optional; Ollama ignores it but proxies in front
// of it may not.
func NewOllamaClient(apiKey, model, targetURL string) (*OpenAIClient, error) {
	if targetURL == "" {
		targetURL = ollamaDefaultHost
	}
	return newOpenAICompatible(apiKey, model, targetURL, false)
}
