package llms

import (
	"fmt"

	"github.com/agenthub/launcher/pkg/store"
)

// ErrBedrockLocal is returned when a BEDROCK instance reaches the local
// dispatch path. BEDROCK always runs through remote execution.
var ErrBedrockLocal = fmt.Errorf("BEDROCK has no local client; dispatch via remote execution")

// NewClient builds the provider client for an agent instance.
func NewClient(inst *store.AgentInstance) (Client, error) {
	switch inst.Provider {
	case store.ProviderOpenAI:
		return NewOpenAIClient(inst.APIKey, inst.ModelName)
	case store.ProviderAnthropic:
		return NewAnthropicClient(inst.APIKey, inst.ModelName)
	case store.ProviderGemini:
		return NewGeminiClient(inst.APIKey, inst.ModelName)
	case store.ProviderOllama:
		return NewOllamaClient(inst.APIKey, inst.ModelName, inst.TargetURL)
	case store.ProviderBedrock:
		return nil, ErrBedrockLocal
	default:
		return nil, fmt.Errorf("unknown provider: %s", inst.Provider)
	}
}
