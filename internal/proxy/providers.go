package proxy

// Upstream base URLs by provider name.
var providerBases = map[string]string{
	"anthropic": "https://api.anthropic.com",
	"openai":    "https://api.openai.com",
	"codex":     "https://chatgpt.com/backend-api/codex",
}

// defaultProvider is used when a request names an unknown provider.
const defaultProvider = "anthropic"

// UpstreamBase returns the upstream base URL for provider, falling back
// to the anthropic endpoint for unknown names.
func UpstreamBase(provider string) string {
	if base, ok := providerBases[provider]; ok {
		return base
	}
	return providerBases[defaultProvider]
}
