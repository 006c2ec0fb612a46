package provider

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	NameGemini    = "gemini"
	NameOpenAI    = "openai"
	NameReplicate = "replicate"
)

// Credential environment variables per vendor.
const (
	GeminiKeyEnv    = "GOOGLE_AI_API_KEY"
	OpenAIKeyEnv    = "OPENAI_API_KEY"
	ReplicateKeyEnv = "REPLICATE_API_TOKEN"
)

// DefaultProvider is used when no provider name is configured.
const DefaultProvider = NameGemini

// Config selects and parameterizes one provider.
type Config struct {
	Name    string
	Model   string
	BaseURL string
	Mode    string
	APIKey  string
}

// Names lists the supported providers.
func Names() []string {
	return []string{NameGemini, NameOpenAI, NameReplicate}
}

// KeyEnv returns the credential variable for a provider name.
func KeyEnv(name string) string {
	switch normalizeName(name) {
	case NameOpenAI:
		return OpenAIKeyEnv
	case NameReplicate:
		return ReplicateKeyEnv
	default:
		return GeminiKeyEnv
	}
}

// New builds the configured provider. A missing APIKey is read from the
// vendor's environment variable; a nil client becomes a plain http.Client.
func New(cfg Config, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{}
	}
	name := normalizeName(cfg.Name)
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(KeyEnv(name)))
	}

	switch name {
	case NameGemini:
		return NewGemini(client, cfg.BaseURL, cfg.Model, key), nil
	case NameOpenAI:
		return NewOpenAI(client, cfg.BaseURL, cfg.Model, key, cfg.Mode), nil
	case NameReplicate:
		return NewReplicate(client, cfg.BaseURL, cfg.Model, key), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: %s)", cfg.Name, strings.Join(Names(), ", "))
	}
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultProvider
	}
	return name
}
