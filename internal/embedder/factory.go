package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/librarian/librarian/internal/librarianerr"
)

// Config mirrors the [embedding] section of the TOML config file, plus
// a provider selector that the config schema adds beyond spec.md's
// documented fields — config.toml has no way to express which HTTP
// backend serves an embedding model, so provider is an explicit field
// resolved here rather than sniffed from the model name.
type Config struct {
	Provider            string
	Model               string
	Dimension           int
	BatchSize           int
	SupportsMultimodal  bool
	// Endpoint overrides the backend's default host/base URL.
	Endpoint string
}

// Default embedding models and dimensions per backend, used when the
// config omits Model/Dimension.
const (
	defaultOllamaModel      = "nomic-embed-text"
	defaultOllamaDimensions = 768
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultOpenAIDimensions = 1536
)

// knownProviders is used to validate Config.Provider when
// NewFromConfig builds an embedder.
var knownProviders = map[string]bool{
	"ollama": true,
	"openai": true,
	"azure":  true,
}

// NewFromConfig constructs the Embedder named by cfg.Provider.
// Secrets (API keys, Azure endpoint/version) are never carried in the
// TOML config; they are read from environment variables, mirroring
// the config file's qdrant_api_key_env convention of keeping secrets
// out of the file that gets committed to a repo.
func NewFromConfig(cfg Config) (Embedder, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "ollama"
	}
	if !knownProviders[provider] {
		return nil, librarianerr.Newf(librarianerr.KindConfig, "embedder: unknown provider %q — valid values: ollama, openai, azure", provider)
	}

	switch provider {
	case "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		dim := cfg.Dimension
		if dim == 0 {
			dim = defaultOllamaDimensions
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       host,
			Model:      model,
			Dimensions: dim,
		}), nil

	case "openai":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, librarianerr.New(librarianerr.KindConfig, fmt.Errorf("embedder: openai provider requires OPENAI_API_KEY or EMBEDDING_API_KEY"))
		}
		baseURL := cfg.Endpoint
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		dim := cfg.Dimension
		if dim == 0 {
			dim = defaultOpenAIDimensions
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dim,
		}), nil

	case "azure":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, librarianerr.New(librarianerr.KindConfig, fmt.Errorf("embedder: azure provider requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY"))
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, librarianerr.New(librarianerr.KindConfig, fmt.Errorf("embedder: azure provider requires AZURE_OPENAI_ENDPOINT or an embedding endpoint"))
		}
		apiVersion := getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		dim := cfg.Dimension
		if dim == 0 {
			dim = defaultOpenAIDimensions
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dim,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil
	}

	// unreachable: provider is validated against knownProviders above.
	return nil, librarianerr.Newf(librarianerr.KindConfig, "embedder: unhandled provider %q", provider)
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// knownChatModelPrefixes contains name fragments that identify chat/
// completion models which are NOT suitable for embedding. If a
// configured model matches one of these, WarnIfChatModel logs a
// warning so the operator knows they may have misconfigured the
// pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen", "solar", "vicuna", "falcon", "yi-",
}

// WarnIfChatModel logs a warning when model resembles a known chat or
// completion model rather than a dedicated embedding model.
func WarnIfChatModel(log *slog.Logger, model string) {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			log.Warn("embedder: configured model looks like a chat model, not an embedding model",
				slog.String("model", model),
				slog.String("hint", "use a dedicated embedding model, e.g. nomic-embed-text, text-embedding-3-small, bge-small-en-v1.5"),
			)
			return
		}
	}
}
