package llm

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/config"
)

// NewProviders builds every known provider from cfg, in KnownProviders order.
// Providers without a key are still returned and report Available() false.
func NewProviders(cfg config.AIConfig) []Provider {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	providers := make([]Provider, 0, len(config.KnownProviders))
	for _, name := range config.KnownProviders {
		pc := cfg.Providers[name]
		switch name {
		case config.ProviderAnthropic:
			providers = append(providers, newAnthropicProvider(pc, httpClient))
		case config.ProviderOpenAI:
			providers = append(providers, newOpenAIProvider(name, pc, httpClient, true, "gpt-4o"))
		case config.ProviderGoogle:
			providers = append(providers, newGoogleProvider(pc, httpClient))
		case config.ProviderDeepSeek:
			if pc.BaseURL == "" {
				pc.BaseURL = "https://api.deepseek.com/v1"
			}
			providers = append(providers, newOpenAIProvider(name, pc, httpClient, false, "deepseek-chat"))
		}
	}
	return providers
}

// NewFromConfig builds a gateway over every known provider with an
// in-memory response cache.
func NewFromConfig(cfg config.AIConfig, logger *slog.Logger) *Gateway {
	settings := Settings{
		DefaultProvider: cfg.DefaultProvider,
		Priority:        cfg.Priority,
		VisionOrder:     cfg.VisionOrder,
		Timeout:         cfg.Timeout,
		CacheTTL:        cfg.ResponseTTL,
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
		RateLimit:       cfg.RateLimit,
	}
	return NewGateway(NewProviders(cfg), settings,
		withOwnedResponseCache(cache.NewMemory[string](10*time.Minute)),
		WithLogger(logger),
	)
}
