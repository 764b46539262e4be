// Package config loads the pipeline configuration once at startup.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

// Provider names known to the AI gateway.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
)

// KnownProviders lists every provider in default priority order.
var KnownProviders = []string{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderDeepSeek}

// ProviderConfig configures one AI provider.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Enabled bool
}

// Available reports whether the provider may be called.
func (p ProviderConfig) Available() bool {
	return p.Enabled && p.APIKey != ""
}

// AIConfig configures the AI inference gateway.
type AIConfig struct {
	Providers       map[string]ProviderConfig
	DefaultProvider string
	Priority        []string
	VisionOrder     []string
	Timeout         time.Duration
	ResponseTTL     time.Duration
	MaxTokens       int
	RateLimit       int
	Temperature     float64
}

// PipelineConfig holds the orchestrator thresholds.
type PipelineConfig struct {
	AIConfidenceThreshold float64
	CodeConfidence        float64
	PatternConfidence     float64
	DefaultConfidence     float64
	Workers               int
	DisambiguateTopN      int
	Disambiguate          bool
}

// SearchConfig configures factor retrieval.
type SearchConfig struct {
	SemanticURL     string
	SemanticAPIKey  string
	SemanticIndex   string
	SemanticTimeout time.Duration
	CacheTTL        time.Duration
	MinScore        float64
	MaxResults      int
	SemanticEnabled bool
}

// RulesConfig configures the learned rule store.
type RulesConfig struct {
	CacheTTL time.Duration
}

// Config is the fully resolved configuration.
type Config struct {
	DatabasePath string
	AI           AIConfig
	Search       SearchConfig
	Pipeline     PipelineConfig
	Rules        RulesConfig
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/carbon/carbon.db")

	v.SetDefault("ai.default_provider", ProviderAnthropic)
	v.SetDefault("ai.priority", KnownProviders)
	v.SetDefault("ai.vision_order", []string{ProviderAnthropic, ProviderOpenAI, ProviderGoogle})
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.rate_limit", 60)
	v.SetDefault("ai.response_ttl", 24*time.Hour)
	v.SetDefault("ai.providers.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.providers.openai.model", "gpt-4o")
	v.SetDefault("ai.providers.google.model", "gemini-1.5-pro")
	v.SetDefault("ai.providers.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.providers.deepseek.base_url", "https://api.deepseek.com/v1")
	for _, name := range KnownProviders {
		v.SetDefault("ai.providers."+name+".enabled", true)
	}

	v.SetDefault("pipeline.ai_confidence_threshold", 0.5)
	v.SetDefault("pipeline.code_confidence", 0.85)
	v.SetDefault("pipeline.pattern_confidence", 0.8)
	v.SetDefault("pipeline.default_confidence", 0.3)
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.disambiguate", true)
	v.SetDefault("pipeline.disambiguate_top_n", 5)

	v.SetDefault("search.semantic_enabled", true)
	v.SetDefault("search.semantic_index", "emission_factors")
	v.SetDefault("search.semantic_timeout", 10*time.Second)
	v.SetDefault("search.min_score", 0.4)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.cache_ttl", 24*time.Hour)

	v.SetDefault("rules.cache_ttl", 24*time.Hour)
}

// envKeys maps providers to the conventional API key variables, consulted
// when the config file and CARBON_ variables leave the key empty.
var envKeys = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGoogle:    "GOOGLE_AI_API_KEY",
	ProviderDeepSeek:  "DEEPSEEK_API_KEY",
}

// Load builds the typed configuration from v. It applies defaults first,
// so a bare viper instance yields a usable configuration.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		AI: AIConfig{
			DefaultProvider: v.GetString("ai.default_provider"),
			Priority:        v.GetStringSlice("ai.priority"),
			VisionOrder:     v.GetStringSlice("ai.vision_order"),
			MaxTokens:       v.GetInt("ai.max_tokens"),
			Temperature:     v.GetFloat64("ai.temperature"),
			Timeout:         v.GetDuration("ai.timeout"),
			RateLimit:       v.GetInt("ai.rate_limit"),
			ResponseTTL:     v.GetDuration("ai.response_ttl"),
			Providers:       make(map[string]ProviderConfig, len(KnownProviders)),
		},
		Pipeline: PipelineConfig{
			AIConfidenceThreshold: v.GetFloat64("pipeline.ai_confidence_threshold"),
			CodeConfidence:        v.GetFloat64("pipeline.code_confidence"),
			PatternConfidence:     v.GetFloat64("pipeline.pattern_confidence"),
			DefaultConfidence:     v.GetFloat64("pipeline.default_confidence"),
			Workers:               v.GetInt("pipeline.workers"),
			Disambiguate:          v.GetBool("pipeline.disambiguate"),
			DisambiguateTopN:      v.GetInt("pipeline.disambiguate_top_n"),
		},
		Search: SearchConfig{
			SemanticEnabled: v.GetBool("search.semantic_enabled"),
			SemanticURL:     v.GetString("search.semantic_url"),
			SemanticAPIKey:  v.GetString("search.semantic_api_key"),
			SemanticIndex:   v.GetString("search.semantic_index"),
			SemanticTimeout: v.GetDuration("search.semantic_timeout"),
			MinScore:        v.GetFloat64("search.min_score"),
			MaxResults:      v.GetInt("search.max_results"),
			CacheTTL:        v.GetDuration("search.cache_ttl"),
		},
		Rules: RulesConfig{
			CacheTTL: v.GetDuration("rules.cache_ttl"),
		},
	}

	for _, name := range KnownProviders {
		prefix := "ai.providers." + name + "."
		p := ProviderConfig{
			Enabled: v.GetBool(prefix + "enabled"),
			APIKey:  v.GetString(prefix + "api_key"),
			Model:   v.GetString(prefix + "model"),
			BaseURL: v.GetString(prefix + "base_url"),
		}
		if p.APIKey == "" {
			p.APIKey = os.Getenv(envKeys[name])
		}
		cfg.AI.Providers[name] = p
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration errors. A provider without a key is not an
// error; it is reported as unavailable at call time.
func (c Config) Validate() error {
	checkUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", common.ErrInvalidConfig, name, v)
		}
		return nil
	}

	for name, v := range map[string]float64{
		"pipeline.ai_confidence_threshold": c.Pipeline.AIConfidenceThreshold,
		"pipeline.code_confidence":         c.Pipeline.CodeConfidence,
		"pipeline.pattern_confidence":      c.Pipeline.PatternConfidence,
		"pipeline.default_confidence":      c.Pipeline.DefaultConfidence,
		"search.min_score":                 c.Search.MinScore,
	} {
		if err := checkUnit(name, v); err != nil {
			return err
		}
	}

	if c.AI.DefaultProvider != "" && !slices.Contains(KnownProviders, c.AI.DefaultProvider) {
		return fmt.Errorf("%w: unknown default provider %q", common.ErrInvalidConfig, c.AI.DefaultProvider)
	}
	for _, name := range append(slices.Clone(c.AI.Priority), c.AI.VisionOrder...) {
		if !slices.Contains(KnownProviders, name) {
			return fmt.Errorf("%w: unknown provider %q", common.ErrInvalidConfig, name)
		}
	}
	if c.AI.Timeout < 0 || c.AI.ResponseTTL < 0 || c.Search.CacheTTL < 0 || c.Rules.CacheTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", common.ErrInvalidConfig)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
