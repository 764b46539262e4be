package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

// Settings tunes provider selection and request defaults.
type Settings struct {
	DefaultProvider string
	Priority        []string
	VisionOrder     []string
	Timeout         time.Duration
	CacheTTL        time.Duration
	MaxTokens       int
	RateLimit       int
	Temperature     float64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithResponseCache sets the response cache. Without it responses are not cached.
func WithResponseCache(c cache.Cache[string]) Option {
	return func(g *Gateway) { g.cache = c }
}

// withOwnedResponseCache sets a response cache that Close releases.
func withOwnedResponseCache(c *cache.Memory[string]) Option {
	return func(g *Gateway) {
		g.cache = c
		g.owned = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = common.LoggerOrDefault(logger) }
}

// Gateway routes chat, JSON and vision requests to one of several providers.
// It is safe for concurrent use.
type Gateway struct {
	cache     cache.Cache[string]
	owned     *cache.Memory[string]
	logger    *slog.Logger
	limiter   *rateLimiter
	providers map[string]Provider
	order     []string
	settings  Settings
}

// NewGateway creates a gateway over providers.
func NewGateway(providers []Provider, settings Settings, opts ...Option) *Gateway {
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = 4096
	}

	g := &Gateway{
		providers: make(map[string]Provider, len(providers)),
		settings:  settings,
		cache:     cache.Noop[string]{},
		logger:    slog.Default(),
		limiter:   newRateLimiter(settings.RateLimit),
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
		g.order = append(g.order, p.Name())
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Close releases the response cache created by NewFromConfig.
func (g *Gateway) Close() {
	if g.owned != nil {
		g.owned.Close()
	}
}

// Active returns the provider used for text requests: the default when it
// is available, otherwise the first available one in priority order.
func (g *Gateway) Active() (Provider, bool) {
	if p, ok := g.providers[g.settings.DefaultProvider]; ok && p.Available() {
		return p, true
	}
	return g.firstAvailable(g.priority(), false)
}

// VisionProvider returns the first available vision-capable provider in
// vision order.
func (g *Gateway) VisionProvider() (Provider, bool) {
	order := g.settings.VisionOrder
	if len(order) == 0 {
		order = g.order
	}
	return g.firstAvailable(order, true)
}

// Available reports whether any text provider can be used.
func (g *Gateway) Available() bool {
	_, ok := g.Active()
	return ok
}

// VisionAvailable reports whether any vision provider can be used.
func (g *Gateway) VisionAvailable() bool {
	_, ok := g.VisionProvider()
	return ok
}

// Health lists every provider with its configuration-derived status.
func (g *Gateway) Health() []ProviderHealth {
	active, _ := g.Active()
	out := make([]ProviderHealth, 0, len(g.order))
	for _, name := range g.order {
		p := g.providers[name]
		out = append(out, ProviderHealth{
			Name:      name,
			Model:     p.DefaultModel(),
			Available: p.Available(),
			Vision:    p.SupportsVision(),
			Active:    active != nil && active.Name() == name,
		})
	}
	return out
}

// Chat sends messages to the active provider. ok is false when no provider
// is available or the call fails.
func (g *Gateway) Chat(ctx context.Context, messages []Message, system, model string) (string, bool) {
	p, ok := g.Active()
	if !ok {
		g.logger.Warn("no AI provider available")
		return "", false
	}
	return g.complete(ctx, p, Request{System: system, Model: model, Messages: messages})
}

// Prompt is Chat with a single user message.
func (g *Gateway) Prompt(ctx context.Context, prompt, system, model string) (string, bool) {
	return g.Chat(ctx, []Message{UserMessage(prompt)}, system, model)
}

// JSON sends prompt and parses a JSON object out of the reply.
func (g *Gateway) JSON(ctx context.Context, prompt, system, model string) (map[string]any, bool) {
	raw, ok := g.Prompt(ctx, prompt, system, model)
	if !ok {
		return nil, false
	}
	obj, ok := ParseJSON(raw)
	if !ok {
		g.logger.Warn("AI response was not valid JSON", "response_len", len(raw))
	}
	return obj, ok
}

// Vision sends prompt with images to the first available vision provider.
func (g *Gateway) Vision(ctx context.Context, prompt string, images []Image, system, model string) (string, bool) {
	p, ok := g.VisionProvider()
	if !ok {
		g.logger.Warn("no vision provider available")
		return "", false
	}
	return g.complete(ctx, p, Request{System: system, Model: model, Messages: []Message{UserMessage(prompt, images...)}})
}

func (g *Gateway) complete(ctx context.Context, p Provider, req Request) (string, bool) {
	if req.Model == "" {
		req.Model = p.DefaultModel()
	}
	req.MaxTokens = g.settings.MaxTokens
	req.Temperature = g.settings.Temperature

	key := cacheKey(p.Name(), req)
	if cached, ok := g.cache.Get(key); ok {
		return cached, true
	}

	if err := g.limiter.wait(ctx); err != nil {
		g.logger.Warn("AI request not sent", "provider", p.Name(), "error", err)
		return "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, g.settings.Timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Complete(callCtx, req)
	if err != nil {
		g.logger.Warn("AI request failed",
			"provider", p.Name(),
			"model", req.Model,
			"duration", time.Since(start),
			"error", err)
		return "", false
	}
	g.logger.Debug("AI request completed",
		"provider", p.Name(),
		"model", req.Model,
		"duration", time.Since(start))

	g.cache.Set(key, text, g.settings.CacheTTL)
	return text, true
}

func (g *Gateway) priority() []string {
	if len(g.settings.Priority) > 0 {
		return g.settings.Priority
	}
	return g.order
}

func (g *Gateway) firstAvailable(order []string, vision bool) (Provider, bool) {
	for _, name := range order {
		p, ok := g.providers[name]
		if !ok || !p.Available() {
			continue
		}
		if vision && !p.SupportsVision() {
			continue
		}
		return p, true
	}
	return nil, false
}

func cacheKey(provider string, req Request) string {
	h := sha256.New()
	h.Write([]byte(provider + "|" + req.Model + "|" + req.System))
	for _, m := range req.Messages {
		h.Write([]byte("|" + string(m.Role) + ":" + m.Content))
		for _, img := range m.Images {
			sum := sha256.Sum256(img.Data)
			h.Write([]byte("|img:" + img.MediaType + ":" + hex.EncodeToString(sum[:])))
		}
	}
	return "ai:" + strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}
