package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/Veraticus/the-carbon-must-flow/internal/config"
)

type anthropicProvider struct {
	client  *anthropic.Client
	model   string
	enabled bool
	hasKey  bool
}

func newAnthropicProvider(cfg config.ProviderConfig, httpClient *http.Client) *anthropicProvider {
	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &anthropicProvider{
		client:  anthropic.NewClient(cfg.APIKey, opts...),
		model:   model,
		enabled: cfg.Enabled,
		hasKey:  cfg.APIKey != "",
	}
}

func (p *anthropicProvider) Name() string         { return config.ProviderAnthropic }
func (p *anthropicProvider) Available() bool      { return p.enabled && p.hasKey }
func (p *anthropicProvider) SupportsVision() bool { return true }
func (p *anthropicProvider) DefaultModel() string { return p.model }

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	temperature := float32(req.Temperature)

	messages := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		content := make([]anthropic.MessageContent, 0, len(m.Images)+1)
		for _, img := range m.Images {
			content = append(content, anthropic.MessageContent{
				Type: "image",
				Source: &anthropic.MessageContentSource{
					Type:      "base64",
					MediaType: img.MediaType,
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		text := m.Content
		content = append(content, anthropic.MessageContent{Type: "text", Text: &text})

		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		messages = append(messages, anthropic.Message{Role: role, Content: content})
	}

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: &temperature,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return sb.String(), nil
}
