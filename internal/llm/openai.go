package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Veraticus/the-carbon-must-flow/internal/config"
)

// openAIProvider serves OpenAI and any OpenAI-compatible endpoint such as DeepSeek.
type openAIProvider struct {
	client  *openai.Client
	name    string
	model   string
	vision  bool
	enabled bool
	hasKey  bool
}

func newOpenAIProvider(name string, cfg config.ProviderConfig, httpClient *http.Client, vision bool, defaultModel string) *openAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = httpClient

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &openAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		name:    name,
		model:   model,
		vision:  vision,
		enabled: cfg.Enabled,
		hasKey:  cfg.APIKey != "",
	}
}

func (p *openAIProvider) Name() string         { return p.name }
func (p *openAIProvider) Available() bool      { return p.enabled && p.hasKey }
func (p *openAIProvider) SupportsVision() bool { return p.vision }
func (p *openAIProvider) DefaultModel() string { return p.model }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		if len(m.Images) == 0 {
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
			continue
		}

		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: m.Content}}
		for _, img := range m.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}
