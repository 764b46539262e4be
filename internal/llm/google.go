package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/config"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models"

// googleProvider calls the Gemini generateContent REST endpoint.
type googleProvider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	enabled    bool
}

type geminiPart struct {
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func newGoogleProvider(cfg config.ProviderConfig, httpClient *http.Client) *googleProvider {
	base := cfg.BaseURL
	if base == "" {
		base = defaultGeminiURL
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-pro"
	}
	return &googleProvider{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(base, "/"),
		model:      model,
		enabled:    cfg.Enabled,
	}
}

func (p *googleProvider) Name() string         { return config.ProviderGoogle }
func (p *googleProvider) Available() bool      { return p.enabled && p.apiKey != "" }
func (p *googleProvider) SupportsVision() bool { return true }
func (p *googleProvider) DefaultModel() string { return p.model }

func (p *googleProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	body := geminiRequest{
		GenerationConfig: map[string]any{
			"temperature":     req.Temperature,
			"maxOutputTokens": req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		parts := make([]geminiPart, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: img.MediaType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			}})
		}
		parts = append(parts, geminiPart{Text: m.Content})
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: parts})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("google request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("google returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
