package llm

import (
	"context"
)

// Role is the author of a chat message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image or document page for vision requests.
type Image struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
	Images  []Image
}

// UserMessage builds a single user turn.
func UserMessage(content string, images ...Image) Message {
	return Message{Role: RoleUser, Content: content, Images: images}
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// HasImages reports whether any message carries an image.
func (r Request) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// Provider is one external inference service.
type Provider interface {
	Name() string
	// Available reports whether the provider is enabled and has credentials.
	Available() bool
	SupportsVision() bool
	DefaultModel() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderHealth is the configuration-derived status of a provider.
type ProviderHealth struct {
	Name      string
	Model     string
	Available bool
	Vision    bool
	Active    bool
}
