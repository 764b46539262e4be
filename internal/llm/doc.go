// Package llm is the AI inference gateway. It hides several interchangeable
// providers (Anthropic, OpenAI, Google Gemini, DeepSeek) behind a single
// chat, JSON and vision contract.
//
// A provider is available when it is enabled and has an API key; no live
// probing is done. The gateway uses the configured default provider when it
// is available and otherwise the first available provider in priority
// order. Vision requests walk their own configured order.
//
// Failures never surface as errors: Chat, JSON and Vision return ok=false
// and log a warning, and callers fall back to their next strategy. There is
// no retry at this layer. Responses are cached by provider, model, system
// prompt and messages.
package llm
