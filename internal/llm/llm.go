// Package llm provides the external text-generation interface: one
// capability interface, concrete providers behind a configuration-driven
// factory, and a retry decorator.
//
// Providers are stateless; retries, timeouts and fallbacks are layered on by
// the factory so the engine only ever sees Invoke.
package llm

import (
	"context"
	"fmt"

	"savannah.ai/internal/config"
)

// Response is the normalized provider output.
type Response struct {
	Text      string
	SessionID string
}

// Provider is the single capability the engine depends on.
type Provider interface {
	Invoke(ctx context.Context, prompt, model string) (Response, error)
}

// RestFallback is the safe deterministic response substituted after all
// retries are exhausted. Parsing it yields a rest action.
const RestFallback = "rest"

// NewProvider builds the configured provider, wrapped with the configured
// retry policy. The seed only matters to the mock provider. An unknown
// provider name is a startup error.
func NewProvider(cfg config.LLM, seed int64) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "claude_code":
		p = NewClaudeCLI(cfg.TimeoutSeconds)
	case "anthropic_api":
		p = NewAnthropic(cfg.APIKey)
	case "openai_api":
		p = NewOpenAI(cfg.APIKey)
	case "local_ollama":
		p = NewOllama(cfg.OllamaBaseURL, cfg.TimeoutSeconds)
	case "mock":
		p = NewMock(seed)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return WithRetry(p, cfg.RetryMax, cfg.RetryBackoffBase), nil
}
