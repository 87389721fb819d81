package summarize

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	BackendOpenAI      = "openai"
	BackendHuggingFace = "huggingface"
	BackendExtractive  = "extractive"
)

// BackendConfig selects and configures the capability behind a Handle.
type BackendConfig struct {
	Name        string
	OpenAI      OpenAIConfig
	HuggingFace HuggingFaceConfig
}

// NewFactory returns the factory for the configured backend. Unknown
// backend names are rejected immediately; credential problems surface on
// first use through the Handle.
func NewFactory(cfg BackendConfig, logger *slog.Logger) (Factory, error) {
	switch cfg.Name {
	case BackendOpenAI:
		return func(context.Context) (Capability, error) {
			if logger != nil {
				logger.Info("loading summarizer", "backend", cfg.Name, "model", cfg.OpenAI.Model)
			}
			return NewOpenAI(cfg.OpenAI, logger)
		}, nil
	case BackendHuggingFace:
		return func(context.Context) (Capability, error) {
			if logger != nil {
				logger.Info("loading summarizer", "backend", cfg.Name, "model", cfg.HuggingFace.Model)
			}
			return NewHuggingFace(cfg.HuggingFace, logger)
		}, nil
	case BackendExtractive:
		return func(context.Context) (Capability, error) {
			return Extractive{}, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown summarizer backend %q", cfg.Name)
	}
}
