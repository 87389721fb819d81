package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrNoChoices = errors.New("openai returned no completion choices")

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI summarizes through any OpenAI-compatible chat completions API.
// Beam search is not exposed there, so determinism comes from a zero
// temperature and a fixed seed.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is empty (set OPENAI_API_KEY)")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model, logger: logger}, nil
}

func (o *OpenAI) Summarize(ctx context.Context, text string, p Params) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions(p)),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
		Seed:        openai.Int(0),
		N:           openai.Int(1),
		MaxTokens:   openai.Int(int64(p.MaxLength)),
	}

	if o.logger != nil {
		o.logger.Debug("openai summarize", "model", o.model, "chars", len(text), "maxTokens", p.MaxLength)
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return completion.Choices[0].Message.Content, nil
}

func instructions(p Params) string {
	return fmt.Sprintf(
		"You summarize email threads. Reply with a single plain-text paragraph of %d to %d tokens "+
			"covering the participants, the decisions made and any open action items. "+
			"Messages are separated by lines containing only ---.",
		p.MinLength, p.MaxLength)
}
