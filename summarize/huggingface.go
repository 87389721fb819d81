package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHuggingFaceEndpoint = "https://api-inference.huggingface.co/models/"
	DefaultHuggingFaceModel    = "facebook/bart-large-cnn"
)

type HuggingFaceConfig struct {
	// Endpoint is either a base URL ending in "/" (the model is appended)
	// or the full URL of a dedicated inference endpoint.
	Endpoint   string
	Model      string
	Token      string
	HTTPClient *http.Client
}

// HuggingFace calls a hosted seq2seq summarization pipeline, which accepts
// the beam parameters directly.
type HuggingFace struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxLength     int     `json:"max_length"`
	MinLength     int     `json:"min_length"`
	NumBeams      int     `json:"num_beams"`
	LengthPenalty float64 `json:"length_penalty"`
	EarlyStopping bool    `json:"early_stopping"`
	DoSample      bool    `json:"do_sample"`
	Truncation    string  `json:"truncation"`
	MaxInputLen   int     `json:"max_input_length,omitempty"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type hfSummary struct {
	SummaryText string `json:"summary_text"`
}

type hfError struct {
	Error string `json:"error"`
}

func NewHuggingFace(cfg HuggingFaceConfig, logger *slog.Logger) (*HuggingFace, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultHuggingFaceEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultHuggingFaceModel
	}

	url := endpoint
	if strings.HasSuffix(endpoint, "/") {
		url = endpoint + model
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("huggingface endpoint must be an http(s) URL: %q", url)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	return &HuggingFace{url: url, token: cfg.Token, client: client, logger: logger}, nil
}

func (h *HuggingFace) Summarize(ctx context.Context, text string, p Params) (string, error) {
	body, err := json.Marshal(hfRequest{
		Inputs: text,
		Parameters: hfParameters{
			MaxLength:     p.MaxLength,
			MinLength:     p.MinLength,
			NumBeams:      p.NumBeams,
			LengthPenalty: p.LengthPenalty,
			EarlyStopping: p.EarlyStopping,
			DoSample:      p.DoSample,
			Truncation:    "only_first",
			MaxInputLen:   p.MaxInputTokens,
		},
		Options: hfOptions{WaitForModel: true, UseCache: true},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", h.url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr hfError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("inference endpoint %d: %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("inference endpoint %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out []hfSummary
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out) == 0 {
		return "", nil
	}

	if h.logger != nil {
		h.logger.Debug("huggingface summarize", "url", h.url, "chars", len(text), "summaryChars", len(out[0].SummaryText))
	}
	return out[0].SummaryText, nil
}
