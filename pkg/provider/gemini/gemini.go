// Package gemini adapts Google's Gemini models to provider.Summarizer.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"notebot/pkg/logging"
	"notebot/pkg/provider"
)

const DefaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Summarizer struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ provider.Summarizer = (*Summarizer)(nil)

func NewSummarizer(ctx context.Context, cfg Config, logger *zap.Logger) (*Summarizer, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{
		client: client,
		model:  model,
		logger: logging.OrNop(logger).Named("gemini"),
	}, nil
}

func (s *Summarizer) Name() string { return "gemini" }

func (s *Summarizer) Summarize(ctx context.Context, req provider.SummaryRequest) (provider.SummaryResponse, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(req.Transcript), config)
	if err != nil {
		return provider.SummaryResponse{}, fmt.Errorf("generateContent failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return provider.SummaryResponse{}, fmt.Errorf("gemini returned an empty response")
	}

	var usage provider.Usage
	if resp.UsageMetadata != nil {
		usage = provider.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	s.logger.Debug("generate content finished",
		zap.String("model", s.model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens))

	return provider.SummaryResponse{Text: text, Usage: usage}, nil
}
