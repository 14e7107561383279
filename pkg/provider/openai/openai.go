// Package openai adapts the OpenAI chat and Whisper APIs to the provider
// contracts.
package openai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"notebot/pkg/logging"
	"notebot/pkg/models"
	"notebot/pkg/provider"
)

const (
	DefaultChatModel = "gpt-4o-mini"

	// Whisper does not diarize; every segment is attributed to this label.
	singleSpeaker = "A"
)

type Config struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	ChatModel    string `yaml:"chat_model"`
	WhisperModel string `yaml:"whisper_model"`
}

func newClient(cfg Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// Summarizer calls chat completions at temperature 0.
type Summarizer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ provider.Summarizer = (*Summarizer)(nil)

func NewSummarizer(cfg Config, logger *zap.Logger) *Summarizer {
	model := cfg.ChatModel
	if model == "" {
		model = DefaultChatModel
	}
	return &Summarizer{
		client: newClient(cfg),
		model:  model,
		logger: logging.OrNop(logger).Named("openai"),
	}
}

func (s *Summarizer) Name() string { return "openai" }

func (s *Summarizer) Summarize(ctx context.Context, req provider.SummaryRequest) (provider.SummaryResponse, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		// A literal 0 is dropped by omitempty and the API would apply its default.
		Temperature: math.SmallestNonzeroFloat32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Transcript},
		},
	})
	if err != nil {
		return provider.SummaryResponse{}, fmt.Errorf("createChatCompletion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return provider.SummaryResponse{}, fmt.Errorf("chat completion returned no choices")
	}

	s.logger.Debug("chat completion finished",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return provider.SummaryResponse{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Transcriber uses Whisper with verbose_json so segment timings come back.
type Transcriber struct {
	client *openai.Client
	model  string
}

var _ provider.Transcriber = (*Transcriber)(nil)

func NewTranscriber(cfg Config) *Transcriber {
	model := cfg.WhisperModel
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{client: newClient(cfg), model: model}
}

func (t *Transcriber) Name() string { return "openai-whisper" }

func (t *Transcriber) Transcribe(ctx context.Context, req provider.TranscriptionRequest) ([]models.Utterance, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: req.Path,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("createTranscription failed: %w", err)
	}

	utterances := make([]models.Utterance, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		utterances = append(utterances, models.Utterance{
			Speaker:    singleSpeaker,
			Start:      int64(math.Round(seg.Start * 1000)),
			End:        int64(math.Round(seg.End * 1000)),
			Text:       text,
			Confidence: confidence(seg.AvgLogprob),
		})
	}
	if len(utterances) == 0 && strings.TrimSpace(resp.Text) != "" {
		utterances = append(utterances, models.Utterance{
			Speaker:    singleSpeaker,
			End:        int64(math.Round(resp.Duration * 1000)),
			Text:       strings.TrimSpace(resp.Text),
			Confidence: 1,
		})
	}
	return utterances, nil
}

// confidence maps Whisper's mean token log-probability into [0, 1].
func confidence(avgLogprob float64) float64 {
	c := math.Exp(avgLogprob)
	switch {
	case math.IsNaN(c):
		return 0
	case c > 1:
		return 1
	case c < 0:
		return 0
	}
	return c
}
