// Package assemblyai talks to the AssemblyAI v2 REST API: upload the file,
// request a transcript with speaker labels, then poll until it settles.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"notebot/pkg/logging"
	"notebot/pkg/models"
	"notebot/pkg/provider"
)

const (
	DefaultBaseURL      = "https://api.assemblyai.com"
	DefaultPollInterval = 3 * time.Second
)

type Config struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Client struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

var _ provider.Transcriber = (*Client)(nil)

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		pollInterval: cfg.PollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		logger:       logging.OrNop(logger).Named("assemblyai"),
	}
}

func (c *Client) Name() string { return "assemblyai" }

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeakerLabels bool   `json:"speaker_labels"`
}

type utterance struct {
	Speaker    string  `json:"speaker"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type transcript struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Error         string      `json:"error"`
	Text          string      `json:"text"`
	Confidence    float64     `json:"confidence"`
	AudioDuration float64     `json:"audio_duration"`
	Utterances    []utterance `json:"utterances"`
}

func (c *Client) Transcribe(ctx context.Context, req provider.TranscriptionRequest) ([]models.Utterance, error) {
	audioURL, err := c.upload(ctx, req.Path)
	if err != nil {
		return nil, err
	}

	var created transcript
	if err := c.doJSON(ctx, http.MethodPost, "/v2/transcript",
		transcriptRequest{AudioURL: audioURL, SpeakerLabels: req.SpeakerLabels}, &created); err != nil {
		return nil, fmt.Errorf("request transcript: %w", err)
	}
	c.logger.Debug("transcript requested", zap.String("transcript_id", created.ID))

	result, err := c.poll(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return toUtterances(result), nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", f)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload audio: response carried no upload_url")
	}
	return out.UploadURL, nil
}

func (c *Client) poll(ctx context.Context, id string) (transcript, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var t transcript
		if err := c.doJSON(ctx, http.MethodGet, "/v2/transcript/"+id, nil, &t); err != nil {
			return transcript{}, fmt.Errorf("poll transcript %s: %w", id, err)
		}
		switch t.Status {
		case "completed":
			return t, nil
		case "error":
			return transcript{}, fmt.Errorf("transcript %s failed: %s", id, t.Error)
		}

		select {
		case <-ctx.Done():
			return transcript{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &provider.APIError{Provider: "assemblyai", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

func toUtterances(t transcript) []models.Utterance {
	if len(t.Utterances) == 0 {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			return nil
		}
		return []models.Utterance{{
			Speaker:    "A",
			End:        int64(t.AudioDuration * 1000),
			Text:       text,
			Confidence: t.Confidence,
		}}
	}

	out := make([]models.Utterance, 0, len(t.Utterances))
	for _, u := range t.Utterances {
		out = append(out, models.Utterance{
			Speaker:    u.Speaker,
			Start:      u.Start,
			End:        u.End,
			Text:       u.Text,
			Confidence: u.Confidence,
		})
	}
	return out
}
