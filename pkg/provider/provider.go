// Package provider defines the contracts for the external speech-to-text and
// summarization services. Adapters live in the sub-packages.
package provider

import (
	"context"
	"fmt"

	"notebot/pkg/models"
)

// TranscriptionRequest names a local audio file to transcribe.
type TranscriptionRequest struct {
	Path          string
	SpeakerLabels bool
}

// Transcriber turns an audio file into chronologically ordered utterances.
// Offsets are relative to the start of the file it was given.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req TranscriptionRequest) ([]models.Utterance, error)
}

// Usage is the token accounting reported by a summarization call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SummaryRequest carries the system instructions and the rendered transcript.
type SummaryRequest struct {
	System     string
	Transcript string
}

// SummaryResponse is the raw model text plus usage.
type SummaryResponse struct {
	Text  string
	Usage Usage
}

type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResponse, error)
}

// APIError is a non-success HTTP answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}
