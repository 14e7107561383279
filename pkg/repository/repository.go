// Package repository persists the result of each pipeline run.
package repository

import (
	"context"
	"errors"
	"time"

	"notebot/pkg/cost"
	"notebot/pkg/models"
)

var ErrNotFound = errors.New("call record not found")

// CallRecord is one processed call: the caller's metadata plus everything
// the pipeline produced for it.
type CallRecord struct {
	ID                string               `json:"id"`
	SessionID         string               `json:"session_id"`
	CreatedAt         time.Time            `json:"created_at"`
	Date              time.Time            `json:"date"`
	CallType          string               `json:"callType,omitempty"`
	Notes             string               `json:"notes"`
	Participants      []models.Participant `json:"participants"`
	NoteTypes         []string             `json:"notetype"`
	MinutesElapsed    float64              `json:"minutes_elapsed"`
	Title             string               `json:"title"`
	Transcription     models.Transcript    `json:"transcription"`
	NoteTypeResponses map[string]string    `json:"note_type_responses"`
	TokenUsage        cost.Breakdown       `json:"token_usage"`
	AudioFileURL      string               `json:"audioFileURL,omitempty"`
}

// Repository stores call records. Save assigns ID and CreatedAt when they
// are empty and returns the ID. List returns the newest records first.
type Repository interface {
	Save(ctx context.Context, record *CallRecord) (string, error)
	Get(ctx context.Context, id string) (*CallRecord, error)
	List(ctx context.Context, limit int) ([]CallRecord, error)
	Close() error
}
