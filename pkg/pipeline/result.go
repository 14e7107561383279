package pipeline

import (
	"notebot/pkg/cost"
	"notebot/pkg/models"
	"notebot/pkg/notes"
	"notebot/pkg/provider"
	"notebot/pkg/repository"
)

// Result is what the caller receives for a processed upload: the stored
// record plus run bookkeeping.
type Result struct {
	repository.CallRecord
	RunID  string         `json:"run_id"`
	Tokens provider.Usage `json:"token_counts"`
}

// BuildRecord assembles the record handed to the repository. The metadata
// is copied so the record never aliases session state.
func BuildRecord(sessionID string, meta *models.CallMetadata, summary notes.Summary, utterances []models.Utterance,
	breakdown cost.Breakdown, audioURL string) *repository.CallRecord {
	m := meta.Clone()
	if m == nil {
		m = &models.CallMetadata{}
	}
	if utterances == nil {
		utterances = []models.Utterance{}
	}
	return &repository.CallRecord{
		SessionID:         sessionID,
		Date:              m.Date,
		CallType:          m.CallType,
		Notes:             m.Notes,
		Participants:      m.Participants,
		NoteTypes:         m.NoteTypes,
		MinutesElapsed:    m.MinutesElapsed,
		Title:             summary.Title,
		Transcription:     models.Transcript{Utterances: utterances},
		NoteTypeResponses: summary.NoteTypeResponses,
		TokenUsage:        breakdown,
		AudioFileURL:      audioURL,
	}
}

// BuildResult wraps a saved record for the caller.
func BuildResult(record *repository.CallRecord, runID string, usage provider.Usage) *Result {
	return &Result{
		CallRecord: *record,
		RunID:      runID,
		Tokens:     usage,
	}
}
