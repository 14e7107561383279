package models

import (
	"time"
)

// SessionState is the lifecycle position of an upload session.
type SessionState string

const (
	SessionCollecting SessionState = "collecting"
	SessionAssembling SessionState = "assembling"
	SessionCompleted  SessionState = "completed"
	SessionFailed     SessionState = "failed"
	SessionExpired    SessionState = "expired"
)

// IsTerminal reports whether no further transition can happen.
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionExpired
}

// UploadSession is a point-in-time copy of a session's bookkeeping.
type UploadSession struct {
	SessionID       string        `json:"session_id"`
	TotalChunks     int           `json:"total_chunks"`
	ReceivedIndices []int         `json:"received_indices"`
	Metadata        *CallMetadata `json:"metadata,omitempty"`
	State           SessionState  `json:"state"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Received returns the number of distinct indices accepted so far.
func (s UploadSession) Received() int {
	return len(s.ReceivedIndices)
}

// IsComplete reports whether every index in [0, TotalChunks) has arrived.
func (s UploadSession) IsComplete() bool {
	return s.TotalChunks > 0 && len(s.ReceivedIndices) == s.TotalChunks
}

// Utterance is one speaker-attributed span of transcribed speech. Offsets
// are milliseconds from the start of the recording.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the chronologically ordered utterance sequence.
type Transcript struct {
	Utterances []Utterance `json:"utterances"`
}
