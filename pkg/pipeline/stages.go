package pipeline

import (
	"time"
)

// Stage is a step of one pipeline run. Runs move through the stages in
// declaration order and end in StageSucceeded or StageFailed.
type Stage string

const (
	StageAssembling     Stage = "assembling"
	StageTranscribing   Stage = "transcribing"
	StageSummarizing    Stage = "summarizing"
	StageCostAccounting Stage = "cost_accounting"
	StagePersisting     Stage = "persisting"
	StageSucceeded      Stage = "succeeded"
	StageFailed         Stage = "failed"
)

func (s Stage) IsTerminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// Event reports a stage change of a run.
type Event struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	FailedAt  Stage     `json:"failed_stage,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher receives run events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
