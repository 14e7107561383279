// Package pipeline turns a completed upload session into a stored call
// record: assemble, transcribe (segmenting very large files), summarize,
// account for cost and persist.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"notebot/pkg/cost"
	apperrors "notebot/pkg/errors"
	"notebot/pkg/logging"
	"notebot/pkg/media"
	"notebot/pkg/metrics"
	"notebot/pkg/models"
	"notebot/pkg/notes"
	"notebot/pkg/provider"
	"notebot/pkg/repository"
	"notebot/pkg/storage"
)

// Job identifies the completed session a run works on.
type Job struct {
	SessionID   string
	TotalChunks int
	Metadata    *models.CallMetadata
}

// Assembler produces the recording of a completed session.
type Assembler interface {
	Assemble(ctx context.Context, sessionID string, totalChunks int) (media.MediaFile, error)
}

type Options struct {
	Assembler   Assembler
	Segmenter   media.Segmenter
	Transcriber provider.Transcriber
	Summarizer  provider.Summarizer
	Accountant  *cost.Accountant
	Repository  repository.Repository
	// Archiver is optional. When set the assembled recording is uploaded
	// before the record is saved and its URL replaces audioFileURL.
	Archiver storage.Archiver
	Events   Publisher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	LargeFileThreshold int64
	SegmentDuration    time.Duration
	SegmentWorkers     int
	SpeakerLabels      bool
	RunTimeout         time.Duration
}

type Orchestrator struct {
	opts   Options
	events Publisher
	logger *zap.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Accountant == nil {
		opts.Accountant = cost.NewAccountant(cost.DefaultRates())
	}
	if opts.SegmentWorkers <= 0 {
		opts.SegmentWorkers = 1
	}
	if opts.SegmentDuration <= 0 {
		opts.SegmentDuration = 30 * time.Minute
	}
	events := opts.Events
	if events == nil {
		events = nopPublisher{}
	}
	return &Orchestrator{
		opts:   opts,
		events: events,
		logger: logging.OrNop(opts.Logger).Named("pipeline"),
	}
}

type run struct {
	id        string
	job       Job
	stage     Stage
	workFiles []string
	logger    *zap.Logger
}

// Run executes every stage in order. The first failure ends the run and is
// returned tagged with the stage it happened in; nothing is persisted for
// a failed run.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	r := &run{id: uuid.NewString(), job: job}
	r.logger = o.logger.With(zap.String("run_id", r.id), zap.String("session_id", job.SessionID))
	defer o.cleanup(r)

	started := time.Now()
	result, err := o.execute(ctx, r)
	if err != nil {
		o.fail(r, err)
		return nil, err
	}

	o.opts.Metrics.RunSucceeded(result.TokenUsage.Total())
	o.publish(r, StageSucceeded, func(ev *Event) {
		ev.Message = "File assembled and processed successfully"
		ev.Result = result
	})
	r.logger.Info("pipeline run succeeded",
		zap.String("record_id", result.ID),
		zap.Duration("elapsed", time.Since(started)),
		zap.Float64("total_cost", result.TokenUsage.Total()))
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Result, error) {
	meta := r.job.Metadata
	if meta == nil {
		return nil, apperrors.New(apperrors.KindProtocolViolation, "call details missing")
	}

	var recording media.MediaFile
	err := o.step(ctx, r, StageAssembling, apperrors.KindInternal, func(ctx context.Context) error {
		var err error
		recording, err = o.opts.Assembler.Assemble(ctx, r.job.SessionID, r.job.TotalChunks)
		if err == nil {
			r.workFiles = append(r.workFiles, recording.Path)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var utterances []models.Utterance
	err = o.step(ctx, r, StageTranscribing, apperrors.KindProviderFailure, func(ctx context.Context) error {
		var err error
		utterances, err = o.transcribe(ctx, r, recording)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		summary notes.Summary
		usage   provider.Usage
	)
	err = o.step(ctx, r, StageSummarizing, apperrors.KindProviderFailure, func(ctx context.Context) error {
		prompt := notes.BuildPrompt(meta, utterances)
		resp, err := o.opts.Summarizer.Summarize(ctx, provider.SummaryRequest{System: prompt.System, Transcript: prompt.User})
		if err != nil {
			return apperrors.Wrapf(err, apperrors.KindProviderFailure, "%s summarization failed", o.opts.Summarizer.Name())
		}
		usage = resp.Usage
		summary, err = notes.ParseSummary(resp.Text, meta.NoteTypes)
		return err
	})
	if err != nil {
		return nil, err
	}

	var breakdown cost.Breakdown
	err = o.step(ctx, r, StageCostAccounting, apperrors.KindInternal, func(ctx context.Context) error {
		breakdown = o.opts.Accountant.Compute(meta.MinutesElapsed, usage.PromptTokens, usage.CompletionTokens)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result *Result
	err = o.step(ctx, r, StagePersisting, apperrors.KindPersistenceFailure, func(ctx context.Context) error {
		audioURL := meta.AudioFileURL
		if o.opts.Archiver != nil {
			url, err := o.opts.Archiver.Archive(ctx, r.job.SessionID, recording.Path)
			if err != nil {
				return apperrors.Wrap(err, apperrors.KindPersistenceFailure, "archive recording")
			}
			audioURL = url
		}

		record := BuildRecord(r.job.SessionID, meta, summary, utterances, breakdown, audioURL)
		if _, err := o.opts.Repository.Save(ctx, record); err != nil {
			return apperrors.Wrap(err, apperrors.KindPersistenceFailure, "save call record")
		}
		result = BuildResult(record, r.id, usage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// step runs one stage and tags any error with it.
func (o *Orchestrator) step(ctx context.Context, r *run, stage Stage, fallback apperrors.Kind, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.WithStage(apperrors.Wrap(err, apperrors.KindInternal, "run cancelled"), string(stage), fallback)
	}

	r.stage = stage
	o.publish(r, stage, nil)
	r.logger.Debug("stage started", zap.String("stage", string(stage)))

	start := time.Now()
	err := fn(ctx)
	o.opts.Metrics.StageFinished(string(stage), time.Since(start))
	if err != nil {
		return apperrors.WithStage(err, string(stage), fallback)
	}
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, r *run, recording media.MediaFile) ([]models.Utterance, error) {
	transcriber := o.opts.Transcriber

	if recording.SizeBytes <= o.opts.LargeFileThreshold || o.opts.LargeFileThreshold <= 0 {
		utterances, err := transcriber.Transcribe(ctx, provider.TranscriptionRequest{
			Path:          recording.Path,
			SpeakerLabels: o.opts.SpeakerLabels,
		})
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.KindProviderFailure, "%s transcription failed", transcriber.Name())
		}
		return utterances, nil
	}

	r.logger.Info("recording above size threshold, segmenting",
		zap.Int64("size_bytes", recording.SizeBytes),
		zap.Int64("threshold_bytes", o.opts.LargeFileThreshold))

	segments, err := o.opts.Segmenter.Segment(ctx, recording, o.opts.SegmentDuration)
	if err != nil {
		return nil, apperrors.WithStage(err, string(StageTranscribing), apperrors.KindSegmentationError)
	}
	for _, seg := range segments {
		r.workFiles = append(r.workFiles, seg.Path)
	}

	transcripts := make([]SegmentTranscript, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.SegmentWorkers)
	for i, seg := range segments {
		g.Go(func() error {
			utterances, err := transcriber.Transcribe(gctx, provider.TranscriptionRequest{
				Path:          seg.Path,
				SpeakerLabels: o.opts.SpeakerLabels,
			})
			if err != nil {
				return apperrors.Wrapf(err, apperrors.KindProviderFailure,
					"%s transcription of segment %d failed", transcriber.Name(), seg.Index)
			}
			transcripts[i] = SegmentTranscript{Start: seg.Start, End: seg.End, Utterances: utterances}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeSegments(transcripts), nil
}

func (o *Orchestrator) fail(r *run, err error) {
	stage := Stage(apperrors.StageOf(err))
	if stage == "" {
		stage = r.stage
	}
	kind := apperrors.KindOf(err)

	o.opts.Metrics.RunFailed(string(stage))
	o.publish(r, StageFailed, func(ev *Event) {
		ev.FailedAt = stage
		ev.ErrorKind = string(kind)
		ev.Error = err.Error()
	})
	r.logger.Error("pipeline run failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

func (o *Orchestrator) publish(r *run, stage Stage, fill func(*Event)) {
	ev := Event{
		RunID:     r.id,
		SessionID: r.job.SessionID,
		Stage:     stage,
		Time:      time.Now().UTC(),
	}
	if fill != nil {
		fill(&ev)
	}
	o.events.Publish(ev)
}

func (o *Orchestrator) cleanup(r *run) {
	for _, path := range r.workFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove work file", zap.String("path", path), zap.Error(err))
		}
	}
}
