package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "notebot/pkg/errors"
	"notebot/pkg/logging"
)

// Window is a time range of the source recording.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Segment is one cut of a larger recording. Start and End locate the cut
// in the source timeline.
type Segment struct {
	MediaFile
	Index int
	Start time.Duration
	End   time.Duration
}

type Segmenter interface {
	Segment(ctx context.Context, media MediaFile, segmentDuration time.Duration) ([]Segment, error)
}

// PlanWindows covers [0, total) with windows starting every segment. Every
// window but the last runs overlap past the start of the next one.
func PlanWindows(total, segment, overlap time.Duration) []Window {
	if total <= 0 {
		return nil
	}
	if segment <= 0 || segment >= total {
		return []Window{{Start: 0, End: total}}
	}
	if overlap < 0 {
		overlap = 0
	}

	var windows []Window
	for start := time.Duration(0); start < total; start += segment {
		end := start + segment
		if end < total {
			end += overlap
		}
		if end > total {
			end = total
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// FFmpegSegmenter probes the duration with ffprobe and stream-copies each
// window with ffmpeg, so no audio is re-encoded.
type FFmpegSegmenter struct {
	ffmpeg  string
	ffprobe string
	overlap time.Duration
	logger  *zap.Logger
	run     runFunc
}

func NewFFmpegSegmenter(overlap time.Duration, logger *zap.Logger) *FFmpegSegmenter {
	return &FFmpegSegmenter{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		overlap: overlap,
		logger:  logging.OrNop(logger).Named("segmenter"),
		run:     runCommand,
	}
}

// Overlap returns the margin added at window boundaries.
func (s *FFmpegSegmenter) Overlap() time.Duration {
	return s.overlap
}

func (s *FFmpegSegmenter) Segment(ctx context.Context, media MediaFile, segmentDuration time.Duration) ([]Segment, error) {
	total, err := s.probeDuration(ctx, media.Path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.KindSegmentationError, "probe duration of %s", filepath.Base(media.Path))
	}

	windows := PlanWindows(total, segmentDuration, s.overlap)
	if len(windows) == 0 {
		return nil, apperrors.Newf(apperrors.KindSegmentationError, "%s has no playable duration", filepath.Base(media.Path))
	}

	ext := filepath.Ext(media.Path)
	base := strings.TrimSuffix(media.Path, ext)
	segments := make([]Segment, 0, len(windows))
	for i, w := range windows {
		out := fmt.Sprintf("%s_part%03d%s", base, i, ext)
		_, err := s.run(ctx, s.ffmpeg,
			"-y", "-v", "error",
			"-ss", formatSeconds(w.Start),
			"-i", media.Path,
			"-t", formatSeconds(w.End-w.Start),
			"-c", "copy",
			out,
		)
		if err != nil {
			RemoveSegments(segments)
			os.Remove(out)
			return nil, apperrors.Wrapf(err, apperrors.KindSegmentationError, "cut segment %d", i)
		}

		var size int64
		if info, err := os.Stat(out); err == nil {
			size = info.Size()
		}
		segments = append(segments, Segment{
			MediaFile: MediaFile{Path: out, SizeBytes: size},
			Index:     i,
			Start:     w.Start,
			End:       w.End,
		})
	}

	s.logger.Info("recording segmented",
		zap.String("path", media.Path),
		zap.Duration("duration", total),
		zap.Int("segments", len(segments)))
	return segments, nil
}

func (s *FFmpegSegmenter) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	out, err := s.run(ctx, s.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// RemoveSegments deletes the segment files.
func RemoveSegments(segments []Segment) {
	for _, seg := range segments {
		os.Remove(seg.Path)
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
