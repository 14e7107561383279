package pipeline

import (
	"time"

	"github.com/samber/lo"

	"notebot/pkg/models"
)

// SegmentTranscript is the transcription of one segment. Start and End
// locate the segment in the source recording; utterance offsets are
// relative to Start.
type SegmentTranscript struct {
	Start      time.Duration
	End        time.Duration
	Utterances []models.Utterance
}

// MergeSegments concatenates segment transcripts in order after shifting
// them onto the source timeline. An utterance of segment k that lies wholly
// inside the overlap with segment k-1, [Start_k, End_k-1), was already
// transcribed by segment k-1 and is dropped.
func MergeSegments(segments []SegmentTranscript) []models.Utterance {
	merged := make([]models.Utterance, 0)
	for k, seg := range segments {
		offset := seg.Start.Milliseconds()
		shifted := lo.Map(seg.Utterances, func(u models.Utterance, _ int) models.Utterance {
			u.Start += offset
			u.End += offset
			return u
		})

		if k > 0 {
			overlapStart := seg.Start.Milliseconds()
			overlapEnd := segments[k-1].End.Milliseconds()
			shifted = lo.Reject(shifted, func(u models.Utterance, _ int) bool {
				return u.Start >= overlapStart && u.End <= overlapEnd
			})
		}
		merged = append(merged, shifted...)
	}
	return merged
}
