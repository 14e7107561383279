package media

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "notebot/pkg/errors"
	"notebot/pkg/storage"
)

func splitInto(t *testing.T, store storage.ChunkStore, sessionID string, data []byte, size int) int {
	t.Helper()
	n := 0
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		require.NoError(t, store.Put(context.Background(), sessionID, n, data[off:end]))
		n++
	}
	return n
}

func TestAssembleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	dir := t.TempDir()

	original := make([]byte, 1<<20+123)
	_, err := rand.Read(original)
	require.NoError(t, err)

	total := splitInto(t, store, "rt", original, 64*1024+7)

	a := NewAssembler(store, dir, ".m4a", nil)
	media, err := a.Assemble(ctx, "rt", total)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "rt.m4a"), media.Path)
	assert.Equal(t, int64(len(original)), media.SizeBytes)

	got, err := os.ReadFile(media.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, got), "assembled bytes differ from the original")

	records, err := store.List(ctx, "rt")
	require.NoError(t, err)
	assert.Empty(t, records, "chunks are deleted after assembly")
}

func TestAssembleMissingChunk(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	dir := t.TempDir()

	require.NoError(t, store.Put(ctx, "gap", 0, []byte("a")))
	require.NoError(t, store.Put(ctx, "gap", 2, []byte("c")))

	a := NewAssembler(store, dir, "", nil)
	_, err := a.Assemble(ctx, "gap", 3)
	assert.ErrorIs(t, err, apperrors.ErrIncompleteUpload)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial output is removed")

	records, err := store.List(ctx, "gap")
	require.NoError(t, err)
	assert.Len(t, records, 2, "chunks survive a failed assembly")
}

func TestPlanWindows(t *testing.T) {
	tests := []struct {
		name    string
		total   time.Duration
		segment time.Duration
		overlap time.Duration
		want    []Window
	}{
		{
			name:    "shorter than one segment",
			total:   10 * time.Minute,
			segment: 30 * time.Minute,
			overlap: 5 * time.Second,
			want:    []Window{{0, 10 * time.Minute}},
		},
		{
			name:    "exact multiple",
			total:   60 * time.Minute,
			segment: 30 * time.Minute,
			overlap: 5 * time.Second,
			want: []Window{
				{0, 30*time.Minute + 5*time.Second},
				{30 * time.Minute, 60 * time.Minute},
			},
		},
		{
			name:    "remainder",
			total:   70 * time.Minute,
			segment: 30 * time.Minute,
			overlap: 5 * time.Second,
			want: []Window{
				{0, 30*time.Minute + 5*time.Second},
				{30 * time.Minute, 60*time.Minute + 5*time.Second},
				{60 * time.Minute, 70 * time.Minute},
			},
		},
		{
			name:    "overlap clipped at the end",
			total:   61 * time.Second,
			segment: 30 * time.Second,
			overlap: 5 * time.Second,
			want: []Window{
				{0, 35 * time.Second},
				{30 * time.Second, 61 * time.Second},
				{60 * time.Second, 61 * time.Second},
			},
		},
		{
			name:  "empty",
			total: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanWindows(tt.total, tt.segment, tt.overlap)
			assert.Equal(t, tt.want, got)

			if len(got) == 0 {
				return
			}
			assert.Equal(t, time.Duration(0), got[0].Start)
			assert.Equal(t, tt.total, got[len(got)-1].End)
			for i := 1; i < len(got); i++ {
				assert.LessOrEqual(t, got[i].Start, got[i-1].End, "no gap before window %d", i)
				assert.LessOrEqual(t, got[i-1].End-got[i].Start, tt.overlap, "overlap bounded at window %d", i)
			}
		})
	}
}

func TestFFmpegSegmenterCutsEveryWindow(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "call.m4a")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	var cuts [][]string
	s := NewFFmpegSegmenter(5*time.Second, nil)
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte("3700.250\n"), nil
		}
		cuts = append(cuts, args)
		out := args[len(args)-1]
		return nil, os.WriteFile(out, []byte("part"), 0o644)
	}

	segments, err := s.Segment(context.Background(), MediaFile{Path: src}, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	require.Len(t, cuts, 3)

	assert.Equal(t, filepath.Join(dir, "call_part000.m4a"), segments[0].Path)
	assert.Equal(t, int64(4), segments[0].SizeBytes)
	assert.Equal(t, 30*time.Minute, segments[1].Start)
	assert.Equal(t, 60*time.Minute+5*time.Second, segments[1].End)
	assert.Equal(t, 2, segments[2].Index)

	assert.Contains(t, strings.Join(cuts[1], " "), "-ss 1800.000")
	assert.Contains(t, strings.Join(cuts[1], " "), "-t 1805.000")
	assert.Contains(t, strings.Join(cuts[1], " "), "-c copy")
}

func TestFFmpegSegmenterFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.m4a")

	s := NewFFmpegSegmenter(5*time.Second, nil)
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("moov atom not found")
	}
	_, err := s.Segment(context.Background(), MediaFile{Path: src}, 30*time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrSegmentationError)

	calls := 0
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte("4000"), nil
		}
		calls++
		out := args[len(args)-1]
		if calls == 2 {
			return nil, errors.New("invalid data found when processing input")
		}
		return nil, os.WriteFile(out, []byte("part"), 0o644)
	}
	_, err = s.Segment(context.Background(), MediaFile{Path: src}, 30*time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrSegmentationError)

	_, statErr := os.Stat(filepath.Join(dir, "broken_part000.m4a"))
	assert.True(t, os.IsNotExist(statErr), "earlier segments are cleaned up")
}
