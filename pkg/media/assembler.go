// Package media turns stored chunks into a recording on disk and, for very
// large recordings, cuts it into time windows small enough to transcribe.
package media

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	apperrors "notebot/pkg/errors"
	"notebot/pkg/logging"
	"notebot/pkg/storage"
)

// MediaFile is a recording on local disk.
type MediaFile struct {
	Path      string
	SizeBytes int64
}

// Assembler concatenates a session's chunks into one file.
type Assembler struct {
	store   storage.ChunkStore
	workDir string
	ext     string
	logger  *zap.Logger
}

func NewAssembler(store storage.ChunkStore, workDir, ext string, logger *zap.Logger) *Assembler {
	if ext == "" {
		ext = ".m4a"
	}
	return &Assembler{
		store:   store,
		workDir: workDir,
		ext:     ext,
		logger:  logging.OrNop(logger).Named("assembler"),
	}
}

// Assemble writes chunks 0..totalChunks-1 in index order to
// <workDir>/<sessionID><ext>. The bytes are copied unchanged. On success the
// session's chunks are deleted from the store.
func (a *Assembler) Assemble(ctx context.Context, sessionID string, totalChunks int) (MediaFile, error) {
	if err := os.MkdirAll(a.workDir, 0o755); err != nil {
		return MediaFile{}, apperrors.Wrap(err, apperrors.KindInternal, "create work directory")
	}

	path := filepath.Join(a.workDir, sessionID+a.ext)
	tmp := path + ".part"

	size, err := a.writeChunks(ctx, tmp, sessionID, totalChunks)
	if err != nil {
		os.Remove(tmp)
		return MediaFile{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return MediaFile{}, apperrors.Wrap(err, apperrors.KindInternal, "finalize assembled file")
	}

	if err := a.store.DeleteNamespace(ctx, sessionID); err != nil {
		a.logger.Warn("failed to delete assembled chunks",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	a.logger.Info("recording assembled",
		zap.String("session_id", sessionID),
		zap.Int("total_chunks", totalChunks),
		zap.Int64("size_bytes", size),
		zap.String("path", path))
	return MediaFile{Path: path, SizeBytes: size}, nil
}

func (a *Assembler) writeChunks(ctx context.Context, path, sessionID string, totalChunks int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindInternal, "create assembled file")
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)
	var size int64
	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return 0, apperrors.Wrap(err, apperrors.KindInternal, "assembly cancelled")
		}
		data, err := a.store.Get(ctx, sessionID, i)
		if stderrors.Is(err, storage.ErrChunkNotFound) {
			return 0, apperrors.Newf(apperrors.KindIncompleteUpload,
				"chunk %d of %d missing for session %s", i, totalChunks, sessionID)
		}
		if err != nil {
			return 0, apperrors.Wrapf(err, apperrors.KindInternal, "read chunk %d", i)
		}
		n, err := w.Write(data)
		if err != nil {
			return 0, apperrors.Wrap(err, apperrors.KindInternal, "write assembled file")
		}
		size += int64(n)
	}
	if err := w.Flush(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindInternal, "flush assembled file")
	}
	if err := f.Sync(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindInternal, fmt.Sprintf("sync %s", path))
	}
	return size, nil
}
