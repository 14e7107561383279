package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Newf(KindSessionNotFound, "session %q not found", "s1")
	assert.True(t, stderrors.Is(err, ErrSessionNotFound))
	assert.False(t, stderrors.Is(err, ErrProtocolViolation))

	wrapped := fmt.Errorf("upload: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrSessionNotFound))
	assert.Equal(t, KindSessionNotFound, KindOf(wrapped))
}

func TestWithStage(t *testing.T) {
	plain := stderrors.New("boom")
	err := WithStage(plain, "transcribing", KindProviderFailure)
	assert.Equal(t, KindProviderFailure, KindOf(err))
	assert.Equal(t, "transcribing", StageOf(err))
	assert.True(t, stderrors.Is(err, plain))
	assert.Contains(t, err.Error(), "transcribing")

	typed := New(KindSummarizationFormatError, "not json")
	err = WithStage(typed, "summarizing", KindProviderFailure)
	assert.Equal(t, KindSummarizationFormatError, KindOf(err))
	assert.Equal(t, "summarizing", StageOf(err))
	assert.Empty(t, typed.Stage, "original must not be mutated")

	again := WithStage(err, "persisting", KindPersistenceFailure)
	assert.Equal(t, "summarizing", StageOf(again))

	assert.Nil(t, WithStage(nil, "x", KindInternal))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
		client bool
	}{
		{KindProtocolViolation, http.StatusBadRequest, true},
		{KindInvalidChunkIndex, http.StatusBadRequest, true},
		{KindSessionNotFound, http.StatusNotFound, true},
		{KindSessionExpired, http.StatusGone, true},
		{KindIncompleteUpload, http.StatusInternalServerError, false},
		{KindSegmentationError, http.StatusInternalServerError, false},
		{KindProviderFailure, http.StatusBadGateway, false},
		{KindSummarizationFormatError, http.StatusInternalServerError, false},
		{KindInternal, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.kind))
			assert.Equal(t, tt.client, IsClientError(tt.kind))
		})
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(stderrors.New("x")))
	assert.Nil(t, Wrap(nil, KindInternal, "nothing"))
}
