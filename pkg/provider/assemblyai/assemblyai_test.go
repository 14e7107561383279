package assemblyai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebot/pkg/models"
	"notebot/pkg/provider"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.m4a")
	require.NoError(t, os.WriteFile(path, []byte("fake audio"), 0o644))
	return path
}

func TestTranscribe(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fake audio", string(body))
		w.Write([]byte(`{"upload_url":"https://cdn.example/abc"}`))
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var req transcriptRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://cdn.example/abc", req.AudioURL)
		assert.True(t, req.SpeakerLabels)
		w.Write([]byte(`{"id":"tx1","status":"queued"}`))
	})
	mux.HandleFunc("/v2/transcript/tx1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			w.Write([]byte(`{"id":"tx1","status":"processing"}`))
			return
		}
		w.Write([]byte(`{"id":"tx1","status":"completed","utterances":[
			{"speaker":"A","start":0,"end":1500,"text":"Hello there.","confidence":0.93},
			{"speaker":"B","start":1600,"end":2400,"text":"Hi.","confidence":0.88}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{APIKey: "secret", BaseURL: srv.URL, PollInterval: 10 * time.Millisecond}, nil)
	got, err := c.Transcribe(context.Background(), provider.TranscriptionRequest{Path: writeAudio(t), SpeakerLabels: true})
	require.NoError(t, err)

	assert.Equal(t, []models.Utterance{
		{Speaker: "A", Start: 0, End: 1500, Text: "Hello there.", Confidence: 0.93},
		{Speaker: "B", Start: 1600, End: 2400, Text: "Hi.", Confidence: 0.88},
	}, got)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(2))
}

func TestTranscribeFailedJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"upload_url":"u"}`))
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"bad","status":"queued"}`))
	})
	mux.HandleFunc("/v2/transcript/bad", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"bad","status":"error","error":"audio too short"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, PollInterval: time.Millisecond}, nil)
	_, err := c.Transcribe(context.Background(), provider.TranscriptionRequest{Path: writeAudio(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio too short")
}

func TestTranscribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := c.Transcribe(context.Background(), provider.TranscriptionRequest{Path: writeAudio(t)})

	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestToUtterancesWithoutSpeakerLabels(t *testing.T) {
	got := toUtterances(transcript{Text: " whole call ", Confidence: 0.7, AudioDuration: 12.5})
	assert.Equal(t, []models.Utterance{{Speaker: "A", End: 12500, Text: "whole call", Confidence: 0.7}}, got)
	assert.Nil(t, toUtterances(transcript{}))
}
