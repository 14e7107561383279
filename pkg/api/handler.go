package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apperrors "notebot/pkg/errors"
	"notebot/pkg/logging"
	"notebot/pkg/models"
	"notebot/pkg/pipeline"
	"notebot/pkg/repository"
	"notebot/pkg/session"
)

const (
	defaultListLimit = 50
	multipartMemory  = 32 << 20
)

// Runner executes the pipeline for a session whose upload just completed.
type Runner interface {
	Submit(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)
}

type Options struct {
	Sessions   *session.Manager
	Runner     Runner
	Repository repository.Repository
	Hub        *pipeline.Hub
	Logger     *zap.Logger
	// MaxUploadSize bounds the size of one upload request body.
	MaxUploadSize int64
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
	// CORS defaults to DefaultCORSConfig.
	CORS *CORSConfig
}

type Handlers struct {
	sessions      *session.Manager
	runner        Runner
	repo          repository.Repository
	hub           *pipeline.Hub
	logger        *zap.Logger
	maxUploadSize int64
	metrics       http.Handler
	cors          CORSConfig
}

func NewHandlers(opts Options) *Handlers {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 5 * 1024 * 1024
	}
	hub := opts.Hub
	if hub == nil {
		hub = pipeline.NewHub(opts.Logger)
	}
	corsConfig := DefaultCORSConfig()
	if opts.CORS != nil {
		corsConfig = *opts.CORS
	}
	return &Handlers{
		sessions:      opts.Sessions,
		runner:        opts.Runner,
		repo:          opts.Repository,
		hub:           hub,
		logger:        logging.OrNop(opts.Logger).Named("api"),
		maxUploadSize: opts.MaxUploadSize,
		metrics:       opts.Metrics,
		cors:          corsConfig,
	}
}

// Router wires every route and the shared middleware.
func (h *Handlers) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(requestID, h.accessLog)

	api := router.PathPrefix("/api/notebot").Subrouter()
	api.HandleFunc("/ping", h.PingHandler).Methods(http.MethodGet)
	api.HandleFunc("/calls", h.ListCallsHandler).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}", h.GetCallHandler).Methods(http.MethodGet)

	api.Handle("/upload_call_details", bodyLimit(h.maxUploadSize)(http.HandlerFunc(h.UploadHandler))).
		Methods(http.MethodPost)

	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.WebSocketHandler)
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}
	return cors(h.cors, router)
}

type uploadResponse struct {
	Message string           `json:"message"`
	Data    *pipeline.Result `json:"data,omitempty"`
}

// UploadHandler accepts one chunk of a multipart upload. The request that
// delivers the last missing chunk runs the pipeline and returns its result.
func (h *Handlers) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorStatus(w, r, http.StatusRequestEntityTooLarge, apperrors.KindProtocolViolation,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeError(w, r, apperrors.Wrap(err, apperrors.KindProtocolViolation, "Failed to parse form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	chunkIndex, err := formInt(r, "chunk_index")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	totalChunks, err := formInt(r, "total_chunks")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var metadata *models.CallMetadata
	if raw := r.FormValue("call_details"); raw != "" {
		metadata, err = models.ParseCallMetadata([]byte(raw))
		if err != nil {
			h.writeError(w, r, apperrors.Wrap(err, apperrors.KindProtocolViolation, "Failed to parse call details JSON"))
			return
		}
	}

	data, err := readFormFile(r, "file")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.sessions.BeginOrContinue(sessionID, totalChunks, metadata); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	accepted, err := h.sessions.AcceptChunk(ctx, sessionID, chunkIndex, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logger := h.logger.With(
		zap.String("request_id", RequestIDFrom(ctx)),
		zap.String("session_id", sessionID))
	logger.Info("chunk received",
		zap.Int("chunk_index", chunkIndex),
		zap.Int("received", accepted.Received),
		zap.Int("total_chunks", accepted.Total),
		zap.Int("size", len(data)))

	if !accepted.CompletionTransition {
		writeJSON(w, http.StatusOK, uploadResponse{
			Message: fmt.Sprintf("Chunk %d received successfully", chunkIndex+1),
		})
		return
	}

	logger.Info("all chunks received, starting pipeline")
	result, err := h.runner.Submit(ctx, pipeline.Job{
		SessionID:   sessionID,
		TotalChunks: accepted.Total,
		Metadata:    accepted.Session.Metadata,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrPoolStopped) {
			h.sessions.Finish(context.WithoutCancel(ctx), sessionID, err)
		}
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message: "File assembled and processed successfully",
		Data:    result,
	})
}

func (h *Handlers) ListCallsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	records, err := h.repo.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, apperrors.Wrap(err, apperrors.KindPersistenceFailure, "list call records"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"call_details": records,
		"count":        len(records),
	})
}

func (h *Handlers) GetCallHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		h.writeErrorStatus(w, r, http.StatusNotFound, "not_found", fmt.Sprintf("call record %s not found", id))
		return
	}
	if err != nil {
		h.writeError(w, r, apperrors.Wrap(err, apperrors.KindPersistenceFailure, "get call record"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) PingHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "pong")
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": h.sessions.Len(),
	})
}

func formInt(r *http.Request, field string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0, apperrors.Newf(apperrors.KindProtocolViolation, "%s is required", field)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Newf(apperrors.KindProtocolViolation, "%s must be an integer", field)
	}
	return n, nil
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindProtocolViolation, "%s is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindProtocolViolation, "Failed to read audio file")
	}
	return data, nil
}

type errorResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	if !apperrors.IsClientError(kind) {
		h.logger.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	writeJSON(w, status, errorResponse{
		Kind:      string(kind),
		Message:   err.Error(),
		Stage:     apperrors.StageOf(err),
		RequestID: RequestIDFrom(r.Context()),
	})
}

func (h *Handlers) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, kind apperrors.Kind, message string) {
	writeJSON(w, status, errorResponse{
		Kind:      string(kind),
		Message:   message,
		RequestID: RequestIDFrom(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
