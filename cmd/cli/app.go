package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"notebot/pkg/config"
	"notebot/pkg/cost"
	"notebot/pkg/media"
	"notebot/pkg/metrics"
	"notebot/pkg/pipeline"
	"notebot/pkg/provider"
	"notebot/pkg/provider/assemblyai"
	"notebot/pkg/provider/gemini"
	"notebot/pkg/provider/openai"
	"notebot/pkg/repository"
	"notebot/pkg/session"
	"notebot/pkg/storage"
)

// app is the fully wired service.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.ChunkStore
	repo     repository.Repository
	sessions *session.Manager
	hub      *pipeline.Hub
	pool     *pipeline.Pool
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	m := metrics.New(reg)

	store, err := openChunkStore(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	transcriber, err := newTranscriber(cfg, logger)
	if err != nil {
		store.Close()
		repo.Close()
		return nil, err
	}
	summarizer, err := newSummarizer(ctx, cfg, logger)
	if err != nil {
		store.Close()
		repo.Close()
		return nil, err
	}

	var archiver storage.Archiver
	if cfg.Archive.Enabled {
		archiver, err = storage.NewMinioArchiver(ctx, storage.MinioOptions{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			store.Close()
			repo.Close()
			return nil, fmt.Errorf("connect archive: %w", err)
		}
	}

	sessions := session.NewManager(store, session.Options{
		TTL:     cfg.Session.TTL,
		Logger:  logger,
		Metrics: m,
	})
	hub := pipeline.NewHub(logger)

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Assembler:          media.NewAssembler(store, filepath.Join(cfg.Storage.DataDir, "work"), cfg.Pipeline.MediaExtension, logger),
		Segmenter:          media.NewFFmpegSegmenter(cfg.Pipeline.SegmentOverlap, logger),
		Transcriber:        transcriber,
		Summarizer:         summarizer,
		Accountant:         cost.NewAccountant(cfg.Cost),
		Repository:         repo,
		Archiver:           archiver,
		Events:             hub,
		Metrics:            m,
		Logger:             logger,
		LargeFileThreshold: cfg.Pipeline.LargeFileThreshold,
		SegmentDuration:    cfg.Pipeline.SegmentDuration,
		SegmentWorkers:     cfg.Pipeline.SegmentWorkers,
		SpeakerLabels:      cfg.Pipeline.SpeakerLabels,
		RunTimeout:         cfg.Pipeline.RunTimeout,
	})

	pool := pipeline.NewPool(cfg.Pipeline.MaxConcurrentRuns, cfg.Pipeline.QueueSize,
		func(ctx context.Context, job pipeline.Job) (*pipeline.Result, error) {
			result, err := orchestrator.Run(ctx, job)
			sessions.Finish(context.WithoutCancel(ctx), job.SessionID, err)
			return result, err
		})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		repo:     repo,
		sessions: sessions,
		hub:      hub,
		pool:     pool,
	}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("failed to close repository", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close chunk store", zap.Error(err))
	}
}

func openChunkStore(cfg *config.Config) (storage.ChunkStore, error) {
	switch cfg.Storage.ChunkStore {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "badger", "":
		store, err := storage.NewDiskStore(filepath.Join(cfg.Storage.DataDir, "chunks"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize disk storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown chunk store %q", cfg.Storage.ChunkStore)
	}
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	repo, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return repo, nil
}

func newTranscriber(cfg *config.Config, logger *zap.Logger) (provider.Transcriber, error) {
	p := cfg.Providers
	switch p.Transcriber {
	case "assemblyai":
		if p.AssemblyAIAPIKey == "" {
			return nil, errors.New("ASSEMBLYAI_API_KEY is required for the assemblyai transcriber")
		}
		return assemblyai.New(assemblyai.Config{APIKey: p.AssemblyAIAPIKey, BaseURL: p.AssemblyAIBaseURL}, logger), nil
	case "openai":
		if p.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai transcriber")
		}
		return openai.NewTranscriber(openaiConfig(p)), nil
	default:
		return nil, fmt.Errorf("unknown transcriber %q", p.Transcriber)
	}
}

func newSummarizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (provider.Summarizer, error) {
	p := cfg.Providers
	switch p.Summarizer {
	case "openai":
		if p.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai summarizer")
		}
		return openai.NewSummarizer(openaiConfig(p), logger), nil
	case "gemini":
		if p.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini summarizer")
		}
		summarizer, err := gemini.NewSummarizer(ctx, gemini.Config{APIKey: p.GeminiAPIKey, Model: p.GeminiModel}, logger)
		if err != nil {
			return nil, err
		}
		return summarizer, nil
	default:
		return nil, fmt.Errorf("unknown summarizer %q", p.Summarizer)
	}
}

func openaiConfig(p config.ProvidersConfig) openai.Config {
	return openai.Config{
		APIKey:       p.OpenAIAPIKey,
		BaseURL:      p.OpenAIBaseURL,
		ChatModel:    p.OpenAIChatModel,
		WhisperModel: p.OpenAIWhisperModel,
	}
}
