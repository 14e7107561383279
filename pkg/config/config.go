package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"notebot/pkg/cost"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Cost      cost.Rates      `yaml:"cost"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type PipelineConfig struct {
	// Files strictly larger than this are segmented before transcription.
	LargeFileThreshold int64         `yaml:"large_file_threshold"`
	SegmentDuration    time.Duration `yaml:"segment_duration"`
	SegmentOverlap     time.Duration `yaml:"segment_overlap"`
	SegmentWorkers     int           `yaml:"segment_workers"`
	MaxConcurrentRuns  int           `yaml:"max_concurrent_runs"`
	QueueSize          int           `yaml:"queue_size"`
	RunTimeout         time.Duration `yaml:"run_timeout"`
	SpeakerLabels      bool          `yaml:"speaker_labels"`
	MediaExtension     string        `yaml:"media_extension"`
}

type ProvidersConfig struct {
	Transcriber        string `yaml:"transcriber"`
	Summarizer         string `yaml:"summarizer"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	OpenAIChatModel    string `yaml:"openai_chat_model"`
	OpenAIWhisperModel string `yaml:"openai_whisper_model"`
	AssemblyAIAPIKey   string `yaml:"assemblyai_api_key"`
	AssemblyAIBaseURL  string `yaml:"assemblyai_base_url"`
	GeminiAPIKey       string `yaml:"gemini_api_key"`
	GeminiModel        string `yaml:"gemini_model"`
}

type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	ChunkStore string `yaml:"chunk_store"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:       ":8001",
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  30 * time.Minute,
			MaxUploadSize: 5 * 1024 * 1024,
		},
		Session: SessionConfig{
			TTL:           2 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			LargeFileThreshold: 2 * 1024 * 1024 * 1024,
			SegmentDuration:    1800 * time.Second,
			SegmentOverlap:     5 * time.Second,
			SegmentWorkers:     2,
			MaxConcurrentRuns:  4,
			QueueSize:          64,
			RunTimeout:         2 * time.Hour,
			SpeakerLabels:      true,
			MediaExtension:     ".m4a",
		},
		Cost: cost.DefaultRates(),
		Providers: ProvidersConfig{
			Transcriber:        "assemblyai",
			Summarizer:         "openai",
			OpenAIChatModel:    "gpt-4o-mini",
			OpenAIWhisperModel: "whisper-1",
			AssemblyAIBaseURL:  "https://api.assemblyai.com",
			GeminiModel:        "gemini-2.0-flash",
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			ChunkStore: "badger",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:./data/notebot.db?cache=shared&mode=rwc",
		},
		Archive: ArchiveConfig{
			Endpoint: "localhost:9000",
			Bucket:   "notebot-recordings",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("NOTEBOT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Address, "NOTEBOT_ADDR")
	setString(&cfg.Storage.DataDir, "NOTEBOT_DATA_DIR")
	setString(&cfg.Storage.ChunkStore, "NOTEBOT_CHUNK_STORE")
	setString(&cfg.Database.Driver, "NOTEBOT_DB_DRIVER")
	setString(&cfg.Database.DSN, "NOTEBOT_DB_DSN")
	setString(&cfg.Providers.Transcriber, "NOTEBOT_TRANSCRIBER")
	setString(&cfg.Providers.Summarizer, "NOTEBOT_SUMMARIZER")
	setString(&cfg.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Providers.AssemblyAIAPIKey, "ASSEMBLYAI_API_KEY")
	setString(&cfg.Providers.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.Archive.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Archive.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Archive.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Archive.Bucket, "MINIO_BUCKET")

	var errs []error
	errs = append(errs,
		setInt(&cfg.Pipeline.MaxConcurrentRuns, "NOTEBOT_MAX_CONCURRENT_RUNS"),
		setInt64(&cfg.Pipeline.LargeFileThreshold, "NOTEBOT_LARGE_FILE_THRESHOLD"),
		setDuration(&cfg.Session.TTL, "NOTEBOT_SESSION_TTL"),
		setBool(&cfg.Archive.Enabled, "NOTEBOT_ARCHIVE_ENABLED"),
		setBool(&cfg.Archive.UseSSL, "MINIO_USE_SSL"),
		setBool(&cfg.Log.Development, "NOTEBOT_LOG_DEVELOPMENT"),
	)
	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("server.max_upload_size must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.Pipeline.LargeFileThreshold <= 0 {
		errs = append(errs, errors.New("pipeline.large_file_threshold must be positive"))
	}
	if c.Pipeline.SegmentDuration <= 0 {
		errs = append(errs, errors.New("pipeline.segment_duration must be positive"))
	}
	if c.Pipeline.SegmentOverlap < 0 || c.Pipeline.SegmentOverlap >= c.Pipeline.SegmentDuration {
		errs = append(errs, errors.New("pipeline.segment_overlap must be in [0, segment_duration)"))
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		errs = append(errs, errors.New("pipeline.max_concurrent_runs must be positive"))
	}
	if c.Pipeline.SegmentWorkers <= 0 {
		errs = append(errs, errors.New("pipeline.segment_workers must be positive"))
	}
	if c.Pipeline.QueueSize < 0 {
		errs = append(errs, errors.New("pipeline.queue_size must not be negative"))
	}
	if !strings.HasPrefix(c.Pipeline.MediaExtension, ".") {
		errs = append(errs, errors.New("pipeline.media_extension must start with a dot"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
