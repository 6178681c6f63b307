package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// Model backends.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Record store.
	DataPath      string
	ReferenceYear int
	StatsCacheTTL time.Duration

	// Classifier backend.
	ModelBackend      string
	ModelArtifactPath string
	ModelServerURL    string
	ModelTimeout      time.Duration
	ModelCacheSize    int
	MaxPredictBatch   int

	// Kafka scoring pipeline, off unless SCORING_ENABLED=true.
	ScoringEnabled     bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	modelTimeout, err := parsePositiveDuration("MODEL_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	statsTTL, err := parsePositiveDuration("STATS_CACHE_TTL", "5m")
	if err != nil {
		return nil, err
	}

	referenceYear, err := parsePositiveInt("REFERENCE_YEAR", domain.DefaultReferenceYear)
	if err != nil {
		return nil, err
	}

	maxBatch, err := parsePositiveInt("MAX_PREDICT_BATCH", 500)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataPath:      sharedcfg.EnvOrDefault("DATA_PATH", "data/pumps.csv"),
		ReferenceYear: referenceYear,
		StatsCacheTTL: statsTTL,

		ModelBackend:      sharedcfg.EnvOrDefault("MODEL_BACKEND", BackendLocal),
		ModelArtifactPath: sharedcfg.EnvOrDefault("MODEL_ARTIFACT_PATH", "models/pump_classifier.json"),
		ModelServerURL:    os.Getenv("MODEL_SERVER_URL"),
		ModelTimeout:      modelTimeout,
		ModelCacheSize:    parseModelCacheSize(),
		MaxPredictBatch:   maxBatch,

		ScoringEnabled:     os.Getenv("SCORING_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-pump-records"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "pump-status-predictions"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "pump-status-scoring"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.DataPath == "" {
		return nil, errors.New("DATA_PATH is required")
	}

	switch cfg.ModelBackend {
	case BackendLocal:
		if cfg.ModelArtifactPath == "" {
			return nil, errors.New("MODEL_ARTIFACT_PATH is required for the local model backend")
		}
	case BackendRemote:
		if cfg.ModelServerURL == "" {
			return nil, errors.New("MODEL_BACKEND is remote but MODEL_SERVER_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid MODEL_BACKEND %q: want %s or %s", cfg.ModelBackend, BackendLocal, BackendRemote)
	}

	if cfg.ScoringEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}

func parseModelCacheSize() int {
	if s := os.Getenv("MODEL_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return 1000
}
