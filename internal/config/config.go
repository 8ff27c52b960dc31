package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	QueueCapacity   int `env:"QUEUE_CAPACITY" envDefault:"100"`
	ConsumerWorkers int `env:"CONSUMER_WORKERS" envDefault:"4"`

	UploadDir    string        `env:"UPLOAD_DIR" envDefault:"./uploads"`
	RegistryPath string        `env:"REGISTRY_PATH"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	InitialDelay time.Duration `env:"INITIAL_RETRY_DELAY" envDefault:"1s"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5m"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	RegistrySweepInterval time.Duration `env:"REGISTRY_SWEEP_INTERVAL" envDefault:"1h"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config enables optional archival of accepted files to an S3-compatible
// object store. Archival is off while Bucket is empty.
type S3Config struct {
	Endpoint      string `env:"ENDPOINT"`
	Bucket        string `env:"BUCKET"`
	Region        string `env:"REGION" envDefault:"us-east-1"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	Prefix        string `env:"PREFIX"`
	UploadWorkers int    `env:"UPLOAD_WORKERS" envDefault:"2"`
	QueueSize     int    `env:"QUEUE_SIZE" envDefault:"64"`
}

// Enabled reports whether S3 archival is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// ProducerConfig configures the producer client binary.
type ProducerConfig struct {
	ServerURL       string        `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	SourceDirs      []string      `env:"SOURCE_DIRS" envDefault:"./source" envSeparator:","`
	ProducerWorkers int           `env:"PRODUCER_WORKERS" envDefault:"2"`
	ChunkSize       int           `env:"CHUNK_SIZE" envDefault:"65536"`
	UploadAttempts  int           `env:"UPLOAD_MAX_ATTEMPTS" envDefault:"5"`
	UploadBackoff   time.Duration `env:"UPLOAD_INITIAL_BACKOFF" envDefault:"1s"`
	WatchSource     bool          `env:"WATCH_SOURCE" envDefault:"false"`
	ReadyTimeout    time.Duration `env:"READY_TIMEOUT" envDefault:"30s"`
	AuthToken       string        `env:"AUTH_TOKEN"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	HTTPAddr  string
	LogLevel  string
	UploadDir string
}

// Load reads server configuration from .env file, environment variables,
// and CLI overrides. Priority: CLI flags > environment variables > .env
// file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	loadEnvFile(overrides.EnvFile)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.UploadDir != "" {
		cfg.UploadDir = overrides.UploadDir
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = filepath.Join(cfg.UploadDir, "registry.json")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.QueueCapacity < 1 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be at least 1, got %d", cfg.QueueCapacity)
	}
	if cfg.ConsumerWorkers < 1 {
		return nil, fmt.Errorf("CONSUMER_WORKERS must be at least 1, got %d", cfg.ConsumerWorkers)
	}

	return cfg, nil
}

// ProducerOverrides holds CLI flag values for the producer binary.
type ProducerOverrides struct {
	EnvFile    string
	ServerURL  string
	SourceDirs []string
	LogLevel   string
	Watch      bool
	WatchSet   bool
}

// LoadProducer reads producer configuration with the same priority rules
// as Load.
func LoadProducer(overrides ProducerOverrides) (*ProducerConfig, error) {
	loadEnvFile(overrides.EnvFile)

	cfg := &ProducerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.ServerURL != "" {
		cfg.ServerURL = overrides.ServerURL
	}
	if len(overrides.SourceDirs) > 0 {
		cfg.SourceDirs = overrides.SourceDirs
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WatchSet {
		cfg.WatchSource = overrides.Watch
	}

	return cfg, nil
}

// loadEnvFile loads the .env file if present (silent if missing).
func loadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		_ = godotenv.Load(path)
	}
}
