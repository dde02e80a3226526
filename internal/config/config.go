package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

var ErrInvalidValue = errors.New("invalid configuration value")

const (
	VectorBackendWeaviate = "weaviate"
	VectorBackendMemory   = "memory"

	DispatchInline = "inline"
	DispatchNSQ    = "nsq"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"smartdoc"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"smartdoc"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Vector store
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass  string `envconfig:"WEAVIATE_CLASS" default:"DocumentChunk"`

	// Queue
	NSQLookupd        string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost          string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP          string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	IndexDispatch     string `envconfig:"INDEX_DISPATCH" default:"inline"`
	EnableIndexWorker bool   `envconfig:"ENABLE_INDEX_WORKER" default:"false"`

	// Models
	GeminiAPIKey           string `envconfig:"GEMINI_API_KEY"`
	GeminiTextModel        string `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.5-flash"`
	GeminiEmbedModel       string `envconfig:"GEMINI_EMBED_MODEL" default:"text-embedding-004"`
	GeminiRPM              int    `envconfig:"GEMINI_RPM" default:"60"`
	EmbedTimeoutSeconds    int    `envconfig:"EMBED_TIMEOUT_SECONDS" default:"20"`
	GenerateTimeoutSeconds int    `envconfig:"GENERATE_TIMEOUT_SECONDS" default:"30"`

	// Document store
	DocstoreURL            string `envconfig:"DOCSTORE_URL" default:"http://localhost:5000"`
	ServiceToken           string `envconfig:"SERVICE_TOKEN"`
	DocstoreTimeoutSeconds int    `envconfig:"DOCSTORE_TIMEOUT_SECONDS" default:"45"`

	// Indexing
	ChunkSize      int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int `envconfig:"CHUNK_OVERLAP" default:"200"`
	IndexBatchSize int `envconfig:"INDEX_BATCH_SIZE" default:"64"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"5001"`
	FrontendOrigins string `envconfig:"FRONTEND_ORIGINS" default:"http://localhost:3000"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"25"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once, each wrapped in
// ErrMissingRequired or ErrInvalidValue.
func (c *Config) Validate() error {
	var errs []error
	missing := func(key, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingRequired, key))
		}
	}
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidValue}, args...)...))
	}

	missing("DB_HOST", c.DBHost)
	missing("DB_USER", c.DBUser)
	missing("DB_NAME", c.DBName)

	switch c.VectorBackend {
	case "", VectorBackendMemory:
	case VectorBackendWeaviate:
		missing("WEAVIATE_HOST", c.WeaviateHost)
		if c.WeaviateScheme != "" && c.WeaviateScheme != "http" && c.WeaviateScheme != "https" {
			invalid("WEAVIATE_SCHEME=%q", c.WeaviateScheme)
		}
	default:
		invalid("VECTOR_BACKEND=%q", c.VectorBackend)
	}

	switch c.IndexDispatch {
	case "", DispatchInline:
	case DispatchNSQ:
		missing("NSQD_HOST", c.NSQDHost)
	default:
		invalid("INDEX_DISPATCH=%q", c.IndexDispatch)
	}
	if c.EnableIndexWorker {
		missing("NSQ_LOOKUPD", c.NSQLookupd)
	}

	if c.ChunkSize < 0 || c.ChunkOverlap < 0 || (c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize) {
		invalid("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		invalid("SERVER_PORT=%d", c.ServerPort)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		invalid("LOG_LEVEL=%q", c.LogLevel)
	}
	return errors.Join(errs...)
}

// Origins splits FRONTEND_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.FrontendOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
