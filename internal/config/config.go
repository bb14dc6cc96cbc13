package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	GinMode        string
	CORSOrigins    []string
	MaxRequestSize int64
	MaxFileSize    int64
	UploadDir      string

	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTier        string
	GeminiTemperature float64
	LLMDisabled       bool

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "local"
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	LocalEmbeddingDim     int

	// Vector store
	VectorStore         string // "mongo" (default), "memory"
	MongoURI            string
	DBName              string
	DocumentsCollection string
	UpdatesCollection   string
	VectorSearchEnabled bool
	VectorIndexName     string

	// Redis Configuration
	RedisEnabled      bool
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	EmbeddingCacheTTL time.Duration
	RateLimitReqs     int
	RateLimitWindow   int

	// Retrieval and reasoning
	MaxChunkSize      int
	ChunkOverlap      int
	DefaultSearchK    int
	MaxEvidenceChars  int
	MaxToolIterations int
	ChatTurnTimeout   time.Duration
	ChatHistoryLimit  int

	InteractionLogDir string

	// Legal updates feed
	UpdatesEnabled     bool
	UpdatesRefreshCron string
	UpdatesMaxResults  int
	UpdatesTimeout     time.Duration
	PRSBillsURL        string
	AmendmentsURL      string
	IndiaCodeURL       string

	// OpenTelemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		CORSOrigins:    strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxRequestSize: getEnvInt64("MAX_REQUEST_SIZE", 1048576), // 1MB for JSON bodies
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 52428800),   // 50MB uploads
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:        getEnv("GEMINI_TIER", "free"),
		GeminiTemperature: getEnvFloat64("GEMINI_TEMPERATURE", 0.2),
		LLMDisabled:       getEnvBool("LLM_DISABLED", false),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		LocalEmbeddingDim:     getEnvInt("LOCAL_EMBEDDING_DIM", 256),

		VectorStore:         getEnv("VECTOR_STORE", "mongo"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017/legal_assistant"),
		DBName:              getEnv("DB_NAME", "legal_assistant"),
		DocumentsCollection: getEnv("DOCUMENTS_COLLECTION", "legal_documents"),
		UpdatesCollection:   getEnv("UPDATES_COLLECTION", "legal_updates"),
		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "legal_documents_vector"),

		RedisEnabled:      getEnvBool("REDIS_ENABLED", false),
		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		EmbeddingCacheTTL: getEnvDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		RateLimitReqs:     getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxChunkSize:      getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 200),
		DefaultSearchK:    getEnvInt("DEFAULT_SEARCH_K", 5),
		MaxEvidenceChars:  getEnvInt("MAX_EVIDENCE_CHARS", 12000),
		MaxToolIterations: getEnvInt("MAX_TOOL_ITERATIONS", 4),
		ChatTurnTimeout:   getEnvDuration("CHAT_TURN_TIMEOUT", 60*time.Second),
		ChatHistoryLimit:  getEnvInt("CHAT_HISTORY_LIMIT", 20),

		InteractionLogDir: getEnv("INTERACTION_LOG_DIR", "logs"),

		UpdatesEnabled:     getEnvBool("UPDATES_ENABLED", true),
		UpdatesRefreshCron: getEnv("UPDATES_REFRESH_CRON", "0 */6 * * *"),
		UpdatesMaxResults:  getEnvInt("UPDATES_MAX_RESULTS", 10),
		UpdatesTimeout:     getEnvDuration("UPDATES_TIMEOUT", 20*time.Second),
		PRSBillsURL:        getEnv("PRS_BILLS_URL", "https://prsindia.org/billtrack/"),
		AmendmentsURL:      getEnv("AMENDMENTS_URL", "https://legislative.gov.in/constitution-amendments"),
		IndiaCodeURL:       getEnv("INDIA_CODE_URL", "https://www.indiacode.nic.in"),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings that cannot fall back to a default.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" && !c.LLMDisabled {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if c.EmbeddingsProvider == "google" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for google embeddings - set EMBEDDINGS_PROVIDER=local to run without it")
	}

	switch c.EmbeddingsProvider {
	case "google", "local":
	default:
		return fmt.Errorf("unknown EMBEDDINGS_PROVIDER: %s", c.EmbeddingsProvider)
	}

	switch c.VectorStore {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown VECTOR_STORE: %s", c.VectorStore)
	}

	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive")
	}

	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be between 0 and MAX_CHUNK_SIZE")
	}

	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("MAX_TOOL_ITERATIONS must be positive")
	}

	return nil
}
