// Package config centralises all environment / flag configuration for the API.
// It should be imported only by `cmd/server` (and test code). Business‑logic
// layers receive an already‑built Config instance via dependency‑injection.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Embedding / generation providers.
const (
	ProviderVertex = "vertex"
	ProviderHash   = "hash" // deterministic local embeddings, no network
	ProviderEcho   = "echo" // extractive local answers, no network
)

// DefaultSupportedExtensions mirrors the extensions the indexer has always accepted.
const DefaultSupportedExtensions = ".py,.js,.ts,.jsx,.tsx,.java,.cpp,.c,.h,.cs,.php,.rb,.go,.rs,.swift,.kt,.scala,.lua,.vim,.md,.txt,.yaml,.yml,.json,.xml,.html,.css,.scss,.sass,.sql"

// Config holds every runtime option the server needs.
// Flat on purpose: primitive fields, no nested structs.
type Config struct {
	// Network
	Port        string
	CORSOrigins string

	// Data stores
	MongoURI string // empty selects the in-memory stores
	DBName   string
	ReposDir string

	// GitHub
	GitHubToken     string
	GitHubPreflight bool

	// Acquisition limits
	MaxRepoSizeMB       int
	MaxFileSizeBytes    int64
	SupportedExtensions []string
	ExcludeGlobs        []string

	// Chunking
	ChunkSize    int
	ChunkOverlap int
	MaxChunkSize int
	ChunkWorkers int

	// Embeddings
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbedBatchSize     int
	EmbedConcurrency   int
	EmbedRatePerSec    float64

	// Generation
	LLMProvider string
	LLMModel    string

	// ProjectID and Location
	ProjectID       string
	Location        string
	CredentialsFile string

	// Retrieval
	TopK           int
	MaxPromptChars int

	// Timeouts
	CloneTimeout      time.Duration
	ProcessTimeout    time.Duration
	GenerationTimeout time.Duration

	// Server tuning
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load parses the environment (and an optional .env file) into Config.
// It terminates on invalid settings so mis‑configurations fail fast.
func Load() Config {
	// godotenv.Load() is a no-op when .env is missing.
	_ = godotenv.Load()

	cfg := FromEnv()
	if cfg.EmbeddingProvider == ProviderVertex || cfg.LLMProvider == ProviderVertex {
		cfg.ProjectID = must("GCP_PROJECT_ID")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// FromEnv reads the environment without validating or terminating.
func FromEnv() Config {
	return Config{
		Port:        getEnv("PORT", "8000"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		MongoURI: os.Getenv("MONGODB_URI"),
		DBName:   getEnv("MONGODB_DB", "sourcechat"),
		ReposDir: getEnv("REPOS_DIR", "repos"),

		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		GitHubPreflight: getBool("GITHUB_PREFLIGHT", true),

		MaxRepoSizeMB:       getInt("MAX_REPO_SIZE_MB", 100),
		MaxFileSizeBytes:    int64(getInt("MAX_FILE_SIZE_BYTES", 1024*1024)),
		SupportedExtensions: getList("SUPPORTED_EXTENSIONS", DefaultSupportedExtensions),
		ExcludeGlobs:        getList("EXCLUDE_GLOBS", ""),

		ChunkSize:    getInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getInt("CHUNK_OVERLAP", 100),
		MaxChunkSize: getInt("MAX_CHUNK_SIZE", 2000),
		ChunkWorkers: getInt("CHUNK_WORKERS", 4),

		EmbeddingProvider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderVertex)),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-005"),
		EmbeddingDimension: getInt("EMBEDDING_DIMENSION", 256),
		EmbedBatchSize:     getInt("EMBED_BATCH_SIZE", 32),
		EmbedConcurrency:   getInt("EMBED_CONCURRENCY", 4),
		EmbedRatePerSec:    getFloat("EMBED_RATE_PER_SEC", 10),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderVertex)),
		LLMModel:    getEnv("LLM_MODEL", "gemini-2.0-flash-lite-001"),

		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		Location:        getEnv("GCP_LOCATION", "us-central1"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		TopK:           getInt("RETRIEVAL_TOP_K", 5),
		MaxPromptChars: getInt("MAX_PROMPT_CHARS", 12000),

		CloneTimeout:      getDuration("CLONE_TIMEOUT_SEC", 300),
		ProcessTimeout:    getDuration("PROCESS_TIMEOUT_SEC", 1800),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT_SEC", 60),

		ReadTimeout:  getDuration("READ_TIMEOUT_SEC", 5),
		WriteTimeout: getDuration("WRITE_TIMEOUT_SEC", 1800),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.EmbeddingProvider {
	case ProviderVertex, ProviderHash:
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER %q must be %q or %q", c.EmbeddingProvider, ProviderVertex, ProviderHash))
	}
	switch c.LLMProvider {
	case ProviderVertex, ProviderEcho:
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q must be %q or %q", c.LLMProvider, ProviderVertex, ProviderEcho))
	}
	if (c.EmbeddingProvider == ProviderVertex || c.LLMProvider == ProviderVertex) && c.ProjectID == "" {
		errs = append(errs, errors.New("GCP_PROJECT_ID is required for the vertex provider"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, errors.New("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)"))
	}
	if c.MaxChunkSize < c.ChunkSize {
		errs = append(errs, errors.New("MAX_CHUNK_SIZE must be at least CHUNK_SIZE"))
	}
	if c.TopK <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_TOP_K must be positive"))
	}
	if c.EmbedBatchSize <= 0 || c.EmbedConcurrency <= 0 {
		errs = append(errs, errors.New("EMBED_BATCH_SIZE and EMBED_CONCURRENCY must be positive"))
	}
	if c.EmbeddingProvider == ProviderHash && c.EmbeddingDimension <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIMENSION must be positive"))
	}
	return errors.Join(errs...)
}

// must fetches a required env var or terminates the program.
func must(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("env var %s is required", key)
	}
	return val
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getDuration reads an integer (seconds) from env, falling back to defaultSec.
func getDuration(key string, defaultSec int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
		log.Printf("invalid %s=%q; using default %ds", key, v, defaultSec)
	}
	return time.Duration(defaultSec) * time.Second
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("invalid %s=%q; using default %d", key, v, defaultVal)
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("invalid %s=%q; using default %g", key, v, defaultVal)
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("invalid %s=%q; using default %t", key, v, defaultVal)
	}
	return defaultVal
}

// getList splits a comma-separated variable, dropping blanks.
func getList(key, defaultVal string) []string {
	raw := getEnv(key, defaultVal)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
