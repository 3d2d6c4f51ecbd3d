package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mikeboe/report-agent/pkg/pipeline"
)

// Config holds runtime configuration shared by the CLI and the server.
type Config struct {
	GoogleApiKey   string
	DatabaseURL    string
	ReasoningModel string
	FastModel      string
	Port           string
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	CollectionName string
	Limits         pipeline.Limits
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		Port:           getEnv("PORT", "3000"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "report_archive"),
		Limits: pipeline.Limits{
			MaxSearchesPerSection: getEnvAsInt("MAX_SEARCHES_PER_SECTION", 5),
			MaxRevisionCycles:     getEnvAsInt("MAX_REVISION_CYCLES", 2),
			MaxMainLoopIterations: getEnvAsInt("MAX_MAIN_LOOP_ITERATIONS", 10),
			MaxRecursionDepth:     getEnvAsInt("MAX_RECURSION_DEPTH", 2),
			StrictAnalysis:        getEnvAsBool("STRICT_ANALYSIS", true),
		},
	}
}

// LoadLimits reads pipeline caps from a YAML file, overriding the given
// base. Fields missing from the file keep the base value.
func LoadLimits(path string, base pipeline.Limits) (pipeline.Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read limits file: %w", err)
	}
	limits := base
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return base, fmt.Errorf("parse limits file: %w", err)
	}
	return limits, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
