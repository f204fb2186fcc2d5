// Package core provides the persona memory engine façade: configuration,
// error types, functional options, and the hybrid engine itself.
package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the complete configuration for an Engine. It carries one
// sub-config per collaborator the engine wires together: the vector arena,
// the HNSW index, the similarity metric, the graph store, the entity
// extractor, the embedding provider, the persistence backend, and the
// feature-flag defaults.
//
// Example:
//
//	cfg, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Arena    ArenaConfig    `json:"arena"`
	HNSW     HNSWConfig     `json:"hnsw"`
	Distance DistanceConfig `json:"distance"`
	Graph    GraphConfig    `json:"graph"`
	Entity   EntityConfig   `json:"entity"`
	Embedder EmbedderConfig `json:"embedder"`
	Storage  StorageConfig  `json:"storage"`
	Features FeaturesConfig `json:"features"`
}

// ArenaConfig configures the fixed-budget vector arena.
type ArenaConfig struct {
	// MemoryBudgetMB bounds the arena's backing buffer; capacity is
	// floor(MemoryBudgetMB*1024*1024 / (Dimensions*4)).
	MemoryBudgetMB int `json:"memory_budget_mb"`

	// Dimensions is D, the fixed vector width every inserted vector must
	// match.
	Dimensions int `json:"dimensions"`
}

// HNSWConfig configures the approximate nearest-neighbor index.
type HNSWConfig struct {
	M              int `json:"m"`
	EfConstruction int `json:"ef_construction"`
	EfSearch       int `json:"ef_search"`
	IndexThreshold int `json:"index_threshold"`
}

// DistanceConfig selects the similarity metric.
type DistanceConfig struct {
	// Metric is one of "cosine", "euclidean", "dot".
	Metric string `json:"metric"`
}

// GraphConfig configures the persona knowledge graph and hybrid expansion.
type GraphConfig struct {
	Enabled             bool    `json:"enabled"`
	DefaultDepth        int     `json:"default_depth"`
	MaxDepth            int     `json:"max_depth"`
	DefaultWeight       float64 `json:"default_weight"`
	MaxProcessingTimeMs int     `json:"max_processing_time_ms"`
}

// EntityConfig configures the deterministic entity/relationship extractor.
type EntityConfig struct {
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
	MaxEntitiesPerMemory int     `json:"max_entities_per_memory"`
	BatchSize            int     `json:"batch_size"`
}

// EmbedderConfig configures the pluggable embedding provider.
//
// Supported providers: openai.
type EmbedderConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	BaseURL    string `json:"base_url,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// StorageConfig configures the persistence backend.
//
// Supported providers: sqlite, postgres, mysql.
type StorageConfig struct {
	Provider string                 `json:"provider"`
	Config   map[string]interface{} `json:"config"`
}

// FeaturesConfig seeds the FeatureFlags default layer (see flags.go).
type FeaturesConfig struct {
	HybridSearch     bool `json:"hybrid_search"`
	EntityExtraction bool `json:"entity_extraction"`
	GraphExpansion   bool `json:"graph_expansion"`
	GraphEnabled     bool `json:"graph_enabled"`
}

// LoadConfigFromEnv builds a Config from environment variables, discovering
// a .env file by searching the current directory and up to 4 parent
// directories (FindEnvFile), the way the teacher repo does.
//
// Supported environment variables:
//   - PERSONAMEM_STORAGE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH; POSTGRES_HOST/PORT/USER/PASSWORD/DATABASE/SSLMODE;
//     MYSQL_HOST/PORT/USER/PASSWORD/DATABASE
//   - PERSONAMEM_EMBEDDER_PROVIDER, PERSONAMEM_EMBEDDER_API_KEY,
//     PERSONAMEM_EMBEDDER_MODEL, PERSONAMEM_EMBEDDER_BASE_URL
//   - PERSONAMEM_DIMENSIONS, PERSONAMEM_ARENA_MEMORY_BUDGET_MB
//   - PERSONAMEM_HNSW_M, PERSONAMEM_HNSW_EF_CONSTRUCTION,
//     PERSONAMEM_HNSW_EF_SEARCH, PERSONAMEM_HNSW_INDEX_THRESHOLD
//   - PERSONAMEM_GRAPH_ENABLED, PERSONAMEM_GRAPH_DEFAULT_DEPTH,
//     PERSONAMEM_GRAPH_MAX_PROCESSING_TIME_MS
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("PERSONAMEM_STORAGE_PROVIDER", "sqlite")
	dims := atoiOrDefault(getEnvOrDefault("PERSONAMEM_DIMENSIONS", "1536"), 1536)

	storageConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storageConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./personamem.db"),
		}
	case "postgres":
		storageConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     atoiOrDefault(getEnvOrDefault("POSTGRES_PORT", "5432"), 5432),
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "personamem"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		storageConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     atoiOrDefault(getEnvOrDefault("MYSQL_PORT", "3306"), 3306),
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "personamem"),
		}
	}

	cfg := &Config{
		Arena: ArenaConfig{
			MemoryBudgetMB: atoiOrDefault(getEnvOrDefault("PERSONAMEM_ARENA_MEMORY_BUDGET_MB", "256"), 256),
			Dimensions:     dims,
		},
		HNSW: HNSWConfig{
			M:              atoiOrDefault(getEnvOrDefault("PERSONAMEM_HNSW_M", "16"), 16),
			EfConstruction: atoiOrDefault(getEnvOrDefault("PERSONAMEM_HNSW_EF_CONSTRUCTION", "200"), 200),
			EfSearch:       atoiOrDefault(getEnvOrDefault("PERSONAMEM_HNSW_EF_SEARCH", "50"), 50),
			IndexThreshold: atoiOrDefault(getEnvOrDefault("PERSONAMEM_HNSW_INDEX_THRESHOLD", "100"), 100),
		},
		Distance: DistanceConfig{
			Metric: getEnvOrDefault("PERSONAMEM_DISTANCE_METRIC", "cosine"),
		},
		Graph: GraphConfig{
			Enabled:             getEnvOrDefault("PERSONAMEM_GRAPH_ENABLED", "true") == "true",
			DefaultDepth:        atoiOrDefault(getEnvOrDefault("PERSONAMEM_GRAPH_DEFAULT_DEPTH", "2"), 2),
			MaxDepth:            5,
			DefaultWeight:       0.3,
			MaxProcessingTimeMs: atoiOrDefault(getEnvOrDefault("PERSONAMEM_GRAPH_MAX_PROCESSING_TIME_MS", "5000"), 5000),
		},
		Entity: EntityConfig{
			ConfidenceThreshold:  0.5,
			MaxEntitiesPerMemory: 20,
			BatchSize:            atoiOrDefault(getEnvOrDefault("PERSONAMEM_ENTITY_BATCH_SIZE", "50"), 50),
		},
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("PERSONAMEM_EMBEDDER_PROVIDER", "openai"),
			APIKey:     os.Getenv("PERSONAMEM_EMBEDDER_API_KEY"),
			Model:      getEnvOrDefault("PERSONAMEM_EMBEDDER_MODEL", "text-embedding-ada-002"),
			BaseURL:    os.Getenv("PERSONAMEM_EMBEDDER_BASE_URL"),
			Dimensions: dims,
		},
		Storage: StorageConfig{
			Provider: provider,
			Config:   storageConfig,
		},
		Features: FeaturesConfig{
			HybridSearch:     true,
			EntityExtraction: true,
			GraphExpansion:   true,
			GraphEnabled:     true,
		},
	}

	return cfg, nil
}

// LoadConfigFromEnvFile loads environment variables from a specific .env
// path before delegating to LoadConfigFromEnv.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, newEngineError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON reads a Config from a JSON file on disk.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newEngineError("LoadConfigFromJSON", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, newEngineError("LoadConfigFromJSON", err)
	}
	return &cfg, nil
}

// Validate checks that every required field is present and recognized.
func (c *Config) Validate() error {
	if c.Arena.Dimensions <= 0 {
		return newEngineError("Validate", ErrInvalidConfig)
	}
	switch c.Distance.Metric {
	case "cosine", "euclidean", "dot":
	default:
		return newEngineError("Validate", ErrInvalidConfig)
	}
	switch c.Storage.Provider {
	case "sqlite", "postgres", "mysql", "":
	default:
		return newEngineError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.Provider == "" {
		return newEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func atoiOrDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// FindEnvFile searches the current directory, then up to 4 parent
// directories, for a .env or .env.example file.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
