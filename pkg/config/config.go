// Package config loads and validates configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (index, bloom, tokenizer, candidates, cache, vault, transport).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Index      IndexConfig     `yaml:"index"`
	Bloom      BloomConfig     `yaml:"bloom"`
	Tokenizer  TokenizerConfig `yaml:"tokenizer"`
	Candidates CandidateConfig `yaml:"candidates"`
	Memory     MemoryConfig    `yaml:"memory"`
	Cache      CacheConfig     `yaml:"cache"`
	Vault      VaultConfig     `yaml:"vault"`
	Watcher    WatcherConfig   `yaml:"watcher"`
	Server     ServerConfig    `yaml:"server"`
	Postgres   PostgresConfig  `yaml:"postgres"`
	Redis      RedisConfig     `yaml:"redis"`
	Kafka      KafkaConfig     `yaml:"kafka"`
	Logging    LoggingConfig   `yaml:"logging"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// IndexConfig controls batching, truncation and the pair-similarity cache of
// the orchestrator.
type IndexConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	Workers          int           `yaml:"workers"`
	YieldInterval    time.Duration `yaml:"yieldInterval"`
	MaxChars         int           `yaml:"maxChars"`
	MaxDocumentBytes int64         `yaml:"maxDocumentBytes"`
	SaveEvery        int           `yaml:"saveEvery"`
	PairCacheTTL     time.Duration `yaml:"pairCacheTTL"`
	MaxPairCacheSize int           `yaml:"maxPairCacheSize"`
	// Seed fixes the random source used for sampling. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
	// Vault reads during a scan are retried with backoff.
	ReadAttempts     int           `yaml:"readAttempts"`
	ReadInitialDelay time.Duration `yaml:"readInitialDelay"`
	ReadTimeout      time.Duration `yaml:"readTimeout"`
}

// BloomConfig holds one bloom size and hash count per n-gram size, plus the
// similarity tuning constants.
type BloomConfig struct {
	NgramSizes          []int   `yaml:"ngramSizes"`
	BloomSizes          []int   `yaml:"bloomSizes"`
	HashFunctions       []int   `yaml:"hashFunctions"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	MinSetBits          int     `yaml:"minSetBits"`
	SaturationThreshold float64 `yaml:"saturationThreshold"`
	SaturationExponent  float64 `yaml:"saturationExponent"`
	MaxBigrams          int     `yaml:"maxBigrams"`
	MaxCJKBigrams       int     `yaml:"maxCJKBigrams"`
	ChunkSize           int     `yaml:"chunkSize"`
	// Adaptive sizes filters from a sample of the corpus before a full scan.
	Adaptive           bool    `yaml:"adaptive"`
	AdaptiveSampleDocs int     `yaml:"adaptiveSampleDocs"`
	FalsePositiveRate  float64 `yaml:"falsePositiveRate"`
}

// TokenizerConfig selects the stemmer and the minimum token length.
type TokenizerConfig struct {
	MinTokenLength int    `yaml:"minTokenLength"`
	Stemmer        string `yaml:"stemmer"`
}

// CandidateConfig controls the word index and smart candidate selection.
type CandidateConfig struct {
	WordIndexEnabled        bool    `yaml:"wordIndexEnabled"`
	SmartThreshold          int     `yaml:"smartThreshold"`
	MaxCandidates           int     `yaml:"maxCandidates"`
	SampleWords             int     `yaml:"sampleWords"`
	WordIndexShare          float64 `yaml:"wordIndexShare"`
	ExplorationShare        float64 `yaml:"explorationShare"`
	MinWordLength           int     `yaml:"minWordLength"`
	MaxDocFreqRatio         float64 `yaml:"maxDocFreqRatio"`
	AdaptiveStopwordMinDocs int     `yaml:"adaptiveStopwordMinDocs"`
	MaxAdaptiveStopwords    int     `yaml:"maxAdaptiveStopwords"`
	NoiseMinDocs            int     `yaml:"noiseMinDocs"`
}

// MemoryConfig configures the lossy memory circuit breaker.
type MemoryConfig struct {
	FrequencyResetEvery int    `yaml:"frequencyResetEvery"`
	MaxHeapBytes        uint64 `yaml:"maxHeapBytes"`
}

// CacheConfig controls the on-disk similarity cache.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Backend        string        `yaml:"backend"`
	Dir            string        `yaml:"dir"`
	FileName       string        `yaml:"fileName"`
	MaxAge         time.Duration `yaml:"maxAge"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialDelay   time.Duration `yaml:"initialDelay"`
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
}

// VaultConfig selects where documents are enumerated and read from.
type VaultConfig struct {
	Backend         string   `yaml:"backend"`
	Root            string   `yaml:"root"`
	IncludePatterns []string `yaml:"includePatterns"`
	ExcludePatterns []string `yaml:"excludePatterns"`
	MaxFileSize     int64    `yaml:"maxFileSize"`
}

// WatcherConfig controls fsnotify-driven incremental re-indexing.
type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`

	// RateLimit is the per-client request budget per minute; 0 disables it.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters for the postgres vault.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters for the redis cache backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentChanges string `yaml:"documentChanges"`
	IndexComplete   string `yaml:"indexComplete"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with defaults suitable for a local vault.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			BatchSize:        8,
			Workers:          4,
			MaxChars:         100_000,
			MaxDocumentBytes: 5 << 20,
			SaveEvery:        500,
			PairCacheTTL:     10 * time.Minute,
			MaxPairCacheSize: 50_000,
			ReadAttempts:     3,
			ReadInitialDelay: 50 * time.Millisecond,
			ReadTimeout:      10 * time.Second,
		},
		Bloom: BloomConfig{
			NgramSizes:          []int{3},
			BloomSizes:          []int{2048},
			HashFunctions:       []int{3},
			SimilarityThreshold: 0.3,
			MinSetBits:          5,
			SaturationThreshold: 0.4,
			SaturationExponent:  2,
			MaxBigrams:          2000,
			MaxCJKBigrams:       300,
			ChunkSize:           1000,
			AdaptiveSampleDocs:  30,
			FalsePositiveRate:   0.01,
		},
		Tokenizer: TokenizerConfig{
			MinTokenLength: 3,
			Stemmer:        "light",
		},
		Candidates: CandidateConfig{
			WordIndexEnabled:        true,
			SmartThreshold:          200,
			MaxCandidates:           200,
			SampleWords:             20,
			WordIndexShare:          0.8,
			ExplorationShare:        0.1,
			MinWordLength:           3,
			MaxDocFreqRatio:         0.5,
			AdaptiveStopwordMinDocs: 50,
			MaxAdaptiveStopwords:    200,
			NoiseMinDocs:            50,
		},
		Memory: MemoryConfig{
			FrequencyResetEvery: 1000,
		},
		Cache: CacheConfig{
			Enabled:        true,
			Backend:        "file",
			Dir:            ".simindex",
			FileName:       "similarity-cache.json",
			MaxAge:         7 * 24 * time.Hour,
			MaxAttempts:    3,
			InitialDelay:   50 * time.Millisecond,
			AttemptTimeout: 5 * time.Second,
		},
		Vault: VaultConfig{
			Backend:         "fs",
			Root:            ".",
			IncludePatterns: []string{"**.md", "**.txt"},
			ExcludePatterns: []string{".simindex/**"},
			MaxFileSize:     10 << 20,
		},
		Watcher: WatcherConfig{
			Debounce: 250 * time.Millisecond,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			DefaultLimit:    10,
			MaxResults:      100,
			RateLimit:       600,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "simindex",
			User:            "simindex",
			Password:        "localdev",
			SSLMode:         "disable",
			Table:           "documents",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "simindex:",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "simindex-group",
			Topics: KafkaTopics{
				DocumentChanges: "document-changes",
				IndexComplete:   "index.complete",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects internally inconsistent configuration. These are the only
// conditions treated as fatal; everything else degrades at runtime.
func (c *Config) Validate() error {
	b := c.Bloom
	if len(b.NgramSizes) == 0 {
		return fmt.Errorf("%w: bloom.ngramSizes must not be empty", apperrors.ErrInvalidConfig)
	}
	if len(b.BloomSizes) != len(b.NgramSizes) || len(b.HashFunctions) != len(b.NgramSizes) {
		return fmt.Errorf("%w: bloom.ngramSizes, bloomSizes and hashFunctions must have equal length (%d/%d/%d)",
			apperrors.ErrInvalidConfig, len(b.NgramSizes), len(b.BloomSizes), len(b.HashFunctions))
	}
	seen := make(map[int]struct{}, len(b.NgramSizes))
	for i, n := range b.NgramSizes {
		if n <= 0 {
			return fmt.Errorf("%w: bloom.ngramSizes[%d] must be positive", apperrors.ErrInvalidConfig, i)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: duplicate ngram size %d", apperrors.ErrInvalidConfig, n)
		}
		seen[n] = struct{}{}
		if b.BloomSizes[i] <= 0 {
			return fmt.Errorf("%w: bloom.bloomSizes[%d] must be positive", apperrors.ErrInvalidConfig, i)
		}
		if b.HashFunctions[i] <= 0 {
			return fmt.Errorf("%w: bloom.hashFunctions[%d] must be positive", apperrors.ErrInvalidConfig, i)
		}
	}
	if b.SaturationThreshold < 0 || b.SaturationThreshold > 1 {
		return fmt.Errorf("%w: bloom.saturationThreshold must be in [0,1]", apperrors.ErrInvalidConfig)
	}
	if b.Adaptive && (b.FalsePositiveRate <= 0 || b.FalsePositiveRate >= 1) {
		return fmt.Errorf("%w: bloom.falsePositiveRate must be in (0,1)", apperrors.ErrInvalidConfig)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("%w: index.batchSize must be positive", apperrors.ErrInvalidConfig)
	}
	if c.Index.ReadAttempts < 0 {
		return fmt.Errorf("%w: index.readAttempts must not be negative", apperrors.ErrInvalidConfig)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rateLimit must not be negative", apperrors.ErrInvalidConfig)
	}
	cc := c.Candidates
	for name, v := range map[string]float64{
		"candidates.wordIndexShare":   cc.WordIndexShare,
		"candidates.explorationShare": cc.ExplorationShare,
		"candidates.maxDocFreqRatio":  cc.MaxDocFreqRatio,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in [0,1]", apperrors.ErrInvalidConfig, name)
		}
	}
	switch c.Tokenizer.Stemmer {
	case "", "light", "snowball", "none":
	default:
		return fmt.Errorf("%w: unknown stemmer %q", apperrors.ErrInvalidConfig, c.Tokenizer.Stemmer)
	}
	switch c.Cache.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", apperrors.ErrInvalidConfig, c.Cache.Backend)
	}
	switch c.Vault.Backend {
	case "fs", "postgres":
	default:
		return fmt.Errorf("%w: unknown vault backend %q", apperrors.ErrInvalidConfig, c.Vault.Backend)
	}
	return nil
}

// applyEnvOverrides reads SIM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIM_VAULT_ROOT"); v != "" {
		cfg.Vault.Root = v
	}
	if v := os.Getenv("SIM_VAULT_BACKEND"); v != "" {
		cfg.Vault.Backend = v
	}
	if v := os.Getenv("SIM_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("SIM_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SIM_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("SIM_INDEX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.BatchSize = n
		}
	}
	if v := os.Getenv("SIM_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Workers = n
		}
	}
	if v := os.Getenv("SIM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SIM_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("SIM_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SIM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SIM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SIM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SIM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SIM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SIM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SIM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SIM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SIM_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("SIM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SIM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
