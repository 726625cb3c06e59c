// Package config loads the processor's configuration from the environment
// via viper, validates it once at startup, and aborts the process on an
// invalid value rather than limping along on a bad default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete process configuration, grouped by the subsystem
// that consumes it.
type Config struct {
	Log        LogConfig
	DB         DBConfig
	ObjectStore ObjectStoreConfig
	Neo4j      Neo4jConfig
	LLM        LLMConfig
	Embedding  EmbeddingConfig
	Chunker    ChunkerConfig
	OCR        OCRConfig
	Excel      ExcelConfig
	Worker     WorkerConfig
}

type LogConfig struct {
	Level string
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN builds the lib/pq connection string from the discrete fields, so the
// rest of the process never assembles a DSN by hand.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

type ObjectStoreConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
}

type LLMConfig struct {
	Provider       string
	APIBase        string
	Model          string
	RequestTimeout int
	VLLMPriority   int
}

type EmbeddingConfig struct {
	Mode       string
	APIBase    string
	ModelName  string
	BatchSize  int
	APITimeout int
	Generator  string
	QPSLimit   float64
}

type ChunkerConfig struct {
	ChunkTokens         int
	OverlapTokens       int
	SectionLimit        int
	DocLimit            int
	ListLimit           int
	TableLimit          int
	TableRowGroupTokens int
	TableRowOverlap     int
	TokenizerEncoding   string
}

type OCRConfig struct {
	Enabled bool
	Lang    string
	Backend string
}

type ExcelConfig struct {
	RowBatchSize int
}

type WorkerConfig struct {
	PollInterval        time.Duration
	EnrichmentBatchSize int
	LLMMaxConcurrency   int
	UploadWorkerCount   int
	EnrichmentWorkerCount int
	DeletionWorkerCount int
	MigrationBatchSize  int
}

// Load reads every recognized environment key, applies defaults for
// anything unset, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	setDefaults(v)
	bindEnvVars(v)

	cfg := &Config{
		Log: LogConfig{Level: v.GetString("log_level")},
		DB: DBConfig{
			Host: v.GetString("db_host"), Port: v.GetInt("db_port"), Name: v.GetString("db_name"),
			User: v.GetString("db_user"), Password: v.GetString("db_password"), SSLMode: v.GetString("db_sslmode"),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint: v.GetString("object_store_endpoint"), Region: v.GetString("object_store_region"),
			Bucket: v.GetString("object_store_bucket"), AccessKey: v.GetString("object_store_access_key"),
			SecretKey: v.GetString("object_store_secret_key"), UsePathStyle: v.GetBool("object_store_use_path_style"),
		},
		Neo4j: Neo4jConfig{
			Enabled: v.GetBool("neo4j_enabled"), URI: v.GetString("neo4j_uri"),
			Username: v.GetString("neo4j_username"), Password: v.GetString("neo4j_password"),
		},
		LLM: LLMConfig{
			Provider: v.GetString("llm_provider"), APIBase: v.GetString("llm_api_base"),
			Model: v.GetString("llm_model"), RequestTimeout: v.GetInt("llm_request_timeout"),
			VLLMPriority: v.GetInt("vllm_request_priority"),
		},
		Embedding: EmbeddingConfig{
			Mode: v.GetString("embedding_mode"), APIBase: v.GetString("embedding_api_base"),
			ModelName: v.GetString("embedding_model_name"), BatchSize: v.GetInt("embedding_batch_size"),
			APITimeout: v.GetInt("embedding_api_timeout"), Generator: v.GetString("embedding_generator"),
			QPSLimit: v.GetFloat64("embedding_qps_limit"),
		},
		Chunker: ChunkerConfig{
			ChunkTokens: v.GetInt("chunker_chunk_tokens"), OverlapTokens: v.GetInt("chunker_overlap_tokens"),
			SectionLimit: v.GetInt("chunker_section_limit"), DocLimit: v.GetInt("chunker_doc_limit"),
			ListLimit: v.GetInt("chunker_list_limit"), TableLimit: v.GetInt("chunker_table_limit"),
			TableRowGroupTokens: v.GetInt("chunker_table_row_group_tokens"),
			TableRowOverlap:     v.GetInt("chunker_table_row_overlap"),
			TokenizerEncoding:   v.GetString("chunker_tokenizer_encoding"),
		},
		OCR: OCRConfig{
			Enabled: v.GetBool("ocr_enabled"), Lang: v.GetString("ocr_lang"), Backend: v.GetString("ocr_backend"),
		},
		Excel: ExcelConfig{RowBatchSize: v.GetInt("excel_row_batch_size")},
		Worker: WorkerConfig{
			PollInterval:          v.GetDuration("poll_interval"),
			EnrichmentBatchSize:   v.GetInt("enrichment_batch_size"),
			LLMMaxConcurrency:     v.GetInt("llm_max_concurrency"),
			UploadWorkerCount:     v.GetInt("upload_worker_count"),
			EnrichmentWorkerCount: v.GetInt("enrichment_worker_count"),
			DeletionWorkerCount:   v.GetInt("deletion_worker_count"),
			MigrationBatchSize:    v.GetInt("migration_batch_size"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "ingestproc")
	v.SetDefault("db_user", "ingestproc")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("object_store_region", "us-east-1")
	v.SetDefault("object_store_use_path_style", true)

	v.SetDefault("neo4j_enabled", false)
	v.SetDefault("neo4j_uri", "bolt://localhost:7687")

	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_request_timeout", 60)

	v.SetDefault("embedding_mode", "api")
	v.SetDefault("embedding_batch_size", 32)
	v.SetDefault("embedding_api_timeout", 30)
	v.SetDefault("embedding_generator", "service")
	v.SetDefault("embedding_qps_limit", 0.0)

	v.SetDefault("chunker_chunk_tokens", 512)
	v.SetDefault("chunker_overlap_tokens", 64)
	v.SetDefault("chunker_section_limit", 1024)
	v.SetDefault("chunker_doc_limit", 512)
	v.SetDefault("chunker_list_limit", 512)
	v.SetDefault("chunker_table_limit", 512)
	v.SetDefault("chunker_table_row_group_tokens", 256)
	v.SetDefault("chunker_table_row_overlap", 1)
	v.SetDefault("chunker_tokenizer_encoding", "cl100k_base")

	v.SetDefault("ocr_enabled", false)
	v.SetDefault("ocr_lang", "eng")
	v.SetDefault("ocr_backend", "tesseract")

	v.SetDefault("excel_row_batch_size", 200)

	v.SetDefault("poll_interval", "5s")
	v.SetDefault("enrichment_batch_size", 16)
	v.SetDefault("llm_max_concurrency", 4)
	v.SetDefault("upload_worker_count", 2)
	v.SetDefault("enrichment_worker_count", 2)
	v.SetDefault("deletion_worker_count", 1)
	v.SetDefault("migration_batch_size", 100)
}

// bindEnvVars maps the UPPER_SNAKE_CASE keys in the external interfaces
// table to viper's lower_snake_case lookup keys, including the MINIO_*
// alias for OBJECT_STORE_*.
func bindEnvVars(v *viper.Viper) {
	keys := []string{
		"log_level",
		"db_host", "db_port", "db_name", "db_user", "db_password", "db_sslmode",
		"object_store_endpoint", "object_store_region", "object_store_bucket",
		"object_store_access_key", "object_store_secret_key", "object_store_use_path_style",
		"neo4j_enabled", "neo4j_uri", "neo4j_username", "neo4j_password",
		"llm_provider", "llm_api_base", "llm_model", "llm_request_timeout", "vllm_request_priority",
		"embedding_mode", "embedding_api_base", "embedding_model_name", "embedding_batch_size",
		"embedding_api_timeout", "embedding_generator", "embedding_qps_limit",
		"chunker_chunk_tokens", "chunker_overlap_tokens", "chunker_section_limit", "chunker_doc_limit",
		"chunker_list_limit", "chunker_table_limit", "chunker_table_row_group_tokens",
		"chunker_table_row_overlap", "chunker_tokenizer_encoding",
		"ocr_enabled", "ocr_lang", "ocr_backend",
		"excel_row_batch_size",
		"poll_interval", "enrichment_batch_size", "llm_max_concurrency",
		"upload_worker_count", "enrichment_worker_count", "deletion_worker_count", "migration_batch_size",
	}
	for _, k := range keys {
		_ = v.BindEnv(k, strings.ToUpper(k))
	}

	// MINIO_* is the original's deployment-time alias for OBJECT_STORE_*.
	_ = v.BindEnv("object_store_endpoint", "OBJECT_STORE_ENDPOINT", "MINIO_ENDPOINT")
	_ = v.BindEnv("object_store_bucket", "OBJECT_STORE_BUCKET", "MINIO_BUCKET")
	_ = v.BindEnv("object_store_access_key", "OBJECT_STORE_ACCESS_KEY", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("object_store_secret_key", "OBJECT_STORE_SECRET_KEY", "MINIO_SECRET_KEY")
}

func validate(cfg *Config) error {
	if cfg.DB.Host == "" || cfg.DB.Name == "" {
		return fmt.Errorf("db_host and db_name are required")
	}
	if cfg.ObjectStore.Bucket == "" {
		return fmt.Errorf("object_store_bucket (or MINIO_BUCKET) is required")
	}
	if cfg.LLM.Provider != "openai" && cfg.LLM.Provider != "vllm" && cfg.LLM.Provider != "ollama" {
		return fmt.Errorf("llm_provider must be one of openai, vllm, ollama, got %q", cfg.LLM.Provider)
	}
	if cfg.Embedding.Mode != "local" && cfg.Embedding.Mode != "api" {
		return fmt.Errorf("embedding_mode must be local or api, got %q", cfg.Embedding.Mode)
	}
	if cfg.Neo4j.Enabled && cfg.Neo4j.URI == "" {
		return fmt.Errorf("neo4j_uri is required when neo4j_enabled is true")
	}
	if cfg.Worker.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if cfg.Chunker.ChunkTokens <= 0 || cfg.Chunker.OverlapTokens >= cfg.Chunker.ChunkTokens {
		return fmt.Errorf("chunker_overlap_tokens must be smaller than chunker_chunk_tokens")
	}
	return nil
}
