package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnvVars()
	setRequiredEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.Equal(t, "us-east-1", cfg.ObjectStore.Region)
	assert.True(t, cfg.ObjectStore.UsePathStyle)
	assert.False(t, cfg.Neo4j.Enabled)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "api", cfg.Embedding.Mode)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, 512, cfg.Chunker.ChunkTokens)
	assert.Equal(t, 64, cfg.Chunker.OverlapTokens)
	assert.Equal(t, "cl100k_base", cfg.Chunker.TokenizerEncoding)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 2, cfg.Worker.UploadWorkerCount)
	assert.Equal(t, 1, cfg.Worker.DeletionWorkerCount)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	clearEnvVars()
	setRequiredEnvVars()
	_ = os.Setenv("LOG_LEVEL", "debug")
	_ = os.Setenv("DB_PORT", "5433")
	_ = os.Setenv("EMBEDDING_BATCH_SIZE", "8")
	_ = os.Setenv("UPLOAD_WORKER_COUNT", "5")
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5433, cfg.DB.Port)
	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.Equal(t, 5, cfg.Worker.UploadWorkerCount)
}

func TestLoadAcceptsMinioAliasForObjectStore(t *testing.T) {
	clearEnvVars()
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_NAME", "ingestproc")
	_ = os.Setenv("MINIO_BUCKET", "documents")
	_ = os.Setenv("MINIO_ENDPOINT", "http://localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "documents", cfg.ObjectStore.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.ObjectStore.Endpoint)
	assert.Equal(t, "minioadmin", cfg.ObjectStore.AccessKey)
}

func TestLoadRejectsMissingBucket(t *testing.T) {
	clearEnvVars()
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_NAME", "ingestproc")
	defer clearEnvVars()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object_store_bucket")
}

func TestLoadRejectsUnknownLLMProvider(t *testing.T) {
	clearEnvVars()
	setRequiredEnvVars()
	_ = os.Setenv("LLM_PROVIDER", "bedrock")
	defer clearEnvVars()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_provider")
}

func TestLoadRejectsOverlapNotSmallerThanChunkTokens(t *testing.T) {
	clearEnvVars()
	setRequiredEnvVars()
	_ = os.Setenv("CHUNKER_OVERLAP_TOKENS", "512")
	defer clearEnvVars()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunker_overlap_tokens")
}

func TestLoadRejectsNeo4jEnabledWithoutURI(t *testing.T) {
	clearEnvVars()
	setRequiredEnvVars()
	_ = os.Setenv("NEO4J_ENABLED", "true")
	_ = os.Setenv("NEO4J_URI", "")
	defer clearEnvVars()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neo4j_uri")
}

func setRequiredEnvVars() {
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_NAME", "ingestproc")
	_ = os.Setenv("OBJECT_STORE_BUCKET", "documents")
}

func clearEnvVars() {
	envVars := []string{
		"LOG_LEVEL", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_SSLMODE",
		"OBJECT_STORE_ENDPOINT", "OBJECT_STORE_BUCKET", "OBJECT_STORE_ACCESS_KEY", "OBJECT_STORE_SECRET_KEY",
		"MINIO_ENDPOINT", "MINIO_BUCKET", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
		"NEO4J_ENABLED", "NEO4J_URI", "LLM_PROVIDER", "EMBEDDING_BATCH_SIZE",
		"CHUNKER_OVERLAP_TOKENS", "UPLOAD_WORKER_COUNT",
	}
	for _, v := range envVars {
		_ = os.Unsetenv(v)
	}
}
