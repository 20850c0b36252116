// Package config loads process configuration from the environment, grounded
// on the getEnv helper in cmd/email-retrieval/main.go,
// generalized and enriched with godotenv the way helpdesk-go/cmd/worker and
// sparkpost-monitor load an optional .env file before reading os.Getenv.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is every env var the core reads, per spec.md §6 "Environment
// variables" plus the ambient additions from SPEC_FULL.md §5.3.
type Config struct {
	StoragePath           string
	ArchivePath           string
	SessionTimeout        time.Duration
	MaxTestEmails         int
	LogLevel              string
	LogFormat             string
	JobQueueBuffer        int
	CacheDefaultTTL       time.Duration
	BulkBatchDelay        time.Duration
}

// Load reads an optional .env file (ignored if absent) and then the process
// environment, applying defaults for anything unset.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		StoragePath:     getEnv("STORAGE_PATH", "./data"),
		ArchivePath:     getEnv("ARCHIVE_PATH", "./data/archive"),
		SessionTimeout:  time.Duration(getEnvInt("SESSION_TIMEOUT_HOURS", 24)) * time.Hour,
		MaxTestEmails:   getEnvInt("MAX_TEST_EMAILS", 0),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		JobQueueBuffer:  getEnvInt("JOB_QUEUE_BUFFER", 256),
		CacheDefaultTTL: time.Duration(getEnvInt("CACHE_DEFAULT_TTL_SECONDS", 300)) * time.Second,
		BulkBatchDelay:  time.Duration(getEnvInt("BULK_BATCH_DELAY_MS", 100)) * time.Millisecond,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
