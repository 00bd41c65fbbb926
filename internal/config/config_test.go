package config

import (
	"testing"

	"github.com/twinforge/twinforge-backend/internal/logger"
)

func TestLoadIngestionConfigClampsFloors(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Setenv("SOURCE_FETCH_RETRIES", "0")
	t.Setenv("MAX_PARALLEL_SOURCES", "-2")
	cfg := LoadIngestionConfig(log)
	if cfg.FetchRetries != 1 {
		t.Fatalf("fetch retries floor: want=1 got=%d", cfg.FetchRetries)
	}
	if cfg.MaxParallelSources != 1 {
		t.Fatalf("parallel sources floor: want=1 got=%d", cfg.MaxParallelSources)
	}
}
