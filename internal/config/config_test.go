package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IVERILOG_PATH", "")
	t.Setenv("COMPILE_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "iverilog", cfg.IverilogPath)
	assert.Equal(t, "vvp", cfg.VVPPath)
	assert.Equal(t, 10*time.Second, cfg.CompileTimeout)
	assert.Equal(t, "FAIL", cfg.FailureMarker)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Positive(t, cfg.JudgeWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IVERILOG_PATH", "/opt/iverilog/bin/iverilog")
	t.Setenv("SIMULATE_TIMEOUT", "3s")
	t.Setenv("JUDGE_WORKERS", "2")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092 ,")

	cfg := Load()

	assert.Equal(t, "/opt/iverilog/bin/iverilog", cfg.IverilogPath)
	assert.Equal(t, 3*time.Second, cfg.SimulateTimeout)
	assert.Equal(t, 2, cfg.JudgeWorkers)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestGetEnvDurationRejectsGarbage(t *testing.T) {
	t.Setenv("X_TIMEOUT", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("X_TIMEOUT", time.Minute))

	t.Setenv("X_TIMEOUT", "-5s")
	assert.Equal(t, time.Minute, getEnvDuration("X_TIMEOUT", time.Minute))
}

func TestContestKeys(t *testing.T) {
	assert.Equal(t, "contest:abc", CacheKey.ContestRoom("abc"))
	assert.Equal(t, "contest:abc:live", CacheKey.ContestLiveChannel("abc"))
}
