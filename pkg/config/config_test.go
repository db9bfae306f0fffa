package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, AutoInstanceID, cfg.InstanceID)
	assert.Equal(t, 60*time.Second, cfg.MisfireThreshold)
	assert.Equal(t, 30*time.Second, cfg.IdleWait)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CHRONOS_INSTANCE_NAME", "payroll")
	t.Setenv("CHRONOS_THREAD_POOL_SIZE", "4")
	t.Setenv("CHRONOS_MISFIRE_THRESHOLD", "5s")
	t.Setenv("CHRONOS_BATCH_TIME_WINDOW", "250ms")

	cfg, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, "payroll", cfg.InstanceName)
	assert.Equal(t, 4, cfg.ThreadPoolSize)
	assert.Equal(t, 5*time.Second, cfg.MisfireThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchTimeWindow)
	// Unset fields keep their defaults.
	assert.Equal(t, 1, cfg.MaxBatchSize)
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("CHRONOS_THREAD_POOL_SIZE", "many")
	_, err := FromEnv()
	var cfgErr ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "CHRONOS_THREAD_POOL_SIZE", cfgErr.Field)
}

func TestValidateRanges(t *testing.T) {
	cfg := Default()
	cfg.ThreadPoolSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxBatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.InstanceName = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.BatchTimeWindow = -time.Second
	assert.Error(t, cfg.Validate())
}
