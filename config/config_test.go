package config_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliverbenduhn/tabletto/config"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := config.LoadEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/tabletto.db", cfg.Database.DSN())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "elapsed", cfg.Scheduler.Mode)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.Timeout)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://tabletto@localhost/tabletto")
	t.Setenv("ENABLE_STOCK_SCHEDULER", "false")
	t.Setenv("STOCK_SCHEDULER_MODE", "timepoint")
	t.Setenv("STOCK_SCHEDULER_WORKERS", "4")
	t.Setenv("TZ", "UTC")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg := config.LoadEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres://tabletto@localhost/tabletto", cfg.Database.DSN())
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	// GIVEN: several invalid settings at once
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("STOCK_SCHEDULER_MODE", "hourly")
	t.Setenv("STOCK_SCHEDULER_WORKERS", "0")
	t.Setenv("TZ", "Mars/Olympus")

	// WHEN: validated
	err := config.LoadEnv().Validate()

	// THEN: all of them are reported
	require.Error(t, err)
	for _, want := range []string{"DATABASE_URL", "STOCK_SCHEDULER_MODE", "STOCK_SCHEDULER_WORKERS", "TZ"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadEnv_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("STOCK_SCHEDULER_WORKERS", "many")
	t.Setenv("ENABLE_STOCK_SCHEDULER", "maybe")

	cfg := config.LoadEnv()

	assert.Equal(t, 1, cfg.Scheduler.Workers)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoadEnv_SchedulerSwitch_OnlyFalseDisables(t *testing.T) {
	cases := []struct {
		value   string
		enabled bool
	}{
		{"false", false},
		{"true", true},
		{"0", true},
		{"FALSE", true},
		{"no", true},
		{"", true},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("ENABLE_STOCK_SCHEDULER", tc.value)

			cfg := config.LoadEnv()

			assert.Equal(t, tc.enabled, cfg.Scheduler.Enabled)
		})
	}
}
