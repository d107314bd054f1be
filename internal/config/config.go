// Package config loads process configuration from the environment once at
// startup. No live reload is supported, matching spec.md §6.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/clipforge/pipeline/internal/platform/logger"
)

type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string

	RedisAddr string

	ObjectStorageBucket      string
	ObjectStorageEmulatorURL string

	NotifierChannel string
	NotifierToken   string

	SemaphoreDefaultTTL     time.Duration
	SemaphoreWaitTimeout    time.Duration
	DispatcherConcurrency   int
	DispatcherHardWallClock time.Duration
	DispatcherSoftWallClock time.Duration
	WatchdogInterval        time.Duration
	WatchdogStaleStep       time.Duration
	WatchdogQueueSLA        time.Duration
}

// Load reads every setting from the environment, falling back to development
// defaults so the module boots without bespoke tooling.
func Load(log *logger.Logger) Config {
	return Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost", log),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432", log),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres", log),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "", log),
		PostgresName:     getEnv("POSTGRES_NAME", "pipeline", log),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379", log),

		ObjectStorageBucket:      getEnv("OBJECT_STORAGE_BUCKET", "pipeline-artifacts", log),
		ObjectStorageEmulatorURL: getEnv("OBJECT_STORAGE_EMULATOR_HOST", "", log),

		NotifierChannel: getEnv("NOTIFIER_CHANNEL", "", log),
		NotifierToken:   getEnv("NOTIFIER_TOKEN", "", log),

		SemaphoreDefaultTTL:     time.Duration(getEnvAsInt("SEMAPHORE_TTL_SECONDS", 600, log)) * time.Second,
		SemaphoreWaitTimeout:    time.Duration(getEnvAsInt("SEMAPHORE_WAIT_TIMEOUT_SECONDS", 120, log)) * time.Second,
		DispatcherConcurrency:   getEnvAsInt("WORKER_CONCURRENCY", 4, log),
		DispatcherHardWallClock: time.Duration(getEnvAsInt("DISPATCHER_HARD_WALLCLOCK_HOURS", 6, log)) * time.Hour,
		DispatcherSoftWallClock: time.Duration(getEnvAsInt("DISPATCHER_SOFT_WALLCLOCK_HOURS", 5, log)) * time.Hour,
		WatchdogInterval:        time.Duration(getEnvAsInt("WATCHDOG_INTERVAL_SECONDS", 300, log)) * time.Second,
		WatchdogStaleStep:       time.Duration(getEnvAsInt("WATCHDOG_STALE_STEP_SECONDS", 900, log)) * time.Second,
		WatchdogQueueSLA:        time.Duration(getEnvAsInt("WATCHDOG_QUEUE_SLA_SECONDS", 1800, log)) * time.Second,
	}
}

func getEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as int, using default", "providedVal", valStr, "defaultVal", defaultVal, "error", err)
		}
		return defaultVal
	}
	return i
}
