// Package config loads runtime configuration from environment variables,
// with an optional .env file loaded first.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the hypervisor backends.
type Config struct {
	DataDir         string // root directory for per-VM work directories
	LogLevel        string // default log level (debug, info, warn, error)
	QemuBinary      string // override for the qemu-system binary; empty = architecture default
	IsoStrategy     string // "inprocess" or "external"
	DefaultVCPUs    int
	DefaultMemoryMB int
	DefaultBackend  string // "qemu" or "noop"
	MaxOverlaySize  datasize.ByteSize
	StartTimeoutSec int
	StopTimeoutSec  int
}

// Load loads configuration from environment variables. It tries to load a
// .env file first, failing silently if one is not present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxOverlaySize, err := getEnvSize("MAX_OVERLAY_SIZE", 100*datasize.GB)
	if err != nil {
		return nil, fmt.Errorf("MAX_OVERLAY_SIZE: %w", err)
	}

	cfg := &Config{
		DataDir:         getEnv("DATA_DIR", "/var/lib/vm-manager"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		QemuBinary:      getEnv("QEMU_BINARY", ""),
		IsoStrategy:     getEnv("ISO_STRATEGY", "inprocess"),
		DefaultVCPUs:    getEnvInt("DEFAULT_VCPUS", 2),
		DefaultMemoryMB: getEnvInt("DEFAULT_MEMORY_MB", 2048),
		DefaultBackend:  getEnv("DEFAULT_BACKEND", "qemu"),
		MaxOverlaySize:  maxOverlaySize,
		StartTimeoutSec: getEnvInt("START_TIMEOUT_SEC", 10),
		StopTimeoutSec:  getEnvInt("STOP_TIMEOUT_SEC", 30),
	}

	return cfg, cfg.Validate()
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DefaultVCPUs < 1 {
		return fmt.Errorf("DEFAULT_VCPUS must be >= 1, got %d", c.DefaultVCPUs)
	}
	if c.DefaultMemoryMB < 1 {
		return fmt.Errorf("DEFAULT_MEMORY_MB must be >= 1, got %d", c.DefaultMemoryMB)
	}
	if c.DefaultBackend != "qemu" && c.DefaultBackend != "noop" {
		return fmt.Errorf("DEFAULT_BACKEND must be \"qemu\" or \"noop\", got %q", c.DefaultBackend)
	}
	if c.IsoStrategy != "inprocess" && c.IsoStrategy != "external" {
		return fmt.Errorf("ISO_STRATEGY must be \"inprocess\" or \"external\", got %q", c.IsoStrategy)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSize(key string, defaultValue datasize.ByteSize) (datasize.ByteSize, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var ds datasize.ByteSize
	if err := ds.UnmarshalText([]byte(value)); err != nil {
		return 0, err
	}
	return ds, nil
}
