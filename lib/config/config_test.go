package config

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/vm-manager", cfg.DataDir)
	require.Equal(t, 2, cfg.DefaultVCPUs)
	require.Equal(t, 100*datasize.GB, cfg.MaxOverlaySize)
	require.Equal(t, "qemu", cfg.DefaultBackend)
}

func TestLoad_ReadsEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/vms")
	t.Setenv("DEFAULT_VCPUS", "4")
	t.Setenv("MAX_OVERLAY_SIZE", "20GB")
	t.Setenv("DEFAULT_BACKEND", "noop")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/vms", cfg.DataDir)
	require.Equal(t, 4, cfg.DefaultVCPUs)
	require.Equal(t, 20*datasize.GB, cfg.MaxOverlaySize)
	require.Equal(t, "noop", cfg.DefaultBackend)
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := &Config{DefaultVCPUs: 1, DefaultMemoryMB: 512, DefaultBackend: "hyperv", IsoStrategy: "inprocess"}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroVCPUs(t *testing.T) {
	cfg := &Config{DefaultVCPUs: 0, DefaultMemoryMB: 512, DefaultBackend: "qemu", IsoStrategy: "inprocess"}
	require.Error(t, cfg.Validate())
}
