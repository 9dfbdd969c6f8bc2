package paths

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkDir_ClampsEscapeUnderDataDir(t *testing.T) {
	p := New("/data/vms")
	dir, err := p.WorkDir("../../etc")
	require.NoError(t, err)
	require.Equal(t, "/data/vms/etc", dir)
}

func TestWorkDir_JoinsNameUnderDataDir(t *testing.T) {
	p := New("/data/vms")
	dir, err := p.WorkDir("web-1")
	require.NoError(t, err)
	require.Equal(t, "/data/vms/web-1", dir)
}

func TestLayoutMethods(t *testing.T) {
	p := New("/data/vms")
	workDir := "/data/vms/web-1"
	require.Equal(t, "/data/vms/web-1/overlay.qcow2", p.Overlay(workDir))
	require.Equal(t, "/data/vms/web-1/seed.iso", p.SeedISO(workDir))
	require.Equal(t, "/data/vms/web-1/qmp.sock", p.QMPSocket(workDir))
	require.Equal(t, "/data/vms/web-1/console.sock", p.ConsoleSocket(workDir))
	require.Equal(t, "/data/vms/web-1/qemu.pid", p.PIDFile(workDir))
}
