package qemu

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CloudNebulaProject/vm-manager/lib/cloudinit"
	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor"
	"github.com/CloudNebulaProject/vm-manager/lib/paths"
)

// fakeQemuSystem writes a stub qemu-system-x86_64 that, mimicking
// -daemonize, backgrounds a long-lived process and writes its pid to the
// -pidfile argument before exiting.
func fakeQemuSystem(t *testing.T, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary stub is POSIX-shell only")
	}
	script := "#!/bin/sh\n" +
		"pidfile=\"\"\n" +
		"prev=\"\"\n" +
		"for arg in \"$@\"; do\n" +
		"  if [ \"$prev\" = \"-pidfile\" ]; then pidfile=\"$arg\"; fi\n" +
		"  prev=\"$arg\"\n" +
		"done\n" +
		"sleep 100 >/dev/null 2>&1 &\n" +
		"echo $! > \"$pidfile\"\n" +
		"exit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qemu-system-x86_64"), []byte(script), 0755))
}

// fakeQMPServer listens on socketPath and answers exactly one
// handshake plus one query-status call, reporting status.
func fakeQMPServer(t *testing.T, socketPath, status string) {
	t.Helper()
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		w := bufio.NewWriter(conn)
		r := bufio.NewReader(conn)

		writeJSON(w, map[string]any{"QMP": map[string]any{"version": map[string]any{}}})
		r.ReadBytes('\n') // qmp_capabilities
		writeJSON(w, map[string]any{"return": map[string]any{}})

		r.ReadBytes('\n') // query-status
		writeJSON(w, map[string]any{"return": map[string]any{"status": status}})

		// Keep the connection open briefly before closing it. Only this
		// one connection is ever accepted.
		time.Sleep(200 * time.Millisecond)
	}()
}

func writeJSON(w *bufio.Writer, v any) {
	data, _ := json.Marshal(v)
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	binDir := t.TempDir()
	fakeQemuSystem(t, binDir)
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	dataDir := t.TempDir()
	p := paths.New(dataDir)
	iso := cloudinit.New(cloudinit.StrategyInProcess)
	return New(p, iso, ""), dataDir
}

func writeFakeBaseImage(t *testing.T, dir string) string {
	t.Helper()
	imgDir := t.TempDir()
	// CreateOverlay shells out to qemu-img; stub it alongside qemu-system.
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"info\" ]; then echo '{\"format\":\"qcow2\"}'; fi\n" +
		"if [ \"$1\" = \"create\" ]; then : > \"$8\"; fi\n" +
		"exit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "qemu-img"), []byte(script), 0755))
	t.Setenv("PATH", imgDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	base := filepath.Join(dir, "base.qcow2")
	require.NoError(t, os.WriteFile(base, []byte("fake"), 0644))
	return base
}

func TestPrepare_BuildsOverlayAndHandle(t *testing.T) {
	b, dataDir := newTestBackend(t)
	base := writeFakeBaseImage(t, dataDir)

	h, err := b.Prepare(context.Background(), hypervisor.Spec{
		Name:      "web-1",
		ImagePath: base,
		VCPUs:     2,
		MemoryMB:  1024,
	})
	require.NoError(t, err)
	require.Equal(t, hypervisor.BackendQemu, h.Backend)
	require.FileExists(t, h.OverlayPath)
	require.Empty(t, h.SeedISOPath)
}

func TestPrepare_WithCloudInitProducesSeedISO(t *testing.T) {
	b, dataDir := newTestBackend(t)
	base := writeFakeBaseImage(t, dataDir)

	h, err := b.Prepare(context.Background(), hypervisor.Spec{
		Name:      "web-2",
		ImagePath: base,
		CloudInit: &hypervisor.CloudInit{UserData: []byte("#cloud-config\n")},
	})
	require.NoError(t, err)
	require.FileExists(t, h.SeedISOPath)
}

func TestStart_SucceedsAfterQMPHandshake(t *testing.T) {
	b, dataDir := newTestBackend(t)
	base := writeFakeBaseImage(t, dataDir)

	ctx := context.Background()
	h, err := b.Prepare(ctx, hypervisor.Spec{Name: "web-3", ImagePath: base, VCPUs: 1, MemoryMB: 512})
	require.NoError(t, err)

	fakeQMPServer(t, h.QMPSocket, "running")

	require.NoError(t, b.Start(ctx, h))
	require.NotZero(t, h.PID)
}

func TestDestroy_RemovesWorkDir(t *testing.T) {
	b, dataDir := newTestBackend(t)
	base := writeFakeBaseImage(t, dataDir)

	ctx := context.Background()
	h, err := b.Prepare(ctx, hypervisor.Spec{Name: "web-4", ImagePath: base})
	require.NoError(t, err)

	require.NoError(t, b.Destroy(ctx, h))
	require.NoDirExists(t, h.WorkDir)
}

func TestConsoleEndpoint_ReportsSocketPath(t *testing.T) {
	b, dataDir := newTestBackend(t)
	base := writeFakeBaseImage(t, dataDir)

	h, err := b.Prepare(context.Background(), hypervisor.Spec{Name: "web-5", ImagePath: base})
	require.NoError(t, err)

	ep := b.ConsoleEndpoint(h)
	require.True(t, ep.IsSet())
	require.Equal(t, h.ConsoleSocket, ep.Path)
}
