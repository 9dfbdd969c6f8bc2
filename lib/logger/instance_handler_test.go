package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVMLogHandler_WritesTaggedRecordsToPerVMFile(t *testing.T) {
	dir := t.TempDir()
	base := slog.NewJSONHandler(os.Stdout, nil)
	h := NewVMLogHandler(base, func(name string) string {
		return filepath.Join(dir, name, "vm.log")
	})
	defer h.CloseAll()

	log := slog.New(h)
	log.InfoContext(context.Background(), "started", "vm", "web-1", "pid", 123)
	log.InfoContext(context.Background(), "no vm tag here")

	data, err := os.ReadFile(filepath.Join(dir, "web-1", "vm.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "started")
	require.Contains(t, string(data), "pid=123")
}

func TestVMLogHandler_CloseVMLogEvictsCache(t *testing.T) {
	dir := t.TempDir()
	base := slog.NewJSONHandler(os.Stdout, nil)
	h := NewVMLogHandler(base, func(name string) string {
		return filepath.Join(dir, name, "vm.log")
	})

	log := slog.New(h)
	log.InfoContext(context.Background(), "first", "vm", "web-2")
	h.CloseVMLog("web-2")

	_, cached := h.state.fileCache["web-2"]
	require.False(t, cached)
}
