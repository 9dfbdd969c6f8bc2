package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// VMLogHandler wraps an slog.Handler and additionally writes any record
// carrying a "vm" attribute to that VM's own log file under its work
// directory, so `vmctl` output for one VM can be tailed in isolation
// from the rest of the process's logs.
//
// Implementation follows the slog handler guide for shared state across
// WithAttrs/WithGroup: https://pkg.go.dev/golang.org/x/example/slog-handler-guide
type VMLogHandler struct {
	slog.Handler
	logPathFunc func(name string) string // returns the per-VM log path for a VM name
	state       *sharedState             // shared across all handlers derived via WithAttrs/WithGroup
}

// sharedState holds state that must be shared across all handler instances
// derived from the same parent via WithAttrs/WithGroup.
type sharedState struct {
	mu        sync.Mutex
	fileCache map[string]*os.File
}

// NewVMLogHandler creates a handler that wraps the given handler and
// additionally writes records tagged with a "vm" attribute to
// logPathFunc(name).
func NewVMLogHandler(wrapped slog.Handler, logPathFunc func(name string) string) *VMLogHandler {
	return &VMLogHandler{
		Handler:     wrapped,
		logPathFunc: logPathFunc,
		state: &sharedState{
			fileCache: make(map[string]*os.File),
		},
	}
}

// Handle passes the record to the wrapped handler, then, if a "vm"
// attribute is present, appends it to that VM's log file.
func (h *VMLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}

	var vmName string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "vm" {
			vmName = a.Value.String()
			return false
		}
		return true
	})

	if vmName != "" {
		h.writeToVMLog(vmName, r)
	}

	return nil
}

func (h *VMLogHandler) writeToVMLog(vmName string, r slog.Record) {
	logPath := h.logPathFunc(vmName)
	if logPath == "" {
		return
	}

	timestamp := r.Time.Format(time.RFC3339)
	level := r.Level.String()
	msg := r.Message

	var attrs []string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "vm" {
			attrs = append(attrs, fmt.Sprintf("%s=%v", a.Key, a.Value))
		}
		return true
	})

	line := fmt.Sprintf("%s %s %s", timestamp, level, msg)
	for _, attr := range attrs {
		line += " " + attr
	}
	line += "\n"

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	f, ok := h.state.fileCache[vmName]
	if !ok {
		dir := filepath.Dir(logPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return
		}

		var err error
		f, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		h.state.fileCache[vmName] = f
	}

	f.WriteString(line)
}

// Enabled reports whether the handler handles records at the given level.
func (h *VMLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes, sharing the
// parent's file cache.
func (h *VMLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &VMLogHandler{
		Handler:     h.Handler.WithAttrs(attrs),
		logPathFunc: h.logPathFunc,
		state:       h.state,
	}
}

// WithGroup returns a new handler with the given group name, sharing the
// parent's file cache.
func (h *VMLogHandler) WithGroup(name string) slog.Handler {
	return &VMLogHandler{
		Handler:     h.Handler.WithGroup(name),
		logPathFunc: h.logPathFunc,
		state:       h.state,
	}
}

// CloseVMLog closes and evicts a cached file handle for a VM. Call this
// when a VM is destroyed so its log file descriptor isn't leaked.
func (h *VMLogHandler) CloseVMLog(vmName string) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	if f, ok := h.state.fileCache[vmName]; ok {
		f.Close()
		delete(h.state.fileCache, vmName)
	}
}

// CloseAll closes all cached file handles. Call this during shutdown.
func (h *VMLogHandler) CloseAll() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	for name, f := range h.state.fileCache {
		f.Close()
		delete(h.state.fileCache, name)
	}
}
