// Package noop implements hypervisor.Backend with no QEMU process and no
// real VM: it exists for testing and development environments without
// KVM, and always reports a healthy, reachable VM.
package noop

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor"
)

// Backend implements hypervisor.Backend without spawning a real VM.
type Backend struct{}

var _ hypervisor.Backend = (*Backend)(nil)

// New creates a Noop backend.
func New() *Backend {
	return &Backend{}
}

// Prepare creates an empty work directory and a synthetic handle; no
// overlay, no seed ISO, no sockets.
func (b *Backend) Prepare(ctx context.Context, spec hypervisor.Spec) (*hypervisor.Handle, error) {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("noop-%s-", spec.Name))
	if err != nil {
		return nil, fmt.Errorf("create noop work dir: %w", err)
	}

	return &hypervisor.Handle{
		ID:       fmt.Sprintf("noop-%s", uuid.NewString()),
		Name:     spec.Name,
		Backend:  hypervisor.BackendNoop,
		WorkDir:  workDir,
		VCPUs:    spec.VCPUs,
		MemoryMB: spec.MemoryMB,
		Network:  spec.Network,
	}, nil
}

// Start is a no-op success.
func (b *Backend) Start(ctx context.Context, h *hypervisor.Handle) error { return nil }

// Stop is a no-op success.
func (b *Backend) Stop(ctx context.Context, h *hypervisor.Handle, timeout time.Duration) error {
	return nil
}

// Suspend is a no-op success.
func (b *Backend) Suspend(ctx context.Context, h *hypervisor.Handle) error { return nil }

// Resume is a no-op success.
func (b *Backend) Resume(ctx context.Context, h *hypervisor.Handle) error { return nil }

// Destroy removes the synthetic work directory.
func (b *Backend) Destroy(ctx context.Context, h *hypervisor.Handle) error {
	if h.WorkDir == "" {
		return nil
	}
	return os.RemoveAll(h.WorkDir)
}

// State always reports Prepared: the noop backend has no running
// process to observe.
func (b *Backend) State(ctx context.Context, h *hypervisor.Handle) (hypervisor.State, error) {
	return hypervisor.StatePrepared, nil
}

// GuestIP always returns the loopback address.
func (b *Backend) GuestIP(ctx context.Context, h *hypervisor.Handle) (string, error) {
	return "127.0.0.1", nil
}

// ConsoleEndpoint is always unset: there is no console to connect to.
func (b *Backend) ConsoleEndpoint(h *hypervisor.Handle) hypervisor.ConsoleEndpoint {
	return hypervisor.ConsoleEndpoint{}
}
