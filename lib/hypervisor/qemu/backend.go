// Package qemu implements hypervisor.Backend for QEMU/KVM: QCOW2 overlay
// creation, cloud-init seed assembly, process lifecycle via
// daemonize/pidfile, the ACPI->SIGTERM->SIGKILL shutdown state machine,
// and guest-IP discovery.
package qemu

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gvisor.dev/gvisor/pkg/cleanup"

	"github.com/CloudNebulaProject/vm-manager/lib/cloudinit"
	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor"
	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
	"github.com/CloudNebulaProject/vm-manager/lib/logger"
	"github.com/CloudNebulaProject/vm-manager/lib/paths"
)

// Timeouts from the spec's concurrency model: start caps the QMP
// handshake at 10s, suspend/resume cap QMP at 5s, destroy caps its inner
// stop at 5s, and stop's fixed SIGTERM grace period is 3s.
const (
	qmpStartTimeout   = 10 * time.Second
	qmpControlTimeout = 5 * time.Second
	sigtermGrace      = 3 * time.Second
	acpiConnectWait   = 2 * time.Second
	destroyStopCap    = 5 * time.Second
)

// Backend implements hypervisor.Backend for QEMU.
type Backend struct {
	paths      *paths.Paths
	iso        *cloudinit.Producer
	binaryName string
}

var _ hypervisor.Backend = (*Backend)(nil)

// New creates a QEMU Backend. binaryOverride, when non-empty, names the
// QEMU binary to exec instead of the architecture default.
func New(p *paths.Paths, iso *cloudinit.Producer, binaryOverride string) *Backend {
	return &Backend{paths: p, iso: iso, binaryName: qemuBinaryName(binaryOverride)}
}

// Prepare builds the per-VM work directory, overlay, and optional
// cloud-init seed, and reserves (but does not create) the QMP and
// console socket paths.
func (b *Backend) Prepare(ctx context.Context, spec hypervisor.Spec) (*hypervisor.Handle, error) {
	log := logger.FromContext(ctx)

	workDir, err := b.paths.WorkDir(spec.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	overlayPath := b.paths.Overlay(workDir)
	if err := CreateOverlay(ctx, spec.ImagePath, overlayPath, spec.DiskGB); err != nil {
		return nil, err
	}

	var seedISOPath string
	if spec.CloudInit != nil {
		metaData := spec.CloudInit.MetaData
		if len(metaData) == 0 {
			instanceID := spec.CloudInit.InstanceID
			if instanceID == "" {
				instanceID = spec.Name
			}
			hostname := spec.CloudInit.Hostname
			if hostname == "" {
				hostname = spec.Name
			}
			metaData = []byte(fmt.Sprintf("instance-id: %s\nlocal-hostname: %s\n", instanceID, hostname))
		}

		seedISOPath = b.paths.SeedISO(workDir)
		if err := b.iso.Produce(spec.CloudInit.UserData, metaData, seedISOPath); err != nil {
			return nil, err
		}
	}

	h := &hypervisor.Handle{
		ID:            fmt.Sprintf("qemu-%s", uuid.NewString()),
		Name:          spec.Name,
		Backend:       hypervisor.BackendQemu,
		WorkDir:       workDir,
		OverlayPath:   overlayPath,
		SeedISOPath:   seedISOPath,
		QMPSocket:     b.paths.QMPSocket(workDir),
		ConsoleSocket: b.paths.ConsoleSocket(workDir),
		VCPUs:         spec.VCPUs,
		MemoryMB:      spec.MemoryMB,
		Network:       spec.Network,
	}

	log.InfoContext(ctx, "prepared qemu vm", "vm", spec.Name, "work_dir", workDir)
	return h, nil
}

// Start spawns QEMU and verifies readiness over QMP. A cancelled or
// failed verification reaps the daemon so callers are not left with an
// orphan process — the "guarded critical section" improvement the spec
// calls out as intentional over a bare best-effort start.
func (b *Backend) Start(ctx context.Context, h *hypervisor.Handle) error {
	log := logger.FromContext(ctx)

	pidfile := b.paths.PIDFile(h.WorkDir)
	spec := hypervisor.Spec{VCPUs: h.VCPUs, MemoryMB: h.MemoryMB}
	args := BuildArgs(h, spec, pidfile)

	if err := spawn(b.binaryName, args); err != nil {
		return err
	}

	pid, ok := readPID(pidfile)
	if !ok {
		return &hverrors.QemuSpawnFailed{Cause: fmt.Errorf("pidfile %s not written", pidfile)}
	}
	h.PID = pid

	cu := cleanup.Make(func() {
		sigkill(pid)
	})
	defer cu.Clean()

	client, err := DialQMP(ctx, h.QMPSocket, qmpStartTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.QueryStatus(); err != nil {
		return err
	}

	cu.Release()
	log.InfoContext(ctx, "qemu vm running", "vm", h.Name, "pid", pid)
	return nil
}

// Stop runs the shutdown state machine: ACPI powerdown, poll the
// pidfile, SIGTERM, then SIGKILL. It never fails — a killed VM is still
// stopped.
func (b *Backend) Stop(ctx context.Context, h *hypervisor.Handle, timeout time.Duration) error {
	log := logger.FromContext(ctx)
	pidfile := b.paths.PIDFile(h.WorkDir)

	pid, ok := readPID(pidfile)
	if !ok {
		return nil
	}

	if client, err := DialQMP(ctx, h.QMPSocket, acpiConnectWait); err == nil {
		if err := client.SystemPowerdown(); err != nil {
			log.WarnContext(ctx, "acpi powerdown failed", "vm", h.Name, "error", err)
		}
		client.Close()
	} else {
		log.WarnContext(ctx, "acpi powerdown: qmp connect failed", "vm", h.Name, "error", err)
	}

	if waitPidGone(pidfile, timeout) {
		return nil
	}

	if err := sigterm(pid); err != nil {
		log.WarnContext(ctx, "sigterm failed", "vm", h.Name, "pid", pid, "error", err)
	}
	if waitPidGone(pidfile, sigtermGrace) {
		return nil
	}

	if pidAlive(pid) {
		if err := sigkill(pid); err != nil {
			log.WarnContext(ctx, "sigkill failed", "vm", h.Name, "pid", pid, "error", err)
		}
	}
	return nil
}

// Suspend issues QMP stop (pause execution).
func (b *Backend) Suspend(ctx context.Context, h *hypervisor.Handle) error {
	client, err := DialQMP(ctx, h.QMPSocket, qmpControlTimeout)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Stop()
}

// Resume issues QMP cont (resume execution).
func (b *Backend) Resume(ctx context.Context, h *hypervisor.Handle) error {
	client, err := DialQMP(ctx, h.QMPSocket, qmpControlTimeout)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Cont()
}

// Destroy stops the VM, issues a best-effort QMP quit, then removes the
// work directory. Failures are logged and swallowed: destruction is
// idempotent by intent.
func (b *Backend) Destroy(ctx context.Context, h *hypervisor.Handle) error {
	log := logger.FromContext(ctx)

	if err := b.Stop(ctx, h, destroyStopCap); err != nil {
		log.WarnContext(ctx, "stop during destroy failed", "vm", h.Name, "error", err)
	}

	if client, err := DialQMP(ctx, h.QMPSocket, acpiConnectWait); err == nil {
		if err := client.Quit(); err != nil {
			log.WarnContext(ctx, "qmp quit failed", "vm", h.Name, "error", err)
		}
		client.Close()
	}

	if err := os.RemoveAll(h.WorkDir); err != nil {
		log.WarnContext(ctx, "remove work dir failed", "vm", h.Name, "work_dir", h.WorkDir, "error", err)
	}
	return nil
}

// State inspects the pidfile and, if the process is alive, QMP
// query-status.
func (b *Backend) State(ctx context.Context, h *hypervisor.Handle) (hypervisor.State, error) {
	pidfile := b.paths.PIDFile(h.WorkDir)
	pid, ok := readPID(pidfile)
	if !ok || !pidAlive(pid) {
		if _, err := os.Stat(h.WorkDir); err == nil {
			return hypervisor.StateStopped, nil
		}
		return hypervisor.StateDestroyed, nil
	}

	client, err := DialQMP(ctx, h.QMPSocket, acpiConnectWait)
	if err != nil {
		// QMP failures fall back to Running: the pid is alive.
		return hypervisor.StateRunning, nil
	}
	defer client.Close()

	status, err := client.QueryStatus()
	if err != nil {
		return hypervisor.StateRunning, nil
	}

	switch status {
	case "running":
		return hypervisor.StateRunning, nil
	case "paused", "suspended":
		return hypervisor.StateStopped, nil
	default:
		return hypervisor.StateRunning, nil
	}
}

// GuestIP discovers the guest's address via `ip neigh show`, falling
// back to the dnsmasq lease file for bridge networking.
func (b *Backend) GuestIP(ctx context.Context, h *hypervisor.Handle) (string, error) {
	bridgeConfigured := h.Network.Kind == hypervisor.NetworkBridge
	return GuestIP(ctx, h.Name, bridgeConfigured, h.Network.MAC)
}

// ConsoleEndpoint returns the VM's serial console socket.
func (b *Backend) ConsoleEndpoint(h *hypervisor.Handle) hypervisor.ConsoleEndpoint {
	return hypervisor.ConsoleEndpoint{Path: h.ConsoleSocket}
}
