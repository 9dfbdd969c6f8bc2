package qemu

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
)

// qemuBinaryName returns the preferred binary name, honoring an override
// (e.g. the QEMU_BINARY config knob) before falling back to
// qemu-system-x86_64 on PATH.
func qemuBinaryName(override string) string {
	if override != "" {
		return override
	}
	return "qemu-system-x86_64"
}

// spawn runs the QEMU binary with the given argv. Because -daemonize is
// present in args, the child forks and the parent process we start here
// exits once the daemon is ready; Wait returning a non-zero exit is a
// genuine launch failure.
func spawn(binaryPath string, args []string) error {
	cmd := exec.Command(binaryPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &hverrors.QemuSpawnFailed{Cause: fmt.Errorf("%w: %s", err, out)}
	}
	return nil
}

// readPID reads a QEMU pidfile. Absence is not an error at this layer —
// callers treat a missing pidfile as "no process."
func readPID(pidfile string) (int, bool) {
	data, err := os.ReadFile(pidfile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// pidAlive reports whether pid refers to a live process.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// waitPidGone polls the pidfile every 500ms until the referenced pid is
// no longer alive (or the pidfile disappears), or timeout elapses.
func waitPidGone(pidfile string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		pid, ok := readPID(pidfile)
		if !ok || !pidAlive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// sigterm sends SIGTERM to pid. Errors are intentionally ignored by
// callers in stop/destroy — those operations are forgiving by design.
func sigterm(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// sigkill sends SIGKILL to pid.
func sigkill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
