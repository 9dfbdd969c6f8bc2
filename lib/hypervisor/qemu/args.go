package qemu

import (
	"fmt"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor"
	"github.com/samber/lo"
)

// argSpec is the subset of fields BuildArgs needs, kept separate from
// hypervisor.Handle/Spec so the argv builder can be tested without a
// full backend.
type argSpec struct {
	VCPUs         int
	MemoryMB      int
	Overlay       string
	SeedISO       string
	QMPSocket     string
	ConsoleSocket string
	PIDFile       string
}

// BuildArgs assembles the QEMU command-line argument vector. Order is
// preserved exactly as specified, with one addition: -smp and -m thread
// Spec.VCPUs/MemoryMB through, which the baseline design omitted (see
// the "Open questions" note on reflecting Spec.vcpus/memory_mb).
func BuildArgs(h *hypervisor.Handle, spec hypervisor.Spec, pidFile string) []string {
	as := argSpec{
		VCPUs:         spec.VCPUs,
		MemoryMB:      spec.MemoryMB,
		Overlay:       h.OverlayPath,
		SeedISO:       h.SeedISOPath,
		QMPSocket:     h.QMPSocket,
		ConsoleSocket: h.ConsoleSocket,
		PIDFile:       pidFile,
	}
	return buildArgs(as)
}

func buildArgs(as argSpec) []string {
	args := []string{
		"-enable-kvm",
		"-machine", "q35,accel=kvm",
		"-cpu", "host",
		"-nodefaults",
		"-smp", fmt.Sprintf("%d", as.VCPUs),
		"-m", fmt.Sprintf("%dM", as.MemoryMB),
		"-qmp", fmt.Sprintf("unix:%s,server,nowait", as.QMPSocket),
		"-serial", fmt.Sprintf("unix:%s,server,nowait", as.ConsoleSocket),
		"-vnc", "127.0.0.1:0",
		"-device", "virtio-rng-pci",
		"-drive", fmt.Sprintf("file=%s,format=qcow2,if=none,id=drive0,discard=unmap", as.Overlay),
		"-device", "virtio-blk-pci,drive=drive0",
	}

	args = append(args, lo.Ternary(as.SeedISO != "", []string{
		"-drive", fmt.Sprintf("file=%s,format=raw,if=none,id=seed,readonly=on", as.SeedISO),
		"-device", "virtio-blk-pci,drive=seed",
	}, nil)...)

	args = append(args, "-daemonize", "-pidfile", as.PIDFile)
	return args
}
