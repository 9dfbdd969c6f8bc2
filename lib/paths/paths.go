// Package paths provides centralized, typed path construction for a
// VM's per-instance work directory.
//
// Directory Structure:
//
//	{dataDir}/{name}/
//	  overlay.qcow2   # base-backed QCOW2
//	  seed.iso        # optional, cloud-init NoCloud
//	  qmp.sock        # present only while running
//	  console.sock    # present only while running
//	  qemu.pid        # present only while running
//	  console.log     # external: serial console capture
//	  provision.log   # external: provision-step output
package paths

import (
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Paths provides typed path construction rooted at a data directory.
type Paths struct {
	dataDir string
}

// New creates a new Paths instance for the given data directory.
func New(dataDir string) *Paths {
	return &Paths{dataDir: dataDir}
}

// DataDir returns the root data directory.
func (p *Paths) DataDir() string {
	return p.dataDir
}

// WorkDir returns the per-VM work directory for name, joined safely so a
// crafted name cannot escape the data directory via "..".
func (p *Paths) WorkDir(name string) (string, error) {
	return securejoin.SecureJoin(p.dataDir, name)
}

// Overlay returns the path to a VM's QCOW2 overlay file.
func (p *Paths) Overlay(workDir string) string {
	return filepath.Join(workDir, "overlay.qcow2")
}

// SeedISO returns the path to a VM's cloud-init seed ISO.
func (p *Paths) SeedISO(workDir string) string {
	return filepath.Join(workDir, "seed.iso")
}

// QMPSocket returns the path to a VM's QMP control socket.
func (p *Paths) QMPSocket(workDir string) string {
	return filepath.Join(workDir, "qmp.sock")
}

// ConsoleSocket returns the path to a VM's serial console socket.
func (p *Paths) ConsoleSocket(workDir string) string {
	return filepath.Join(workDir, "console.sock")
}

// PIDFile returns the path to a VM's QEMU pidfile.
func (p *Paths) PIDFile(workDir string) string {
	return filepath.Join(workDir, "qemu.pid")
}

// ConsoleLog returns the path to a VM's serial console capture log.
func (p *Paths) ConsoleLog(workDir string) string {
	return filepath.Join(workDir, "console.log")
}

// ProvisionLog returns the path to a VM's provisioning-step output log.
func (p *Paths) ProvisionLog(workDir string) string {
	return filepath.Join(workDir, "provision.log")
}
