// Command vmctl wires the hypervisor backends into a running process.
// It does not parse CLI arguments or expose a VM registry: those are
// the job of a caller embedding this package, not this binary.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CloudNebulaProject/vm-manager/lib/cloudinit"
	"github.com/CloudNebulaProject/vm-manager/lib/config"
	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor"
	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/noop"
	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/qemu"
	"github.com/CloudNebulaProject/vm-manager/lib/logger"
	"github.com/CloudNebulaProject/vm-manager/lib/paths"
)

func main() {
	if err := run(); err != nil {
		slog.Error("vmctl terminated", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := logger.NewConfig()
	p := paths.New(cfg.DataDir)

	baseHandler := logger.NewLogger(logCfg).Handler()
	vmHandler := logger.NewVMLogHandler(baseHandler, func(name string) string {
		workDir, err := p.WorkDir(name)
		if err != nil {
			return ""
		}
		return filepath.Join(workDir, "vmctl.log")
	})
	defer vmHandler.CloseAll()

	log := slog.New(vmHandler)
	slog.SetDefault(log)

	iso := cloudinit.New(cloudinit.Strategy(cfg.IsoStrategy))

	router := newRouter(cfg, p, iso)
	_ = router

	log.Info("vmctl initialized", "data_dir", cfg.DataDir, "default_backend", cfg.DefaultBackend)
	return nil
}

// newRouter builds a Router with both backends registered, dispatching
// to cfg.DefaultBackend when a caller does not name one explicitly.
func newRouter(cfg *config.Config, p *paths.Paths, iso *cloudinit.Producer) *hypervisor.Router {
	router := hypervisor.NewRouter(hypervisor.BackendTag(cfg.DefaultBackend))
	router.Register(hypervisor.BackendQemu, qemu.New(p, iso, cfg.QemuBinary))
	router.Register(hypervisor.BackendNoop, noop.New())
	return router
}
