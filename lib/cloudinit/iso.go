// Package cloudinit produces cloud-init NoCloud seed ISOs: a root
// directory containing user-data and meta-data, with the Primary Volume
// Descriptor's Volume Identifier patched to CIDATA so the guest's
// NoCloud datasource finds it.
package cloudinit

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
)

// Strategy selects how the ISO is produced.
type Strategy string

const (
	// StrategyInProcess builds the ISO directly via go-diskfs.
	StrategyInProcess Strategy = "inprocess"
	// StrategyExternal shells out to genisoimage, falling back to mkisofs.
	StrategyExternal Strategy = "external"
)

// PVD layout constants: sector 16 (2048 bytes/sector) is the Primary
// Volume Descriptor; its Volume Identifier field is 32 bytes starting at
// offset 40 within the descriptor.
const (
	pvdLBA         = 16
	sectorSize     = 2048
	volumeIDOffset = 40
	volumeIDLen    = 32
	volumeLabel    = "CIDATA"

	// isoPadding gives go-diskfs's ISO9660 writer room for the volume
	// descriptors, path tables, and directory records alongside the two
	// small seed files; minSize is a floor so tiny user-data/meta-data
	// payloads still produce a valid, addressable image.
	isoPadding = 1 << 20 // 1 MiB
	minSize    = 1 << 20 // 1 MiB
)

// Producer writes NoCloud seed ISOs using the configured Strategy.
type Producer struct {
	strategy Strategy
}

// New creates a Producer using the given strategy.
func New(strategy Strategy) *Producer {
	return &Producer{strategy: strategy}
}

// Produce writes an ISO-9660 image at outPath containing exactly
// user-data and meta-data at the root, with volume label CIDATA.
func (p *Producer) Produce(userData, metaData []byte, outPath string) error {
	switch p.strategy {
	case StrategyExternal:
		return produceExternal(userData, metaData, outPath)
	default:
		return produceInProcess(userData, metaData, outPath)
	}
}

func produceInProcess(userData, metaData []byte, outPath string) error {
	size := int64(len(userData) + len(metaData) + isoPadding)
	if size < minSize {
		size = minSize
	}

	d, err := diskfs.Create(outPath, size, diskfs.Raw, diskfs.SectorSizeDefault)
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}

	fs, err := d.CreateFilesystem(disk.FilesystemSpec{
		Partition:   0,
		FSType:      filesystem.TypeISO9660,
		VolumeLabel: volumeLabel,
	})
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}

	iso, ok := fs.(*iso9660.FileSystem)
	if !ok {
		return &hverrors.IsoWriteFailed{Detail: "unexpected filesystem implementation from go-diskfs"}
	}

	if err := writeISOFile(iso, "/user-data", userData); err != nil {
		return err
	}
	if err := writeISOFile(iso, "/meta-data", metaData); err != nil {
		return err
	}

	if err := iso.Finalize(iso9660.FinalizeOptions{
		RockRidge:        true,
		VolumeIdentifier: volumeLabel,
	}); err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}

	// go-diskfs's VolumeIdentifier option is not reliable across Joliet
	// and Rock Ridge combinations; always patch the PVD directly so
	// CIDATA is guaranteed regardless of the writer's own behavior.
	return patchVolumeID(outPath)
}

func writeISOFile(iso *iso9660.FileSystem, path string, data []byte) error {
	f, err := iso.OpenFile(path, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: fmt.Sprintf("open %s: %v", path, err)}
	}
	if _, err := f.Write(data); err != nil {
		return &hverrors.IsoWriteFailed{Detail: fmt.Sprintf("write %s: %v", path, err)}
	}
	return nil
}

func produceExternal(userData, metaData []byte, outPath string) error {
	dir, err := os.MkdirTemp("", "cloudinit-seed-")
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, "user-data"), userData, 0644); err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}
	if err := os.WriteFile(filepath.Join(dir, "meta-data"), metaData, 0644); err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}

	tool, err := findISOTool()
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}

	cmd := exec.Command(tool, "-output", outPath, "-volid", "cidata", "-joliet", "-rock", dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: string(out)}
	}

	return patchVolumeID(outPath)
}

func findISOTool() (string, error) {
	for _, name := range []string{"genisoimage", "mkisofs"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("neither genisoimage nor mkisofs found in PATH")
}

// patchVolumeID overwrites the 32-byte Volume Identifier field of the
// Primary Volume Descriptor with "CIDATA", right-padded with spaces.
func patchVolumeID(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}
	defer f.Close()

	label := make([]byte, volumeIDLen)
	n := copy(label, volumeLabel)
	for i := n; i < volumeIDLen; i++ {
		label[i] = ' '
	}

	offset := int64(pvdLBA*sectorSize + volumeIDOffset)
	if _, err := f.WriteAt(label, offset); err != nil {
		return &hverrors.IsoWriteFailed{Detail: err.Error()}
	}
	return nil
}
