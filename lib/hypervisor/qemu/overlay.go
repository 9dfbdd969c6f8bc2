package qemu

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
)

// DetectFormat runs `qemu-img info --output=json` against base and
// returns the detected image format (e.g. "qcow2", "raw").
func DetectFormat(ctx context.Context, base string) (string, error) {
	cmd := exec.CommandContext(ctx, "qemu-img", "info", "--output=json", base)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &hverrors.FormatDetectionFailed{Path: base, Detail: string(out)}
	}

	var info struct {
		Format string `json:"format"`
	}
	if err := json.Unmarshal(out, &info); err != nil || info.Format == "" {
		return "", &hverrors.FormatDetectionFailed{Path: base, Detail: fmt.Sprintf("unparseable qemu-img info output: %s", out)}
	}
	return info.Format, nil
}

// CreateOverlay detects base's format and creates a QCOW2 overlay file
// referencing it, optionally resized to sizeGB. The -F flag is mandatory:
// omitting it produces a warning on modern qemu-img and, on some
// versions, a refusal to operate.
func CreateOverlay(ctx context.Context, base, overlay string, sizeGB int) error {
	format, err := DetectFormat(ctx, base)
	if err != nil {
		return err
	}

	args := []string{"create", "-f", "qcow2", "-F", format, "-b", base, overlay}
	if sizeGB > 0 {
		args = append(args, fmt.Sprintf("%dG", sizeGB))
	}

	cmd := exec.CommandContext(ctx, "qemu-img", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &hverrors.OverlayCreationFailed{Base: base, Detail: string(out)}
	}
	return nil
}
