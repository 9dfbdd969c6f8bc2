// Package hverrors is the typed error taxonomy surfaced across the
// hypervisor core: one struct per failure mode, each carrying the
// context a caller needs to diagnose without inspecting logs.
package hverrors

import "fmt"

// InvalidState means an operation was attempted against a Handle in a
// state that does not support it.
type InvalidState struct {
	Name   string
	Reason string
}

func (e *InvalidState) Error() string {
	return fmt.Sprintf("invalid state for %q: %s", e.Name, e.Reason)
}

// QemuSpawnFailed wraps a subprocess launch failure or non-zero exit.
type QemuSpawnFailed struct {
	Cause error
}

func (e *QemuSpawnFailed) Error() string { return fmt.Sprintf("qemu spawn failed: %v", e.Cause) }
func (e *QemuSpawnFailed) Unwrap() error { return e.Cause }

// QmpConnectTimeout means the QMP socket never accepted a connection
// within the caller's timeout.
type QmpConnectTimeout struct {
	Path string
}

func (e *QmpConnectTimeout) Error() string {
	return fmt.Sprintf("timed out connecting to qmp socket %s", e.Path)
}

// QmpProtocol covers handshake and command-level failures on an
// established QMP connection: malformed JSON, an unexpected reply shape,
// or an {"error":...} response.
type QmpProtocol struct {
	Detail string
}

func (e *QmpProtocol) Error() string { return fmt.Sprintf("qmp protocol error: %s", e.Detail) }

// IsoWriteFailed covers any failure while producing the cloud-init seed
// ISO, in-process or via the external tool fallback.
type IsoWriteFailed struct {
	Detail string
}

func (e *IsoWriteFailed) Error() string { return fmt.Sprintf("iso write failed: %s", e.Detail) }

// FormatDetectionFailed means `qemu-img info` on a base image failed or
// produced unparseable JSON.
type FormatDetectionFailed struct {
	Path   string
	Detail string
}

func (e *FormatDetectionFailed) Error() string {
	return fmt.Sprintf("format detection failed for %s: %s", e.Path, e.Detail)
}

// OverlayCreationFailed means `qemu-img create` for the overlay exited
// non-zero.
type OverlayCreationFailed struct {
	Base   string
	Detail string
}

func (e *OverlayCreationFailed) Error() string {
	return fmt.Sprintf("overlay creation failed for base %s: %s", e.Base, e.Detail)
}

// ImageConversionFailed covers base-image format conversion failures
// (external image-acquisition concern, surfaced through this taxonomy).
type ImageConversionFailed struct {
	Detail string
}

func (e *ImageConversionFailed) Error() string {
	return fmt.Sprintf("image conversion failed: %s", e.Detail)
}

// ImageDownloadFailed covers external image-acquisition failures,
// surfaced through the same taxonomy as the rest of the core.
type ImageDownloadFailed struct {
	URL    string
	Detail string
}

func (e *ImageDownloadFailed) Error() string {
	return fmt.Sprintf("image download failed for %s: %s", e.URL, e.Detail)
}

// IpDiscoveryTimeout means no guest IP was found by any discovery
// method.
type IpDiscoveryTimeout struct {
	Name string
}

func (e *IpDiscoveryTimeout) Error() string {
	return fmt.Sprintf("guest ip discovery timed out for %q", e.Name)
}

// OciPullFailed covers registry-fetch failures for OCI-packaged base
// images (external image-acquisition concern).
type OciPullFailed struct {
	Reference string
	Detail    string
}

func (e *OciPullFailed) Error() string {
	return fmt.Sprintf("oci pull failed for %s: %s", e.Reference, e.Detail)
}
