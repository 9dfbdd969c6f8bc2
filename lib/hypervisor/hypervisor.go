// Package hypervisor defines the backend-agnostic VM lifecycle contract:
// the declarative Spec, the durable Handle, and the Backend interface that
// the qemu and noop packages implement.
package hypervisor

import (
	"context"
	"fmt"
	"time"
)

// BackendTag identifies a Backend implementation.
type BackendTag string

const (
	BackendQemu BackendTag = "qemu"
	BackendNoop BackendTag = "noop"
)

// State is an observable VM lifecycle state.
type State string

const (
	StatePrepared  State = "prepared"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateDestroyed State = "destroyed"
)

// NetworkKind tags the Network variant.
type NetworkKind string

const (
	NetworkNone   NetworkKind = "none"
	NetworkUser   NetworkKind = "user"
	NetworkBridge NetworkKind = "bridge"
)

// Network is the VM's network configuration. BridgeName and MAC are only
// meaningful when Kind == NetworkBridge.
type Network struct {
	Kind       NetworkKind
	BridgeName string
	MAC        string
}

// CloudInit holds NoCloud seed data. InstanceID and Hostname default to
// Spec.Name when left empty; an empty MetaData is synthesized from them.
type CloudInit struct {
	UserData   []byte
	MetaData   []byte
	InstanceID string
	Hostname   string
}

// SSH describes how a provisioning step (out of scope here) would reach
// the guest. Carried on Spec so callers don't need a side channel.
type SSH struct {
	User           string
	PublicKey      string
	PrivateKeyPath string
}

// Spec is the declarative, immutable-per-invocation input to Prepare.
type Spec struct {
	Name      string
	ImagePath string
	VCPUs     int
	MemoryMB  int
	DiskGB    int // 0 = no resize
	Network   Network
	CloudInit *CloudInit
	SSH       *SSH
}

// ConsoleEndpoint is either unset or a UNIX socket path.
type ConsoleEndpoint struct {
	Path string
}

// IsSet reports whether the endpoint names a socket.
func (c ConsoleEndpoint) IsSet() bool { return c.Path != "" }

// Handle is the durable identity of a prepared VM.
type Handle struct {
	ID            string
	Name          string
	Backend       BackendTag
	WorkDir       string
	OverlayPath   string
	SeedISOPath   string
	QMPSocket     string
	ConsoleSocket string
	PID           int
	VNCAddr       string

	// The fields below are not part of the spec's Handle data model but
	// are needed to re-derive the QEMU argument vector and guest-IP
	// lookup on every operation without re-reading Spec; the teacher's
	// own qemu.Starter persists an equivalent config snapshot
	// (saveVMConfig/loadVMConfig) for the same reason.
	VCPUs    int
	MemoryMB int
	Network  Network
}

// Backend is the fixed capability set every hypervisor implementation
// exposes: prepare, start, stop, suspend, resume, destroy, state,
// guest_ip, console_endpoint.
type Backend interface {
	Prepare(ctx context.Context, spec Spec) (*Handle, error)
	Start(ctx context.Context, h *Handle) error
	Stop(ctx context.Context, h *Handle, timeout time.Duration) error
	Suspend(ctx context.Context, h *Handle) error
	Resume(ctx context.Context, h *Handle) error
	Destroy(ctx context.Context, h *Handle) error
	State(ctx context.Context, h *Handle) (State, error)
	GuestIP(ctx context.Context, h *Handle) (string, error)
	ConsoleEndpoint(h *Handle) ConsoleEndpoint
}

// Router dispatches operations to the backend named by a Handle, or by an
// explicit tag for Prepare. Backends are stateless with respect to
// handles, so the router constructs nothing on demand beyond dispatch.
type Router struct {
	backends       map[BackendTag]Backend
	defaultBackend BackendTag
}

// NewRouter creates a Router that falls back to defaultBackend when
// Prepare is called without an explicit tag.
func NewRouter(defaultBackend BackendTag) *Router {
	return &Router{
		backends:       make(map[BackendTag]Backend),
		defaultBackend: defaultBackend,
	}
}

// Register associates a Backend implementation with its tag.
func (r *Router) Register(tag BackendTag, b Backend) {
	r.backends[tag] = b
}

func (r *Router) backendFor(tag BackendTag) (Backend, error) {
	b, ok := r.backends[tag]
	if !ok {
		return nil, fmt.Errorf("no backend registered for %q", tag)
	}
	return b, nil
}

// Prepare builds a Handle via the backend named by tag, or the router's
// default backend when tag is empty.
func (r *Router) Prepare(ctx context.Context, spec Spec, tag BackendTag) (*Handle, error) {
	if tag == "" {
		tag = r.defaultBackend
	}
	b, err := r.backendFor(tag)
	if err != nil {
		return nil, err
	}
	h, err := b.Prepare(ctx, spec)
	if err != nil {
		return nil, err
	}
	h.Backend = tag
	return h, nil
}

func (r *Router) Start(ctx context.Context, h *Handle) error {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return err
	}
	return b.Start(ctx, h)
}

func (r *Router) Stop(ctx context.Context, h *Handle, timeout time.Duration) error {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return err
	}
	return b.Stop(ctx, h, timeout)
}

func (r *Router) Suspend(ctx context.Context, h *Handle) error {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return err
	}
	return b.Suspend(ctx, h)
}

func (r *Router) Resume(ctx context.Context, h *Handle) error {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return err
	}
	return b.Resume(ctx, h)
}

func (r *Router) Destroy(ctx context.Context, h *Handle) error {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return err
	}
	return b.Destroy(ctx, h)
}

func (r *Router) State(ctx context.Context, h *Handle) (State, error) {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return "", err
	}
	return b.State(ctx, h)
}

func (r *Router) GuestIP(ctx context.Context, h *Handle) (string, error) {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return "", err
	}
	return b.GuestIP(ctx, h)
}

func (r *Router) ConsoleEndpoint(h *Handle) (ConsoleEndpoint, error) {
	b, err := r.backendFor(h.Backend)
	if err != nil {
		return ConsoleEndpoint{}, err
	}
	return b.ConsoleEndpoint(h), nil
}
