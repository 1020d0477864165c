// Package target implements the exec target abstraction: Host and
// Sandbox executors sharing one operation set
// (exec_shell/read_file/list_dir/write_file/apply_patch), each
// returning a normalized TargetResult. Ported from the Rust original's
// src/target.rs (ExecTarget trait, HostTarget, DockerTarget), with the
// container variant rebuilt on firecracker-go-sdk instead of Docker,
// since the surrounding module already carries that dependency.
package target

import (
	"context"
)

// Kind identifies which executor produced a result.
type Kind string

const (
	KindHost    Kind = "host"
	KindSandbox Kind = "sandbox"
)

// SandboxMeta describes the sandbox a Sandbox-kind result ran in.
type SandboxMeta struct {
	Image   string `json:"image,omitempty"`
	Workdir string `json:"workdir,omitempty"`
	Network string `json:"network,omitempty"`
}

// Describe is a human/machine-readable description of a target,
// emitted as the ToolExecTarget event before every ToolExecStart.
type Describe struct {
	ExecTarget string       `json:"exec_target"`
	Sandbox    *SandboxMeta `json:"sandbox,omitempty"`
}

// Result is the normalized outcome of any target operation, before the
// kernel wraps it into a ltypes.ToolResultEnvelope.
type Result struct {
	OK              bool
	Content         string
	Truncated       bool
	Bytes           *int
	ExitCode        *int
	StdoutTruncated *bool
	StderrTruncated *bool
	ExecutionTarget Kind
	Sandbox         *SandboxMeta
}

// Failed builds a failure Result carrying reason as content.
func Failed(kind Kind, reason string, sandbox *SandboxMeta) Result {
	return Result{OK: false, Content: reason, ExecutionTarget: kind, Sandbox: sandbox}
}

// ShellRequest parametrizes exec_shell.
type ShellRequest struct {
	Workdir            string
	Cmd                string
	Args               []string
	Cwd                string
	MaxToolOutputBytes int
}

// ReadRequest parametrizes read_file.
type ReadRequest struct {
	Workdir     string
	Path        string
	MaxReadBytes int
}

// ListRequest parametrizes list_dir.
type ListRequest struct {
	Workdir string
	Path    string
}

// WriteRequest parametrizes write_file.
type WriteRequest struct {
	Workdir string
	Path    string
	Content string
}

// PatchRequest parametrizes apply_patch (a unified diff applied
// relative to Workdir).
type PatchRequest struct {
	Workdir string
	Diff    string
}

// ExecTarget is the abstract tool executor interface. Both Host and
// Sandbox implement it identically from the kernel's perspective.
type ExecTarget interface {
	Kind() Kind
	Describe() Describe
	ExecShell(ctx context.Context, req ShellRequest) Result
	ReadFile(ctx context.Context, req ReadRequest) Result
	ListDir(ctx context.Context, req ListRequest) Result
	WriteFile(ctx context.Context, req WriteRequest) Result
	ApplyPatch(ctx context.Context, req PatchRequest) Result
}

// TruncateUTF8ToBytes truncates s to at most maxBytes bytes while never
// splitting a UTF-8 rune, matching the Rust original's
// truncate_utf8_to_bytes helper. Returns the (possibly shortened)
// string and whether truncation occurred.
func TruncateUTF8ToBytes(s string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, false
	}
	b := []byte(s)[:maxBytes]
	for len(b) > 0 && !isUTF8Boundary(b) {
		b = b[:len(b)-1]
	}
	return string(b), true
}

// isUTF8Boundary reports whether the end of b is not in the middle of
// a multi-byte UTF-8 rune.
func isUTF8Boundary(b []byte) bool {
	last := b[len(b)-1]
	return last&0xC0 != 0x80
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }
