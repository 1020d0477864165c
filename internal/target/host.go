package target

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	execsafety "github.com/CalvinSturm/LocalAgent/internal/exec"
)

// HostTarget executes tools directly against the current process's
// filesystem and shell, matching the Rust original's HostTarget.
type HostTarget struct{}

func NewHostTarget() *HostTarget { return &HostTarget{} }

func (HostTarget) Kind() Kind { return KindHost }

func (HostTarget) Describe() Describe {
	return Describe{ExecTarget: string(KindHost)}
}

func (HostTarget) ExecShell(ctx context.Context, req ShellRequest) Result {
	if !execsafety.IsSafeExecutableValue(req.Cmd) {
		return Failed(KindHost, "unsafe executable value: "+req.Cmd, nil)
	}
	for _, a := range req.Args {
		if !execsafety.IsSafeArgument(a) {
			return Failed(KindHost, "unsafe argument: "+a, nil)
		}
	}

	dir := req.Workdir
	if req.Cwd != "" {
		dir = filepath.Join(req.Workdir, req.Cwd)
	}

	cmd := exec.CommandContext(ctx, req.Cmd, req.Args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	maxBytes := req.MaxToolOutputBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	out, outTrunc := TruncateUTF8ToBytes(stdout.String(), maxBytes)
	errOut, errTrunc := TruncateUTF8ToBytes(stderr.String(), maxBytes)

	exitCode := 0
	ok := runErr == nil
	if exitErr, isExit := runErr.(*exec.ExitError); isExit {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		exitCode = -1
	}

	content := out
	if errOut != "" {
		content = out + "\n--- stderr ---\n" + errOut
	}

	return Result{
		OK:              ok,
		Content:         content,
		Truncated:       outTrunc || errTrunc,
		Bytes:           intPtr(len(content)),
		ExitCode:        intPtr(exitCode),
		StdoutTruncated: boolPtr(outTrunc),
		StderrTruncated: boolPtr(errTrunc),
		ExecutionTarget: KindHost,
	}
}

func (HostTarget) ReadFile(_ context.Context, req ReadRequest) Result {
	full := filepath.Join(req.Workdir, req.Path)
	raw, err := os.ReadFile(full)
	if err != nil {
		return Failed(KindHost, err.Error(), nil)
	}
	maxBytes := req.MaxReadBytes
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}
	content, truncated := TruncateUTF8ToBytes(string(raw), maxBytes)
	return Result{
		OK:              true,
		Content:         content,
		Truncated:       truncated,
		Bytes:           intPtr(len(raw)),
		ExecutionTarget: KindHost,
	}
}

func (HostTarget) ListDir(_ context.Context, req ListRequest) Result {
	full := filepath.Join(req.Workdir, req.Path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return Failed(KindHost, err.Error(), nil)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	content := ""
	for i, n := range names {
		if i > 0 {
			content += "\n"
		}
		content += n
	}
	return Result{OK: true, Content: content, ExecutionTarget: KindHost}
}

func (HostTarget) WriteFile(_ context.Context, req WriteRequest) Result {
	full := filepath.Join(req.Workdir, req.Path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Failed(KindHost, err.Error(), nil)
	}
	if err := os.WriteFile(full, []byte(req.Content), 0o644); err != nil {
		return Failed(KindHost, err.Error(), nil)
	}
	return Result{OK: true, Content: "wrote " + req.Path, Bytes: intPtr(len(req.Content)), ExecutionTarget: KindHost}
}

func (HostTarget) ApplyPatch(ctx context.Context, req PatchRequest) Result {
	if !execsafety.IsSafeExecutableValue("patch") {
		return Failed(KindHost, "patch executable unavailable", nil)
	}
	cmd := exec.CommandContext(ctx, "patch", "-p1")
	cmd.Dir = req.Workdir
	cmd.Stdin = bytes.NewBufferString(req.Diff)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return Result{
			OK:              false,
			Content:         stderr.String(),
			ExecutionTarget: KindHost,
		}
	}
	return Result{OK: true, Content: stdout.String(), ExecutionTarget: KindHost}
}
