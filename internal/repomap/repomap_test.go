package repomap

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeRepoFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolveDeterministicOrderAndPathNormalization(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, filepath.Join(root, ".git"), "gitdir: x")
	writeRepoFile(t, filepath.Join(root, "src", "b.rs"), "pub fn b() {}\n")
	writeRepoFile(t, filepath.Join(root, "src", "a.rs"), "pub fn a() {}\n")

	limits := DefaultLimits()
	limits.MaxFiles = 100
	limits.MaxScanBytes = 100_000
	limits.MaxOutBytes = 100_000

	m, err := Resolve(root, limits)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ia := strings.Index(m.Content, "path=src/a.rs")
	ib := strings.Index(m.Content, "path=src/b.rs")
	if ia == -1 || ib == -1 {
		t.Fatalf("expected both entries present, got:\n%s", m.Content)
	}
	if ia >= ib {
		t.Fatalf("expected a.rs before b.rs in sorted output")
	}
	if !strings.Contains(m.Content, "format=text.v1") || !strings.Contains(m.Content, "extractor=v1") {
		t.Fatalf("expected header markers, got:\n%s", m.Content)
	}
}

func TestResolveOutBudgetTruncatesAtEntryBoundary(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, filepath.Join(root, ".git"), "gitdir: x")
	for i := 0; i < 10; i++ {
		writeRepoFile(t, filepath.Join(root, "src", "f"+string(rune('0'+i))+".rs"), "pub fn f() {}\n")
	}

	limits := DefaultLimits()
	limits.MaxOutBytes = 500

	m, err := Resolve(root, limits)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !m.Truncated {
		t.Fatal("expected truncation")
	}
	if m.TruncatedReason != "max_out_bytes" {
		t.Fatalf("expected max_out_bytes, got %q", m.TruncatedReason)
	}
	if !strings.Contains(m.Content, "truncated=true") || !strings.Contains(m.Content, "END_REPO_MAP_ENTRIES") {
		t.Fatalf("expected truncation markers, got:\n%s", m.Content)
	}
}

func TestResolveExcludesSecretProneFilesAndState(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".localagent"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeRepoFile(t, filepath.Join(root, ".git"), "gitdir: x")
	writeRepoFile(t, filepath.Join(root, ".env"), "SECRET=1")
	writeRepoFile(t, filepath.Join(root, "secrets.txt"), "nope")
	writeRepoFile(t, filepath.Join(root, "ok.rs"), "pub fn ok() {}\n")
	writeRepoFile(t, filepath.Join(root, ".localagent", "x.rs"), "pub fn x() {}\n")

	m, err := Resolve(root, DefaultLimits())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(m.Content, "path=ok.rs") {
		t.Fatalf("expected ok.rs present, got:\n%s", m.Content)
	}
	if strings.Contains(m.Content, "path=.env") {
		t.Fatal("expected .env excluded")
	}
	if strings.Contains(m.Content, "secrets.txt") {
		t.Fatal("expected secrets.txt excluded")
	}
	if strings.Contains(m.Content, ".localagent") {
		t.Fatal("expected .localagent state dir excluded")
	}
}

func TestResolveDoesNotFollowSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	tmp := t.TempDir()
	root := filepath.Join(tmp, "repo")
	outside := filepath.Join(tmp, "outside")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatalf("mkdir outside: %v", err)
	}
	writeRepoFile(t, filepath.Join(root, ".git"), "gitdir: x")
	writeRepoFile(t, filepath.Join(outside, "secret.rs"), "pub fn secret() {}\n")
	if err := os.Symlink(outside, filepath.Join(root, "link_out")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	m, err := Resolve(root, DefaultLimits())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if strings.Contains(m.Content, "secret.rs") || strings.Contains(m.Content, "link_out") {
		t.Fatalf("expected symlinked directory not followed, got:\n%s", m.Content)
	}
}
