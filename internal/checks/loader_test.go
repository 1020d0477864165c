package checks

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCheckFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

const validCheck = "---\n" +
	"schema_version: 1\n" +
	"name: %s\n" +
	"required: true\n" +
	"pass_criteria:\n" +
	"  type: output_contains\n" +
	"  value: hello\n" +
	"---\n" +
	"hello\r\n"

func TestLoadDiscoversAndHashesDeterministically(t *testing.T) {
	root := t.TempDir()
	checksDir := filepath.Join(root, ".localagent", "checks")
	writeCheckFile(t, checksDir, "b.md", "---\nschema_version: 1\nname: b\nrequired: false\npass_criteria:\n  type: output_contains\n  value: hi\n---\nbody-b\n")
	writeCheckFile(t, checksDir, "nested/a.md", "---\nschema_version: 1\nname: a\nrequired: false\npass_criteria:\n  type: output_contains\n  value: hi\n---\nbody-a\r\n")

	first := Load(root, "")
	if len(first.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", first.Errors)
	}
	if len(first.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(first.Checks))
	}
	if first.Checks[0].Name != "b" || first.Checks[1].Name != "a" {
		t.Fatalf("unexpected discovery order: %s, %s", first.Checks[0].Name, first.Checks[1].Name)
	}
	if first.Checks[1].Body != "body-a\n" {
		t.Fatalf("expected CRLF body normalized to LF, got %q", first.Checks[1].Body)
	}

	second := Load(root, "")
	if len(second.Checks) != 2 {
		t.Fatalf("expected 2 checks on second load, got %d", len(second.Checks))
	}
	for i := range first.Checks {
		if first.Checks[i].CheckHashHex != second.Checks[i].CheckHashHex {
			t.Fatalf("check hash not deterministic across loads for %s", first.Checks[i].Name)
		}
		if first.Checks[i].FrontmatterHashHex != second.Checks[i].FrontmatterHashHex {
			t.Fatalf("frontmatter hash not deterministic across loads for %s", first.Checks[i].Name)
		}
		if first.Checks[i].FileBytesHashHex != second.Checks[i].FileBytesHashHex {
			t.Fatalf("file bytes hash not deterministic across loads for %s", first.Checks[i].Name)
		}
	}
}

func TestLoadReportsMissingFrontmatter(t *testing.T) {
	root := t.TempDir()
	checksDir := filepath.Join(root, ".localagent", "checks")
	writeCheckFile(t, checksDir, "no-frontmatter.md", "just a plain markdown file\nwith no header\n")

	result := Load(root, "")
	if len(result.Checks) != 0 {
		t.Fatalf("expected 0 checks, got %d", len(result.Checks))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].Code != CodeFrontmatterMissing {
		t.Fatalf("expected %s, got %s", CodeFrontmatterMissing, result.Errors[0].Code)
	}
}

func TestLoadDuplicateNamesFailDeterministically(t *testing.T) {
	root := t.TempDir()
	checksDir := filepath.Join(root, ".localagent", "checks")
	body := "---\nschema_version: 1\nname: dup\nrequired: false\npass_criteria:\n  type: output_contains\n  value: hi\n---\nbody\n"
	writeCheckFile(t, checksDir, "first.md", body)
	writeCheckFile(t, checksDir, "second.md", body)

	result := Load(root, "")
	if len(result.Checks) != 0 {
		t.Fatalf("expected 0 usable checks when names collide, got %d", len(result.Checks))
	}
	found := false
	for _, e := range result.Errors {
		if e.Code == CodeDuplicateName {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one %s error, got %v", CodeDuplicateName, result.Errors)
	}
}

func TestValidateFrontmatterRejectsUnknownPassCriteria(t *testing.T) {
	fm := Frontmatter{
		SchemaVersion: FrontmatterSchemaVersion,
		Name:          "x",
		PassCriteria:  PassCriteria{Kind: "not_a_real_kind", Value: "v"},
	}
	if err := ValidateFrontmatter(fm); err == nil {
		t.Fatal("expected error for unknown pass_criteria.type")
	}
}
