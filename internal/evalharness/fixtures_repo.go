package evalharness

// workspaceRefactorFixtures seeds a small two-module Go workspace with
// a deliberately int-pair Combine signature, grounded on the same
// write-file-then-refactor shape the Rust fixtures exercise.
func workspaceRefactorFixtures() []Fixture {
	return []Fixture{
		{Kind: FixtureWriteFile, Path: "go.mod", Content: "module workspacefixture\n\ngo 1.24\n"},
		{Kind: FixtureWriteFile, Path: "README.md", Content: "# Workspace Fixture\n\nTODO: add refactor note.\n"},
		{Kind: FixtureWriteFile, Path: "libcore/libcore.go", Content: "package libcore\n\n// Combine returns a - b.\n// TODO: fix implementation and refactor signature\nfunc Combine(a, b int) int {\n\treturn a - b\n}\n"},
		{Kind: FixtureWriteFile, Path: "libcore/libcore_test.go", Content: "package libcore\n\nimport \"testing\"\n\nfunc TestCombineAddsValues(t *testing.T) {\n\tif got := Combine(2, 3); got != 5 {\n\t\tt.Fatalf(\"got %d, want 5\", got)\n\t}\n}\n"},
		{Kind: FixtureWriteFile, Path: "app/main.go", Content: "package main\n\nimport (\n\t\"fmt\"\n\n\t\"workspacefixture/libcore\"\n)\n\nfunc main() {\n\tv := libcore.Combine(10, 5)\n\tfmt.Println(v)\n}\n"},
	}
}

// cliBugfixFixtures seeds a small Go CLI fixture whose parser rejects
// surrounding whitespace, a bug the task prompt asks the agent to fix.
func cliBugfixFixtures() []Fixture {
	return []Fixture{
		{Kind: FixtureWriteFile, Path: "go.mod", Content: "module clibugfix\n\ngo 1.24\n"},
		{Kind: FixtureWriteFile, Path: "libcli.go", Content: "package clibugfix\n\nimport (\n\t\"errors\"\n\t\"strconv\"\n)\n\n// ParseCount parses input as a non-negative integer.\n// Bug: this rejects inputs with surrounding spaces.\nfunc ParseCount(input string) (uint64, error) {\n\tif isAllDigits(input) {\n\t\treturn strconv.ParseUint(input, 10, 64)\n\t}\n\treturn 0, errors.New(\"invalid number\")\n}\n\nfunc isAllDigits(s string) bool {\n\tfor _, r := range s {\n\t\tif r < '0' || r > '9' {\n\t\t\treturn false\n\t\t}\n\t}\n\treturn len(s) > 0\n}\n"},
		{Kind: FixtureWriteFile, Path: "cmd/clibugfix/main.go", Content: "package main\n\nimport \"clibugfix\"\n\nfunc main() {\n\t_, _ = clibugfix.ParseCount(\"7\")\n}\n"},
		{Kind: FixtureWriteFile, Path: "regression_test.go", Content: "package clibugfix\n\nimport \"testing\"\n\nfunc TestParsesSimpleCount(t *testing.T) {\n\tv, err := ParseCount(\"12\")\n\tif err != nil || v != 12 {\n\t\tt.Fatalf(\"got %d, %v\", v, err)\n\t}\n}\n\nfunc TestParsesSpacedCount(t *testing.T) {\n\tv, err := ParseCount(\" 12 \")\n\tif err != nil || v != 12 {\n\t\tt.Fatalf(\"got %d, %v\", v, err)\n\t}\n}\n"},
		{Kind: FixtureWriteFile, Path: "README.md", Content: "# CLI bugfix fixture\n"},
	}
}
