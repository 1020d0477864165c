package evalharness

// Pack selects which group of tasks TasksForPack returns.
type Pack string

const (
	PackCoding  Pack = "coding"
	PackBrowser Pack = "browser"
	PackAll     Pack = "all"
)

// FixtureKind names what a Fixture does to the workdir before a task
// runs.
type FixtureKind string

const (
	FixtureWriteFile FixtureKind = "write_file"
	FixtureCreateDir FixtureKind = "create_dir"
)

// Fixture is one workdir-preparation step applied before a task's
// prompt is sent to the turn loop.
type Fixture struct {
	Kind    FixtureKind `json:"kind"`
	Path    string      `json:"path"`
	Content string      `json:"content,omitempty"`
}

// RequiredCapabilities names the run flags a task needs enabled to be
// runnable at all.
type RequiredCapabilities struct {
	NeedsWriteTools bool `json:"needs_write_tools"`
	NeedsShell      bool `json:"needs_shell"`
}

// VerifierSpec is an optional external command run after the turn loop
// finishes, whose output is checked for a success marker.
type VerifierSpec struct {
	Command               string   `json:"command"`
	Args                  []string `json:"args"`
	Cwd                   string   `json:"cwd"`
	SummarySuccessContains string  `json:"summary_success_contains"`
}

// Task is one fixture-driven regression scenario: a prompt, the
// fixtures to seed a scratch workdir with, the tools it needs, and the
// assertions that decide pass/fail.
type Task struct {
	ID                   string                `json:"id"`
	Prompt               string                `json:"prompt"`
	RequiredTools        []string              `json:"required_tools"`
	Assertions           []Assertion           `json:"assertions"`
	Fixtures             []Fixture             `json:"fixtures"`
	NeedsWrite           bool                  `json:"needs_write"`
	NeedsPlaywright      bool                  `json:"needs_playwright"`
	Optional             bool                  `json:"optional"`
	RequiredCapabilities RequiredCapabilities  `json:"required_capabilities"`
	Verifier             *VerifierSpec         `json:"verifier,omitempty"`
}

// RequiredFlags returns the run CLI flags this task needs set for the
// required capabilities to actually be available.
func (t Task) RequiredFlags() []string {
	var out []string
	if t.RequiredCapabilities.NeedsWriteTools {
		out = append(out, "--enable-write-tools", "--allow-write")
	}
	if t.RequiredCapabilities.NeedsShell {
		out = append(out, "--allow-shell")
	}
	return out
}

// TasksForPack returns the tasks belonging to pack, coding tasks IDs
// prefixed "C" and browser tasks prefixed "B".
func TasksForPack(pack Pack) []Task {
	var all []Task
	all = append(all, codingTasks()...)
	all = append(all, browserTasks()...)

	var out []Task
	for _, t := range all {
		switch pack {
		case PackCoding:
			if len(t.ID) > 0 && t.ID[0] == 'C' {
				out = append(out, t)
			}
		case PackBrowser:
			if len(t.ID) > 0 && t.ID[0] == 'B' {
				out = append(out, t)
			}
		default:
			out = append(out, t)
		}
	}
	return out
}

func codingTasks() []Task {
	return []Task{
		{
			ID:            "C1",
			Prompt:        "Create a new file at src/hello.txt containing exactly hello followed by a newline. Use the write_file tool. Then respond with a brief confirmation.",
			RequiredTools: []string{"write_file"},
			Assertions: []Assertion{
				{Kind: AssertFileExists, Path: "src/hello.txt"},
				{Kind: AssertFileContains, Path: "src/hello.txt", Substring: "hello\n"},
				{Kind: AssertToolUsed, Name: "write_file"},
			},
			Fixtures:             []Fixture{{Kind: FixtureCreateDir, Path: "src"}},
			NeedsWrite:           true,
			RequiredCapabilities: RequiredCapabilities{NeedsWriteTools: true},
		},
		{
			ID:            "C2",
			Prompt:        "Edit main.go by using apply_patch so that func answer() returns 2 instead of 1. Do not rewrite the whole file with write_file. Then confirm done.",
			RequiredTools: []string{"apply_patch"},
			Assertions: []Assertion{
				{Kind: AssertFileContains, Path: "main.go", Substring: "return 2"},
				{Kind: AssertToolUsed, Name: "apply_patch"},
			},
			Fixtures: []Fixture{{
				Kind:    FixtureWriteFile,
				Path:    "main.go",
				Content: "package main\n\nfunc answer() int {\n\treturn 1\n}\n",
			}},
			NeedsWrite:           true,
			RequiredCapabilities: RequiredCapabilities{NeedsWriteTools: true},
		},
		{
			ID:            "C3",
			Prompt:        "In this module, fix the parsing bug so all tests pass, then run go test ./... and summarize the result.",
			RequiredTools: []string{"write_file", "shell"},
			Assertions: []Assertion{
				{Kind: AssertOutputContains, Substring: "test"},
			},
			Fixtures:             cliBugfixFixtures(),
			NeedsWrite:           true,
			RequiredCapabilities: RequiredCapabilities{NeedsWriteTools: true, NeedsShell: true},
			Verifier: &VerifierSpec{
				Command:               "go",
				Args:                  []string{"test", "./..."},
				Cwd:                   ".",
				SummarySuccessContains: "ok",
			},
		},
		{
			ID:     "C4",
			Prompt: "You are in a Go workspace fixture. Fix the failing test, refactor libcore.Combine's signature from two int args to one struct argument across both packages, and update README with a short line starting with 'Refactor note:'. Prefer apply_patch for edits. After edits, run go test ./... and report success.",
			RequiredTools: []string{"apply_patch", "write_file", "shell"},
			Assertions: []Assertion{
				{Kind: AssertFileContains, Path: "libcore/libcore.go", Substring: "Combine(pair Pair)"},
				{Kind: AssertFileContains, Path: "app/main.go", Substring: "Combine(libcore.Pair{A: 10, B: 5})"},
				{Kind: AssertFileContains, Path: "README.md", Substring: "Refactor note:"},
			},
			Fixtures:             workspaceRefactorFixtures(),
			NeedsWrite:           true,
			RequiredCapabilities: RequiredCapabilities{NeedsWriteTools: true, NeedsShell: true},
			Verifier: &VerifierSpec{
				Command:               "go",
				Args:                  []string{"test", "./..."},
				Cwd:                   ".",
				SummarySuccessContains: "ok",
			},
		},
		{
			ID:     "C5",
			Prompt: "Fix the parsing bug in this CLI fixture and add one additional regression test named TestParsesSpacedCountExtra in regression_test.go. Keep the behavior deterministic and then summarize what changed.",
			RequiredTools: []string{"write_file", "apply_patch"},
			Assertions: []Assertion{
				{Kind: AssertFileContains, Path: "regression_test.go", Substring: "TestParsesSpacedCountExtra"},
				{Kind: AssertFileContains, Path: "libcli.go", Substring: "TrimSpace"},
			},
			Fixtures:             cliBugfixFixtures(),
			NeedsWrite:           true,
			RequiredCapabilities: RequiredCapabilities{NeedsWriteTools: true, NeedsShell: true},
			Verifier: &VerifierSpec{
				Command:               "go",
				Args:                  []string{"test", "./..."},
				Cwd:                   ".",
				SummarySuccessContains: "ok",
			},
		},
	}
}

func browserTasks() []Task {
	return []Task{
		{
			ID:            "B1",
			Prompt:        "Using Playwright MCP tools, navigate to https://example.com and return the exact page title.",
			RequiredTools: []string{"mcp.playwright.*"},
			Assertions: []Assertion{
				{Kind: AssertOutputContains, Substring: "Example Domain"},
				{Kind: AssertMCPResultContain, Substring: "Example Domain"},
			},
			NeedsPlaywright: true,
		},
		{
			ID:            "B2",
			Prompt:        "Using Playwright MCP tools on https://example.com, report the first heading text.",
			RequiredTools: []string{"mcp.playwright.*"},
			Assertions: []Assertion{
				{Kind: AssertOutputContains, Substring: "Example Domain"},
				{Kind: AssertMCPResultContain, Substring: "Example Domain"},
			},
			NeedsPlaywright: true,
			Optional:        true,
		},
	}
}
