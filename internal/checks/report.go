package checks

import (
	"fmt"
	"os"
	"strings"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Result is one check's outcome, carrying enough of its identity
// (path, hashes) that a report can be compared byte-for-byte across
// runs of the same check tree.
type Result struct {
	Name                string
	Path                string
	Description         *string
	Status              Status
	ReasonCode          *string
	Summary             string
	Required            bool
	FileBytesHashHex    string
	FrontmatterHashHex  string
	CheckHashHex        string
}

// ReportSchemaVersion tags the report shape so downstream consumers can
// detect incompatible changes.
const ReportSchemaVersion = "localagent.checks.report.v1"

// Report is the full outcome of one evaluation pass, plus the tallies
// a CLI summary line wants without re-walking Checks.
type Report struct {
	SchemaVersion string   `json:"schema_version"`
	Checks        []Result `json:"checks"`
	Passed        int      `json:"passed"`
	Failed        int      `json:"failed"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
}

// FromResults tallies results into a Report.
func FromResults(results []Result) Report {
	report := Report{SchemaVersion: ReportSchemaVersion, Checks: results}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			report.Passed++
		case StatusFailed:
			report.Failed++
		case StatusSkipped:
			report.Skipped++
		default:
			report.Errors++
		}
	}
	return report
}

// ExitCode derives the process exit code a CLI should use for this
// report: required failures and errors both block success, but a
// skipped or failed non-required check does not.
func (r Report) ExitCode() ExitCode {
	if r.Errors > 0 {
		return ExitRunnerError
	}
	for _, c := range r.Checks {
		if c.Status == StatusFailed && c.Required {
			return ExitFailedChecks
		}
	}
	return ExitOk
}

// WriteJUnit renders report as a JUnit XML test suite at path, one
// testcase per check, so check runs slot into CI tooling that already
// understands JUnit.
func WriteJUnit(path string, report Report) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<testsuites><testsuite name="checks" tests="%d" failures="%d" errors="%d" skipped="%d">`+"\n",
		len(report.Checks), report.Failed, report.Errors, report.Skipped)
	for _, c := range report.Checks {
		fmt.Fprintf(&b, `  <testcase classname="checks" name=%q>`+"\n", xmlEscape(c.Name))
		switch c.Status {
		case StatusFailed:
			fmt.Fprintf(&b, "    <failure message=%q>%s</failure>\n", xmlEscape(c.Summary), xmlEscape(c.Summary))
		case StatusSkipped:
			fmt.Fprintf(&b, "    <skipped message=%q/>\n", xmlEscape(c.Summary))
		case StatusError:
			fmt.Fprintf(&b, "    <error message=%q>%s</error>\n", xmlEscape(c.Summary), xmlEscape(c.Summary))
		}
		b.WriteString("  </testcase>\n")
	}
	b.WriteString("</testsuite></testsuites>\n")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}
