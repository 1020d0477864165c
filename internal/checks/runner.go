package checks

import (
	"fmt"
	"strings"
)

// Args configures a single evaluation pass over a set of checks.
type Args struct {
	// Dir overrides the default <root>/.localagent/checks discovery path.
	Dir string
	// MaxChecks truncates the loaded check list when > 0.
	MaxChecks int
}

// ExitCode mirrors the process exit codes a CLI wrapper around Run
// should use, so scripts can branch on "invalid checks" vs "checks ran
// but some failed" vs "the runner itself errored."
type ExitCode int

const (
	ExitOk            ExitCode = 0
	ExitInvalidChecks ExitCode = 2
	ExitFailedChecks  ExitCode = 3
	ExitRunnerError   ExitCode = 4
)

// LoadForRun loads the checks under root/args.Dir and, if any of them
// failed to load, returns a report describing those failures instead of
// a usable check list — a malformed check file is a configuration
// error, not something to silently skip.
func LoadForRun(root string, args Args) ([]Loaded, *Report, ExitCode) {
	result := Load(root, args.Dir)
	if len(result.Errors) > 0 {
		return nil, reportFromLoadErrors(result.Errors), ExitInvalidChecks
	}
	checks := result.Checks
	if args.MaxChecks > 0 && len(checks) > args.MaxChecks {
		checks = checks[:args.MaxChecks]
	}
	return checks, nil, ExitOk
}

// reportFromLoadErrors turns loader failures into a report whose
// checks all carry status "error", so a JUnit writer downstream has a
// uniform shape to render regardless of whether checks ran at all.
func reportFromLoadErrors(errs []LoadError) *Report {
	results := make([]Result, 0, len(errs))
	for _, e := range errs {
		code := e.Code
		results = append(results, Result{
			Name:       e.Path,
			Path:       e.Path,
			Status:     StatusError,
			ReasonCode: &code,
			Summary:    e.Message,
		})
	}
	report := FromResults(results)
	return &report
}

// ReportSingleError wraps one synthetic failure — used when the runner
// itself errors before it can load or evaluate any check, e.g. the
// final output was unavailable.
func ReportSingleError(code, message string) *Report {
	report := FromResults([]Result{{
		Name:       "runner",
		Path:       "",
		Status:     StatusError,
		ReasonCode: &code,
		Summary:    message,
	}})
	return &report
}

// EvaluateFinalOutput decides whether finalOutput satisfies check's
// pass criteria, returning a human-readable reason on failure.
func EvaluateFinalOutput(check Loaded, finalOutput string) error {
	want := check.Frontmatter.PassCriteria.Value
	switch check.Frontmatter.PassCriteria.Kind {
	case PassCriteriaContains:
		if !strings.Contains(finalOutput, want) {
			return fmt.Errorf("final_output missing expected substring: %s", want)
		}
	case PassCriteriaNotContains:
		if strings.Contains(finalOutput, want) {
			return fmt.Errorf("final_output contains forbidden substring: %s", want)
		}
	case PassCriteriaEquals:
		if finalOutput != want {
			return fmt.Errorf("final_output did not equal expected value")
		}
	default:
		return fmt.Errorf("unknown pass_criteria.type %q", check.Frontmatter.PassCriteria.Kind)
	}
	return nil
}

// Run evaluates every loaded check against finalOutput and assembles a
// report. It never returns an error itself — a check that fails to
// evaluate is recorded as a failed result, not a Go error — so a caller
// always has a report to act on or write out.
func Run(checksList []Loaded, finalOutput string) Report {
	results := make([]Result, 0, len(checksList))
	for _, c := range checksList {
		res := Result{
			Name:                c.Name,
			Path:                c.Path,
			Description:         optionalString(c.Description),
			Required:            c.Required,
			FileBytesHashHex:    c.FileBytesHashHex,
			FrontmatterHashHex:  c.FrontmatterHashHex,
			CheckHashHex:        c.CheckHashHex,
		}
		if err := EvaluateFinalOutput(c, finalOutput); err != nil {
			res.Status = StatusFailed
			res.Summary = err.Error()
		} else {
			res.Status = StatusPassed
			res.Summary = "ok"
		}
		results = append(results, res)
	}
	return FromResults(results)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
