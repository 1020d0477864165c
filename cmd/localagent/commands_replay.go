package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/evalharness"
	"github.com/CalvinSturm/LocalAgent/internal/runrecord"
)

// buildReplayCmd creates the "replay" command: load a finished run's
// record and verify the envelope digest set it saved still accounts
// for exactly the tool calls the run made, then print a summary.
func buildReplayCmd() *cobra.Command {
	var (
		stateDir      string
		runID         string
		assertionsPath string
		assertWorkdir string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a finished run's record and verify its envelope digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("replay: --run-id is required")
			}
			return runReplay(cmd, stateDir, runID, assertionsPath, assertWorkdir)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", DefaultStateDir(), "State directory holding runs/<run-id>")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID to replay")
	cmd.Flags().StringVar(&assertionsPath, "assertions", "", "Path to a JSON array of evalharness.Assertion to check against the replayed outcome")
	cmd.Flags().StringVar(&assertWorkdir, "assert-workdir", ".", "Workdir file_exists/file_contains assertions are resolved relative to")

	return cmd
}

func runReplay(cmd *cobra.Command, stateDir, runID, assertionsPath, assertWorkdir string) error {
	store := runrecord.NewStore(stateDir)
	rec, err := store.Load(runID)
	if err != nil {
		return fmt.Errorf("load run record: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run_id:      %s\n", rec.Outcome.RunID)
	fmt.Fprintf(out, "exit_reason: %s\n", rec.Outcome.ExitReason)
	fmt.Fprintf(out, "started_at:  %s\n", rec.Outcome.StartedAt)
	fmt.Fprintf(out, "finished_at: %s\n", rec.Outcome.FinishedAt)
	fmt.Fprintf(out, "tool_calls:  %d\n", len(rec.Outcome.ToolCalls))
	fmt.Fprintf(out, "digests:     %d\n", len(rec.EnvelopeDigests))

	missing := missingDigests(rec)
	if len(missing) > 0 {
		sort.Strings(missing)
		fmt.Fprintf(out, "missing envelope digests for %d tool call(s):\n", len(missing))
		for _, id := range missing {
			fmt.Fprintf(out, "  %s\n", id)
		}
	} else {
		fmt.Fprintln(out, "every tool call has a recorded envelope digest")
	}

	eventsPath := store.EventsPath(runID)
	n, err := countLines(eventsPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not read event log %s: %v\n", eventsPath, err)
	} else {
		fmt.Fprintf(out, "event_log_lines: %d\n", n)
	}

	if assertionsPath != "" {
		failures, err := runReplayAssertions(rec, assertionsPath, assertWorkdir)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if len(failures) > 0 {
			fmt.Fprintf(out, "assertion failures (%d):\n", len(failures))
			for _, f := range failures {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return fmt.Errorf("replay: %d assertion(s) failed", len(failures))
		}
		fmt.Fprintln(out, "all assertions passed")
	}

	if len(missing) > 0 {
		return fmt.Errorf("replay: %d tool call(s) missing envelope digests", len(missing))
	}
	return nil
}

func runReplayAssertions(rec runrecord.Record, assertionsPath, workdir string) ([]string, error) {
	b, err := os.ReadFile(assertionsPath)
	if err != nil {
		return nil, fmt.Errorf("read assertions file: %w", err)
	}
	var assertions []evalharness.Assertion
	if err := json.Unmarshal(b, &assertions); err != nil {
		return nil, fmt.Errorf("parse assertions file: %w", err)
	}
	return evalharness.EvaluateAssertions(assertions, workdir, rec.Outcome), nil
}

// missingDigests returns the tool call IDs in the outcome that have no
// corresponding entry in EnvelopeDigests — a run record written by a
// crashed or tampered process would show up here.
func missingDigests(rec runrecord.Record) []string {
	var missing []string
	for _, call := range rec.Outcome.ToolCalls {
		if _, ok := rec.EnvelopeDigests[call.ID]; !ok {
			missing = append(missing, call.ID)
		}
	}
	return missing
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}
