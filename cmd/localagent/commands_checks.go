package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/checks"
)

// buildChecksCmd creates the "checks" command group: run the
// declarative check suite under .localagent/checks against a final
// output string, independent of a turn loop run.
func buildChecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "Load and evaluate declarative checks",
		Long:  "Evaluate the markdown+frontmatter checks under .localagent/checks against a final output string.",
	}
	cmd.AddCommand(buildChecksRunCmd(), buildChecksListCmd())
	return cmd
}

func buildChecksRunCmd() *cobra.Command {
	var (
		root        string
		dir         string
		maxChecks   int
		finalOutput string
		junitPath   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate checks against a final output string",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecksRun(cmd, root, dir, maxChecks, finalOutput, junitPath)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "Project root the checks dir is relative to")
	cmd.Flags().StringVar(&dir, "dir", "", "Override the default .localagent/checks directory")
	cmd.Flags().IntVar(&maxChecks, "max-checks", 0, "Evaluate at most N checks (0 = no limit)")
	cmd.Flags().StringVar(&finalOutput, "final-output", "", "Final output text to evaluate checks against")
	cmd.Flags().StringVar(&junitPath, "junit", "", "Write a JUnit XML report to this path")
	return cmd
}

func buildChecksListCmd() *cobra.Command {
	var (
		root string
		dir  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered checks without evaluating them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecksList(cmd, root, dir)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "Project root the checks dir is relative to")
	cmd.Flags().StringVar(&dir, "dir", "", "Override the default .localagent/checks directory")
	return cmd
}

func runChecksRun(cmd *cobra.Command, root, dir string, maxChecks int, finalOutput, junitPath string) error {
	out := cmd.OutOrStdout()

	loaded, report, exitCode := checks.LoadForRun(root, checks.Args{Dir: dir, MaxChecks: maxChecks})
	if report != nil {
		return writeChecksReport(cmd, *report, junitPath, exitCode)
	}
	if len(loaded) == 0 {
		fmt.Fprintln(out, "no checks found")
		return nil
	}

	result := checks.Run(loaded, finalOutput)
	return writeChecksReport(cmd, result, junitPath, result.ExitCode())
}

func writeChecksReport(cmd *cobra.Command, report checks.Report, junitPath string, exitCode checks.ExitCode) error {
	out := cmd.OutOrStdout()
	for _, c := range report.Checks {
		fmt.Fprintf(out, "[%s] %s: %s\n", c.Status, c.Name, c.Summary)
	}
	fmt.Fprintf(out, "passed=%d failed=%d skipped=%d errors=%d\n", report.Passed, report.Failed, report.Skipped, report.Errors)

	if junitPath != "" {
		if err := checks.WriteJUnit(junitPath, report); err != nil {
			return fmt.Errorf("write junit report: %w", err)
		}
	}

	if exitCode != checks.ExitOk {
		return fmt.Errorf("checks: exit code %d", exitCode)
	}
	return nil
}

func runChecksList(cmd *cobra.Command, root, dir string) error {
	out := cmd.OutOrStdout()
	result := checks.Load(root, dir)
	for _, c := range result.Checks {
		fmt.Fprintf(out, "%s\trequired=%v\t%s\n", c.Name, c.Required, c.Path)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "error loading %s: %s: %s\n", e.Path, e.Code, e.Message)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("checks: %d check file(s) failed to load", len(result.Errors))
	}
	return nil
}
