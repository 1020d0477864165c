package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/learning"
)

// buildLearnCmd creates the "learn" command group: capture, list,
// show, promote, and archive evidence-backed learning entries.
func buildLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Capture and manage learning entries",
		Long:  "Record small, evidence-backed notes about a run and manage their lifecycle.",
	}
	cmd.AddCommand(
		buildLearnCaptureCmd(),
		buildLearnListCmd(),
		buildLearnShowCmd(),
		buildLearnPromoteCmd(),
		buildLearnArchiveCmd(),
	)
	return cmd
}

func buildLearnCaptureCmd() *cobra.Command {
	var (
		stateDir      string
		runID         string
		category      string
		summary       string
		taskSummary   string
		profile       string
		guidanceText  string
		checkText     string
		tags          []string
		evidenceSpecs []string
		evidenceNotes []string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a new learning entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if summary == "" {
				return fmt.Errorf("learn capture: --summary is required")
			}
			entry, err := learning.Capture(learning.CaptureInput{
				RunID:         runID,
				Category:      learning.Category(category),
				Summary:       summary,
				TaskSummary:   taskSummary,
				Profile:       profile,
				GuidanceText:  guidanceText,
				CheckText:     checkText,
				Tags:          tags,
				EvidenceSpecs: evidenceSpecs,
				EvidenceNotes: evidenceNotes,
			})
			if err != nil {
				return fmt.Errorf("learn capture: %w", err)
			}
			if err := learning.Save(stateDir, entry); err != nil {
				return fmt.Errorf("learn capture: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), learning.RenderCaptureConfirmation(entry))
			return nil
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", DefaultStateDir(), "State directory to store the entry under")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID this learning entry was observed during")
	cmd.Flags().StringVar(&category, "category", string(learning.CategoryWorkflowHint),
		"Entry category: workflow_hint, prompt_guidance, or check_candidate")
	cmd.Flags().StringVar(&summary, "summary", "", "One-paragraph summary of what was learned (required)")
	cmd.Flags().StringVar(&taskSummary, "task-summary", "", "Short description of the task being run")
	cmd.Flags().StringVar(&profile, "profile", "", "Profile name active during the run")
	cmd.Flags().StringVar(&guidanceText, "guidance-text", "", "Proposed durable guidance text")
	cmd.Flags().StringVar(&checkText, "check-text", "", "Proposed check text")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Classification tag (repeatable)")
	cmd.Flags().StringSliceVar(&evidenceSpecs, "evidence", nil, "Evidence in kind:value form (repeatable)")
	cmd.Flags().StringSliceVar(&evidenceNotes, "evidence-note", nil, "Note attached to the evidence at the same position (repeatable)")

	return cmd
}

func buildLearnListCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List captured learning entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := learning.List(stateDir)
			if err != nil {
				return fmt.Errorf("learn list: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no learning entries")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), learning.RenderListTable(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", DefaultStateDir(), "State directory holding learn/entries")
	return cmd
}

func buildLearnShowCmd() *cobra.Command {
	var (
		stateDir     string
		showEvidence bool
		showProposed bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single learning entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := learning.Load(stateDir, args[0])
			if err != nil {
				return fmt.Errorf("learn show: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), learning.RenderShowText(entry, showEvidence, showProposed))
			return nil
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", DefaultStateDir(), "State directory holding learn/entries")
	cmd.Flags().BoolVar(&showEvidence, "evidence", true, "Include the evidence section")
	cmd.Flags().BoolVar(&showProposed, "proposed", true, "Include the proposed_memory section")
	return cmd
}

func buildLearnPromoteCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "promote <id>",
		Short: "Mark a learning entry as promoted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := learning.SetStatus(stateDir, args[0], learning.StatusPromoted)
			if err != nil {
				return fmt.Errorf("learn promote: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", entry.ID, entry.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", DefaultStateDir(), "State directory holding learn/entries")
	return cmd
}

func buildLearnArchiveCmd() *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Mark a learning entry as archived",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := learning.SetStatus(stateDir, args[0], learning.StatusArchived)
			if err != nil {
				return fmt.Errorf("learn archive: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", entry.ID, entry.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", DefaultStateDir(), "State directory holding learn/entries")
	return cmd
}
