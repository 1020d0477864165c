package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/planner"
)

// buildPlanCmd creates the "plan" command: normalize a planner's raw
// text output into an openagent.plan.v1 document and print it, the
// same normalization the worker phase constrains itself against.
func buildPlanCmd() *cobra.Command {
	var (
		file   string
		goal   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate and normalize a plan document",
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if file == "-" || file == "" {
				raw, err = readAllStdin(cmd)
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read plan input: %w", err)
			}

			normalized, err := planner.Normalize(string(raw), goal, strict)
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}

			out, err := json.MarshalIndent(normalized.Plan, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal plan: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if normalized.UsedWrapper {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", normalized.Error)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "plan hash: %s\n", normalized.HashHex)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the raw planner output (- or omitted reads stdin)")
	cmd.Flags().StringVar(&goal, "goal", "", "Goal text used when wrapping a malformed plan")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail instead of wrapping malformed output")

	return cmd
}

func readAllStdin(cmd *cobra.Command) ([]byte, error) {
	var buf strings.Builder
	in := cmd.InOrStdin()
	chunk := make([]byte, 4096)
	for {
		n, err := in.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			break
		}
	}
	return []byte(buf.String()), nil
}
