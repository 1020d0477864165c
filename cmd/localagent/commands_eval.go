package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/evalharness"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// buildEvalCmd creates the "eval" command group: list fixture-driven
// regression tasks, estimate a run's token cost, and diff two eval
// results files.
func buildEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Fixture-driven regression tasks and result comparison",
	}
	cmd.AddCommand(buildEvalListCmd(), buildEvalCostCmd(), buildEvalCompareCmd())
	return cmd
}

func buildEvalListCmd() *cobra.Command {
	var pack string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks in a pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks := evalharness.TasksForPack(evalharness.Pack(pack))
			out := cmd.OutOrStdout()
			for _, t := range tasks {
				optional := ""
				if t.Optional {
					optional = " (optional)"
				}
				fmt.Fprintf(out, "%s: %s%s\n", t.ID, t.Prompt, optional)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pack, "pack", string(evalharness.PackAll), "Task pack: coding, browser, or all")
	return cmd
}

func buildEvalCostCmd() *cobra.Command {
	var (
		costModelPath    string
		modelName        string
		promptTokens     int
		completionTokens int
	)
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate a dollar cost from token counts against a cost model file",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := evalharness.LoadCostModel(costModelPath)
			if err != nil {
				return err
			}
			usage := &ltypes.TokenUsage{PromptTokens: promptTokens, CompletionTokens: completionTokens}
			cost, ok := evalharness.EstimateCostUSD(modelName, usage, model)
			if !ok {
				return fmt.Errorf("eval cost: no rule in %s matches model %q", costModelPath, modelName)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "$%.4f\n", cost)
			return nil
		},
	}
	cmd.Flags().StringVar(&costModelPath, "cost-model", "", "Path to a cost model JSON or YAML file (required)")
	cmd.Flags().StringVar(&modelName, "model", "", "Model name to match against the cost model's rules (required)")
	cmd.Flags().IntVar(&promptTokens, "prompt-tokens", 0, "Prompt token count")
	cmd.Flags().IntVar(&completionTokens, "completion-tokens", 0, "Completion token count")
	cmd.MarkFlagRequired("cost-model")
	cmd.MarkFlagRequired("model")
	return cmd
}

func buildEvalCompareCmd() *cobra.Command {
	var (
		outMarkdown string
		outJSON     string
	)
	cmd := &cobra.Command{
		Use:   "compare <a-results.json> <b-results.json>",
		Short: "Compare two eval results files and render a markdown delta report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outMarkdown == "" {
				return fmt.Errorf("eval compare: --out-md is required")
			}
			if err := evalharness.CompareResultsFiles(args[0], args[1], outMarkdown, outJSON); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outMarkdown)
			return nil
		},
	}
	cmd.Flags().StringVar(&outMarkdown, "out-md", "", "Output markdown report path (required)")
	cmd.Flags().StringVar(&outJSON, "out-json", "", "Optional output JSON report path")
	return cmd
}
