// Command localagent is the turn-loop kernel's CLI front end: run a
// single agent turn to completion, validate a plan document, replay a
// recorded run's envelope digests, and inspect run-time health.
//
// Usage:
//
//	localagent run --prompt "fix the failing test" --config localagent.yaml
//	localagent plan --file plan.json
//	localagent replay --run-id 2026-...-abcd
//	localagent doctor
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/startup"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{})))
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "localagent",
		Short:         "Run and inspect local-first agent turn loops",
		Long:          "localagent drives the turn-loop kernel against a configured model provider, tool registry, and trust-gate policy, entirely on the local machine.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return startup.MaybeAutoInitState(cmd.Name(), DefaultStateDir())
		},
	}

	root.AddCommand(buildRunCmd())
	root.AddCommand(buildPlanCmd())
	root.AddCommand(buildReplayCmd())
	root.AddCommand(buildDoctorCmd())
	root.AddCommand(buildMcpCmd())
	root.AddCommand(buildChecksCmd())
	root.AddCommand(buildLearnCmd())
	root.AddCommand(buildEvalCmd())

	return root
}
