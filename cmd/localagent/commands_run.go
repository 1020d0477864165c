package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/CalvinSturm/LocalAgent/internal/approvals"
	"github.com/CalvinSturm/LocalAgent/internal/checks"
	"github.com/CalvinSturm/LocalAgent/internal/events"
	"github.com/CalvinSturm/LocalAgent/internal/gate"
	"github.com/CalvinSturm/LocalAgent/internal/kernel"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/mcp"
	"github.com/CalvinSturm/LocalAgent/internal/mcptools"
	"github.com/CalvinSturm/LocalAgent/internal/observability"
	"github.com/CalvinSturm/LocalAgent/internal/opqueue"
	"github.com/CalvinSturm/LocalAgent/internal/providers/anthropic"
	"github.com/CalvinSturm/LocalAgent/internal/providers/openai"
	"github.com/CalvinSturm/LocalAgent/internal/repomap"
	"github.com/CalvinSturm/LocalAgent/internal/runrecord"
	"github.com/CalvinSturm/LocalAgent/internal/schema"
	"github.com/CalvinSturm/LocalAgent/internal/startup"
	"github.com/CalvinSturm/LocalAgent/internal/target"
	"github.com/CalvinSturm/LocalAgent/internal/taint"
	"github.com/CalvinSturm/LocalAgent/internal/tools"
	"github.com/CalvinSturm/LocalAgent/internal/transcript"
)

// buildRunCmd creates the "run" command: drive a single turn loop run
// to completion against a configured provider, tool registry, and
// trust-gate policy.
func buildRunCmd() *cobra.Command {
	var (
		configPath    string
		prompt        string
		promptFile    string
		runID         string
		modelOverride string
		allowShell    bool
		allowWrite    bool
		metricsAddr   string
		runChecks     bool
		checksJUnit   string
		includeRepoMap bool
		autoDetect    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single agent turn loop to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" && strings.TrimSpace(promptFile) != "" {
				b, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("read prompt file: %w", err)
				}
				prompt = string(b)
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("run: --prompt or --prompt-file is required")
			}
			return runRun(cmd, runOptions{
				configPath:    configPath,
				prompt:        prompt,
				runID:         runID,
				modelOverride: modelOverride,
				allowShell:    allowShell,
				allowWrite:    allowWrite,
				metricsAddr:   metricsAddr,
				runChecks:     runChecks,
				checksJUnit:   checksJUnit,
				includeRepoMap: includeRepoMap,
				autoDetect:    autoDetect,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", DefaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&prompt, "prompt", "", "User prompt for this turn")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "Read the user prompt from a file")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID; a UUID is generated when omitted")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override the configured model")
	cmd.Flags().BoolVar(&allowShell, "allow-shell", false, "Grant the shell tool capability")
	cmd.Flags().BoolVar(&allowWrite, "allow-write", false, "Grant the filesystem write capability")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics at this address (e.g. :9090) while the run executes")
	cmd.Flags().BoolVar(&runChecks, "run-checks", false, "Evaluate .localagent/checks against the final output after a successful run")
	cmd.Flags().StringVar(&checksJUnit, "checks-junit", "", "Write the check evaluation to this JUnit XML path (implies --run-checks)")
	cmd.Flags().BoolVar(&includeRepoMap, "repo-map", false, "Generate a repo map and inject it as a developer-role message")
	cmd.Flags().BoolVar(&autoDetect, "auto-detect-provider", false, "Probe well-known local model runtimes (LM Studio, Ollama, llama.cpp) to fill in an unset provider/model/base_url")

	return cmd
}

type runOptions struct {
	configPath     string
	prompt         string
	runID          string
	modelOverride  string
	allowShell     bool
	allowWrite     bool
	metricsAddr    string
	runChecks      bool
	checksJUnit    string
	includeRepoMap bool
	autoDetect     bool
}

func runRun(cmd *cobra.Command, opts runOptions) error {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.modelOverride != "" {
		cfg.Model = opts.modelOverride
	}

	if opts.autoDetect && (cfg.Model == "" || cfg.BaseURL == "") {
		detection := startup.DetectLocalProvider(cmd.Context(), startup.DefaultHTTPConfig())
		fmt.Fprintln(cmd.ErrOrStderr(), detection.StatusLine)
		if detection.Model != "" {
			cfg.Provider = detection.Provider
			cfg.Model = detection.Model
			cfg.BaseURL = detection.BaseURL
		}
	}

	runID := strings.TrimSpace(opts.runID)
	if runID == "" {
		runID = uuid.NewString()
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})

	var metrics *observability.Metrics
	if opts.metricsAddr != "" {
		metrics = observability.NewMetrics()
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metricsMux()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn(cmd.Context(), "metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	policy, err := gate.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	approvalsStore, err := approvals.Open(filepath.Join(cfg.StateDir, "approvals.json"))
	if err != nil {
		return fmt.Errorf("open approvals store: %w", err)
	}

	registry := tools.NewRegistry()
	validator := schema.NewValidator()

	var mcpExecutor kernel.MCPExecutor
	if cfg.MCP != nil && cfg.MCP.Enabled {
		mgr := mcp.NewManager(toMCPManagerConfig(cfg.MCP), nil)
		if err := mgr.Start(cmd.Context()); err != nil {
			logger.Warn(cmd.Context(), "mcp start failed", "error", err)
		}
		mcptools.DiscoverAndRegister(registry, mgr)
		mcpExecutor = mcptools.NewExecutor(mgr)
	}

	for name := range registry.AllNames() {
		def, ok := registry.Get(name)
		if !ok {
			continue
		}
		if err := validator.Compile(name, def.Parameters); err != nil {
			return fmt.Errorf("compile schema for %s: %w", name, err)
		}
	}

	execTarget, err := buildTarget(cfg)
	if err != nil {
		return err
	}

	runStore := runrecord.NewStore(cfg.StateDir)
	if err := runStore.Prepare(runID); err != nil {
		return fmt.Errorf("prepare run record: %w", err)
	}
	jsonlSink, eventsFile, err := events.OpenJSONLFile(runStore.EventsPath(runID))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventsFile.Close()
	sink := events.NewMultiSink(nil, jsonlSink, events.NewStdoutSink(cmd.OutOrStdout()))

	capabilities := map[string]bool{
		tools.CapShellExec:      opts.allowShell,
		tools.CapFilesystemWrite: opts.allowWrite,
	}
	for k, v := range cfg.Capabilities {
		capabilities[k] = v
	}

	if capabilities[tools.CapFilesystemWrite] {
		qualCache := startup.LoadQualificationCache(cfg.StateDir)
		if !startup.EnsureQualified(cmd.Context(), qualCache, provider, cfg.Provider, cfg.BaseURL, cfg.Model) {
			logger.Warn(cmd.Context(), "model did not pass orchestrator qualification probe; disabling filesystem write capability", "provider", cfg.Provider, "model", cfg.Model)
			capabilities[tools.CapFilesystemWrite] = false
		}
	}

	kernelCfg := kernel.Config{
		RunID:              runID,
		Model:              cfg.Model,
		ProviderIdentity:   cfg.Provider,
		Workdir:            cfg.Workdir,
		MaxSteps:           cfg.MaxSteps,
		MaxWallTime:        cfg.WallTime(),
		MaxTotalToolCalls:  cfg.MaxTotalToolCalls,
		MaxProviderRetries: cfg.MaxProviderRetries,
		ApprovalMode:       kernel.ApprovalMode(cfg.ApprovalMode),
		TaintMode:          taint.Mode(cfg.TaintMode),
		Capabilities:       capabilities,
		MaxReadBytes:       cfg.MaxReadBytes,
		MaxToolOutputBytes: cfg.MaxToolOutputBytes,
		TaintDigestBytes:   256,
		MaxContextTokens:    cfg.MaxContextTokens,
		CompactionStrategy:  transcript.Strategy(cfg.CompactionStrategy),

		Provider:  provider,
		Registry:  registry,
		Validator: validator,
		Policy:    policy,
		Approvals: approvalsStore,
		Target:    execTarget,
		Sink:      sink,
		OpQueue:   opqueue.New(),
		RunRecord: runStore,
		Logger:    logger,
		Metrics:   metrics,
		MCP:       mcpExecutor,
	}

	var instructionMessages []ltypes.Message
	if opts.includeRepoMap {
		resolved, rmErr := repomap.Resolve(cfg.Workdir, repomap.DefaultLimits())
		if rmErr != nil {
			logger.Warn(cmd.Context(), "repo map generation failed", "error", rmErr)
		} else {
			if _, err := repomap.WriteCache(cfg.StateDir, resolved); err != nil {
				logger.Warn(cmd.Context(), "repo map cache write failed", "error", err)
			}
			if msg, ok := repomap.Message(resolved); ok {
				instructionMessages = append(instructionMessages, msg)
			}
		}
	}

	var outcome ltypes.RunOutcome
	const maxApprovalRounds = 20
	for round := 0; ; round++ {
		outcome, err = kernel.Run(cmd.Context(), kernelCfg, opts.prompt, nil, instructionMessages)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		if outcome.ExitReason != ltypes.ExitApprovalRequired {
			break
		}
		if round >= maxApprovalRounds {
			return fmt.Errorf("run: exceeded %d approval rounds without completing", maxApprovalRounds)
		}
		granted, err := resolveInteractiveApproval(cmd, approvalsStore, outcome.Error)
		if err != nil {
			return fmt.Errorf("resolve approval: %w", err)
		}
		if !granted {
			return fmt.Errorf("run ended with %s: operator denied approval", outcome.ExitReason)
		}
		// Approval is now recorded in the store; kernel.Run's
		// resolveApproval looks the key up before prompting again, so
		// restarting the run from the same prompt lets it sail past the
		// gate it stopped at and continue from there.
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished: %s\n", outcome.RunID, outcome.ExitReason)
	if outcome.FinalOutput != "" {
		fmt.Fprintln(cmd.OutOrStdout(), outcome.FinalOutput)
	}
	if outcome.ExitReason != ltypes.ExitOk {
		return fmt.Errorf("run ended with %s: %s", outcome.ExitReason, outcome.Error)
	}

	if opts.runChecks || opts.checksJUnit != "" {
		if err := runPostRunChecks(cmd, cfg, outcome, opts.checksJUnit); err != nil {
			return err
		}
	}
	return nil
}

// runPostRunChecks evaluates the declarative check suite against a
// completed run's final output and reports the result, failing the
// command if any required check fails.
func runPostRunChecks(cmd *cobra.Command, cfg *Config, outcome ltypes.RunOutcome, junitPath string) error {
	loaded, report, exitCode := checks.LoadForRun(cfg.Workdir, checks.Args{})
	if report != nil {
		return writeChecksReport(cmd, *report, junitPath, exitCode)
	}
	if len(loaded) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no checks found")
		return nil
	}
	result := checks.Run(loaded, outcome.FinalOutput)
	return writeChecksReport(cmd, result, junitPath, result.ExitCode())
}

// resolveInteractiveApproval prompts the operator at the controlling
// terminal to allow or deny the tool call identified by approvalKey,
// then records the decision so the next kernel.Run call can proceed past
// it. Refuses to block on a non-interactive stdin rather than hanging a
// scripted invocation forever.
func resolveInteractiveApproval(cmd *cobra.Command, store *approvals.Store, approvalKey string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("approval required for %s but stdin is not a terminal; run with an allowing policy or pre-seed the approvals store", gate.ApprovalID(approvalKey))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "approval required (%s): allow this tool call? [y/N] ", gate.ApprovalID(approvalKey))

	reader := bufio.NewReader(cmd.InOrStdin())
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	allow := answer == "y" || answer == "yes"

	decision := approvals.DecisionDeny
	if allow {
		decision = approvals.DecisionAllow
	}
	if err := store.Record(approvalKey, decision, approvals.ScopeRun, "interactive"); err != nil {
		return false, err
	}
	return allow, nil
}

func buildProvider(cfg *Config) (kernel.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxProviderRetries,
			RetryDelay:   time.Second,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxProviderRetries,
			RetryDelay:   time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", cfg.Provider)
	}
}

// metricsMux serves the Prometheus scrape endpoint, the same handler
// the teacher's gateway HTTP server registers.
func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func buildTarget(cfg *Config) (target.ExecTarget, error) {
	if cfg.Sandbox != nil && cfg.Sandbox.Enabled {
		return target.NewSandboxTarget(target.SandboxConfig{
			Image:           cfg.Sandbox.Image,
			Workdir:         cfg.Workdir,
			Network:         cfg.Sandbox.Network,
			SocketPath:      cfg.Sandbox.SocketPath,
			KernelImagePath: cfg.Sandbox.KernelPath,
			RootDrivePath:   cfg.Sandbox.RootfsPath,
		})
	}
	return target.NewHostTarget(), nil
}

func toMCPManagerConfig(cfg *MCPConfig) *mcp.Config {
	out := &mcp.Config{Enabled: cfg.Enabled}
	for _, s := range cfg.Servers {
		out.Servers = append(out.Servers, &mcp.ServerConfig{
			ID:        s.ID,
			Name:      s.Name,
			Transport: mcp.TransportType(s.Transport),
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			WorkDir:   s.WorkDir,
			URL:       s.URL,
			Headers:   s.Headers,
			Timeout:   s.Timeout,
			AutoStart: s.AutoStart,
		})
	}
	return out
}
