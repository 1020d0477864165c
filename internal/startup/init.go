package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/CalvinSturm/LocalAgent/internal/gate"
)

// skipAutoInit names the cobra command leaves that manage their own
// state directory lifecycle (or, for "version", never touch state at
// all) and so must never trigger auto-init as a side effect of simply
// being invoked.
var skipAutoInit = map[string]bool{
	"version": true,
	"help":    true,
}

// ShouldAutoInitState reports whether invoking cmdName should trigger
// state directory scaffolding when stateDir does not yet exist.
func ShouldAutoInitState(cmdName string) bool {
	return !skipAutoInit[cmdName]
}

// MaybeAutoInitState scaffolds stateDir the first time a command that
// needs state finds none: the directory itself, a runs/ subdirectory,
// and a default policy.yaml an operator can go on to edit. It is a
// no-op whenever stateDir already exists, or when cmdName is one of
// the commands that manage their own state directory.
func MaybeAutoInitState(cmdName, stateDir string) error {
	if !ShouldAutoInitState(cmdName) {
		return nil
	}
	if _, err := os.Stat(stateDir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("startup: stat state dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(stateDir, "runs"), 0o755); err != nil {
		return fmt.Errorf("startup: scaffold state dir: %w", err)
	}

	policyPath := filepath.Join(stateDir, "policy.yaml")
	b, err := yaml.Marshal(gate.DefaultPolicy())
	if err != nil {
		return fmt.Errorf("startup: marshal default policy: %w", err)
	}
	if err := os.WriteFile(policyPath, b, 0o644); err != nil {
		return fmt.Errorf("startup: write default policy: %w", err)
	}

	return nil
}
