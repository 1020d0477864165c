// Package taint implements the taint engine: it derives spans from
// executed tool calls and merges them into the run-owned TaintState,
// monotonically raising Overall to Tainted. Ported from the Rust
// original's src/taint.rs and src/agent_taint_helpers.rs, which this
// package follows field-for-field (TaintSpan{source,detail,digest},
// digest_prefix_hex, compute_taint_spans_for_tool).
package taint

import (
	"encoding/json"
	"fmt"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
	"github.com/CalvinSturm/LocalAgent/internal/gate"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Mode controls whether taint is only tracked or also enforced.
type Mode string

const (
	ModePropagate           Mode = "propagate"
	ModePropagateAndEnforce Mode = "propagate_and_enforce"
)

// DigestBytes is the default number of content bytes hashed for a
// span's digest, matching the Rust original's default.
const DigestBytes = 4096

// ComputeSpans derives the taint spans a single executed tool call
// produces: Browser/Network side effects always taint; read_file
// taints only when its path argument matches a policy taint glob.
// toolContent is the envelope's Content field (used for the digest,
// computed over the untruncated content).
func ComputeSpans(tc ltypes.ToolCall, sideEffects ltypes.SideEffects, toolContent string, policy *gate.Policy, digestBytes int) []ltypes.TaintSpan {
	if digestBytes <= 0 {
		digestBytes = DigestBytes
	}
	digest := canonjson.DigestPrefixHex(toolContent, digestBytes)

	switch sideEffects {
	case ltypes.SideEffectBrowser:
		return []ltypes.TaintSpan{{Source: ltypes.TaintSourceBrowser, Detail: tc.Name, Digest: digest}}
	case ltypes.SideEffectNetwork:
		return []ltypes.TaintSpan{{Source: ltypes.TaintSourceNetwork, Detail: tc.Name, Digest: digest}}
	}

	if tc.Name == "read_file" && policy != nil {
		if path, ok := argString(tc.Arguments, "path"); ok {
			if glob, matched := policy.TaintFileMatch(path); matched {
				return []ltypes.TaintSpan{{
					Source: ltypes.TaintSourceFile,
					Detail: fmt.Sprintf("matched taint glob: %s", glob),
					Digest: digest,
				}}
			}
		}
	}
	return nil
}

func argString(args json.RawMessage, field string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return "", false
	}
	raw, ok := m[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AddToolSpans merges spans produced by a tool call into state,
// attributing them to both the tool call id and the transcript message
// id of the resulting Tool message. Once any span is added, Overall is
// raised to Tainted and never lowered again (property 3: taint
// monotonicity).
func AddToolSpans(state *ltypes.TaintState, toolCallID string, messageID ltypes.MessageID, spans []ltypes.TaintSpan) {
	if len(spans) == 0 {
		return
	}
	state.Overall = ltypes.TaintTainted
	sources := make([]string, 0, len(spans))
	for _, s := range spans {
		sources = append(sources, string(s.Source))
	}
	state.LastSources = sources
	state.MessageTaints[messageID] = append(state.MessageTaints[messageID], spans...)
	state.SpansByToolCallID[toolCallID] = append(state.SpansByToolCallID[toolCallID], spans...)
}

// MarkAssistantContextTainted records that an assistant message was
// produced while the run was already tainted: subsequent assistant
// messages produced while Overall == Tainted are themselves marked
// tainted-context, forming the transitive closure.
func MarkAssistantContextTainted(state *ltypes.TaintState, messageID ltypes.MessageID) {
	if state.Overall != ltypes.TaintTainted {
		return
	}
	state.MessageTaints[messageID] = append(state.MessageTaints[messageID], ltypes.TaintSpan{
		Source: ltypes.TaintSourceOther,
		Detail: "tainted_context",
	})
}

// ShouldEnforce reports whether, under mode, a tool call with the given
// side effects must be denied because the run is currently tainted.
// Only FilesystemWrite and ShellExec are taint-enforced; Browser/Network
// calls are themselves taint sources, not taint-gated sinks.
func ShouldEnforce(mode Mode, overall ltypes.TaintLevel, sideEffects ltypes.SideEffects) bool {
	if mode != ModePropagateAndEnforce {
		return false
	}
	if overall != ltypes.TaintTainted {
		return false
	}
	return sideEffects == ltypes.SideEffectFilesystemWrite || sideEffects == ltypes.SideEffectShellExec
}
