package ltypes

// TaintLevel is the overall taint state of a run.
type TaintLevel string

const (
	TaintClean   TaintLevel = "clean"
	TaintTainted TaintLevel = "tainted"
)

// TaintSource identifies where a taint span originated.
type TaintSource string

const (
	TaintSourceBrowser TaintSource = "browser"
	TaintSourceNetwork TaintSource = "network"
	TaintSourceFile    TaintSource = "file"
	TaintSourceOther   TaintSource = "other"
)

// TaintSpan is an immutable record attributing data lineage to a
// specific tool call. Digest is a sha256 prefix of the tool's
// (untruncated) content, so identical inputs across runs produce
// identical spans.
type TaintSpan struct {
	Source TaintSource `json:"source"`
	Detail string      `json:"detail"`
	Digest string      `json:"digest"`
}

// MessageID indexes a position in the transcript.
type MessageID int

// TaintState is the run-owned taint tracking structure.
type TaintState struct {
	MessageTaints      map[MessageID][]TaintSpan `json:"message_taints"`
	SpansByToolCallID  map[string][]TaintSpan    `json:"spans_by_tool_call_id"`
	Overall            TaintLevel                `json:"overall"`
	LastSources        []string                  `json:"last_sources"`
}

// NewTaintState returns a clean, empty taint state.
func NewTaintState() *TaintState {
	return &TaintState{
		MessageTaints:     make(map[MessageID][]TaintSpan),
		SpansByToolCallID: make(map[string][]TaintSpan),
		Overall:           TaintClean,
		LastSources:       nil,
	}
}
