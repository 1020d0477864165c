// Package opqueue implements the operator queue: a bounded FIFO of
// out-of-band operator messages delivered to a run at well-defined turn
// boundaries. Ported from the Rust original's operator_queue module
// (referenced by src/agent_queue_runtime.rs, which this package's
// Deliver/Submit split follows directly) and internal/agent/steering.go's
// SteeringQueue, generalized from that package's single in-memory
// channel to the two-boundary, byte-bounded model.
package opqueue

import (
	"sync"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/target"
)

// Kind is the delivery class of a queued message.
type Kind = ltypes.QueueMessageKind

const (
	KindSteer    = ltypes.QueueSteer
	KindFollowUp = ltypes.QueueFollowUp
)

// Boundary identifies the point in the turn loop where a message may be
// injected into the transcript.
type Boundary = ltypes.DeliveryBoundary

const (
	BoundaryTurnIdle = ltypes.BoundaryTurnIdle
	BoundaryPostTool = ltypes.BoundaryPostTool
)

// Message is one entry in the queue.
type Message = ltypes.QueueMessage

// Delivery is the result of popping a message at a boundary.
type Delivery struct {
	Message                Message
	Boundary               Boundary
	CancelledRemainingWork bool
	CancelledReason        string
}

// Limits bounds a single queued message's content size.
type Limits struct {
	MaxContentBytes int
}

// DefaultLimits matches the Rust original's defaults.
func DefaultLimits() Limits {
	return Limits{MaxContentBytes: 16 * 1024}
}

// Queue is a run-scoped, strictly-ordered FIFO split into two
// sub-queues by Kind, since Steer and FollowUp deliver at different
// boundaries and must never block one another.
type Queue struct {
	mu       sync.Mutex
	nextSeq  uint64
	steers   []Message
	followUps []Message
}

func New() *Queue {
	return &Queue{}
}

// Submit enqueues content under kind, truncating to limits. SequenceNo
// is strictly increasing across both sub-queues for the life of the
// run.
func (q *Queue) Submit(kind Kind, content string, limits Limits) Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	maxBytes := limits.MaxContentBytes
	if maxBytes <= 0 {
		maxBytes = DefaultLimits().MaxContentBytes
	}
	kept, truncated := target.TruncateUTF8ToBytes(content, maxBytes)
	msg := Message{
		QueueID:     "q_" + itoa(q.nextSeq),
		SequenceNo:  q.nextSeq,
		Kind:        kind,
		Content:     kept,
		Truncated:   truncated,
		BytesKept:   len(kept),
		BytesLoaded: len(content),
	}
	switch kind {
	case KindSteer:
		q.steers = append(q.steers, msg)
	case KindFollowUp:
		q.followUps = append(q.followUps, msg)
	}
	return msg
}

// DeliverAt pops the next message appropriate to boundary, if any.
// TurnIdle delivers FollowUp messages; PostTool delivers Steer
// messages and, when one is delivered, instructs the caller to cancel
// the remaining tool calls of the current assistant turn.
func (q *Queue) DeliverAt(boundary Boundary) (Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch boundary {
	case BoundaryTurnIdle:
		if len(q.followUps) == 0 {
			return Delivery{}, false
		}
		msg := q.followUps[0]
		q.followUps = q.followUps[1:]
		return Delivery{Message: msg, Boundary: boundary}, true
	case BoundaryPostTool:
		if len(q.steers) == 0 {
			return Delivery{}, false
		}
		msg := q.steers[0]
		q.steers = q.steers[1:]
		return Delivery{
			Message:                msg,
			Boundary:               boundary,
			CancelledRemainingWork: true,
			CancelledReason:        "operator_steer",
		}, true
	}
	return Delivery{}, false
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
