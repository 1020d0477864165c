package ltypes

// QueueMessageKind is the kind of an out-of-band operator message.
type QueueMessageKind string

const (
	QueueSteer    QueueMessageKind = "steer"
	QueueFollowUp QueueMessageKind = "follow_up"
)

// QueueMessage is one entry submitted to the Operator Queue. SequenceNo
// is strictly increasing per run.
type QueueMessage struct {
	QueueID    string           `json:"queue_id"`
	SequenceNo uint64           `json:"sequence_no"`
	Kind       QueueMessageKind `json:"kind"`
	Content    string           `json:"content"`
	Truncated  bool             `json:"truncated"`
	BytesKept  int              `json:"bytes_kept"`
	BytesLoaded int             `json:"bytes_loaded"`
}

// DeliveryBoundary is one of the two points where operator messages may
// enter the transcript.
type DeliveryBoundary string

const (
	BoundaryTurnIdle DeliveryBoundary = "turn_idle"
	BoundaryPostTool DeliveryBoundary = "post_tool"
)
