package opqueue

import "testing"

func TestSubmitSequenceIncreasesAcrossKinds(t *testing.T) {
	q := New()
	a := q.Submit(KindFollowUp, "first", DefaultLimits())
	b := q.Submit(KindSteer, "second", DefaultLimits())
	if a.SequenceNo != 1 || b.SequenceNo != 2 {
		t.Fatalf("expected strictly increasing sequence numbers, got %d then %d", a.SequenceNo, b.SequenceNo)
	}
}

func TestDeliverAtTurnIdleOnlyPopsFollowUp(t *testing.T) {
	q := New()
	q.Submit(KindSteer, "steer", DefaultLimits())
	if _, ok := q.DeliverAt(BoundaryTurnIdle); ok {
		t.Fatal("TurnIdle must not deliver a Steer message")
	}
	q.Submit(KindFollowUp, "follow up", DefaultLimits())
	d, ok := q.DeliverAt(BoundaryTurnIdle)
	if !ok || d.Message.Content != "follow up" {
		t.Fatalf("expected follow-up delivery, got %+v ok=%v", d, ok)
	}
}

func TestDeliverAtPostToolCancelsRemainingWork(t *testing.T) {
	q := New()
	q.Submit(KindSteer, "stop", DefaultLimits())
	d, ok := q.DeliverAt(BoundaryPostTool)
	if !ok {
		t.Fatal("expected a Steer delivery")
	}
	if !d.CancelledRemainingWork || d.CancelledReason != "operator_steer" {
		t.Fatalf("expected cancellation flags set, got %+v", d)
	}
}

func TestSubmitTruncatesOversizedContent(t *testing.T) {
	q := New()
	content := make([]byte, 100)
	for i := range content {
		content[i] = 'a'
	}
	msg := q.Submit(KindFollowUp, string(content), Limits{MaxContentBytes: 10})
	if !msg.Truncated {
		t.Fatal("expected truncation")
	}
	if msg.BytesKept != 10 {
		t.Fatalf("expected 10 bytes kept, got %d", msg.BytesKept)
	}
	if msg.BytesLoaded != 100 {
		t.Fatalf("expected 100 bytes loaded, got %d", msg.BytesLoaded)
	}
}

func TestDeliverAtEmptyQueueReturnsFalse(t *testing.T) {
	q := New()
	if _, ok := q.DeliverAt(BoundaryTurnIdle); ok {
		t.Fatal("expected no delivery from empty queue")
	}
	if _, ok := q.DeliverAt(BoundaryPostTool); ok {
		t.Fatal("expected no delivery from empty queue")
	}
}
