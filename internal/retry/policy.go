package retry

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// limitTable gives the maximum number of retries the kernel grants per
// failure class, before side-effect gating is applied.
var limitTable = map[ltypes.FailureClass]uint32{
	ltypes.ESchema:            1,
	ltypes.ETimeoutTransient:  1,
	ltypes.ESelectorAmbiguous: 1,
	ltypes.ENetworkTransient:  1,
	ltypes.EPolicy:            0,
	ltypes.ENonIdempotent:     0,
	ltypes.EOther:             0,
}

// LimitFor returns how many retries a tool call failing with class is
// granted. A mutating side effect always collapses the limit to zero:
// the kernel never blindly retries a tool call that may have already
// taken effect.
func LimitFor(class ltypes.FailureClass, sideEffects ltypes.SideEffects) uint32 {
	if sideEffects.IsMutating() {
		return 0
	}
	return limitTable[class]
}

// IsRetryableClass reports whether class ever permits a retry,
// independent of side effects.
func IsRetryableClass(class ltypes.FailureClass) bool {
	return limitTable[class] > 0
}

// Backoff returns the delay before retry attempt n (1-based), using the
// same exponential curve cenkalti/backoff/v5 computes internally,
// capped at 5s.
func Backoff(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2.0
	b.MaxInterval = 5 * time.Second

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		res := b.NextBackOff()
		d = res
	}
	return d
}
