package transfer

import (
	"context"
	"sync/atomic"
	"time"
)

const speedWindow = 5 * time.Second

// trackProgress samples the shared byte counter on a fixed tick and
// reports a sliding-window speed so the number does not whipsaw on
// bursty reads.
func (t *Transfer) trackProgress(ctx context.Context, stop <-chan struct{}, counter *int64, total int64, fn ProgressFunc) {
	type sample struct {
		at    time.Time
		bytes int64
	}
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	var window []sample
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			now := time.Now()
			bytes := atomic.LoadInt64(counter)
			window = append(window, sample{at: now, bytes: bytes})
			cutoff := now.Add(-speedWindow)
			for len(window) > 1 && window[0].at.Before(cutoff) {
				window = window[1:]
			}
			var speed int64
			if len(window) >= 2 {
				oldest := window[0]
				if elapsed := now.Sub(oldest.at).Seconds(); elapsed > 0 {
					speed = int64(float64(bytes-oldest.bytes) / elapsed)
				}
			}
			fn(Progress{Downloaded: bytes, Total: total, SpeedBPS: speed})
		}
	}
}
