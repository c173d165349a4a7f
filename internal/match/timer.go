package match

import "time"

// questionTimer drives the countdown for one question. It posts one tick per
// interval into the engine inbox, counting down from durationSec-1 to 0, then
// an expiry event. All events carry the epoch they were armed under so the
// engine can discard stale ones after a cancel.
//
// The ticker uses the runtime's monotonic clock; wall-clock adjustments do not
// affect cadence.
type questionTimer struct {
	stop chan struct{}
}

func startQuestionTimer(e *Engine, epoch, durationSec int, interval time.Duration) *questionTimer {
	t := &questionTimer{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		remaining := durationSec
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				remaining--
				if remaining < 0 {
					return
				}
				if !t.post(e, command{kind: cmdTick, epoch: epoch, remaining: remaining}) {
					return
				}
				if remaining == 0 {
					t.post(e, command{kind: cmdExpired, epoch: epoch})
					return
				}
			}
		}
	}()

	return t
}

func (t *questionTimer) post(e *Engine, cmd command) bool {
	select {
	case <-t.stop:
		return false
	case <-e.done:
		return false
	case e.inbox <- cmd:
		return true
	}
}

// cancel stops the timer synchronously. Events already queued are discarded
// by the engine's epoch check.
func (t *questionTimer) cancel() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
