package usecase

import "time"

// loopTimer is a one-shot timer owned by the controller loop. Every Arm and
// Cancel bumps the generation, so a fire that was already in flight when the
// timer was cancelled or re-armed is rejected by Accept.
//
// All methods must be called from the loop goroutine.
type loopTimer struct {
	fire  func(gen uint64)
	timer *time.Timer
	gen   uint64
	armed bool
}

func newLoopTimer(fire func(gen uint64)) *loopTimer {
	return &loopTimer{fire: fire}
}

func (t *loopTimer) Arm(d time.Duration) {
	t.Cancel()
	t.armed = true
	gen := t.gen
	fire := t.fire
	t.timer = time.AfterFunc(d, func() { fire(gen) })
}

func (t *loopTimer) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
	t.gen++
}

// Accept reports whether a fire with gen is the live one and disarms the timer.
func (t *loopTimer) Accept(gen uint64) bool {
	if !t.armed || gen != t.gen {
		return false
	}
	t.armed = false
	t.timer = nil
	return true
}

func (t *loopTimer) Armed() bool {
	return t.armed
}
