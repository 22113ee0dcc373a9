// Package timingwheel schedules a session's delayed update ticks: the
// ingress dispatcher arms one after each session is created, and the
// task it runs rearms the next one as long as the session stays open.
//
// The reference engine's own timer usage (see pkg/kcp's connection loop)
// is a plain time.NewTimer per wait, not a dedicated wheel data
// structure — nothing in the example pack reaches for a scheduling
// library for this, so this component is intentionally a thin,
// stdlib-only wrapper kept small on purpose (see DESIGN.md).
package timingwheel

import (
	"sync"
	"time"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// Wheel schedules one-shot delayed tasks. It tracks outstanding timers
// so Close can cancel everything still pending, which callers need
// during shutdown to avoid firing tasks against torn-down sessions.
type Wheel struct {
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates an empty Wheel.
func New() *Wheel {
	return &Wheel{timers: make(map[*time.Timer]struct{})}
}

// Schedule runs task once, after delay, on its own goroutine (per
// time.AfterFunc semantics). A no-op if the wheel has been closed.
func (w *Wheel) Schedule(delay time.Duration, task func()) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, t)
		w.mu.Unlock()
		task()
	})
	w.timers[t] = struct{}{}
	w.mu.Unlock()
}

// Close cancels every timer still pending. Tasks already running are
// unaffected.
func (w *Wheel) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[*time.Timer]struct{})
}

var _ session.TimingWheel = (*Wheel)(nil)
