package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// QuestionTimer is the countdown handle for the active question.
// Each Start gets a new generation; ticks from an older generation are stale
// and must be ignored by the owner. Only the controller loop touches it.
type QuestionTimer struct {
	clock   clockwork.Clock
	deliver func(gen uint64, stop <-chan struct{}) bool

	gen    uint64
	ticker clockwork.Ticker
	stop   chan struct{}
}

func newQuestionTimer(clock clockwork.Clock, deliver func(gen uint64, stop <-chan struct{}) bool) *QuestionTimer {
	return &QuestionTimer{clock: clock, deliver: deliver}
}

// Start cancels any running countdown and begins a new one ticking every second
func (t *QuestionTimer) Start() uint64 {
	t.Cancel()

	t.gen++
	gen := t.gen
	stop := make(chan struct{})
	ticker := t.clock.NewTicker(time.Second)
	t.stop = stop
	t.ticker = ticker

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if !t.deliver(gen, stop) {
					return
				}
			}
		}
	}()
	return gen
}

// Cancel stops the running countdown, if any. It is the single cancellation
// point for question supersede, answer result, expiry and teardown.
func (t *QuestionTimer) Cancel() {
	if t.stop == nil {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	t.stop = nil
	t.ticker = nil
}

// Active reports whether a countdown is running
func (t *QuestionTimer) Active() bool {
	return t.stop != nil
}

// Current reports whether gen belongs to the running countdown
func (t *QuestionTimer) Current(gen uint64) bool {
	return t.stop != nil && gen == t.gen
}
