package devshare

import (
	"sync"
	"testing"
	"time"
)

type fakeManager struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeManager) Start() { f.mu.Lock(); f.starts++; f.mu.Unlock() }
func (f *fakeManager) Stop()  { f.mu.Lock(); f.stops++; f.mu.Unlock() }

func (f *fakeManager) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func TestRunWithZeroDevFeeNeverRotates(t *testing.T) {
	user := &fakeManager{}
	dev := &fakeManager{}
	s := New(user, dev, 0, nil)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)

	if starts, _ := user.counts(); starts != 1 {
		t.Fatalf("user.Start() called %d times, want 1", starts)
	}
	if starts, _ := dev.counts(); starts != 0 {
		t.Fatalf("dev manager should never start when devFee is 0, got %d starts", starts)
	}

	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run() did not return after Stop()")
	}
}

func TestStopDuringFirstHalfNeverSwapsToDev(t *testing.T) {
	user := &fakeManager{}
	dev := &fakeManager{}
	s := New(user, dev, 2.5, nil)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// The first user-mining half is drawn uniformly from [10,60]
	// minutes, so a Stop() this soon must land well before any swap to
	// the dev pool.
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run() did not return after Stop()")
	}

	if starts, _ := dev.counts(); starts != 0 {
		t.Fatalf("dev manager should not have started, got %d starts", starts)
	}
	if starts, _ := user.counts(); starts != 1 {
		t.Fatalf("user.Start() called %d times, want 1", starts)
	}
}

// TestFullCycleStartsDevPoolExactlyOnce drives a full 300-minute
// rotation cycle through a virtual clock: sleepOrStop's timer is
// replaced by an instantly-firing channel, so the loop runs at wall-clock
// speed while still exercising the real duration math. Over one full
// cycle the dev pool must be started exactly once, for exactly
// 180*devFeePercent seconds, and the user manager must be genuinely
// restarted (Start(), not merely resumed) when control returns to it --
// spec.md section 4.H's transition is stop-dev/start-user, and
// Communication.StartManaging() is what re-establishes the connection
// Manager.Stop() tore down.
func TestFullCycleStartsDevPoolExactlyOnce(t *testing.T) {
	const devFeePercent = 0.02 // devMiningTime = 180*0.02s = 3.6s
	user := &fakeManager{}
	dev := &fakeManager{}
	s := New(user, dev, devFeePercent, nil)

	s.randIntn = func(int) int { return 0 } // userFirstHalf pinned to 10 minutes

	// sleepOrStop is only ever called from the single rotate() goroutine,
	// so elapsed/calls need no locking of their own.
	var elapsed time.Duration
	var calls int
	var devWindow time.Duration
	s.sleep = func(d time.Duration) <-chan time.Time {
		elapsed += d
		calls++
		if calls == 2 {
			devWindow = d
		}

		// The third sleepOrStop call (userFirstHalf, devMiningTime,
		// remaining) completes exactly one full cycle. Close stop before
		// returning a channel that never fires, so the enclosing select
		// deterministically takes the stop branch instead of racing into
		// a second iteration that would start the dev pool again.
		if calls == 3 {
			close(s.stop)
			return make(chan time.Time)
		}

		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run() did not return after a full virtual cycle")
	}

	if elapsed != cycleLength {
		t.Fatalf("virtual clock advanced %v across one cycle, want %v", elapsed, cycleLength)
	}
	if devWindow != 3600*time.Millisecond {
		t.Fatalf("dev window lasted %v, want 3.6s (180*%v seconds)", devWindow, devFeePercent)
	}

	devStarts, devStops := dev.counts()
	if devStarts != 1 || devStops != 1 {
		t.Fatalf("dev manager started/stopped %d/%d times, want exactly 1/1", devStarts, devStops)
	}

	// user.Start() must fire twice: once when Run() begins, and again
	// after the dev window closes -- a real restart of the (by then
	// disconnected) user manager, not a one-shot resume.
	userStarts, userStops := user.counts()
	if userStarts != 2 {
		t.Fatalf("user.Start() called %d times, want 2 (initial + post-dev-window restart)", userStarts)
	}
	if userStops != 1 {
		t.Fatalf("user.Stop() called %d times, want 1 (leaving for the dev window)", userStops)
	}
}
