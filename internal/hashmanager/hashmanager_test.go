package hashmanager

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/AGPFMiner/argonminer/internal/types"
	"github.com/davecgh/go-spew/spew"
)

type stubPool struct {
	submitted int
	label     string
}

func (s *stubPool) SubmitShare(hash [32]byte, jobID string, nonce uint32) { s.submitted++ }
func (s *stubPool) PoolLabel() string                                     { return s.label }

func digestBelow(target uint64) [32]byte {
	var d [32]byte
	binary.LittleEndian.PutUint64(d[24:32], target-1)
	return d
}

func digestAbove(target uint64) [32]byte {
	var d [32]byte
	binary.LittleEndian.PutUint64(d[24:32], target+1)
	return d
}

func TestSubmitHashFiltersInvalidCandidates(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	m.SubmitHash(types.JobSubmit{Hash: digestAbove(1000), Target: 1000, HardwareIdentifier: "CPU"})
	if pool.submitted != 0 {
		t.Fatalf("an invalid hash must not be forwarded to the pool")
	}

	m.SubmitHash(types.JobSubmit{Hash: digestBelow(1000), Target: 1000, HardwareIdentifier: "CPU"})
	if pool.submitted != 1 {
		t.Fatalf("a valid hash must be forwarded to the pool exactly once")
	}
}

func TestSubmitValidHashAlwaysForwards(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	// GPU path: pre-filtered, forwarded unconditionally even though this
	// particular digest would fail ValidForTarget.
	m.SubmitValidHash(types.JobSubmit{Hash: digestAbove(1000), Target: 1000, HardwareIdentifier: "nvidia-0"})

	if pool.submitted != 1 {
		t.Fatalf("SubmitValidHash must forward unconditionally")
	}
}

func TestShareAcceptedDiscardsStrayAck(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	m.ShareAccepted()

	if got := m.Accepted(); got != 0 {
		t.Fatalf("Accepted() = %d, want 0 for an ack with nothing submitted yet", got)
	}
}

func TestShareAcceptedIsIdempotentAgainstDoubleAck(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	m.SubmitHash(types.JobSubmit{Hash: digestBelow(1000), Target: 1000, HardwareIdentifier: "CPU"})

	m.ShareAccepted()
	if got := m.Accepted(); got != 1 {
		t.Fatalf("Accepted() = %d, want 1 after one legitimate ack", got)
	}

	// A second ack for the same single submission is a double-ack and
	// must not be counted.
	m.ShareAccepted()
	if got := m.Accepted(); got != 1 {
		t.Fatalf("Accepted() = %d, want 1 after a double-ack (must be discarded)", got)
	}
}

func TestResetShareCountZeroesCounters(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	m.SubmitHash(types.JobSubmit{Hash: digestBelow(1000), Target: 1000, HardwareIdentifier: "CPU"})
	m.ShareAccepted()

	m.ResetShareCount()

	if m.Accepted() != 0 || m.Submitted() != 0 {
		t.Fatalf("ResetShareCount() did not zero both counters")
	}
}

func TestStartAfterPauseIsPauseInvariant(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	m.IncrementHashesPerformed(100, "CPU")
	m.Start()
	time.Sleep(20 * time.Millisecond)

	rateBefore := cpuRate(m.PrintStats())

	m.Pause()
	time.Sleep(200 * time.Millisecond) // long pause, would tank the rate if not discounted
	m.Start()
	time.Sleep(20 * time.Millisecond)

	rateAfter := cpuRate(m.PrintStats())

	// The reported hashrate should not have collapsed because a long
	// pause elapsed -- effectiveStart is shifted forward by the paused
	// duration so elapsed-time accounting ignores downtime.
	if rateAfter < rateBefore/3 {
		t.Fatalf("hashrate dropped sharply across a pause/resume: before=%v after=%v", rateBefore, rateAfter)
	}
}

func cpuRate(snapshots []HashrateSnapshot) float64 {
	for _, s := range snapshots {
		if s.Device == "CPU" {
			return s.HashesPerSecond
		}
	}
	return 0
}

func TestIncrementHashesPerformedAccumulatesPerDevice(t *testing.T) {
	pool := &stubPool{}
	m := New(pool, nil)

	m.IncrementHashesPerformed(5, "CPU")
	m.IncrementHashesPerformed(7, "nvidia-0")

	if m.Total() != 12 {
		t.Fatalf("Total() = %d, want 12", m.Total())
	}

	spew.Dump(m.PrintStats())
}
