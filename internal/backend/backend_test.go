package backend

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AGPFMiner/argonminer/internal/argonhash"
	"github.com/AGPFMiner/argonminer/internal/hardware"
	"github.com/AGPFMiner/argonminer/internal/types"
)

var errAlways = errLaunchFailure{}

type errLaunchFailure struct{}

func (errLaunchFailure) Error() string { return "simulated launch failure" }

func testJob() types.Job {
	blob := make([]byte, 76)
	return types.Job{RawBlob: blob, JobID: "job1", Target: ^uint64(0), Algorithm: "chukwa"}
}

func TestCPUStartStopJoins(t *testing.T) {
	hw := &hardware.Config{CPU: hardware.CPUConfig{Enabled: true, ThreadCount: 2}}

	var count int32
	submit := func(js types.JobSubmit) { atomic.AddInt32(&count, 1) }

	cpu := NewCPU(hw, submit, nil)
	cpu.Start(testJob(), 0)
	time.Sleep(20 * time.Millisecond)
	cpu.Stop()

	if atomic.LoadInt32(&count) == 0 {
		t.Fatalf("CPU backend produced no submissions in 20ms")
	}

	// Required property: after Stop returns, no further submissions occur.
	observed := atomic.LoadInt32(&count)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&count) != observed {
		t.Fatalf("CPU backend kept submitting after Stop() returned")
	}
}

func TestCPURestartAfterStart(t *testing.T) {
	hw := &hardware.Config{CPU: hardware.CPUConfig{Enabled: true, ThreadCount: 1}}
	cpu := NewCPU(hw, func(types.JobSubmit) {}, nil)

	cpu.Start(testJob(), 0)
	// Starting again while already running must stop the old workers
	// first rather than leaking goroutines or double-driving.
	cpu.Start(testJob(), 42)
	cpu.Stop()
}

func TestGPUStartStopJoins(t *testing.T) {
	hw := &hardware.Config{GPUs: []hardware.GPUDevice{
		{Enabled: true, Vendor: "nvidia", ID: 0, Intensity: 50},
	}}

	var submits, increments int32
	submit := func(types.JobSubmit) { atomic.AddInt32(&submits, 1) }
	inc := func(count uint32, device string) { atomic.AddInt32(&increments, 1) }

	gpu := NewGPU(hw, submit, inc, nil)
	gpu.Start(testJob(), 0)
	time.Sleep(20 * time.Millisecond)
	gpu.Stop()

	if atomic.LoadInt32(&increments) == 0 {
		t.Fatalf("GPU backend reported no hash-count increments")
	}
}

func TestGPUStopsDeviceAfterTwoConsecutiveLaunchFailures(t *testing.T) {
	hw := &hardware.Config{GPUs: []hardware.GPUDevice{
		{Enabled: true, Vendor: "nvidia", ID: 0, Intensity: 50},
	}}

	gpu := NewGPU(hw, func(types.JobSubmit) {}, func(uint32, string) {}, nil)

	var mu sync.Mutex
	calls := 0
	gpu.launch = func(job types.Job, hasher argonhash.Hasher, startNonce uint32, noncesPerRun uint32) (batchResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return batchResult{}, errAlways
	}

	gpu.Start(testJob(), 0)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	observed := calls
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := calls
	mu.Unlock()

	if final != observed {
		t.Fatalf("GPU worker kept launching after its second consecutive failure: %d calls before, %d after", observed, final)
	}

	gpu.Stop()
}

func TestGetGPULagMicroseconds(t *testing.T) {
	if got := GetGPULagMicroseconds(100); got != 0 {
		t.Fatalf("GetGPULagMicroseconds(100) = %d, want 0 (no pacing at max tolerance)", got)
	}
	if got := GetGPULagMicroseconds(0); got == 0 {
		t.Fatalf("GetGPULagMicroseconds(0) should be well above 0")
	}
}
