package backend

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AGPFMiner/argonminer/internal/argonhash"
	"github.com/AGPFMiner/argonminer/internal/hardware"
	"github.com/AGPFMiner/argonminer/internal/types"
	"go.uber.org/zap"
)

// batchResult is what one simulated kernel launch reports: the number of
// nonces it enumerated, and any nonce within the batch that beat the
// target.
type batchResult struct {
	noncesPerRun uint32
	hit          *types.JobSubmit
}

// kernelLauncher runs one simulated kernel launch starting at
// startNonce, across noncesPerRun candidate nonces. Exposed as a field
// so tests can inject a deterministic/failing kernel.
type kernelLauncher func(job types.Job, hasher argonhash.Hasher, startNonce uint32, noncesPerRun uint32) (batchResult, error)

// GPU is the device-per-worker backend: one goroutine per enabled GPU
// device, each driving a batched, paced simulated kernel. Grounded on
// original_source/src/Backend/Nvidia/Nvidia.cpp; the real CUDA/OpenCL
// kernel is out of scope (spec.md section 1), so noncesPerRun is derived
// from intensity rather than measured GPU occupancy.
type GPU struct {
	hw          *hardware.Config
	submitValid SubmitFunc
	increment   IncrementFunc
	logger      *zap.Logger
	launch      kernelLauncher

	mu         sync.Mutex
	currentJob types.Job
	baseNonce  uint32

	newJobAvailable []int32
	shouldStop      int32

	outputMu sync.Mutex
	wg       sync.WaitGroup
}

// NewGPU constructs a GPU backend driving every enabled device in hw.
func NewGPU(hw *hardware.Config, submitValid SubmitFunc, increment IncrementFunc, logger *zap.Logger) *GPU {
	g := &GPU{hw: hw, submitValid: submitValid, increment: increment, logger: logger}
	g.launch = g.defaultLaunch
	return g
}

func deviceNoncesPerRun(intensity float64) uint32 {
	n := uint32(intensity / 100.0 * 64.0)
	if n == 0 {
		n = 1
	}
	return n
}

// GetGPULagMicroseconds maps the user's desktop-lag tolerance to
// inter-launch pacing as 45*(2^((100-desktopLag)*0.2) - 1) microseconds,
// the curve from spec.md section 4.C / original_source's
// Nvidia::getGpuLagMicroseconds: 100 gives no sleep, and the pause grows
// exponentially as the tolerance drops, to about 47 s at 0.
func GetGPULagMicroseconds(desktopLag float64) uint32 {
	return uint32(45.0 * (math.Pow(2, (100-desktopLag)*0.2) - 1))
}

func (g *GPU) Start(job types.Job, initialNonce uint32) {
	g.mu.Lock()
	alreadyRunning := len(g.newJobAvailable) > 0
	g.mu.Unlock()

	if alreadyRunning {
		g.Stop()
	}

	devices := enabledDevices(g.hw)

	atomic.StoreInt32(&g.shouldStop, 0)

	g.mu.Lock()
	g.baseNonce = initialNonce
	g.currentJob = job
	g.newJobAvailable = make([]int32, len(devices))
	g.mu.Unlock()

	g.wg.Add(len(devices))
	for i, dev := range devices {
		go g.hash(dev, uint32(i))
	}
}

func (g *GPU) Stop() {
	atomic.StoreInt32(&g.shouldStop, 1)

	g.mu.Lock()
	for i := range g.newJobAvailable {
		atomic.StoreInt32(&g.newJobAvailable[i], 1)
	}
	g.mu.Unlock()

	g.wg.Wait()

	g.mu.Lock()
	g.newJobAvailable = nil
	g.mu.Unlock()
}

func (g *GPU) SetNewJob(job types.Job, initialNonce uint32) {
	g.mu.Lock()
	g.baseNonce = initialNonce
	g.currentJob = job
	for i := range g.newJobAvailable {
		atomic.StoreInt32(&g.newJobAvailable[i], 1)
	}
	g.mu.Unlock()
}

func (g *GPU) Stats() []PerformanceStats { return nil }

func enabledDevices(hw *hardware.Config) []hardware.GPUDevice {
	var out []hardware.GPUDevice
	for _, d := range hw.SortedGPUs() {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func (g *GPU) defaultLaunch(job types.Job, hasher argonhash.Hasher, startNonce uint32, noncesPerRun uint32) (batchResult, error) {
	result := batchResult{noncesPerRun: noncesPerRun}

	for n := uint32(0); n < noncesPerRun; n++ {
		nonce := startNonce + n

		local := job.Clone()
		if job.IsNiceHash {
			local.SetNonceNiceHash(nonce)
		} else {
			local.SetNonce(nonce)
		}

		digest := hasher.Hash(local.RawBlob)

		if types.ValidForTarget(digest, job.Target) {
			result.hit = &types.JobSubmit{
				Hash:               digest,
				JobID:              job.JobID,
				Nonce:              local.Nonce(),
				Target:             job.Target,
				HardwareIdentifier: "",
			}
			return result, nil
		}
	}

	return result, nil
}

func (g *GPU) hash(gpu hardware.GPUDevice, threadNumber uint32) {
	defer g.wg.Done()

	gpuName := fmt.Sprintf("%s-%d", gpu.Name, gpu.ID)
	gpuLag := GetGPULagMicroseconds(gpu.DesktopLag)

	var currentAlgorithm string
	var nonceInfo types.NonceInfo
	var hasher argonhash.Hasher
	var noncesPerRun uint32
	failure := false

	for atomic.LoadInt32(&g.shouldStop) == 0 {
		g.mu.Lock()
		localNonce := g.baseNonce
		job := g.currentJob.Clone()
		flag := &g.newJobAvailable[threadNumber]
		g.mu.Unlock()

		if hasher == nil || job.Algorithm != currentAlgorithm {
			params, ok := argonhash.ParamsFor(job.Algorithm)
			if !ok {
				if g.logger != nil {
					g.logger.Warn("unknown algorithm, GPU worker exiting", zap.String("algorithm", job.Algorithm), zap.String("device", gpuName))
				}
				return
			}

			hasher = argonhash.New(params)
			noncesPerRun = deviceNoncesPerRun(gpu.Intensity)

			g.outputMu.Lock()
			if g.logger != nil {
				g.logger.Info("allocating simulated GPU state",
					zap.String("device", gpuName),
					zap.Uint32("noncesPerRun", noncesPerRun),
					zap.Uint32("memoryKB", params.MemoryKB))
			}
			g.outputMu.Unlock()

			currentAlgorithm = job.Algorithm
			g.hw.ReportCheckIn(gpu.Vendor, gpu.ID, noncesPerRun)

			nonceInfo = g.hw.GetNonceOffsetInfo(gpu.Vendor, gpu.ID)
		}

		hasher.Init(job.RawBlob)

		i := uint32(0)

		for atomic.LoadInt32(flag) == 0 {
			ourNonce := localNonce + i*nonceInfo.NoncesPerRound + nonceInfo.NonceOffset

			result, err := g.launch(job, hasher, ourNonce, noncesPerRun)

			if err != nil {
				if g.logger != nil {
					g.logger.Warn("GPU hasher error", zap.String("device", gpuName), zap.Error(err))
				}

				if failure {
					if g.logger != nil {
						g.logger.Warn("stopping mining on device after second consecutive failure", zap.String("device", gpuName))
					}
					return
				}
				failure = true
			} else {
				failure = false

				if g.increment != nil {
					g.increment(result.noncesPerRun, gpuName)
				}

				if result.hit != nil && g.submitValid != nil {
					hit := *result.hit
					hit.HardwareIdentifier = gpuName
					g.submitValid(hit)
				}

				if gpuLag > 0 {
					time.Sleep(time.Duration(gpuLag) * time.Microsecond)
				}
			}

			i++

			if !nonceInfo.AllHardwareInitialized {
				nonceInfo = g.hw.GetNonceOffsetInfo(gpu.Vendor, gpu.ID)
			}

			if atomic.LoadInt32(&g.shouldStop) != 0 {
				break
			}
		}

		atomic.StoreInt32(flag, 0)
	}
}
