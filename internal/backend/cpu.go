package backend

import (
	"sync"
	"sync/atomic"

	"github.com/AGPFMiner/argonminer/internal/argonhash"
	"github.com/AGPFMiner/argonminer/internal/hardware"
	"github.com/AGPFMiner/argonminer/internal/types"
	"go.uber.org/zap"
)

// CPU is the fixed worker-pool backend consuming a job and nonce stride,
// calling the (placeholder) Argon2 hash per attempt. Grounded on
// original_source/src/Backend/CPU/CPU.cpp.
type CPU struct {
	hw     *hardware.Config
	submit SubmitFunc
	logger *zap.Logger

	mu         sync.Mutex
	currentJob types.Job
	baseNonce  uint32

	newJobAvailable []int32 // atomic per-thread flag
	shouldStop      int32   // atomic

	wg sync.WaitGroup
}

// NewCPU constructs a CPU backend. submit is called once per hash
// attempt (the CPU path does its own validity filtering downstream, in
// the hash manager's SubmitHash).
func NewCPU(hw *hardware.Config, submit SubmitFunc, logger *zap.Logger) *CPU {
	return &CPU{hw: hw, submit: submit, logger: logger}
}

func (c *CPU) Start(job types.Job, initialNonce uint32) {
	c.mu.Lock()
	alreadyRunning := len(c.newJobAvailable) > 0
	c.mu.Unlock()

	if alreadyRunning {
		c.Stop()
	}

	threadCount := c.hw.Snapshot().CPU.ThreadCount
	if threadCount == 0 {
		threadCount = 1
	}

	atomic.StoreInt32(&c.shouldStop, 0)

	c.mu.Lock()
	c.baseNonce = initialNonce
	c.currentJob = job
	c.newJobAvailable = make([]int32, threadCount)
	c.mu.Unlock()

	c.wg.Add(int(threadCount))
	for i := uint32(0); i < threadCount; i++ {
		go c.hash(i)
	}
}

func (c *CPU) Stop() {
	atomic.StoreInt32(&c.shouldStop, 1)

	c.mu.Lock()
	for i := range c.newJobAvailable {
		atomic.StoreInt32(&c.newJobAvailable[i], 1)
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.newJobAvailable = nil
	c.mu.Unlock()
}

func (c *CPU) SetNewJob(job types.Job, initialNonce uint32) {
	c.mu.Lock()
	c.baseNonce = initialNonce
	c.currentJob = job
	for i := range c.newJobAvailable {
		atomic.StoreInt32(&c.newJobAvailable[i], 1)
	}
	c.mu.Unlock()
}

func (c *CPU) Stats() []PerformanceStats { return nil }

func (c *CPU) hash(threadNumber uint32) {
	defer c.wg.Done()

	var currentAlgorithm string
	var nonceInfo types.NonceInfo
	var hasher argonhash.Hasher

	for atomic.LoadInt32(&c.shouldStop) == 0 {
		c.mu.Lock()
		localNonce := c.baseNonce
		job := c.currentJob.Clone()
		flag := &c.newJobAvailable[threadNumber]
		c.mu.Unlock()

		isNiceHash := job.IsNiceHash

		if hasher == nil || job.Algorithm != currentAlgorithm {
			nonceInfo = c.hw.GetNonceOffsetInfo("cpu", 0)
			currentAlgorithm = job.Algorithm

			params, ok := argonhash.ParamsFor(job.Algorithm)
			if !ok {
				if c.logger != nil {
					c.logger.Warn("unknown algorithm, CPU worker exiting", zap.String("algorithm", job.Algorithm))
				}
				return
			}
			hasher = argonhash.New(params)
		}

		hasher.Init(job.RawBlob)

		i := uint32(0)

		for atomic.LoadInt32(flag) == 0 {
			ourNonce := localNonce + i*nonceInfo.NoncesPerRound + threadNumber

			if isNiceHash {
				job.SetNonceNiceHash(ourNonce)
			} else {
				job.SetNonce(ourNonce)
			}

			digest := hasher.Hash(job.RawBlob)

			if c.submit != nil {
				c.submit(types.JobSubmit{
					Hash:               digest,
					JobID:              job.JobID,
					Nonce:              job.Nonce(),
					Target:             job.Target,
					HardwareIdentifier: "CPU",
				})
			}

			i++

			if !nonceInfo.AllHardwareInitialized {
				nonceInfo = c.hw.GetNonceOffsetInfo("cpu", 0)
			}

			if atomic.LoadInt32(&c.shouldStop) != 0 {
				break
			}
		}

		atomic.StoreInt32(flag, 0)
	}
}
