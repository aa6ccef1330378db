// Package manager implements MinerManager (spec.md section 4.G): wires
// a pool connection and hardware configuration into a set of backends,
// reacts to pool lifecycle callbacks, and drives the stats-printer
// loop. Grounded on
// original_source/src/MinerManager/MinerManager.cpp.
package manager

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/AGPFMiner/argonminer/internal/backend"
	"github.com/AGPFMiner/argonminer/internal/hardware"
	"github.com/AGPFMiner/argonminer/internal/hashmanager"
	"github.com/AGPFMiner/argonminer/internal/types"
	"go.uber.org/zap"
)

const statsInterval = 20 * time.Second

// Pool is the subset of poolclient.Communication the manager drives.
type Pool interface {
	CurrentJob() types.Job
	PoolLabel() string
	StartManaging()
	Stop()

	OnNewJob(func(job types.Job))
	OnHashAccepted(func(shareID string))
	OnPoolSwapped(func(pool types.Pool))
	OnPoolDisconnected(func())
}

// Manager owns the hash manager, the enabled backends, and the pool
// lifecycle wiring between them.
type Manager struct {
	pool     Pool
	hw       *hardware.Config
	hashMgr  *hashmanager.Manager
	logger   *zap.Logger
	isDev    bool

	backends []backend.Backend

	currentAlgorithm string
	currentPool      types.Pool

	shouldStop int32 // atomic

	statsDone chan struct{}
}

// New builds a manager over the given pool connection and hardware
// configuration. isDevPool suppresses the "no backends enabled"
// warnings the dev-fee manager would otherwise log spuriously whenever
// the user legitimately has no GPUs.
func New(pool Pool, hw *hardware.Config, hashPool hashmanager.Pool, logger *zap.Logger, isDevPool bool) *Manager {
	hashMgr := hashmanager.New(hashPool, logger)

	m := &Manager{
		pool:    pool,
		hw:      hw,
		hashMgr: hashMgr,
		logger:  logger,
		isDev:   isDevPool,
	}

	if hw.Snapshot().CPU.Enabled {
		m.backends = append(m.backends, backend.NewCPU(hw, hashMgr.SubmitHash, logger))
	} else if !isDevPool && logger != nil {
		logger.Warn("CPU mining disabled")
	}

	if hw.EnabledGPUCount() > 0 {
		m.backends = append(m.backends, backend.NewGPU(hw, hashMgr.SubmitValidHash, hashMgr.IncrementHashesPerformed, logger))
	} else if !isDevPool && logger != nil {
		logger.Warn("no GPUs available, or all disabled, not starting GPU mining")
	}

	return m
}

func randomNonce() uint32 {
	return rand.Uint32()
}

// SetNewJob reacts to a freshly pushed job: clears each enabled GPU's
// checked-in flag if the algorithm changed (forcing every backend to
// re-derive its nonce partition), fans the job out to every backend
// with a fresh random base nonce, and logs the new difficulty.
func (m *Manager) SetNewJob(job types.Job) {
	nonce := randomNonce()

	if job.Algorithm != m.currentAlgorithm {
		m.currentAlgorithm = job.Algorithm
		m.hw.ClearCheckedIn()
	}

	for _, b := range m.backends {
		b.SetNewJob(job, nonce)
	}

	if m.logger != nil {
		m.logger.Info(m.pool.PoolLabel()+"new job", zap.Float64("difficulty", job.ShareDifficulty))
	}
}

// Start hooks this manager's methods to the pool's lifecycle callbacks
// and begins managing the pool connection, mirroring
// MinerManager::start().
func (m *Manager) Start() {
	atomic.StoreInt32(&m.shouldStop, 0)

	m.pool.OnNewJob(m.SetNewJob)
	m.pool.OnHashAccepted(m.OnHashAccepted)
	m.pool.OnPoolSwapped(m.OnPoolSwapped)
	m.pool.OnPoolDisconnected(m.OnPoolDisconnected)

	m.pool.StartManaging()
}

// OnHashAccepted is wired as the pool's share-accepted callback.
func (m *Manager) OnHashAccepted(string) {
	m.hashMgr.ShareAccepted()
}

// OnPoolSwapped is wired as the pool's pool-swap callback: resets share
// counters on a genuine pool change, then resumes mining.
func (m *Manager) OnPoolSwapped(newPool types.Pool) {
	if !newPool.Equal(m.currentPool) {
		m.hashMgr.ResetShareCount()
	}
	m.currentPool = newPool
	m.ResumeMining()
}

// OnPoolDisconnected is wired as the pool's disconnect callback.
func (m *Manager) OnPoolDisconnected() {
	m.PauseMining()
}

// ResumeMining restarts every backend against the pool's current job
// with a fresh base nonce, and (re)launches the stats-printer loop.
func (m *Manager) ResumeMining() {
	if m.statsDone != nil {
		m.PauseMining()
	}

	atomic.StoreInt32(&m.shouldStop, 0)

	if m.logger != nil {
		m.logger.Info("resuming mining")
	}

	job := m.pool.CurrentJob()

	if m.logger != nil {
		m.logger.Info(m.pool.PoolLabel()+"new job", zap.Float64("difficulty", job.ShareDifficulty))
	}

	nonce := randomNonce()

	for _, b := range m.backends {
		b.Start(job, nonce)
	}

	m.statsDone = make(chan struct{})
	go m.statPrinter(m.statsDone)
}

// PauseMining stops every backend and the stats-printer loop, without
// disconnecting from the pool.
func (m *Manager) PauseMining() {
	if m.logger != nil {
		m.logger.Info("pausing mining")
	}

	atomic.StoreInt32(&m.shouldStop, 1)

	for _, b := range m.backends {
		b.Stop()
	}

	m.hashMgr.Pause()

	if m.statsDone != nil {
		<-m.statsDone
		m.statsDone = nil
	}
}

// Stop halts mining and logs out of the pool entirely.
func (m *Manager) Stop() {
	m.PauseMining()
	m.pool.Stop()
}

// PrintStats logs hashrate/acceptance stats once.
func (m *Manager) PrintStats() []hashmanager.HashrateSnapshot {
	return m.hashMgr.PrintStats()
}

func (m *Manager) statPrinter(done chan struct{}) {
	defer close(done)

	m.hashMgr.Start()

	for atomic.LoadInt32(&m.shouldStop) == 0 {
		if sleepUnlessStopping(statsInterval, &m.shouldStop) {
			return
		}
		m.PrintStats()
	}
}

// sleepUnlessStopping sleeps in short increments so a stop request is
// noticed quickly rather than after the full interval, the analogue of
// Utilities::sleepUnlessStopping. Returns true if interrupted by a
// stop.
func sleepUnlessStopping(d time.Duration, stop *int32) bool {
	const tick = 200 * time.Millisecond

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(stop) != 0 {
			return true
		}
		remaining := time.Until(deadline)
		if remaining > tick {
			time.Sleep(tick)
		} else {
			time.Sleep(remaining)
		}
	}
	return atomic.LoadInt32(stop) != 0
}
