// Package hashmanager implements the HashManager (spec.md section 4.E):
// per-device hashrate counters, share-accept counters, and submission
// gating. Grounded on original_source/src/MinerManager/HashManager.cpp.
package hashmanager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AGPFMiner/argonminer/internal/types"
	"go.uber.org/zap"
)

// Pool is the subset of the pool client the hash manager talks to:
// submitting shares and printing the current pool prefix.
type Pool interface {
	SubmitShare(hash [32]byte, jobID string, nonce uint32)
	PoolLabel() string
}

// recentWindow is the length, in one-second buckets, of the recent
// hashrate window kept per device, adapted from the teacher's
// statistics/hashrate.go 3600-slot circular buffer.
const recentWindow = 3600

type deviceCounters struct {
	totalHashes uint64 // atomic

	mu         sync.Mutex
	series     [recentWindow]uint64
	currentPos int
	lastBucket int64 // unix seconds of currentPos's bucket
}

func (d *deviceCounters) add(count uint64, now time.Time) {
	atomic.AddUint64(&d.totalHashes, count)

	bucket := now.Unix()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastBucket == 0 {
		d.lastBucket = bucket
	}

	advance := int(bucket - d.lastBucket)
	if advance > 0 {
		if advance > recentWindow {
			advance = recentWindow
		}
		for i := 0; i < advance; i++ {
			d.currentPos = (d.currentPos + 1) % recentWindow
			d.series[d.currentPos] = 0
		}
		d.lastBucket = bucket
	}

	d.series[d.currentPos] += count
}

func (d *deviceCounters) recentSum(seconds int) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if seconds > recentWindow {
		seconds = recentWindow
	}

	var sum uint64
	pos := d.currentPos
	for i := 0; i < seconds; i++ {
		sum += d.series[pos]
		pos--
		if pos < 0 {
			pos += recentWindow
		}
	}
	return sum
}

// Manager tracks hashrate and share-submission accounting across every
// hardware device reporting into it.
type Manager struct {
	pool   Pool
	logger *zap.Logger

	totalHashes     uint64 // atomic
	submittedHashes uint64 // atomic
	acceptedHashes  uint64 // atomic

	devicesMu sync.Mutex
	devices   map[string]*deviceCounters

	stateMu          sync.Mutex
	effectiveStart   time.Time
	paused           bool
	pauseTime        time.Time
	hasStarted       bool
}

// New constructs a HashManager submitting accepted shares through pool.
func New(pool Pool, logger *zap.Logger) *Manager {
	return &Manager{
		pool:    pool,
		logger:  logger,
		devices: make(map[string]*deviceCounters),
	}
}

func (m *Manager) deviceFor(name string) *deviceCounters {
	m.devicesMu.Lock()
	defer m.devicesMu.Unlock()

	d, ok := m.devices[name]
	if !ok {
		d = &deviceCounters{}
		m.devices[name] = d
	}
	return d
}

// IncrementHashesPerformed records count additional hashes attributed to
// device. The first call of the process seeds the effective start time
// for hashrate accounting.
func (m *Manager) IncrementHashesPerformed(count uint32, device string) {
	m.stateMu.Lock()
	if atomic.LoadUint64(&m.totalHashes) == 0 {
		m.effectiveStart = time.Now()
	}
	m.stateMu.Unlock()

	atomic.AddUint64(&m.totalHashes, uint64(count))
	m.deviceFor(device).add(uint64(count), time.Now())
}

// SubmitValidHash forwards a pre-validated candidate straight to the
// pool. The GPU path uses this directly since its kernel pre-filters
// candidates against the target.
func (m *Manager) SubmitValidHash(jobSubmit types.JobSubmit) {
	atomic.AddUint64(&m.submittedHashes, 1)
	if m.pool != nil {
		m.pool.SubmitShare(jobSubmit.Hash, jobSubmit.JobID, jobSubmit.Nonce)
	}
}

// SubmitHash is the CPU path: every hash is handed here, counted toward
// the device's total, validated against the target, and forwarded only
// if it passes.
func (m *Manager) SubmitHash(jobSubmit types.JobSubmit) {
	m.IncrementHashesPerformed(1, jobSubmit.HardwareIdentifier)

	if types.ValidForTarget(jobSubmit.Hash, jobSubmit.Target) {
		m.SubmitValidHash(jobSubmit)
	}
}

// ShareAccepted records one pool "OK" acknowledgement. Stray acks (no
// hashes performed, nothing submitted yet) are discarded, and so are
// acks in excess of what was actually submitted (double-acks).
func (m *Manager) ShareAccepted() {
	total := atomic.LoadUint64(&m.totalHashes)
	submitted := atomic.LoadUint64(&m.submittedHashes)

	if total == 0 || submitted == 0 {
		return
	}

	accepted := atomic.AddUint64(&m.acceptedHashes, 1)

	if accepted > submitted {
		// Double-ack: undo the increment, it never should have counted.
		atomic.AddUint64(&m.acceptedHashes, ^uint64(0))
		return
	}

	if m.logger != nil {
		m.logger.Info("share accepted by pool",
			zap.Uint64("accepted", accepted),
			zap.Uint64("submitted", submitted))
	}
}

// Accepted, Submitted, Total expose the raw counters (used by stats
// printing and tests).
func (m *Manager) Accepted() uint64  { return atomic.LoadUint64(&m.acceptedHashes) }
func (m *Manager) Submitted() uint64 { return atomic.LoadUint64(&m.submittedHashes) }
func (m *Manager) Total() uint64     { return atomic.LoadUint64(&m.totalHashes) }

// Start resumes elapsed-time accounting, shifting the effective start
// time forward by however long mining was paused, so the all-time
// hashrate remains meaningful across pool failovers.
func (m *Manager) Start() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.paused {
		pausedDuration := time.Since(m.pauseTime)
		m.effectiveStart = m.effectiveStart.Add(pausedDuration)
	}
	if !m.hasStarted {
		m.effectiveStart = time.Now()
		m.hasStarted = true
	}
	m.paused = false
}

// Pause freezes elapsed-time accounting.
func (m *Manager) Pause() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.paused = true
	m.pauseTime = time.Now()
}

// ResetShareCount zeroes submitted/accepted counters, called on a swap
// to a genuinely different pool.
func (m *Manager) ResetShareCount() {
	atomic.StoreUint64(&m.submittedHashes, 0)
	atomic.StoreUint64(&m.acceptedHashes, 0)
}

// HashrateSnapshot is one device's reported stats at PrintStats time.
type HashrateSnapshot struct {
	Device          string
	HashesPerSecond float64
	RecentPerSecond float64
}

// PrintStats logs the current hashrate of each device plus the
// accepted-share percentage, the Go analogue of
// HashManager::printStats. No combined total hashrate is logged.
func (m *Manager) PrintStats() []HashrateSnapshot {
	m.stateMu.Lock()
	elapsed := time.Since(m.effectiveStart)
	m.stateMu.Unlock()

	ms := elapsed.Milliseconds()

	m.devicesMu.Lock()
	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}
	m.devicesMu.Unlock()

	snapshots := make([]HashrateSnapshot, 0, len(names))

	for _, name := range names {
		d := m.deviceFor(name)
		total := atomic.LoadUint64(&d.totalHashes)

		var rate float64
		if ms != 0 && total != 0 {
			rate = 1000 * float64(total) / float64(ms)
		}

		recent := float64(d.recentSum(60)) / 60.0

		snapshots = append(snapshots, HashrateSnapshot{
			Device:          name,
			HashesPerSecond: rate,
			RecentPerSecond: recent,
		})

		if m.logger != nil {
			m.logger.Info("hashrate", zap.String("device", name), zap.Float64("h/s", rate))
		}
	}

	submitted := atomic.LoadUint64(&m.submittedHashes)
	accepted := atomic.LoadUint64(&m.acceptedHashes)

	var pct float64
	if accepted != 0 && submitted != 0 {
		pct = 100 * float64(accepted) / float64(submitted)
		if pct > 100 {
			pct = 100
		}
	}

	if m.logger != nil {
		m.logger.Info("accepted shares", zap.Float64("percent", pct))
	}

	return snapshots
}
