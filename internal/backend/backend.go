// Package backend implements the hash backend contract (spec.md section
// 4.A): a small capability interface any compute device family
// implements, plus the CPU and GPU backends that drive it.
package backend

import "github.com/AGPFMiner/argonminer/internal/types"

// Backend is the polymorphic capability set every compute device family
// implements, modelled as a Go interface rather than a tagged variant
// per spec.md's design note 9 ("either is acceptable").
//
// Required property: after Stop returns, no submission callback will be
// invoked again until the next Start.
type Backend interface {
	// Start spawns this backend's workers against job, with
	// initialNonce as the first round's base nonce.
	Start(job types.Job, initialNonce uint32)

	// Stop blocks until every worker has quiesced.
	Stop()

	// SetNewJob is non-blocking; every worker observes the new job
	// before its next submission.
	SetNewJob(job types.Job, initialNonce uint32)

	// Stats returns a snapshot of this backend's per-device performance
	// counters. The CPU and GPU backends in this package keep no such
	// counters and return nil; their hash counts reach the hash manager
	// through SubmitFunc and IncrementFunc instead.
	Stats() []PerformanceStats
}

// PerformanceStats is a point-in-time performance snapshot for one
// device driven by a backend.
type PerformanceStats struct {
	Device     string
	HashRate   float64
	NoncesTried uint64
}

// SubmitFunc is how a backend hands a produced digest to the hash
// manager. Two shapes exist because the GPU kernel pre-filters
// candidates against the target itself (the manager's SubmitValidHash),
// while the CPU path hands every hash to the manager for filtering
// (SubmitHash).
type SubmitFunc func(jobSubmit types.JobSubmit)

// IncrementFunc reports that a device performed count hashes, for
// hashrate accounting, independent of whether any of them were valid.
type IncrementFunc func(count uint32, device string)
