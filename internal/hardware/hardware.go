// Package hardware holds the process-wide hardware configuration and the
// nonce partitioner (spec.md section 4.D): the shared view mapping
// (backend, device-id) to a disjoint slice of the 32-bit nonce space.
package hardware

import (
	"runtime"
	"sync"

	"github.com/AGPFMiner/argonminer/internal/types"
	"github.com/jinzhu/copier"
)

// OptimizationMethod mirrors the C++ source's Constants::OptimizationMethod,
// injected rather than threaded through a process-global singleton per
// spec.md's "Global optimisation flag" redesign note.
type OptimizationMethod int

const (
	OptimizationAuto OptimizationMethod = iota
	OptimizationNone
	OptimizationSSE2
	OptimizationSSE41
	OptimizationSSSE3
	OptimizationAVX2
	OptimizationAVX512
	OptimizationNEON
)

// CPUConfig describes the CPU backend's configuration.
type CPUConfig struct {
	Enabled            bool
	ThreadCount        uint32
	OptimizationMethod OptimizationMethod
}

// GPUDevice describes one GPU device of either vendor.
type GPUDevice struct {
	Enabled bool
	Name    string
	// ID is the vendor-local zero-indexed device id.
	ID uint16
	// Vendor distinguishes devices with overlapping IDs across vendors
	// ("nvidia" or "amd"), used for canonical ordering.
	Vendor string

	// CheckedIn reports whether this device has reported its per-round
	// nonce count for the current algorithm.
	CheckedIn bool

	// NoncesPerRound is how many nonces this device consumes per launch.
	NoncesPerRound uint32

	Intensity  float64
	DesktopLag float64
}

// Config is the full hardware configuration: CPU plus an ordered list of
// GPU devices. The canonical order for nonce partitioning is CPU threads
// first, then GPU devices in (vendor, id) order.
type Config struct {
	mu sync.Mutex

	CPU  CPUConfig
	GPUs []GPUDevice
}

// NewDefaultConfig returns a CPU-only configuration using all logical
// CPUs, matching the C++ default of std::thread::hardware_concurrency().
func NewDefaultConfig() *Config {
	return &Config{
		CPU: CPUConfig{
			Enabled:            true,
			ThreadCount:        uint32(runtime.NumCPU()),
			OptimizationMethod: OptimizationAuto,
		},
	}
}

// Snapshot returns a deep copy of the configuration, safe for a worker to
// hold without aliasing the live, concurrently-mutated config. Grounded
// on the teacher's use of jinzhu/copier for backup-snapshotting mutable
// state (driver/thyroid.go's copier.Copy(&backupWork, work)).
func (c *Config) Snapshot() Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out Config
	copier.CopyWithOption(&out, c, copier.Option{DeepCopy: true})
	return out
}

// SortedGPUs returns the GPU devices in canonical (vendor, id) order.
// Vendor ordering is nvidia before amd, matching the original source's
// declaration order (NvidiaConfig before AmdConfig in HardwareConfig).
func (c *Config) SortedGPUs() []GPUDevice {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]GPUDevice, len(c.GPUs))
	copy(devices, c.GPUs)

	vendorRank := func(v string) int {
		if v == "nvidia" {
			return 0
		}
		return 1
	}

	for i := 1; i < len(devices); i++ {
		for j := i; j > 0; j-- {
			a, b := devices[j-1], devices[j]
			if vendorRank(a.Vendor) > vendorRank(b.Vendor) ||
				(vendorRank(a.Vendor) == vendorRank(b.Vendor) && a.ID > b.ID) {
				devices[j-1], devices[j] = devices[j], devices[j-1]
			} else {
				break
			}
		}
	}

	return devices
}

// ClearCheckedIn flips CheckedIn to false on every enabled GPU, forcing
// the partitioner to re-converge. Called whenever the mining algorithm
// changes (spec.md section 4.D/4.G).
func (c *Config) ClearCheckedIn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.GPUs {
		if c.GPUs[i].Enabled {
			c.GPUs[i].CheckedIn = false
		}
	}
}

// ReportCheckIn records that the named (vendor, id) device has computed
// noncesPerRound for the algorithm currently in effect.
func (c *Config) ReportCheckIn(vendor string, id uint16, noncesPerRound uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.GPUs {
		g := &c.GPUs[i]
		if g.Vendor == vendor && g.ID == id {
			g.NoncesPerRound = noncesPerRound
			g.CheckedIn = true
			return
		}
	}
}

// GetNonceOffsetInfo walks the canonical order (CPU, then GPUs in
// vendor/id order) and returns the NonceInfo for the queried device.
// "cpu" with no id queries the CPU backend as a whole (all threads
// share one contiguous slice, sub-divided by thread index by the CPU
// backend itself); "nvidia"/"amd" with an id queries one specific GPU.
//
// This is a direct translation of
// original_source/src/Miner/GetConfig.h's HardwareConfig::getNonceOffsetInfo:
// walk every enabled device in canonical order, accumulate
// noncesPerRound into the total, and keep accumulating into the offset
// until the queried device is reached. Any not-yet-checked-in enabled
// device forces allHardwareInitialized to false.
func (c *Config) GetNonceOffsetInfo(device string, gpuID uint16) types.NonceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := types.NonceInfo{AllHardwareInitialized: true}

	foundDevice := false

	if c.CPU.Enabled {
		info.NoncesPerRound += c.CPU.ThreadCount

		if device != "cpu" {
			info.NonceOffset += c.CPU.ThreadCount
		} else {
			foundDevice = true
		}
	}

	for _, gpu := range c.sortedGPUsLocked() {
		if !gpu.Enabled {
			continue
		}

		info.NoncesPerRound += gpu.NoncesPerRound

		if !gpu.CheckedIn {
			info.AllHardwareInitialized = false
		}

		if device == gpu.Vendor && gpuID == gpu.ID {
			foundDevice = true
		} else if !foundDevice {
			info.NonceOffset += gpu.NoncesPerRound
		}
	}

	return info
}

func (c *Config) sortedGPUsLocked() []GPUDevice {
	devices := make([]GPUDevice, len(c.GPUs))
	copy(devices, c.GPUs)

	vendorRank := func(v string) int {
		if v == "nvidia" {
			return 0
		}
		return 1
	}

	for i := 1; i < len(devices); i++ {
		for j := i; j > 0; j-- {
			a, b := devices[j-1], devices[j]
			if vendorRank(a.Vendor) > vendorRank(b.Vendor) ||
				(vendorRank(a.Vendor) == vendorRank(b.Vendor) && a.ID > b.ID) {
				devices[j-1], devices[j] = devices[j], devices[j-1]
			} else {
				break
			}
		}
	}

	return devices
}

// EnabledGPUCount returns how many GPU devices are enabled, used by the
// miner manager to decide whether to build a GPU backend at all.
func (c *Config) EnabledGPUCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, gpu := range c.GPUs {
		if gpu.Enabled {
			n++
		}
	}
	return n
}
