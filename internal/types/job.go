package types

import "encoding/binary"

// nonceOffset and nonceLength are the fixed position of the mutable
// nonce field within a raw blob, per spec.md section 3.
const (
	nonceOffset = 39
	nonceLength = 4
	saltLength  = 16
)

// Job is one unit of work pushed by a pool: a raw blob whose bytes
// [39,43) are the mutable 32-bit little-endian nonce, a target, and
// metadata used for submission and algorithm selection.
type Job struct {
	RawBlob         []byte
	JobID           string
	Target          uint64
	ShareDifficulty float64
	Algorithm       string
	IsNiceHash      bool
}

// Clone returns a deep copy of the job's mutable blob so a worker can
// write its own nonce without racing other workers sharing the same
// Job value.
func (j Job) Clone() Job {
	blob := make([]byte, len(j.RawBlob))
	copy(blob, j.RawBlob)
	j.RawBlob = blob
	return j
}

// Nonce reads the 32-bit little-endian nonce from the blob.
func (j Job) Nonce() uint32 {
	if len(j.RawBlob) < nonceOffset+nonceLength {
		return 0
	}
	return binary.LittleEndian.Uint32(j.RawBlob[nonceOffset : nonceOffset+nonceLength])
}

// SetNonce writes a full 32-bit nonce into the blob.
func (j Job) SetNonce(nonce uint32) {
	binary.LittleEndian.PutUint32(j.RawBlob[nonceOffset:nonceOffset+nonceLength], nonce)
}

// SetNonceNiceHash writes only the low 24 bits of nonce into the blob,
// preserving whatever the pool set in the high byte (reserved for
// external nicehash-side coordination), per spec.md section 4.B.
func (j Job) SetNonceNiceHash(nonce uint32) {
	existing := j.Nonce()
	masked := (nonce & 0x00FFFFFF) | (existing & 0xFF000000)
	j.SetNonce(masked)
}

// Salt returns the blob's first 16 bytes.
func (j Job) Salt() []byte {
	if len(j.RawBlob) < saltLength {
		return nil
	}
	return j.RawBlob[:saltLength]
}

// NonceInfo is the result of querying the nonce partitioner for a given
// (backend, device) pair: how many nonces this job round covers in
// total, where this device's slice starts, and whether every enabled
// device has reported a non-stale per-round count.
type NonceInfo struct {
	NoncesPerRound         uint32
	NonceOffset            uint32
	AllHardwareInitialized bool
}

// JobSubmit is what a worker hands to the HashManager after producing a
// digest: enough information to validate it against the target and,
// if valid, forward it to the pool.
type JobSubmit struct {
	Hash               [32]byte
	JobID              string
	Nonce              uint32
	Target             uint64
	HardwareIdentifier string
}

// HashDeviceStats is the monotonic hash counter kept per device label.
type HashDeviceStats struct {
	TotalHashes uint64
}

// ValidForTarget reports whether the last 8 bytes of digest,
// interpreted little-endian, are strictly below target.
func ValidForTarget(digest [32]byte, target uint64) bool {
	return binary.LittleEndian.Uint64(digest[24:32]) < target
}
