// Package argonhash stands in for the out-of-scope Argon2 hash function.
// spec.md treats the real digest as a pure external collaborator:
// hash(input []byte) -> 32-byte digest, plus an Init(blob) warm-up. This
// package implements that contract with github.com/bmkessler/haraka, the
// same hash library the teacher uses for its "verus" algorithm
// (algorithms/verus/verushash.go), folded over arbitrary-length input the
// way that file's genCurBuf folds a header into Haraka512's fixed 64-byte
// input.
package argonhash

import (
	"strings"

	"github.com/bmkessler/haraka"
)

// Algorithm is the canonical parameter set a pool-facing algorithm name
// resolves to, mirroring original_source/src/ArgonVariants/Variants.h.
type Algorithm int

const (
	Chukwa Algorithm = iota
	ChukwaV2
	ChukwaWrkz
)

// Params describes one canonical algorithm's memory/iteration/lane
// parameters, used by backends to size GPU memory allocation and CPU
// warm-up, not by the hash function itself (which is algorithm-agnostic
// here, since the real Argon2 variants are out of scope).
type Params struct {
	MemoryKB   uint32
	Iterations uint32
	Lanes      uint32
}

var canonicalParams = map[Algorithm]Params{
	Chukwa:     {MemoryKB: 512, Iterations: 3, Lanes: 1},
	ChukwaV2:   {MemoryKB: 1024, Iterations: 4, Lanes: 1},
	ChukwaWrkz: {MemoryKB: 256, Iterations: 4, Lanes: 1},
}

var nameMapping = map[string]Algorithm{
	"chukwa":        Chukwa,
	"argon2":        Chukwa,
	"argon2/chukwa": Chukwa,

	"chukwav2":         ChukwaV2,
	"chukwa_v2":        ChukwaV2,
	"chukwa-v2":        ChukwaV2,
	"turtlecoin":       ChukwaV2,
	"trtl":             ChukwaV2,
	"argon2/chukwav2":  ChukwaV2,
	"argon2/chukwa-v2": ChukwaV2,

	"chukwa_wrkz": ChukwaWrkz,
	"wrkzcoin":    ChukwaWrkz,
	"wrkz":        ChukwaWrkz,
	"argon2/wrkz": ChukwaWrkz,
	"chukwa/wrkz": ChukwaWrkz,
}

// CanonicalAlgorithm resolves a pool-facing algorithm name (any case, any
// surrounding whitespace) to its canonical parameter set.
func CanonicalAlgorithm(name string) (Algorithm, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	algo, ok := nameMapping[key]
	return algo, ok
}

// ParamsFor returns the memory/iteration/lane parameters for a pool-facing
// algorithm name, or false if the name is unknown.
func ParamsFor(name string) (Params, bool) {
	algo, ok := CanonicalAlgorithm(name)
	if !ok {
		return Params{}, false
	}
	return canonicalParams[algo], true
}

// Hasher is the pure hash function contract a backend drives:
// Init warms the hasher up for a given blob (algorithm parameters are
// already baked in at construction), and Hash produces the 32-byte
// digest for the blob with its nonce field as currently set.
type Hasher interface {
	Init(blob []byte)
	Hash(blob []byte) [32]byte
}

// harakaHasher implements Hasher on top of Haraka512, folding the input
// in 32-byte chunks the way verushash.go's genCurBuf folds a 1487-byte
// header into repeated Haraka512 calls.
type harakaHasher struct {
	params Params
}

// New returns a Hasher for the given canonical algorithm. The params are
// stored on the Hasher but not used by the haraka placeholder hash
// itself (Argon2's memory-hard behavior is out of scope), and the Hasher
// does not expose them; backends that need them call ParamsFor.
func New(params Params) Hasher {
	return &harakaHasher{params: params}
}

// Init is a no-op warm-up point for the real Argon2 implementation to
// hook into; kept so backends have a stable place to call it regardless
// of which hash implementation is wired in.
func (h *harakaHasher) Init(blob []byte) {}

func (h *harakaHasher) Hash(blob []byte) [32]byte {
	var state [32]byte
	var buf [64]byte
	var out [32]byte

	for offset := 0; offset < len(blob); offset += 32 {
		end := offset + 32
		if end > len(blob) {
			end = len(blob)
		}

		copy(buf[:32], state[:])
		for i := range buf[32:] {
			buf[32+i] = 0
		}
		copy(buf[32:32+(end-offset)], blob[offset:end])

		haraka.Haraka512(&out, &buf)
		state = out
	}

	return state
}
