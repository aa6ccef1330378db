package argonhash

import (
	"bytes"
	"testing"
)

func TestCanonicalAlgorithmAliases(t *testing.T) {
	cases := map[string]Algorithm{
		"chukwa":           Chukwa,
		"CHUKWA":           Chukwa,
		"  chukwa  ":       Chukwa,
		"chukwav2":         ChukwaV2,
		"turtlecoin":       ChukwaV2,
		"trtl":             ChukwaV2,
		"chukwa_wrkz":      ChukwaWrkz,
		"wrkzcoin":         ChukwaWrkz,
		"argon2/chukwa-v2": ChukwaV2,
	}

	for name, want := range cases {
		got, ok := CanonicalAlgorithm(name)
		if !ok {
			t.Fatalf("CanonicalAlgorithm(%q): unknown, want %v", name, want)
		}
		if got != want {
			t.Fatalf("CanonicalAlgorithm(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCanonicalAlgorithmUnknown(t *testing.T) {
	if _, ok := CanonicalAlgorithm("cryptonight"); ok {
		t.Fatalf("CanonicalAlgorithm should reject an algorithm outside the canonical table")
	}
}

func TestParamsForUnknownAlgorithm(t *testing.T) {
	if _, ok := ParamsFor("nonexistent"); ok {
		t.Fatalf("ParamsFor should fail for an unrecognized algorithm name")
	}
}

func TestHashIsDeterministic(t *testing.T) {
	params, _ := ParamsFor("chukwav2")
	h1 := New(params)
	h2 := New(params)

	blob := bytes.Repeat([]byte{0x42}, 76)

	h1.Init(blob)
	h2.Init(blob)

	d1 := h1.Hash(blob)
	d2 := h2.Hash(blob)

	if d1 != d2 {
		t.Fatalf("Hash() is not deterministic for identical input")
	}
}

func TestHashChangesWithNonce(t *testing.T) {
	params, _ := ParamsFor("chukwa")
	hasher := New(params)

	blobA := bytes.Repeat([]byte{0x00}, 76)
	blobB := bytes.Repeat([]byte{0x00}, 76)
	blobB[39] = 0x01 // flip one nonce byte

	hasher.Init(blobA)
	da := hasher.Hash(blobA)

	hasher.Init(blobB)
	db := hasher.Hash(blobB)

	if da == db {
		t.Fatalf("Hash() produced identical digests for different nonce bytes")
	}
}
