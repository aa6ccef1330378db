package main

import "testing"

func TestDevPoolsMatchesDonationPool(t *testing.T) {
	pools := devPools()

	if len(pools) != 1 {
		t.Fatalf("devPools() returned %d pools, want 1", len(pools))
	}

	p := pools[0]
	if p.Host != "donate.futuregadget.xyz" || p.Port != 3333 {
		t.Fatalf("devPools()[0] host/port = %s:%d, unexpected", p.Host, p.Port)
	}
	if !p.NiceHash || !p.DisableAutoAlgoSelect {
		t.Fatalf("dev pool must force nicehash and disable auto algo selection")
	}
}
