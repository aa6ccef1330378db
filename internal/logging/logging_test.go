package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestSelectLevel(t *testing.T) {
	if got := SelectLevel("debug"); got != zap.DebugLevel {
		t.Fatalf("SelectLevel(debug) = %v, want DebugLevel", got)
	}
	if got := SelectLevel("warn"); got != zap.WarnLevel {
		t.Fatalf("SelectLevel(warn) = %v, want WarnLevel", got)
	}
	if got := SelectLevel("garbage"); got != zap.InfoLevel {
		t.Fatalf("SelectLevel(garbage) = %v, want InfoLevel default", got)
	}
}

func TestSetLevelAffectsSharedAtomicLevel(t *testing.T) {
	New("error")
	if got := level.Level(); got != zap.ErrorLevel {
		t.Fatalf("level after New(error) = %v, want ErrorLevel", got)
	}

	SetLevel("debug")
	if got := level.Level(); got != zap.DebugLevel {
		t.Fatalf("level after SetLevel(debug) = %v, want DebugLevel", got)
	}
}
