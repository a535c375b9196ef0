package common

import (
	"errors"
	"testing"
)

func TestGuardRespectsPauses(t *testing.T) {
	pauses := NewPauses()
	if err := Guard(pauses, "lending/usdc"); err != nil {
		t.Fatalf("unexpected error before pause: %v", err)
	}
	pauses.SetPaused("lending/usdc", true)
	if err := Guard(pauses, "lending/usdc"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, "lending/weth"); err != nil {
		t.Fatalf("other modules must stay open: %v", err)
	}
	pauses.SetPaused("lending/usdc", false)
	if err := Guard(pauses, "lending/usdc"); err != nil {
		t.Fatalf("unexpected error after unpause: %v", err)
	}
}

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	var pauses *Pauses
	if pauses.IsPaused("lending") {
		t.Fatalf("nil pauses must report unpaused")
	}
}
